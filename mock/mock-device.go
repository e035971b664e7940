package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/joho/godotenv"

	"github.com/ilievs/pinboard/mqtt"
	"github.com/ilievs/pinboard/system"
	"github.com/ilievs/pinboard/widget"
)

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// A simulated device: every second it pushes a property of the widget on
// MOCK_PIN and prints whatever the server sends to its inbox.
func main() {
	// App will run until cancelled by user (e.g. ctrl-c)
	ctx, stop := system.ShutdownContext()
	defer stop()

	_ = godotenv.Load()
	u, err := url.Parse(getenvDefault("MOCK_BROKER_URL", "mqtt://localhost:1883"))
	if err != nil {
		panic(err)
	}
	token := getenvDefault("MOCK_TOKEN", "hw-token")
	password := getenvDefault("MOCK_PASSWORD", "secret")
	pin, err := strconv.Atoi(getenvDefault("MOCK_PIN", "4"))
	if err != nil {
		panic(err)
	}

	inbox := mqtt.DeviceInbox(token)
	propertyTopic := mqtt.DevicePropertyTopic(token, widget.PinVirtual)

	cliCfg := autopaho.ClientConfig{
		ConnectUsername: token,
		ConnectPassword: []byte(password),
		ServerUrls:      []*url.URL{u},
		KeepAlive:       20, // Keepalive message should be sent every 20 seconds
		// Acks and updates are only meaningful to the live connection
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			fmt.Println("mqtt connection up")
			// Subscribing in the OnConnectionUp callback is recommended (ensures the subscription is reestablished if
			// the connection drops)
			if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: inbox, QoS: 0},
				},
			}); err != nil {
				fmt.Printf("failed to subscribe (%s). This is likely to mean no messages will be received.", err)
			}
			fmt.Println("mqtt subscription made", inbox)
		},
		OnConnectError: func(err error) {
			fmt.Printf("error whilst attempting connection: %s\n", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "mock-" + token,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					fmt.Printf("received %s: %s\n", pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				}},
			OnClientError: func(err error) { fmt.Printf("client error: %s\n", err) },
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					fmt.Printf("server requested disconnect: %s\n", d.Properties.ReasonString)
				} else {
					fmt.Printf("server requested disconnect; reason code: %d\n", d.ReasonCode)
				}
			},
		},
	}

	c, err := autopaho.NewConnection(ctx, cliCfg) // starts process; will reconnect until context cancelled
	if err != nil {
		panic(err)
	}
	// Wait for the connection to come up
	if err = c.AwaitConnection(ctx); err != nil {
		panic(err)
	}

	colors := []string{"#23C48E", "#D3435C", "#04C0F8", "#ED9D00"}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	msgID := 0
	for {
		select {
		case <-ticker.C:
			msgID++
			var body string
			if msgID%2 == 0 {
				body = "color " + colors[rand.Intn(len(colors))]
			} else {
				body = "label Reading " + strconv.Itoa(rand.Intn(200)+50)
			}
			payload := fmt.Sprintf("%d %d %s", msgID, pin, body)

			if _, err := c.Publish(ctx, &paho.Publish{
				QoS:     0,
				Topic:   propertyTopic,
				Payload: []byte(payload),
			}); err != nil {
				if ctx.Err() == nil {
					log.Println("publish failed:", err)
				}
				continue
			}
			log.Println("published:", payload)
		case <-ctx.Done():
			<-c.Done()
			return
		}
	}
}
