package mqtt

import (
	mochi "github.com/mochi-mqtt/server/v2"
)

// Publisher sends a payload to a topic on behalf of the server.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MochiClient publishes through the broker's inline client.
type MochiClient struct {
	server *mochi.Server
}

func NewMochiClient(server *mochi.Server) *MochiClient {
	return &MochiClient{
		server,
	}
}

// Publish sends a non retained QoS 0 message. Frames are only meaningful to
// the connected session, so nothing is kept for late subscribers.
func (m *MochiClient) Publish(topic string, payload []byte) error {
	return m.server.Publish(topic, payload, false, 0)
}
