package mqtt

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/ilievs/pinboard/config"
)

type MochiBroker struct {
	server *mochi.Server
	logger *slog.Logger
}

func NewMochiBroker(server *mochi.Server, logger *slog.Logger) *MochiBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MochiBroker{
		server: server,
		logger: logger,
	}
}

// Ledger builds the broker's auth rules from the configured accounts. A
// device may only use its own topics; an app may only read its inbox.
func Ledger(cfg config.Config) *auth.Ledger {
	ledger := &auth.Ledger{
		ACL: auth.ACLRules{
			{Remote: "127.0.0.1:*"}, // local superuser allow all
		},
	}
	for _, d := range cfg.Devices {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{
			Username: auth.RString(d.Token),
			Password: auth.RString(d.Password),
			Allow:    true,
		})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{
			Username: auth.RString(d.Token),
			Filters: auth.Filters{
				auth.RString(DevicePropertyFilter(d.Token)): auth.WriteOnly,
				auth.RString(DeviceInbox(d.Token)):          auth.ReadOnly,
			},
		})
	}
	for _, a := range cfg.Apps {
		ledger.Auth = append(ledger.Auth, auth.AuthRule{
			Username: auth.RString(a.Username),
			Password: auth.RString(a.Password),
			Allow:    true,
		})
		ledger.ACL = append(ledger.ACL, auth.ACLRule{
			Username: auth.RString(a.Username),
			Filters: auth.Filters{
				auth.RString(AppInbox(a.Username)): auth.ReadOnly,
			},
		})
	}
	// Otherwise, no clients have any permissions
	ledger.ACL = append(ledger.ACL, auth.ACLRule{
		Filters: auth.Filters{"#": auth.Deny},
	})
	return ledger
}

// Start installs the auth ledger and the given hooks, opens a TCP listener on
// address and serves in the background.
func (m *MochiBroker) Start(address string, ledger *auth.Ledger, hooks []mochi.Hook, hookConfigs []any) error {
	if err := m.server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
		return fmt.Errorf("add auth hook: %w", err)
	}

	for i, hook := range hooks {
		if err := m.server.AddHook(hook, hookConfigs[i]); err != nil {
			return fmt.Errorf("add hook %s: %w", hook.ID(), err)
		}
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: address})
	if err := m.server.AddListener(tcp); err != nil {
		return fmt.Errorf("add listener %s: %w", address, err)
	}

	go func() {
		if err := m.server.Serve(); err != nil {
			m.logger.Error("mqtt broker stopped", "error", err)
		}
	}()
	m.logger.Info("mqtt broker listening", "address", address)
	return nil
}

func (m *MochiBroker) Close() error {
	return m.server.Close()
}
