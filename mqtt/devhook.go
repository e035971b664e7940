package mqtt

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/ilievs/pinboard/config"
	"github.com/ilievs/pinboard/core"
	"github.com/ilievs/pinboard/protocol"
)

type HookOptions struct {
	Publisher Publisher
	Handler   *core.Handler
	Accounts  config.Config
	Logger    *slog.Logger
}

// SessionHook registers connecting devices and apps with the router and feeds
// device property messages to the command handler.
type SessionHook struct {
	mochi.HookBase
	publisher Publisher
	handler   *core.Handler
	accounts  config.Config
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[*mochi.Client]*Session
}

// ID returns the ID of the hook.
func (h *SessionHook) ID() string {
	return "SessionHook"
}

// Provides indicates which methods a hook provides.
func (h *SessionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
		mochi.OnPublish,
	}, []byte{b})
}

func (h *SessionHook) Init(opts any) error {
	opt, ok := opts.(*HookOptions)
	if !ok || opt == nil || opt.Handler == nil || opt.Publisher == nil {
		return mochi.ErrInvalidConfigType
	}
	h.publisher = opt.Publisher
	h.handler = opt.Handler
	h.accounts = opt.Accounts
	h.logger = opt.Logger
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.sessions = make(map[*mochi.Client]*Session)
	return nil
}

// OnSessionEstablished is called when a new client establishes a session (after OnConnect).
func (h *SessionHook) OnSessionEstablished(cl *mochi.Client, pk packets.Packet) {
	username := string(cl.Properties.Username)
	s := &Session{
		id:        uuid.NewString(),
		username:  username,
		publisher: h.publisher,
	}

	if d, ok := h.accounts.Device(username); ok {
		s.binding = core.Binding{Role: core.RoleHardware, DashboardIDs: []int{d.Dashboard}, DeviceID: d.Device}
		s.inbox = DeviceInbox(username)
	} else if a, ok := h.accounts.App(username); ok {
		s.binding = core.Binding{Role: core.RoleApp, DashboardIDs: h.handler.Store().DashboardsOwnedBy(a.Owner)}
		s.inbox = AppInbox(username)
	} else {
		h.logger.Debug("client without account, not routed", "client", cl.ID)
		return
	}

	if err := h.handler.Router().AddSession(s); err != nil {
		h.logger.Error("failed to register session", "client", cl.ID, "error", err)
		return
	}
	h.mu.Lock()
	h.sessions[cl] = s
	h.mu.Unlock()

	h.logger.Info("session established", "client", cl.ID, "session", s.id,
		"role", s.binding.Role, "dashboards", s.binding.DashboardIDs)
}

// OnDisconnect is called when a client is disconnected for any reason.
func (h *SessionHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	h.mu.Lock()
	s, ok := h.sessions[cl]
	delete(h.sessions, cl)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.handler.Router().RemoveSession(s.id)
	h.logger.Info("session removed", "client", cl.ID, "session", s.id, "error", err)
}

// OnPublish consumes device property messages. They are answered on the
// device inbox and never delivered to subscribers. mochi calls this from the
// client's read loop, so one device's commands are handled in order.
func (h *SessionHook) OnPublish(cl *mochi.Client, pk packets.Packet) (packets.Packet, error) {
	token, pinType, ok := parsePropertyTopic(pk.TopicName)
	if !ok {
		return pk, nil
	}

	h.mu.Lock()
	s, ok := h.sessions[cl]
	h.mu.Unlock()
	if !ok || s.binding.Role != core.RoleHardware || s.username != token {
		h.logger.Warn("property message from unbound client", "client", cl.ID, "topic", pk.TopicName)
		return pk, packets.ErrRejectPacket
	}

	msg, err := ParsePropertyPayload(pk.Payload)
	if err != nil {
		h.logger.Debug("malformed property message", "session", s.id, "error", err)
		if msg.MessageID == 0 {
			return pk, packets.ErrRejectPacket
		}
		h.handler.Router().Send(s.id, protocol.Ack(msg.MessageID, protocol.IllegalCommandBody))
		return pk, packets.ErrRejectPacket
	}

	h.handler.HandleSetProperty(s, msg.MessageID, msg.Pin, pinType, msg.Body)
	return pk, packets.ErrRejectPacket
}
