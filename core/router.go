package core

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ilievs/pinboard/metrics"
	"github.com/ilievs/pinboard/protocol"
)

type Role string

const (
	RoleHardware Role = "hardware"
	RoleApp      Role = "app"
)

// Binding says what a session is allowed to address. A hardware session is
// one device of one dashboard; an app session watches several dashboards.
type Binding struct {
	Role         Role
	DashboardIDs []int
	DeviceID     int
}

func (b Binding) Dashboard() int {
	if len(b.DashboardIDs) == 0 {
		return 0
	}
	return b.DashboardIDs[0]
}

type Session interface {
	ID() string
	Binding() Binding
	// Write delivers one frame. It may block; the router calls it from the
	// session's own writer goroutine.
	Write(f protocol.Frame) error
}

const DefaultQueueSize = 64

type deviceKey struct {
	dashID   int
	deviceID int
}

type subscriber struct {
	session Session
	binding Binding
	queue   chan protocol.Frame
}

// Router tracks connected sessions and delivers frames to them. Delivery only
// enqueues; a full queue drops the frame for that session alone.
type Router struct {
	mu        sync.RWMutex
	sessions  map[string]*subscriber
	apps      map[int]map[string]*subscriber
	devices   map[deviceKey]*subscriber
	queueSize int
	logger    *slog.Logger
	wg        sync.WaitGroup
}

func NewRouter(logger *slog.Logger, queueSize int) *Router {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions:  make(map[string]*subscriber),
		apps:      make(map[int]map[string]*subscriber),
		devices:   make(map[deviceKey]*subscriber),
		queueSize: queueSize,
		logger:    logger,
	}
}

// AddSession registers s and starts its writer. A hardware session replaces
// any earlier session of the same device for routing purposes.
func (r *Router) AddSession(s Session) error {
	b := s.Binding()
	sub := &subscriber{
		session: s,
		binding: b,
		queue:   make(chan protocol.Frame, r.queueSize),
	}

	r.mu.Lock()
	if _, exists := r.sessions[s.ID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: session %s already registered", ErrConflict, s.ID())
	}
	r.sessions[s.ID()] = sub
	switch b.Role {
	case RoleApp:
		for _, dashID := range b.DashboardIDs {
			watchers, ok := r.apps[dashID]
			if !ok {
				watchers = make(map[string]*subscriber)
				r.apps[dashID] = watchers
			}
			watchers[s.ID()] = sub
		}
	case RoleHardware:
		r.devices[deviceKey{b.Dashboard(), b.DeviceID}] = sub
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go r.writeLoop(sub)
	metrics.AddSessions(string(b.Role), 1)
	return nil
}

func (r *Router) writeLoop(sub *subscriber) {
	defer r.wg.Done()
	for f := range sub.queue {
		if err := sub.session.Write(f); err != nil {
			r.logger.Debug("session write failed", "session", sub.session.ID(), "error", err)
			continue
		}
		metrics.IncFrameSent(string(sub.binding.Role))
	}
}

// RemoveSession unregisters the session. Frames already queued are still
// written; nothing new is accepted.
func (r *Router) RemoveSession(id string) {
	r.mu.Lock()
	sub, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	for _, dashID := range sub.binding.DashboardIDs {
		if watchers, ok := r.apps[dashID]; ok {
			delete(watchers, id)
			if len(watchers) == 0 {
				delete(r.apps, dashID)
			}
		}
	}
	key := deviceKey{sub.binding.Dashboard(), sub.binding.DeviceID}
	if sub.binding.Role == RoleHardware && r.devices[key] == sub {
		delete(r.devices, key)
	}
	close(sub.queue)
	r.mu.Unlock()

	metrics.AddSessions(string(sub.binding.Role), -1)
}

// enqueue must be called with r.mu held for reading.
func (r *Router) enqueue(sub *subscriber, f protocol.Frame) bool {
	select {
	case sub.queue <- f:
		return true
	default:
		metrics.IncFrameDropped(string(sub.binding.Role))
		r.logger.Warn("session queue full, frame dropped",
			"session", sub.session.ID(), "command", f.Command, "messageId", f.MessageID)
		return false
	}
}

// Send delivers f to one session by id.
func (r *Router) Send(sessionID string, f protocol.Frame) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	return r.enqueue(sub, f)
}

// BroadcastToApps delivers f once to every app session watching the
// dashboard, except the session with id except. It returns the number of
// sessions the frame was queued for.
func (r *Router) BroadcastToApps(dashID int, f protocol.Frame, except string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for id, sub := range r.apps[dashID] {
		if id == except {
			continue
		}
		if r.enqueue(sub, f) {
			n++
		}
	}
	return n
}

// SendToDevice delivers f to the connected session of a device, if any.
func (r *Router) SendToDevice(dashID, deviceID int, f protocol.Frame) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.devices[deviceKey{dashID, deviceID}]
	if !ok {
		return false
	}
	return r.enqueue(sub, f)
}

func (r *Router) DeviceOnline(dashID, deviceID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.devices[deviceKey{dashID, deviceID}]
	return ok
}

// AppSessionsWatching lists app sessions subscribed to the dashboard.
func (r *Router) AppSessionsWatching(dashID int) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.apps[dashID]))
	for _, sub := range r.apps[dashID] {
		out = append(out, sub.session)
	}
	slices.SortFunc(out, func(a, b Session) int {
		return cmp.Compare(a.ID(), b.ID())
	})
	return out
}

func (r *Router) ListSessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, sub := range r.sessions {
		out = append(out, sub.session)
	}
	return out
}

// Close unregisters every session and waits for queued frames to be written.
func (r *Router) Close() {
	for _, s := range r.ListSessions() {
		r.RemoveSession(s.ID())
	}
	r.wg.Wait()
}
