package core

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ilievs/pinboard/metrics"
	"github.com/ilievs/pinboard/protocol"
	"github.com/ilievs/pinboard/widget"
)

var ErrWrongRole = errors.New("command not allowed for session role")

// PersistScheduler queues a dashboard for saving. It must not block.
type PersistScheduler interface {
	Schedule(dashID int)
}

type Handler struct {
	store    *Store
	router   *Router
	resolver TagResolver
	persist  PersistScheduler
	logger   *slog.Logger
}

func NewHandler(store *Store, router *Router, persist PersistScheduler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   store,
		router:  router,
		persist: persist,
		logger:  logger,
	}
}

func (h *Handler) Store() *Store { return h.store }

func (h *Handler) Router() *Router { return h.router }

func (h *Handler) schedule(dashID int) {
	if h.persist != nil {
		h.persist.Schedule(dashID)
	}
}

// HandleSetProperty processes one device "set property" command. The device
// gets exactly one acknowledgement; when the dashboard changed, every app
// session watching it gets exactly one update. Both are queued while the
// dashboard is locked, so commands touching one dashboard are acknowledged
// and broadcast in the order they were applied.
func (h *Handler) HandleSetProperty(s Session, messageID, pin int, pinType widget.PinType, body string) protocol.Response {
	start := time.Now()
	b := s.Binding()
	log := h.logger.With("session", s.ID(), "messageId", messageID, "pin", pin)

	if b.Role != RoleHardware {
		log.Warn("set property from non hardware session", "role", b.Role)
		return h.reject(s, messageID, "wrong_role", start)
	}

	cmd, err := protocol.Parse(pin, pinType, body)
	if err != nil {
		log.Debug("set property rejected", "error", err)
		return h.reject(s, messageID, "parse_error", start)
	}

	dashID := b.Dashboard()
	var result ApplyResult
	err = h.store.Update(dashID, func(tx *Tx) error {
		d := tx.Dashboard()
		w := h.resolver.WidgetByPin(d, b.DeviceID, cmd.Pin, cmd.PinType)
		if w == nil {
			return fmt.Errorf("%w: %s%d", ErrUnknownWidget, cmd.PinType.Prefix(), cmd.Pin)
		}
		update, err := widget.Validate(w, cmd.Property, cmd.Value)
		if err != nil {
			return err
		}
		result, err = tx.Apply(update)
		if err != nil {
			return err
		}

		h.router.Send(s.ID(), protocol.Ack(messageID, protocol.OK))
		if result == Applied {
			tx.RecordPush(PropertyPush{
				DeviceID: b.DeviceID,
				Pin:      cmd.Pin,
				PinType:  cmd.PinType,
				Property: cmd.Property,
				Value:    update.Raw,
			})
			frame := protocol.SetPropertyFrame(messageID, dashID, b.DeviceID, cmd.Pin, cmd.Property, update.Raw)
			n := h.router.BroadcastToApps(dashID, frame, "")
			log.Debug("property applied", "widget", w.ID, "property", cmd.Property, "apps", n)
		}
		return nil
	})
	if err != nil {
		outcome := "rejected"
		switch {
		case errors.Is(err, ErrUnknownWidget):
			outcome = "unknown_widget"
		case errors.Is(err, ErrDashboardNotFound):
			outcome = "unknown_dashboard"
			log.Warn("set property for missing dashboard", "dashboard", dashID)
		}
		log.Debug("set property rejected", "error", err)
		return h.reject(s, messageID, outcome, start)
	}

	if result == NoOp {
		metrics.ObserveCommand("inactive", time.Since(start))
		return protocol.OK
	}
	h.schedule(dashID)
	metrics.ObserveCommand("applied", time.Since(start))
	return protocol.OK
}

func (h *Handler) reject(s Session, messageID int, outcome string, start time.Time) protocol.Response {
	h.router.Send(s.ID(), protocol.Ack(messageID, protocol.IllegalCommandBody))
	metrics.ObserveCommand(outcome, time.Since(start))
	return protocol.IllegalCommandBody
}

// Profile returns snapshots of every dashboard the owner has.
func (h *Handler) Profile(owner string) []*Dashboard {
	var out []*Dashboard
	for _, id := range h.store.DashboardsOwnedBy(owner) {
		d, _, err := h.store.Snapshot(id)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (h *Handler) Dashboard(dashID int) (*Dashboard, error) {
	d, _, err := h.store.Snapshot(dashID)
	return d, err
}

// CreateWidget adds w to the dashboard.
func (h *Handler) CreateWidget(dashID int, w *widget.Widget) error {
	return h.putWidget("createWidget", dashID, w, true)
}

// UpdateWidget replaces the stored widget with w as a whole. Properties pushed
// by devices since the last explicit write are discarded.
func (h *Handler) UpdateWidget(dashID int, w *widget.Widget) error {
	return h.putWidget("updateWidget", dashID, w, false)
}

func (h *Handler) putWidget(command string, dashID int, w *widget.Widget, create bool) error {
	err := h.store.Update(dashID, func(tx *Tx) error {
		return tx.PutWidget(w.Clone(), create)
	})
	metrics.IncAppCommand(command, err)
	if err != nil {
		return err
	}
	h.logger.Info("widget stored", "command", command, "dashboard", dashID, "widget", w.ID, "type", w.Type)
	h.schedule(dashID)
	return nil
}

func (h *Handler) DeleteWidget(dashID int, widgetID int64) error {
	err := h.store.Update(dashID, func(tx *Tx) error {
		return tx.DeleteWidget(widgetID)
	})
	metrics.IncAppCommand("deleteWidget", err)
	if err != nil {
		return err
	}
	h.logger.Info("widget deleted", "dashboard", dashID, "widget", widgetID)
	h.schedule(dashID)
	return nil
}

func (h *Handler) CreateTag(dashID int, t *Tag) error {
	err := h.store.Update(dashID, func(tx *Tx) error {
		return tx.PutTag(t)
	})
	metrics.IncAppCommand("createTag", err)
	if err != nil {
		return err
	}
	h.schedule(dashID)
	return nil
}

// Activate marks the dashboard active and replays stored device pushes to the
// app sessions watching it.
func (h *Handler) Activate(dashID int) error {
	var changed bool
	err := h.store.Update(dashID, func(tx *Tx) error {
		changed = tx.SetActive(true)
		d := tx.Dashboard()
		for _, p := range d.PinsStorage {
			f := protocol.SetPropertyFrame(protocol.SyncMessageID, d.ID, p.DeviceID, p.Pin, p.Property, p.Value)
			h.router.BroadcastToApps(d.ID, f, "")
		}
		return nil
	})
	metrics.IncAppCommand("activate", err)
	if err != nil {
		return err
	}
	if changed {
		h.logger.Info("dashboard activated", "dashboard", dashID)
		h.schedule(dashID)
	}
	return nil
}

func (h *Handler) Deactivate(dashID int) error {
	var changed bool
	err := h.store.Update(dashID, func(tx *Tx) error {
		changed = tx.SetActive(false)
		return nil
	})
	metrics.IncAppCommand("deactivate", err)
	if err != nil {
		return err
	}
	if changed {
		h.logger.Info("dashboard deactivated", "dashboard", dashID)
		h.schedule(dashID)
	}
	return nil
}

// AppSetProperty applies a property change made in an app. Other app sessions
// get the update once; the bound device, or each member of the bound tag,
// gets it once. It returns the number of devices the command was queued for.
func (h *Handler) AppSetProperty(origin string, messageID, dashID int, widgetID int64, property, value string) (int, error) {
	var sent int
	err := h.store.Update(dashID, func(tx *Tx) error {
		d := tx.Dashboard()
		w := d.Widget(widgetID)
		if w == nil {
			return fmt.Errorf("%w: %d", ErrWidgetNotFound, widgetID)
		}
		update, err := widget.Validate(w, property, value)
		if err != nil {
			return err
		}
		result, err := tx.Apply(update)
		if err != nil {
			return err
		}
		if result == NoOp {
			return ErrInactive
		}
		tx.ForgetPushes(w, property)

		// the app frame names the bound target, tag id included
		h.router.BroadcastToApps(dashID,
			protocol.SetPropertyFrame(messageID, dashID, w.Target.ID, w.Pin, property, update.Raw), origin)
		for _, deviceID := range h.resolver.Targets(d, w) {
			if h.router.SendToDevice(dashID, deviceID, protocol.DeviceSetPropertyFrame(messageID, w.Pin, property, update.Raw)) {
				sent++
			}
		}
		return nil
	})
	metrics.IncAppCommand("setProperty", err)
	if err != nil {
		return 0, err
	}
	h.schedule(dashID)
	return sent, nil
}

// AppWrite sends a pin write from an app to the devices behind a widget.
// Nothing is stored; other app sessions see the write.
func (h *Handler) AppWrite(origin string, messageID, dashID int, widgetID int64, value string) (int, error) {
	var sent int
	err := h.store.View(dashID, func(d *Dashboard) error {
		if !d.IsActive {
			return ErrInactive
		}
		w := d.Widget(widgetID)
		if w == nil {
			return fmt.Errorf("%w: %d", ErrWidgetNotFound, widgetID)
		}
		frame := protocol.WriteFrame(messageID, w.PinType, w.Pin, value)
		h.router.BroadcastToApps(dashID, frame, origin)
		for _, deviceID := range h.resolver.Targets(d, w) {
			if h.router.SendToDevice(dashID, deviceID, frame) {
				sent++
			}
		}
		return nil
	})
	metrics.IncAppCommand("hardware", err)
	return sent, err
}
