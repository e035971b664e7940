package core

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ilievs/pinboard/widget"
)

var (
	ErrDashboardNotFound = errors.New("dashboard not found")
	ErrWidgetNotFound    = errors.New("widget not found")
	ErrUnknownWidget     = errors.New("no widget bound to pin")
	ErrConflict          = errors.New("conflict")
	ErrInactive          = errors.New("dashboard is not active")
)

type ApplyResult int

const (
	NoOp ApplyResult = iota
	Applied
)

func (r ApplyResult) String() string {
	if r == Applied {
		return "applied"
	}
	return "noop"
}

type entry struct {
	mu      sync.Mutex
	dash    *Dashboard
	version uint64
	saved   uint64
}

// Store owns every dashboard in memory. Access goes through Update and View,
// which hold that dashboard's lock for the duration of the callback.
type Store struct {
	mu      sync.RWMutex
	entries map[int]*entry
	now     func() time.Time
}

func NewStore(dashboards ...*Dashboard) *Store {
	s := &Store{
		entries: make(map[int]*entry),
		now:     time.Now,
	}
	for _, d := range dashboards {
		s.Put(d)
	}
	return s
}

// Put loads d as the clean, persisted state of its dashboard.
func (s *Store) Put(d *Dashboard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range d.Tags {
		t.normalize()
	}
	s.entries[d.ID] = &entry{dash: d}
}

func (s *Store) entry(id int) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDashboardNotFound, id)
	}
	return e, nil
}

// Update runs fn with exclusive access to the dashboard.
func (s *Store) Update(id int, fn func(tx *Tx) error) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(&Tx{e: e, now: s.now})
}

// View runs fn under the dashboard lock. fn must not modify d.
func (s *Store) View(id int, fn func(d *Dashboard) error) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.dash)
}

// Snapshot returns a deep copy of the dashboard and the version it reflects.
func (s *Store) Snapshot(id int) (*Dashboard, uint64, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dash.Clone(), e.version, nil
}

// MarkSaved records that version was persisted. The dashboard stays dirty if
// it changed again in the meantime.
func (s *Store) MarkSaved(id int, version uint64) {
	e, err := s.entry(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if version > e.saved {
		e.saved = version
	}
}

// Dirty reports whether the dashboard changed since it was last saved.
func (s *Store) Dirty(id int) bool {
	e, err := s.entry(id)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version != e.saved
}

func (s *Store) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) DashboardsOwnedBy(owner string) []int {
	var out []int
	for _, id := range s.IDs() {
		_ = s.View(id, func(d *Dashboard) error {
			if d.Owner == owner {
				out = append(out, id)
			}
			return nil
		})
	}
	return out
}

// Tx is the mutation handle passed to Store.Update. Every change stamps
// UpdatedAt and bumps the dashboard version.
type Tx struct {
	e   *entry
	now func() time.Time
}

func (tx *Tx) Dashboard() *Dashboard { return tx.e.dash }

func (tx *Tx) touch() {
	tx.e.dash.UpdatedAt = tx.now().UTC()
	tx.e.version++
}

// Apply writes a validated update into the stored widget. Inactive dashboards
// are left alone and NoOp is returned.
func (tx *Tx) Apply(u widget.PropertyUpdate) (ApplyResult, error) {
	d := tx.e.dash
	if !d.IsActive {
		return NoOp, nil
	}
	w := d.Widget(u.WidgetID)
	if w == nil {
		return NoOp, fmt.Errorf("%w: %d", ErrWidgetNotFound, u.WidgetID)
	}
	if err := u.Apply(w); err != nil {
		return NoOp, err
	}
	tx.touch()
	return Applied, nil
}

// RecordPush keeps a device property push for replay on activation.
func (tx *Tx) RecordPush(p PropertyPush) {
	tx.e.dash.storePush(p)
}

// PutWidget stores w as sent by the app, replacing any widget with the same id.
// Pushed properties for the old and the new pin are forgotten.
func (tx *Tx) PutWidget(w *widget.Widget, create bool) error {
	d := tx.e.dash
	existing := d.Widget(w.ID)
	if create && existing != nil {
		return fmt.Errorf("%w: widget %d already exists", ErrConflict, w.ID)
	}
	if !create && existing == nil {
		return fmt.Errorf("%w: %d", ErrWidgetNotFound, w.ID)
	}
	if w.Target.Tag && d.Tag(w.Target.ID) == nil {
		return fmt.Errorf("%w: tag %d", ErrConflict, w.Target.ID)
	}
	if other := d.pinConflict(w); other != nil {
		return fmt.Errorf("%w: pin %d already used by widget %d", ErrConflict, w.Pin, other.ID)
	}

	if existing != nil {
		d.forgetPushes(existing, "")
	}
	d.forgetPushes(w, "")
	d.putWidget(w)
	tx.touch()
	return nil
}

func (tx *Tx) DeleteWidget(id int64) error {
	d := tx.e.dash
	w := d.removeWidget(id)
	if w == nil {
		return fmt.Errorf("%w: %d", ErrWidgetNotFound, id)
	}
	d.forgetPushes(w, "")
	tx.touch()
	return nil
}

// SetActive reports whether the flag changed.
func (tx *Tx) SetActive(active bool) bool {
	if tx.e.dash.IsActive == active {
		return false
	}
	tx.e.dash.IsActive = active
	tx.touch()
	return true
}

func (tx *Tx) PutTag(t *Tag) error {
	if t.ID < widget.TagIDStart {
		return fmt.Errorf("%w: tag id %d below %d", ErrConflict, t.ID, widget.TagIDStart)
	}
	d := tx.e.dash
	t.normalize()
	for _, id := range t.DeviceIDs {
		if len(d.Devices) > 0 && !d.HasDevice(id) {
			return fmt.Errorf("%w: unknown device %d", ErrConflict, id)
		}
	}
	prev := slices.Clone(d.Tags)
	if i := slices.IndexFunc(d.Tags, func(existing *Tag) bool { return existing.ID == t.ID }); i >= 0 {
		d.Tags[i] = t
	} else {
		d.Tags = append(d.Tags, t)
	}
	for _, w := range d.Widgets {
		if !w.Target.Tag || w.Target.ID != t.ID {
			continue
		}
		if other := d.pinConflict(w); other != nil {
			d.Tags = prev
			return fmt.Errorf("%w: tag %d puts widgets %d and %d on pin %d for the same device",
				ErrConflict, t.ID, w.ID, other.ID, w.Pin)
		}
	}
	tx.touch()
	return nil
}

// ForgetPushes drops the stored device pushes for one property of w, after an
// app overwrote it.
func (tx *Tx) ForgetPushes(w *widget.Widget, property string) {
	if tx.e.dash.forgetPushes(w, property) > 0 {
		tx.touch()
	}
}
