package core

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/ilievs/pinboard/widget"
)

type Device struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Tag groups devices. Only membership matters, DeviceIDs is kept sorted and
// free of duplicates.
type Tag struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	DeviceIDs []int  `json:"deviceIds"`
}

func (t *Tag) normalize() {
	slices.Sort(t.DeviceIDs)
	t.DeviceIDs = slices.Compact(t.DeviceIDs)
}

// PropertyPush is a property value a device pushed since the widget on that
// pin was last written by the app.
type PropertyPush struct {
	DeviceID int            `json:"deviceId"`
	Pin      int            `json:"pin"`
	PinType  widget.PinType `json:"pinType"`
	Property string         `json:"property"`
	Value    string         `json:"value"`
}

type Dashboard struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Owner       string           `json:"owner"`
	IsActive    bool             `json:"isActive"`
	UpdatedAt   time.Time        `json:"-"`
	Widgets     []*widget.Widget `json:"widgets"`
	Devices     []Device         `json:"devices,omitempty"`
	Tags        []*Tag           `json:"tags,omitempty"`
	PinsStorage []PropertyPush   `json:"pinsStorage,omitempty"`
}

type dashboardJSON Dashboard

// MarshalJSON writes updatedAt as unix milliseconds.
func (d *Dashboard) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		*dashboardJSON
		UpdatedAt int64 `json:"updatedAt"`
	}{(*dashboardJSON)(d), d.UpdatedAt.UnixMilli()})
}

func (d *Dashboard) UnmarshalJSON(data []byte) error {
	aux := struct {
		*dashboardJSON
		UpdatedAt int64 `json:"updatedAt"`
	}{dashboardJSON: (*dashboardJSON)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.UpdatedAt > 0 {
		d.UpdatedAt = time.UnixMilli(aux.UpdatedAt).UTC()
	}
	for _, t := range d.Tags {
		t.normalize()
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store.
func (d *Dashboard) Clone() *Dashboard {
	c := *d
	c.Widgets = make([]*widget.Widget, len(d.Widgets))
	for i, w := range d.Widgets {
		c.Widgets[i] = w.Clone()
	}
	c.Devices = slices.Clone(d.Devices)
	c.Tags = make([]*Tag, len(d.Tags))
	for i, t := range d.Tags {
		tc := *t
		tc.DeviceIDs = slices.Clone(t.DeviceIDs)
		c.Tags[i] = &tc
	}
	c.PinsStorage = slices.Clone(d.PinsStorage)
	return &c
}

func (d *Dashboard) Widget(id int64) *widget.Widget {
	for _, w := range d.Widgets {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (d *Dashboard) Tag(id int) *Tag {
	for _, t := range d.Tags {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (d *Dashboard) HasDevice(id int) bool {
	for _, dev := range d.Devices {
		if dev.ID == id {
			return true
		}
	}
	return false
}

// putWidget replaces the widget with the same id or appends w.
func (d *Dashboard) putWidget(w *widget.Widget) {
	for i, existing := range d.Widgets {
		if existing.ID == w.ID {
			d.Widgets[i] = w
			return
		}
	}
	d.Widgets = append(d.Widgets, w)
}

func (d *Dashboard) removeWidget(id int64) *widget.Widget {
	for i, w := range d.Widgets {
		if w.ID == id {
			d.Widgets = slices.Delete(d.Widgets, i, i+1)
			return w
		}
	}
	return nil
}

// storePush records a device push, replacing an earlier value for the same
// device, pin and property.
func (d *Dashboard) storePush(p PropertyPush) {
	for i, existing := range d.PinsStorage {
		if existing.DeviceID == p.DeviceID && existing.Pin == p.Pin &&
			existing.PinType == p.PinType && existing.Property == p.Property {
			d.PinsStorage[i] = p
			return
		}
	}
	d.PinsStorage = append(d.PinsStorage, p)
}

// reach lists the devices that address a widget bound to target.
func (d *Dashboard) reach(target widget.Target) []int {
	if !target.Tag {
		return []int{target.ID}
	}
	if t := d.Tag(target.ID); t != nil {
		return t.DeviceIDs
	}
	return nil
}

// pinConflict returns another widget on w's pin that one of w's devices also
// addresses, or nil.
func (d *Dashboard) pinConflict(w *widget.Widget) *widget.Widget {
	mine := d.reach(w.Target)
	for _, other := range d.Widgets {
		if other.ID == w.ID || !other.MatchesPin(w.Pin, w.PinType) {
			continue
		}
		if other.Target == w.Target {
			return other
		}
		for _, id := range d.reach(other.Target) {
			if slices.Contains(mine, id) {
				return other
			}
		}
	}
	return nil
}

// forgetPushes drops stored pushes that addressed w from the devices bound to
// it. An empty property drops every property on the pin.
func (d *Dashboard) forgetPushes(w *widget.Widget, property string) int {
	devices := d.reach(w.Target)
	before := len(d.PinsStorage)
	d.PinsStorage = slices.DeleteFunc(d.PinsStorage, func(p PropertyPush) bool {
		return p.Pin == w.Pin && p.PinType == w.PinType &&
			(property == "" || p.Property == property) &&
			slices.Contains(devices, p.DeviceID)
	})
	return before - len(d.PinsStorage)
}
