package core

import (
	"slices"

	"github.com/ilievs/pinboard/widget"
)

// TagResolver expands widget targets into device ids. It only reads the
// dashboard it is given; callers hold the dashboard lock.
type TagResolver struct{}

// MembersOf returns the member devices of a tag, nil for unknown tags.
func (TagResolver) MembersOf(d *Dashboard, tagID int) []int {
	t := d.Tag(tagID)
	if t == nil {
		return nil
	}
	return slices.Clone(t.DeviceIDs)
}

// Covers reports whether a command from deviceID may address a widget bound
// to target.
func (r TagResolver) Covers(d *Dashboard, target widget.Target, deviceID int) bool {
	if !target.Tag {
		return target.ID == deviceID
	}
	t := d.Tag(target.ID)
	if t == nil {
		return false
	}
	_, found := slices.BinarySearch(t.DeviceIDs, deviceID)
	return found
}

// Targets lists the devices an app command on w must reach, once per device.
func (r TagResolver) Targets(d *Dashboard, w *widget.Widget) []int {
	if !w.Target.Tag {
		return []int{w.Target.ID}
	}
	return r.MembersOf(d, w.Target.ID)
}

// WidgetByPin finds the widget a device addresses by pin. Widgets bound to the
// device directly win over widgets reached through a tag.
func (r TagResolver) WidgetByPin(d *Dashboard, deviceID, pin int, pinType widget.PinType) *widget.Widget {
	var viaTag *widget.Widget
	for _, w := range d.Widgets {
		if !w.MatchesPin(pin, pinType) {
			continue
		}
		if !w.Target.Tag && w.Target.ID == deviceID {
			return w
		}
		if viaTag == nil && w.Target.Tag && r.Covers(d, w.Target, deviceID) {
			viaTag = w
		}
	}
	return viaTag
}
