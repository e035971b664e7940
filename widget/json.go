package widget

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType     = errors.New("unknown widget type")
	ErrBindingConflict = errors.New("widget bound to both a device and a tag")
)

type wireWidget struct {
	ID      int64   `json:"id"`
	Type    Type    `json:"type"`
	Pin     int     `json:"pin"`
	PinType PinType `json:"pinType"`
	Label   string  `json:"label,omitempty"`
	Color   int32   `json:"color,omitempty"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Width   int     `json:"width"`
	Height  int     `json:"height"`
	TabID   int     `json:"tabId"`

	DeviceID *int `json:"deviceId,omitempty"`
	TagID    *int `json:"tagId,omitempty"`

	Min             *float64 `json:"min,omitempty"`
	Max             *float64 `json:"max,omitempty"`
	Step            *float64 `json:"step,omitempty"`
	OnLabel         string   `json:"onLabel,omitempty"`
	OffLabel        string   `json:"offLabel,omitempty"`
	Labels          []string `json:"labels,omitempty"`
	IsOnPlay        bool     `json:"isOnPlay,omitempty"`
	URL             string   `json:"url,omitempty"`
	ValueFormatting string   `json:"valueFormatting,omitempty"`
	Frequency       int      `json:"frequency,omitempty"`
}

func (w *Widget) UnmarshalJSON(data []byte) error {
	var in wireWidget
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if !Known(in.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}
	if in.PinType == "" {
		in.PinType = PinVirtual
	}
	if _, err := ParsePinType(string(in.PinType)); err != nil {
		return err
	}

	target, err := decodeTarget(in.DeviceID, in.TagID)
	if err != nil {
		return err
	}

	*w = Widget{
		ID:      in.ID,
		Type:    in.Type,
		Pin:     in.Pin,
		PinType: in.PinType,
		Label:   in.Label,
		Color:   in.Color,
		X:       in.X,
		Y:       in.Y,
		Width:   in.Width,
		Height:  in.Height,
		TabID:   in.TabID,
		Target:  target,
		Payload: NewVariant(in.Type),
	}

	switch p := w.Payload.(type) {
	case *Range:
		p.Min = deref(in.Min)
		p.Max = deref(in.Max)
		p.Step = deref(in.Step)
	case *Switch:
		p.OnLabel = in.OnLabel
		p.OffLabel = in.OffLabel
	case *Menu:
		p.Labels = in.Labels
	case *Player:
		p.IsOnPlay = in.IsOnPlay
	case *Video:
		p.URL = in.URL
	case *Display:
		p.ValueFormatting = in.ValueFormatting
		p.Frequency = in.Frequency
	}
	return nil
}

// decodeTarget also accepts the legacy form where a tag id is sent in deviceId.
func decodeTarget(deviceID, tagID *int) (Target, error) {
	switch {
	case deviceID != nil && tagID != nil:
		return Target{}, ErrBindingConflict
	case tagID != nil:
		return TagTarget(*tagID), nil
	case deviceID != nil && *deviceID >= TagIDStart:
		return TagTarget(*deviceID), nil
	case deviceID != nil:
		return DeviceTarget(*deviceID), nil
	}
	return DeviceTarget(0), nil
}

func (w *Widget) MarshalJSON() ([]byte, error) {
	out := wireWidget{
		ID:      w.ID,
		Type:    w.Type,
		Pin:     w.Pin,
		PinType: w.PinType,
		Label:   w.Label,
		Color:   w.Color,
		X:       w.X,
		Y:       w.Y,
		Width:   w.Width,
		Height:  w.Height,
		TabID:   w.TabID,
	}
	id := w.Target.ID
	if w.Target.Tag {
		out.TagID = &id
	} else {
		out.DeviceID = &id
	}

	switch p := w.Payload.(type) {
	case *Range:
		out.Min, out.Max = &p.Min, &p.Max
		if _, ok := AllowedProperty(w.Type, PropStep); ok {
			out.Step = &p.Step
		}
	case *Switch:
		out.OnLabel, out.OffLabel = p.OnLabel, p.OffLabel
	case *Menu:
		out.Labels = p.Labels
	case *Player:
		out.IsOnPlay = p.IsOnPlay
	case *Video:
		out.URL = p.URL
	case *Display:
		out.ValueFormatting, out.Frequency = p.ValueFormatting, p.Frequency
	}
	return json.Marshal(out)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
