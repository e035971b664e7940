package widget

import (
	"fmt"
	"slices"
	"strings"
)

type PinType string

const (
	PinVirtual PinType = "VIRTUAL"
	PinDigital PinType = "DIGITAL"
	PinAnalog  PinType = "ANALOG"
)

// ParsePinType accepts the pin type name in any case.
func ParsePinType(s string) (PinType, error) {
	switch PinType(strings.ToUpper(s)) {
	case PinVirtual:
		return PinVirtual, nil
	case PinDigital:
		return PinDigital, nil
	case PinAnalog:
		return PinAnalog, nil
	}
	return "", fmt.Errorf("unknown pin type %q", s)
}

// Prefix is the single letter used in hardware write commands ("vw", "dw", "aw").
func (p PinType) Prefix() string {
	switch p {
	case PinDigital:
		return "d"
	case PinAnalog:
		return "a"
	default:
		return "v"
	}
}

type Type string

const (
	TypeSlider         Type = "SLIDER"
	TypeVerticalSlider Type = "VERTICAL_SLIDER"
	TypeKnob           Type = "KNOB"
	TypeGauge          Type = "GAUGE"
	TypeLevelDisplay   Type = "LEVEL_DISPLAY"
	TypeButton         Type = "BUTTON"
	TypeStyledButton   Type = "STYLED_BUTTON"
	TypeMenu           Type = "MENU"
	TypePlayer         Type = "PLAYER"
	TypeVideo          Type = "VIDEO"
	TypeLabeledValue   Type = "LABELED_VALUE"
	TypeValueDisplay   Type = "VALUE_DISPLAY"
	TypeTerminal       Type = "TERMINAL"
)

// TagIDStart is the first id reserved for tags. Device ids stay below it.
const TagIDStart = 100_000

// Target binds a widget either to a single device or to a tag of devices.
type Target struct {
	Tag bool
	ID  int
}

func DeviceTarget(id int) Target { return Target{ID: id} }

func TagTarget(id int) Target { return Target{Tag: true, ID: id} }

// Variant is the type specific part of a widget. The concrete type is
// determined by the widget Type, see NewVariant.
type Variant interface {
	variant()
	clone() Variant
}

type Range struct {
	Min  float64
	Max  float64
	Step float64
}

type Switch struct {
	OnLabel  string
	OffLabel string
}

type Menu struct {
	Labels []string
}

type Player struct {
	IsOnPlay bool
}

type Video struct {
	URL string
}

type Display struct {
	ValueFormatting string
	Frequency       int
}

func (*Range) variant()   {}
func (*Switch) variant()  {}
func (*Menu) variant()    {}
func (*Player) variant()  {}
func (*Video) variant()   {}
func (*Display) variant() {}

func (v *Range) clone() Variant   { c := *v; return &c }
func (v *Switch) clone() Variant  { c := *v; return &c }
func (v *Menu) clone() Variant    { return &Menu{Labels: slices.Clone(v.Labels)} }
func (v *Player) clone() Variant  { c := *v; return &c }
func (v *Video) clone() Variant   { c := *v; return &c }
func (v *Display) clone() Variant { c := *v; return &c }

// NewVariant returns an empty payload for t, or nil for types without one.
func NewVariant(t Type) Variant {
	switch t {
	case TypeSlider, TypeVerticalSlider, TypeKnob, TypeGauge, TypeLevelDisplay:
		return &Range{}
	case TypeButton, TypeStyledButton:
		return &Switch{}
	case TypeMenu:
		return &Menu{}
	case TypePlayer:
		return &Player{}
	case TypeVideo:
		return &Video{}
	case TypeLabeledValue, TypeValueDisplay:
		return &Display{}
	}
	return nil
}

// Known reports whether t is one of the supported widget types.
func Known(t Type) bool {
	_, ok := registry[t]
	return ok
}

type Widget struct {
	ID      int64
	Type    Type
	Pin     int
	PinType PinType
	Label   string
	Color   int32
	X       int
	Y       int
	Width   int
	Height  int
	TabID   int
	Target  Target
	Payload Variant
}

func (w *Widget) Clone() *Widget {
	c := *w
	if w.Payload != nil {
		c.Payload = w.Payload.clone()
	}
	return &c
}

// MatchesPin reports whether the widget listens on the given pin.
func (w *Widget) MatchesPin(pin int, pinType PinType) bool {
	return w.Pin == pin && w.PinType == pinType
}
