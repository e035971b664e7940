package widget

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrRejected is returned for a property that is not allowed on the widget
// or a value that does not coerce to the property's kind.
var ErrRejected = errors.New("illegal command body")

// colorAlpha is the fixed opacity byte packed below the RGB value.
const colorAlpha = 0xFF

// PropertyUpdate is a validated and coerced property change for one widget.
type PropertyUpdate struct {
	WidgetID int64
	Property string
	Kind     Kind
	Value    any
	// Raw is the value as received, echoed to app sessions.
	Raw string
}

// Validate checks that property is allowed for w and coerces raw to its kind.
// The widget is never modified.
func Validate(w *Widget, property, raw string) (PropertyUpdate, error) {
	kind, ok := AllowedProperty(w.Type, property)
	if !ok {
		return PropertyUpdate{}, fmt.Errorf("%w: property %q not allowed for %s", ErrRejected, property, w.Type)
	}
	value, err := Coerce(kind, raw)
	if err != nil {
		return PropertyUpdate{}, fmt.Errorf("%w: %s %q: %v", ErrRejected, property, raw, err)
	}
	return PropertyUpdate{
		WidgetID: w.ID,
		Property: property,
		Kind:     kind,
		Value:    value,
		Raw:      raw,
	}, nil
}

// Coerce converts raw to the Go value stored for kind:
// string, []string, int, float64, int32 or bool.
func Coerce(kind Kind, raw string) (any, error) {
	switch kind {
	case KindString:
		return raw, nil
	case KindStringArray:
		return splitLabels(raw), nil
	case KindInteger:
		return strconv.Atoi(raw)
	case KindFloat:
		return parseDecimal(raw)
	case KindColor:
		return ParseColor(raw)
	case KindBoolean:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean")
	}
	return nil, fmt.Errorf("unknown kind %d", kind)
}

// ParseColor packs "#RRGGBB" into RGBA with a fixed alpha, "#23C48E" is 600084223.
func ParseColor(raw string) (int32, error) {
	hex, ok := strings.CutPrefix(raw, "#")
	if !ok || len(hex) != 6 {
		return 0, fmt.Errorf("color must be #RRGGBB")
	}
	rgb, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, err
	}
	return int32(uint32(rgb)<<8 | colorAlpha), nil
}

// FormatColor is the inverse of ParseColor.
func FormatColor(c int32) string {
	return fmt.Sprintf("#%06X", uint32(c)>>8)
}

// parseDecimal accepts plain base-10 numbers only, "10.11-1", "NaN" and
// hex floats are rejected.
func parseDecimal(raw string) (float64, error) {
	if strings.ContainsAny(raw, "xXpP_") {
		return 0, fmt.Errorf("not a decimal number")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return f, nil
}

func splitLabels(raw string) []string {
	parts := strings.Split(raw, " ")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// Apply writes u into w. u must come from Validate on a widget of the same type.
func (u PropertyUpdate) Apply(w *Widget) error {
	switch u.Property {
	case PropLabel:
		w.Label = u.Value.(string)
		return nil
	case PropColor:
		w.Color = u.Value.(int32)
		return nil
	}

	switch p := w.Payload.(type) {
	case *Range:
		switch u.Property {
		case PropMin:
			p.Min = u.Value.(float64)
			return nil
		case PropMax:
			p.Max = u.Value.(float64)
			return nil
		case PropStep:
			p.Step = u.Value.(float64)
			return nil
		}
	case *Switch:
		switch u.Property {
		case PropOnLabel:
			p.OnLabel = u.Value.(string)
			return nil
		case PropOffLabel:
			p.OffLabel = u.Value.(string)
			return nil
		}
	case *Menu:
		if u.Property == PropLabels {
			p.Labels = u.Value.([]string)
			return nil
		}
	case *Player:
		if u.Property == PropIsOnPlay {
			p.IsOnPlay = u.Value.(bool)
			return nil
		}
	case *Video:
		if u.Property == PropURL {
			p.URL = u.Value.(string)
			return nil
		}
	case *Display:
		switch u.Property {
		case PropValueFormatting:
			p.ValueFormatting = u.Value.(string)
			return nil
		case PropFrequency:
			p.Frequency = u.Value.(int)
			return nil
		}
	}
	return fmt.Errorf("%w: property %q has no field on %s", ErrRejected, u.Property, w.Type)
}
