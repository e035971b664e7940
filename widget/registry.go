package widget

// Kind is the value kind a property is coerced to.
type Kind int

const (
	KindString Kind = iota + 1
	KindStringArray
	KindInteger
	KindFloat
	KindColor
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "STRING"
	case KindStringArray:
		return "STRING_ARRAY"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindColor:
		return "COLOR"
	case KindBoolean:
		return "BOOLEAN"
	}
	return "UNKNOWN"
}

const (
	PropLabel           = "label"
	PropColor           = "color"
	PropMin             = "min"
	PropMax             = "max"
	PropStep            = "step"
	PropOnLabel         = "onLabel"
	PropOffLabel        = "offLabel"
	PropLabels          = "labels"
	PropIsOnPlay        = "isOnPlay"
	PropURL             = "url"
	PropValueFormatting = "valueFormatting"
	PropFrequency       = "frequency"
)

type properties map[string]Kind

func with(base properties, extra properties) properties {
	out := make(properties, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var (
	common = properties{PropLabel: KindString, PropColor: KindColor}

	rangeProps    = with(common, properties{PropMin: KindFloat, PropMax: KindFloat})
	steppedProps  = with(rangeProps, properties{PropStep: KindFloat})
	switchProps   = with(common, properties{PropOnLabel: KindString, PropOffLabel: KindString})
	menuProps     = with(common, properties{PropLabels: KindStringArray})
	playerProps   = with(common, properties{PropIsOnPlay: KindBoolean})
	videoProps    = with(common, properties{PropURL: KindString})
	displayProps  = with(common, properties{PropValueFormatting: KindString, PropFrequency: KindInteger})
	terminalProps = common
)

// registry is built once and never mutated afterwards.
var registry = map[Type]properties{
	TypeSlider:         steppedProps,
	TypeVerticalSlider: steppedProps,
	TypeKnob:           steppedProps,
	TypeGauge:          rangeProps,
	TypeLevelDisplay:   rangeProps,
	TypeButton:         switchProps,
	TypeStyledButton:   switchProps,
	TypeMenu:           menuProps,
	TypePlayer:         playerProps,
	TypeVideo:          videoProps,
	TypeLabeledValue:   displayProps,
	TypeValueDisplay:   displayProps,
	TypeTerminal:       terminalProps,
}

// AllowedProperty returns the kind of the named property for widgets of type t.
// Types outside the registry allow no properties.
func AllowedProperty(t Type, name string) (Kind, bool) {
	props, ok := registry[t]
	if !ok {
		return 0, false
	}
	kind, ok := props[name]
	return kind, ok
}

// Types lists every widget type known to the registry.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}
