package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ilievs/pinboard/widget"
)

// ErrParse marks a malformed command body.
var ErrParse = errors.New("malformed command body")

// SetPropertyCommand is a decoded "set property" body.
type SetPropertyCommand struct {
	Pin      int
	PinType  widget.PinType
	Property string
	// Value is the remainder of the body, internal spaces preserved.
	Value string
}

// Parse splits body into the property name and its value. The body must
// carry at least two tokens.
func Parse(pin int, pinType widget.PinType, body string) (SetPropertyCommand, error) {
	property, value, ok := strings.Cut(body, " ")
	if !ok || property == "" || strings.TrimSpace(value) == "" {
		return SetPropertyCommand{}, fmt.Errorf("%w: %q", ErrParse, body)
	}
	return SetPropertyCommand{
		Pin:      pin,
		PinType:  pinType,
		Property: property,
		Value:    value,
	}, nil
}

// SplitPin splits "<pin> <rest>" as sent by devices.
func SplitPin(body string) (int, string, error) {
	head, rest, _ := strings.Cut(body, " ")
	pin, err := strconv.Atoi(head)
	if err != nil || pin < 0 {
		return 0, "", fmt.Errorf("%w: bad pin %q", ErrParse, head)
	}
	return pin, rest, nil
}
