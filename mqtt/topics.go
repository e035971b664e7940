package mqtt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ilievs/pinboard/protocol"
	"github.com/ilievs/pinboard/widget"
)

// Topic layout:
//
//	devices/<token>/property/<pinType>   device -> server, "<msgId> <pin> <property> <value...>"
//	devices/<token>/inbox                server -> device frames
//	apps/<username>/inbox                server -> app frames

func DevicePropertyTopic(token string, pinType widget.PinType) string {
	return "devices/" + token + "/property/" + strings.ToLower(string(pinType))
}

func DevicePropertyFilter(token string) string {
	return "devices/" + token + "/property/+"
}

func DeviceInbox(token string) string {
	return "devices/" + token + "/inbox"
}

func AppInbox(username string) string {
	return "apps/" + username + "/inbox"
}

// parsePropertyTopic extracts the token and pin type from a device property
// topic.
func parsePropertyTopic(topic string) (string, widget.PinType, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "devices" || parts[2] != "property" || parts[1] == "" {
		return "", "", false
	}
	pinType, err := widget.ParsePinType(parts[3])
	if err != nil {
		return "", "", false
	}
	return parts[1], pinType, true
}

// PropertyPayload is a decoded device property message.
type PropertyPayload struct {
	MessageID int
	Pin       int
	Body      string
}

// ParsePropertyPayload splits "<msgId> <pin> <property> <value...>". Message
// ids are positive. A bad pin still returns the message id so the command can
// be answered.
func ParsePropertyPayload(payload []byte) (PropertyPayload, error) {
	head, rest, _ := strings.Cut(string(payload), " ")
	id, err := strconv.Atoi(head)
	if err != nil || id <= 0 {
		return PropertyPayload{}, fmt.Errorf("%w: message id %q", protocol.ErrParse, head)
	}
	pin, body, err := protocol.SplitPin(rest)
	if err != nil {
		return PropertyPayload{MessageID: id}, err
	}
	return PropertyPayload{MessageID: id, Pin: pin, Body: body}, nil
}
