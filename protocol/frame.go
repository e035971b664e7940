package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ilievs/pinboard/widget"
)

type Command string

const (
	CmdResponse    Command = "response"
	CmdSetProperty Command = "setProperty"
	CmdHardware    Command = "hardware"
)

type Response string

const (
	OK                 Response = "OK"
	IllegalCommandBody Response = "ILLEGAL_COMMAND_BODY"
)

// SyncMessageID tags frames the server originates on its own, like replaying
// stored property pushes on activation.
const SyncMessageID = 1111

// Frame is one message exchanged with a session. Its text encoding is
// "<command> <messageId> <body>".
type Frame struct {
	Command   Command
	MessageID int
	Body      string
}

func (f Frame) Encode() []byte {
	return []byte(string(f.Command) + " " + strconv.Itoa(f.MessageID) + " " + f.Body)
}

func (f Frame) String() string {
	return string(f.Encode())
}

// DecodeFrame is the inverse of Frame.Encode.
func DecodeFrame(data []byte) (Frame, error) {
	parts := strings.SplitN(string(data), " ", 3)
	if len(parts) < 2 {
		return Frame{}, fmt.Errorf("%w: frame %q", ErrParse, data)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: message id %q", ErrParse, parts[1])
	}
	f := Frame{Command: Command(parts[0]), MessageID: id}
	if len(parts) == 3 {
		f.Body = parts[2]
	}
	return f, nil
}

func Ack(messageID int, r Response) Frame {
	return Frame{Command: CmdResponse, MessageID: messageID, Body: string(r)}
}

// SetPropertyFrame builds the app-bound update
// "<dashboardId>-<deviceId> <pin> <property> <value...>".
func SetPropertyFrame(messageID, dashID, deviceID, pin int, property, value string) Frame {
	body := fmt.Sprintf("%d-%d %d %s %s", dashID, deviceID, pin, property, value)
	return Frame{Command: CmdSetProperty, MessageID: messageID, Body: body}
}

// DeviceSetPropertyFrame builds the device-bound "<pin> <property> <value...>".
func DeviceSetPropertyFrame(messageID, pin int, property, value string) Frame {
	body := fmt.Sprintf("%d %s %s", pin, property, value)
	return Frame{Command: CmdSetProperty, MessageID: messageID, Body: body}
}

// WriteFrame builds a pin write for a device, e.g. "vw 4 100".
func WriteFrame(messageID int, pinType widget.PinType, pin int, value string) Frame {
	body := fmt.Sprintf("%sw %d %s", pinType.Prefix(), pin, value)
	return Frame{Command: CmdHardware, MessageID: messageID, Body: body}
}
