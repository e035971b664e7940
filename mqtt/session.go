package mqtt

import (
	"github.com/ilievs/pinboard/core"
	"github.com/ilievs/pinboard/protocol"
)

// Session is a connected MQTT client as the router sees it. Frames go to the
// client's inbox topic.
type Session struct {
	id        string
	username  string
	binding   core.Binding
	inbox     string
	publisher Publisher
}

func (s *Session) ID() string { return s.id }

func (s *Session) Binding() core.Binding { return s.binding }

func (s *Session) Username() string { return s.username }

func (s *Session) Write(f protocol.Frame) error {
	return s.publisher.Publish(s.inbox, f.Encode())
}
