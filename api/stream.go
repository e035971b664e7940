package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ilievs/pinboard/core"
	"github.com/ilievs/pinboard/protocol"
)

// SessionHeader carries the stream session id on app commands.
const SessionHeader = "X-Pinboard-Session"

var errStreamClosed = errors.New("stream closed")

// streamSession is an app session served as server-sent events.
type streamSession struct {
	id      string
	binding core.Binding
	frames  chan protocol.Frame
	done    chan struct{}
}

func newStreamSession(dashID int) *streamSession {
	return &streamSession{
		id:      uuid.NewString(),
		binding: core.Binding{Role: core.RoleApp, DashboardIDs: []int{dashID}},
		frames:  make(chan protocol.Frame),
		done:    make(chan struct{}),
	}
}

func (s *streamSession) ID() string { return s.id }

func (s *streamSession) Binding() core.Binding { return s.binding }

// Write hands the frame to the request goroutine, blocking until it is taken
// or the client went away.
func (s *streamSession) Write(f protocol.Frame) error {
	select {
	case s.frames <- f:
		return nil
	case <-s.done:
		return errStreamClosed
	}
}

// stream serves GET /dashboards/:dashId/stream.
func (s *Server) stream(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	if _, err := s.handler.Dashboard(id); err != nil {
		return echo.NewHTTPError(statusOf(err), err.Error())
	}

	w := c.Response()
	session := newStreamSession(id)
	if err := s.handler.Router().AddSession(session); err != nil {
		return err
	}
	defer func() {
		close(session.done)
		s.handler.Router().RemoveSession(session.id)
	}()

	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(SessionHeader, session.id)
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ready\ndata: {\"session\":%q}\n\n", session.id)
	w.Flush()
	s.logger.Info("app stream opened", "session", session.id, "dashboard", id)

	notify := c.Request().Context().Done()
	for {
		select {
		case f := <-session.frames:
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Command, f.Encode())
			w.Flush()
		case <-notify:
			s.logger.Info("app stream closed", "session", session.id)
			return nil
		case <-s.done:
			s.logger.Info("app stream closed by server", "session", session.id)
			return nil
		}
	}
}
