package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ilievs/pinboard/core"
	"github.com/ilievs/pinboard/protocol"
	"github.com/ilievs/pinboard/storage"
	"github.com/ilievs/pinboard/widget"
)

// Server exposes the app side of the dashboards over HTTP.
type Server struct {
	handler   *core.Handler
	logger    *slog.Logger
	messageID atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

func NewServer(handler *core.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, logger: logger, done: make(chan struct{})}
}

// Close ends every open stream. Call it before shutting the HTTP server down,
// which waits for handlers to return.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Echo builds the HTTP router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Routes
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/profiles/:owner", s.profile)
	e.GET("/dashboards/:dashId", s.dashboard)
	e.POST("/dashboards/:dashId/activate", s.activate)
	e.POST("/dashboards/:dashId/deactivate", s.deactivate)
	e.POST("/dashboards/:dashId/tags", s.createTag)
	e.POST("/dashboards/:dashId/widgets", s.createWidget)
	e.PUT("/dashboards/:dashId/widgets/:widgetId", s.updateWidget)
	e.DELETE("/dashboards/:dashId/widgets/:widgetId", s.deleteWidget)
	e.POST("/dashboards/:dashId/widgets/:widgetId/property", s.setProperty)
	e.POST("/dashboards/:dashId/widgets/:widgetId/write", s.write)
	e.GET("/dashboards/:dashId/stream", s.stream)
	return e
}

// Response is the body of every command endpoint. Code mirrors the device
// protocol responses.
type Response struct {
	MessageID int               `json:"messageId"`
	Code      protocol.Response `json:"code"`
	Devices   int               `json:"devices,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type propertyRequest struct {
	MessageID int    `json:"messageId"`
	Property  string `json:"property"`
	Value     string `json:"value"`
}

type writeRequest struct {
	MessageID int    `json:"messageId"`
	Value     string `json:"value"`
}

func (s *Server) nextMessageID(requested int) int {
	if requested > 0 {
		return requested
	}
	return int(s.messageID.Add(1))
}

func dashID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("dashId"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid dashboard id")
	}
	return id, nil
}

func widgetID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("widgetId"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid widget id")
	}
	return id, nil
}

// statusOf maps command errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrDashboardNotFound),
		errors.Is(err, core.ErrWidgetNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict),
		errors.Is(err, core.ErrInactive):
		return http.StatusConflict
	case errors.Is(err, widget.ErrRejected),
		errors.Is(err, protocol.ErrParse),
		errors.Is(err, widget.ErrUnknownType),
		errors.Is(err, widget.ErrBindingConflict):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) reply(c echo.Context, messageID, devices int, err error) error {
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("app command failed", "path", c.Path(), "error", err)
		}
		return c.JSON(status, Response{
			MessageID: messageID,
			Code:      protocol.IllegalCommandBody,
			Error:     err.Error(),
		})
	}
	return c.JSON(http.StatusOK, Response{MessageID: messageID, Code: protocol.OK, Devices: devices})
}

func (s *Server) profile(c echo.Context) error {
	return c.JSON(http.StatusOK, storage.Profile{Dashboards: s.handler.Profile(c.Param("owner"))})
}

func (s *Server) dashboard(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	d, err := s.handler.Dashboard(id)
	if err != nil {
		return echo.NewHTTPError(statusOf(err), err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) activate(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.Activate(id))
}

func (s *Server) deactivate(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.Deactivate(id))
}

func (s *Server) createTag(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	tag := new(core.Tag)
	if err := c.Bind(tag); err != nil {
		return err
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.CreateTag(id, tag))
}

func (s *Server) createWidget(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	w := new(widget.Widget)
	if err := c.Bind(w); err != nil {
		return err
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.CreateWidget(id, w))
}

func (s *Server) updateWidget(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	wid, err := widgetID(c)
	if err != nil {
		return err
	}
	w := new(widget.Widget)
	if err := c.Bind(w); err != nil {
		return err
	}
	if w.ID != wid {
		return echo.NewHTTPError(http.StatusBadRequest, "widget id does not match path")
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.UpdateWidget(id, w))
}

func (s *Server) deleteWidget(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	wid, err := widgetID(c)
	if err != nil {
		return err
	}
	return s.reply(c, s.nextMessageID(0), 0, s.handler.DeleteWidget(id, wid))
}

// origin names the app session a command comes from, so it is not echoed
// back to it.
func origin(c echo.Context) string {
	return c.Request().Header.Get(SessionHeader)
}

func (s *Server) setProperty(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	wid, err := widgetID(c)
	if err != nil {
		return err
	}
	req := new(propertyRequest)
	if err := c.Bind(req); err != nil {
		return err
	}
	msgID := s.nextMessageID(req.MessageID)
	n, err := s.handler.AppSetProperty(origin(c), msgID, id, wid, req.Property, req.Value)
	return s.reply(c, msgID, n, err)
}

func (s *Server) write(c echo.Context) error {
	id, err := dashID(c)
	if err != nil {
		return err
	}
	wid, err := widgetID(c)
	if err != nil {
		return err
	}
	req := new(writeRequest)
	if err := c.Bind(req); err != nil {
		return err
	}
	if req.Value == "" {
		return s.reply(c, req.MessageID, 0, protocol.ErrParse)
	}
	msgID := s.nextMessageID(req.MessageID)
	n, err := s.handler.AppWrite(origin(c), msgID, id, wid, req.Value)
	return s.reply(c, msgID, n, err)
}
