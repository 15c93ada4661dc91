package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/lobby/internal/version"
)

// SubscriberCounter reports how many live subscriptions the backend serves.
type SubscriberCounter interface {
	Subscribers() int
}

// PingResponse is the body of GET /ping.
type PingResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	Subscriptions int    `json:"subscriptions"`
}

// PingHandler serves liveness and a small status summary.
type PingHandler struct {
	subscribers SubscriberCounter
	started     time.Time
}

// NewPingHandler creates a ping handler. subscribers may be nil.
func NewPingHandler(subscribers SubscriberCounter) *PingHandler {
	return &PingHandler{subscribers: subscribers, started: time.Now()}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.Health)
}

// Ping reports status, build version, uptime and open subscriptions.
func (h *PingHandler) Ping(c echo.Context) error {
	resp := PingResponse{
		Status:  "ok",
		Version: version.Get().String(),
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
	}
	if h.subscribers != nil {
		resp.Subscriptions = h.subscribers.Subscribers()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *PingHandler) Health(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
