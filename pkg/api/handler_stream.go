package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
)

// boardEventsHandler handles GET /api/board-events. It streams
// board_changed events as SSE until the client disconnects, with keepalive
// comments spacing out idle periods.
func (s *Server) boardEventsHandler(c *echo.Context) error {
	w := c.Response()
	rc := http.NewResponseController(w)
	writeSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	sub := s.bus.SubscribeBoard()
	defer sub.Close()

	keepalive := time.NewTicker(s.keepaliveInterval())
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.C:
			if err := writeSSEEvent(w, rc, ev); err != nil {
				return nil
			}
		case <-keepalive.C:
			if err := writeSSEKeepalive(w, rc); err != nil {
				return nil
			}
		}
	}
}

// agentStreamHandler handles GET /api/agent-stream/:name. The reply starts
// with the replay of the agent's current or most recent run, then tails the
// live stream until the run's stream_end. Agents not in the registry get an
// empty stream terminated immediately.
func (s *Server) agentStreamHandler(c *echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent name is required")
	}

	known := true
	if _, err := s.employees.Get(name); err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			return mapServiceError(err)
		}
		known = false
	}

	w := c.Response()
	rc := http.NewResponseController(w)
	writeSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	if !known {
		_ = writeSSEEvent(w, rc, models.StreamEnd())
		return nil
	}

	replay, live, sub := s.bus.SubscribeAgent(name)
	defer sub.Close()

	for _, ev := range replay {
		if err := writeSSEEvent(w, rc, ev); err != nil {
			return nil
		}
	}
	if !live {
		// A finished run's replay already carries its stream_end; an agent
		// that never ran gets the bare terminator.
		if n := len(replay); n == 0 || replay[n-1].Type != models.StreamEventEnd {
			_ = writeSSEEvent(w, rc, models.StreamEnd())
		}
		return nil
	}

	keepalive := time.NewTicker(s.keepaliveInterval())
	defer keepalive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-sub.C:
			if err := writeSSEEvent(w, rc, ev); err != nil {
				return nil
			}
			if ev.Type == models.StreamEventEnd {
				return nil
			}
		case <-keepalive.C:
			if err := writeSSEKeepalive(w, rc); err != nil {
				return nil
			}
		}
	}
}

func (s *Server) keepaliveInterval() time.Duration {
	if s.cfg != nil && s.cfg.Events.KeepaliveInterval > 0 {
		return s.cfg.Events.KeepaliveInterval
	}
	return 30 * time.Second
}

func writeSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

// writeSSEEvent writes one `data: <json>` frame and flushes it out.
func writeSSEEvent(w io.Writer, rc *http.ResponseController, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

// writeSSEKeepalive writes the comment frame that keeps idle connections
// alive through proxies.
func writeSSEKeepalive(w io.Writer, rc *http.ResponseController) error {
	if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
		return err
	}
	return rc.Flush()
}
