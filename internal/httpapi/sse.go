package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// sseKeepAlive is the comment-ping cadence that keeps idle SSE connections
// open through proxies.
const sseKeepAlive = 15 * time.Second

// handleEvents streams the engine's event stream as server-sent events.
// Each event is one `data:` line of JSON; the connection closes when the
// client disconnects or the bus shuts down.
func (s *Server) handleEvents(c echo.Context) error {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	ping := time.NewTicker(sseKeepAlive)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ping.C:
			if _, err := fmt.Fprint(c.Response(), ": keep-alive\n\n"); err != nil {
				return nil
			}
			flusher.Flush()

		case ev, open := <-ch:
			if !open {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
