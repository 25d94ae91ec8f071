package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pantrio/pantrio/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

// handleReadiness reports ready as long as the process can serve local
// traffic. A disabled bridge is reported but does not fail readiness: the
// design degrades to single-instance fan-out instead of going unhealthy.
func (s *Server) handleReadiness(c echo.Context) error {
	resp := map[string]any{"status": "ready"}

	if s.bridge != nil {
		health := s.bridge.Health()
		resp["bridge"] = health

		if health.Connected {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := s.bridge.Ping(ctx); err != nil {
				resp["bridge_ping_error"] = err.Error()
			}
		}
	}

	return c.JSON(200, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
