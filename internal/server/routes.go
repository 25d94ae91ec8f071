package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// WebSocket connect (identity from gateway headers)
	s.echo.GET("/ws", s.handleWebSocket)

	// API routes (identity required)
	s.echo.GET("/api/realtime/stats", s.handleStats)
	s.echo.POST("/api/events", s.handlePublishEvent, s.requireIdentity)
}
