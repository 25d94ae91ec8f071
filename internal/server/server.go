package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pantrio/pantrio/internal/config"
	"github.com/pantrio/pantrio/internal/realtime"
)

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	manager   *realtime.Manager
	bridge    *realtime.Bridge
	verifier  Verifier
	limits    *ConnectionLimits
	startTime time.Time
}

func NewServer(cfg *config.Config, manager *realtime.Manager, bridge *realtime.Bridge, verifier Verifier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		manager:   manager,
		bridge:    bridge,
		verifier:  verifier,
		limits:    NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerUser, cfg.ConnectionsPerSecond, cfg.ConnectionBurst),
		startTime: time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
