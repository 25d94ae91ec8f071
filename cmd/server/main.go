package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pantrio/pantrio/internal/config"
	"github.com/pantrio/pantrio/internal/logging"
	"github.com/pantrio/pantrio/internal/realtime"
	"github.com/pantrio/pantrio/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBridge(cfg *config.Config, dispatcher *realtime.Dispatcher) *realtime.Bridge {
	bridge := realtime.NewBridge(dispatcher)
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, running single-instance")
		return bridge
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bridge.Connect(ctx, cfg.RedisURL); err != nil {
		// Degrade, don't crash: local fan-out keeps working.
		slog.Warn("Bridge unavailable, running single-instance", "error", err)
		return bridge
	}

	bridge.StartListener()
	slog.Info("Distributed bridge enabled")
	return bridge
}

func runGracefulShutdown(srv *server.Server, manager *realtime.Manager, bridge *realtime.Bridge, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		manager.Shutdown()
		bridge.Shutdown(shutdownCtx)

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry)
	bridge := setupBridge(cfg, dispatcher)
	manager := realtime.NewManager(registry, dispatcher, bridge, clock)

	srv := server.NewServer(cfg, manager, bridge, server.HeaderVerifier{})

	done := runGracefulShutdown(srv, manager, bridge, cfg.ShutdownTimeout)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
