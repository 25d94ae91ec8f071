package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pantrio/pantrio/internal/events"
	"github.com/pantrio/pantrio/internal/logging"
	"github.com/pantrio/pantrio/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Cross-origin is the gateway's concern, not ours
	},
}

// --- Identity middleware ---

func (s *Server) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := s.verifier.Verify(c.Request())
		if err != nil {
			return c.JSON(401, map[string]string{"error": "missing identity"})
		}
		c.Set("identity", identity)
		return next(c)
	}
}

// --- WebSocket handler ---

func (s *Server) handleWebSocket(c echo.Context) error {
	identity, err := s.verifier.Verify(c.Request())
	if err != nil {
		return c.JSON(401, map[string]string{"error": "missing identity"})
	}

	ok, reason := s.limits.Acquire(c.RealIP(), identity.UserID)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Rejecting connection", "reason", reason, "user_id", identity.UserID)
		return c.JSON(429, map[string]string{"error": string(reason)})
	}
	defer s.limits.Release(identity.UserID)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("Failed to upgrade WebSocket", "error", err)
		return nil
	}

	ctx := logging.WithRequestID(c.Request().Context(), logging.NewRequestID())
	id := s.manager.Connect(conn, identity.UserID, identity.HouseholdID)
	slog.InfoContext(ctx, "Client connected",
		"connection_id", id.String(),
		"user_id", identity.UserID,
	)

	// Read pump (blocks until disconnect)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.manager.HandleClientMessage(id, msg)
	}

	s.manager.Disconnect(id)
	slog.InfoContext(ctx, "Client disconnected", "connection_id", id.String())
	return nil
}

// --- API handlers ---

type publishEventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handlePublishEvent lets in-perimeter domain services push an event into the
// caller's household room (or user room when the caller has no household).
func (s *Server) handlePublishEvent(c echo.Context) error {
	identity := c.Get("identity").(Identity)

	var req publishEventRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(400, map[string]string{"error": "invalid body"})
	}

	eventType := events.EventType(req.Type)
	if !eventType.Known() {
		return c.JSON(400, map[string]string{"error": "unknown event type"})
	}

	err := s.manager.BroadcastToHouseholdOrUser(
		c.Request().Context(),
		identity.UserID,
		identity.HouseholdID,
		eventType,
		req.Data,
		uuid.Nil,
	)
	if err != nil {
		slog.Error("Failed to broadcast event", "type", req.Type, "error", err)
		return c.JSON(500, map[string]string{"error": "broadcast failed"})
	}

	return c.JSON(202, map[string]string{"status": "accepted"})
}

func (s *Server) handleStats(c echo.Context) error {
	stats := map[string]any{
		"connections": s.manager.ConnectionCount(),
		"users":       s.manager.UserCount(),
		"households":  s.manager.HouseholdCount(),
	}
	if userID := c.QueryParam("user_id"); userID != "" {
		stats["user_connections"] = s.manager.UserConnectionCount(userID)
	}
	if householdID := c.QueryParam("household_id"); householdID != "" {
		stats["household_connections"] = s.manager.HouseholdConnectionCount(householdID)
	}
	if s.bridge != nil {
		stats["bridge"] = s.bridge.Health()
	}
	return c.JSON(200, stats)
}
