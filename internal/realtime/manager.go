package realtime

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pantrio/pantrio/internal/events"
	"github.com/pantrio/pantrio/internal/metrics"
)

// publisher is the slice of the Bridge the manager needs. Nil-able for
// single-instance deployments and swappable in tests.
type publisher interface {
	Publish(ctx context.Context, channel string, wire []byte)
}

// Manager is the public façade of the fan-out layer: it accepts connections,
// interprets inbound client frames, and fans domain events out locally and
// across instances. Broadcast helpers always deliver locally first, then
// mirror to the bus, so same-process clients never wait on the bus.
type Manager struct {
	registry   *Registry
	dispatcher *Dispatcher
	bridge     publisher
	clock      clockwork.Clock
}

// NewManager composes the façade. bridge may be nil for single-instance mode.
func NewManager(registry *Registry, dispatcher *Dispatcher, bridge publisher, clock clockwork.Clock) *Manager {
	return &Manager{
		registry:   registry,
		dispatcher: dispatcher,
		bridge:     bridge,
		clock:      clock,
	}
}

// Connect registers an upgraded WebSocket connection for an authenticated
// identity and sends the initial data:sync event confirming the session is
// live. householdID may be empty.
func (m *Manager) Connect(conn *websocket.Conn, userID, householdID string) uuid.UUID {
	writer := newClientWriter(conn, m.clock)
	id := m.registry.Register(writer, userID, householdID)

	metrics.RealtimeConnectionsTotal.WithLabelValues("opened").Inc()
	slog.Debug("Connection registered",
		"connection_id", id.String(),
		"user_id", userID,
		"household_id", householdID,
	)

	wire, err := events.Encode(events.DataSync, events.SyncData{ConnectionID: id.String()})
	if err != nil {
		slog.Error("Failed to encode sync event", "error", err)
		return id
	}
	m.dispatcher.Deliver(id, wire)
	return id
}

// Disconnect deregisters a connection and closes its transport. Always safe
// to call, including twice.
func (m *Manager) Disconnect(id uuid.UUID) {
	conn := m.registry.Deregister(id)
	if conn == nil {
		return
	}
	conn.writer.stop()
	metrics.RealtimeConnectionsTotal.WithLabelValues("closed").Inc()
	slog.Debug("Connection deregistered", "connection_id", id.String(), "user_id", conn.userID)
}

// UpdateHousehold moves a connection between household rooms mid-session.
func (m *Manager) UpdateHousehold(id uuid.UUID, householdID string) {
	m.registry.UpdateHousehold(id, householdID)
}

// BroadcastToUser delivers an event to every connection of a user, then
// mirrors it to the bus. exclude (uuid.Nil for none) suppresses the echo to
// an originating connection; exclusion applies locally only, since other
// instances cannot hold the excluded socket.
func (m *Manager) BroadcastToUser(ctx context.Context, userID string, t events.EventType, payload any, exclude uuid.UUID) error {
	wire, err := events.Encode(t, payload)
	if err != nil {
		return err
	}
	metrics.EventsBroadcastTotal.WithLabelValues("user").Inc()
	m.dispatcher.DeliverToUser(userID, wire, exclude)
	m.publish(ctx, UserChannel(userID), wire)
	return nil
}

// BroadcastToHousehold delivers an event to every connection in a household,
// then mirrors it to the bus.
func (m *Manager) BroadcastToHousehold(ctx context.Context, householdID string, t events.EventType, payload any, exclude uuid.UUID) error {
	wire, err := events.Encode(t, payload)
	if err != nil {
		return err
	}
	metrics.EventsBroadcastTotal.WithLabelValues("household").Inc()
	m.dispatcher.DeliverToHousehold(householdID, wire, exclude)
	m.publish(ctx, HouseholdChannel(householdID), wire)
	return nil
}

// BroadcastToHouseholdOrUser routes to the household room when householdID is
// set, else to the user room. This is the primary entry point for domain
// event producers, since a user may or may not currently belong to a household.
func (m *Manager) BroadcastToHouseholdOrUser(ctx context.Context, userID, householdID string, t events.EventType, payload any, exclude uuid.UUID) error {
	if householdID != "" {
		return m.BroadcastToHousehold(ctx, householdID, t, payload, exclude)
	}
	return m.BroadcastToUser(ctx, userID, t, payload, exclude)
}

// BroadcastAll delivers an event to every locally known connection, then
// mirrors it under the reserved all-instances channel.
func (m *Manager) BroadcastAll(ctx context.Context, t events.EventType, payload any, exclude uuid.UUID) error {
	wire, err := events.Encode(t, payload)
	if err != nil {
		return err
	}
	metrics.EventsBroadcastTotal.WithLabelValues("all").Inc()
	m.dispatcher.DeliverToAll(wire, exclude)
	m.publish(ctx, AllChannel(), wire)
	return nil
}

// HandleClientMessage interprets one inbound client frame. Unknown kinds are
// ignored, not errors: the server may be older than the client build.
func (m *Manager) HandleClientMessage(id uuid.UUID, raw []byte) {
	msg, err := events.ParseClientMessage(raw)
	if err != nil {
		slog.Debug("Ignoring unparseable client message", "connection_id", id.String(), "error", err)
		return
	}

	switch msg.Type {
	case events.ClientPing:
		wire, err := events.Encode(events.Pong, events.PongData{Timestamp: msg.Timestamp})
		if err != nil {
			slog.Error("Failed to encode pong", "error", err)
			return
		}
		m.dispatcher.Deliver(id, wire)
	case events.ClientSubscribe:
		m.registry.Subscribe(id, msg.Subscription)
	case events.ClientUnsubscribe:
		m.registry.Unsubscribe(id, msg.Subscription)
	default:
		slog.Debug("Ignoring unknown client message type", "type", msg.Type)
	}
}

// ConnectionCount reports the number of live local connections.
func (m *Manager) ConnectionCount() int { return m.registry.Count() }

// UserConnectionCount reports live local connections for one user.
func (m *Manager) UserConnectionCount(userID string) int { return m.registry.CountForUser(userID) }

// HouseholdConnectionCount reports live local connections for one household.
func (m *Manager) HouseholdConnectionCount(householdID string) int {
	return m.registry.CountForHousehold(householdID)
}

// UserCount reports the number of distinct users with live local connections.
func (m *Manager) UserCount() int { return m.registry.UserCount() }

// HouseholdCount reports the number of distinct households with live local connections.
func (m *Manager) HouseholdCount() int { return m.registry.HouseholdCount() }

// Shutdown clears the registry and closes every transport with a close frame.
func (m *Manager) Shutdown() {
	conns := m.registry.Clear()
	for _, conn := range conns {
		conn.writer.stopGraceful("Server shutting down")
	}
	slog.Info("Realtime manager shut down", "disconnected_clients", len(conns))
}

func (m *Manager) publish(ctx context.Context, channel string, wire []byte) {
	if m.bridge == nil {
		return
	}
	m.bridge.Publish(ctx, channel, wire)
}
