package realtime

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/pantrio/pantrio/internal/metrics"
)

// Dispatcher delivers encoded events to local connections selected through
// registry snapshots. A connection that cannot accept a message is treated as
// dead and deregistered; one bad connection never aborts delivery to the rest
// of a room.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Deliver queues wire bytes to a single connection. Unknown ids are a no-op:
// connections vanish between a snapshot and its use, and that is normal.
func (d *Dispatcher) Deliver(id uuid.UUID, wire []byte) {
	conn := d.registry.get(id)
	if conn == nil {
		return
	}
	if !conn.writer.trySend(wire) {
		d.evict(conn)
		return
	}
	metrics.EventsDeliveredTotal.Inc()
}

// DeliverToUser fans wire bytes out to every connection of a user, optionally
// excluding one connection id (uuid.Nil excludes nothing).
func (d *Dispatcher) DeliverToUser(userID string, wire []byte, exclude uuid.UUID) {
	d.deliverAll(d.registry.ConnectionsForUser(userID), wire, exclude)
}

// DeliverToHousehold fans wire bytes out to every connection in a household.
func (d *Dispatcher) DeliverToHousehold(householdID string, wire []byte, exclude uuid.UUID) {
	d.deliverAll(d.registry.ConnectionsForHousehold(householdID), wire, exclude)
}

// DeliverToAll fans wire bytes out to every locally known connection.
func (d *Dispatcher) DeliverToAll(wire []byte, exclude uuid.UUID) {
	d.deliverAll(d.registry.AllIDs(), wire, exclude)
}

func (d *Dispatcher) deliverAll(ids []uuid.UUID, wire []byte, exclude uuid.UUID) {
	for _, id := range ids {
		if id == exclude {
			continue
		}
		d.Deliver(id, wire)
	}
}

// evict removes a connection whose writer stopped accepting messages. The
// error is logged, never propagated to the broadcasting caller.
func (d *Dispatcher) evict(conn *Connection) {
	if removed := d.registry.Deregister(conn.id); removed == nil {
		// Already gone; another deliverer won the race.
		return
	}
	conn.writer.stop()
	metrics.DeadConnectionsEvicted.Inc()
	slog.Warn("Evicted dead connection",
		"connection_id", conn.id.String(),
		"user_id", conn.userID,
	)
}
