package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pantrio/pantrio/internal/metrics"
)

// Registry owns the set of live connections and three indices over it.
// byID is the source of truth for liveness: every id in byUser or byHousehold
// also exists in byID, and empty index buckets are pruned on removal.
//
// All methods are safe for concurrent use. Read accessors return snapshots,
// so callers iterate without holding the lock while the registry mutates.
type Registry struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]*Connection
	byUser      map[string]map[uuid.UUID]struct{}
	byHousehold map[string]map[uuid.UUID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		byID:        make(map[uuid.UUID]*Connection),
		byUser:      make(map[string]map[uuid.UUID]struct{}),
		byHousehold: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Register allocates an id for a new connection and inserts it into all
// applicable indices atomically. householdID may be empty.
func (r *Registry) Register(writer *clientWriter, userID, householdID string) uuid.UUID {
	conn := &Connection{
		id:            uuid.New(),
		userID:        userID,
		householdID:   householdID,
		writer:        writer,
		subscriptions: make(map[string]struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[conn.id] = conn
	addToIndex(r.byUser, userID, conn.id)
	if householdID != "" {
		addToIndex(r.byHousehold, householdID, conn.id)
	}

	metrics.RealtimeActiveConnections.Set(float64(len(r.byID)))
	return conn.id
}

// Deregister removes the connection from all indices and returns it so the
// caller can close the transport. Idempotent: unknown ids return nil.
func (r *Registry) Deregister(id uuid.UUID) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return nil
	}

	delete(r.byID, id)
	removeFromIndex(r.byUser, conn.userID, id)
	if conn.householdID != "" {
		removeFromIndex(r.byHousehold, conn.householdID, id)
	}

	metrics.RealtimeActiveConnections.Set(float64(len(r.byID)))
	return conn
}

// UpdateHousehold atomically moves the connection between household buckets.
// An empty householdID removes the connection from its household room.
// No-op if the connection is unknown.
func (r *Registry) UpdateHousehold(id uuid.UUID, householdID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[id]
	if !ok {
		return
	}
	if conn.householdID == householdID {
		return
	}

	if conn.householdID != "" {
		removeFromIndex(r.byHousehold, conn.householdID, id)
	}
	if householdID != "" {
		addToIndex(r.byHousehold, householdID, id)
	}
	conn.householdID = householdID
}

// Subscribe records an advisory topic subscription. No-op if unknown.
func (r *Registry) Subscribe(id uuid.UUID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.byID[id]; ok {
		conn.subscriptions[topic] = struct{}{}
	}
}

// Unsubscribe removes an advisory topic subscription. No-op if unknown.
func (r *Registry) Unsubscribe(id uuid.UUID, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.byID[id]; ok {
		delete(conn.subscriptions, topic)
	}
}

// Subscriptions returns a snapshot of the connection's advisory topics.
func (r *Registry) Subscriptions(id uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byID[id]
	if !ok {
		return nil
	}
	topics := make([]string, 0, len(conn.subscriptions))
	for topic := range conn.subscriptions {
		topics = append(topics, topic)
	}
	return topics
}

// ConnectionsForUser returns a snapshot of connection ids for a user.
func (r *Registry) ConnectionsForUser(userID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexSnapshot(r.byUser[userID])
}

// ConnectionsForHousehold returns a snapshot of connection ids for a household.
func (r *Registry) ConnectionsForHousehold(householdID string) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexSnapshot(r.byHousehold[householdID])
}

// AllIDs returns a snapshot of every live connection id.
func (r *Registry) AllIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the total number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// CountForUser returns the number of live connections for a user.
func (r *Registry) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// CountForHousehold returns the number of live connections for a household.
func (r *Registry) CountForHousehold(householdID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHousehold[householdID])
}

// UserCount returns the number of distinct users with live connections.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// HouseholdCount returns the number of distinct households with live connections.
func (r *Registry) HouseholdCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHousehold)
}

// Clear removes every connection and returns them so the caller can close
// each transport. Used on process shutdown.
func (r *Registry) Clear() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		conns = append(conns, conn)
	}
	r.byID = make(map[uuid.UUID]*Connection)
	r.byUser = make(map[string]map[uuid.UUID]struct{})
	r.byHousehold = make(map[string]map[uuid.UUID]struct{})

	metrics.RealtimeActiveConnections.Set(0)
	return conns
}

// get returns the live connection for id, or nil. The returned pointer is
// only safe for writer access (the writer handles its own synchronisation).
func (r *Registry) get(id uuid.UUID) *Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func addToIndex(index map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	bucket, ok := index[key]
	if !ok {
		bucket = make(map[uuid.UUID]struct{})
		index[key] = bucket
	}
	bucket[id] = struct{}{}
}

func removeFromIndex(index map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	bucket, ok := index[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(index, key)
	}
}

func indexSnapshot(bucket map[uuid.UUID]struct{}) []uuid.UUID {
	if len(bucket) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	return ids
}
