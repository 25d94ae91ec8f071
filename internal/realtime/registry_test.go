package realtime

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterIndexesAll(t *testing.T) {
	r := NewRegistry()

	id := r.Register(nil, "alice", "h1")
	require.NotEqual(t, uuid.Nil, id)

	assert.Equal(t, 1, r.Count())
	assert.Contains(t, r.ConnectionsForUser("alice"), id)
	assert.Contains(t, r.ConnectionsForHousehold("h1"), id)
	assert.Contains(t, r.AllIDs(), id)
}

func TestRegistry_RegisterWithoutHousehold(t *testing.T) {
	r := NewRegistry()

	id := r.Register(nil, "carol", "")

	assert.Contains(t, r.ConnectionsForUser("carol"), id)
	assert.Equal(t, 0, r.HouseholdCount())
}

func TestRegistry_DeregisterRemovesEverywhere(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "h1")

	conn := r.Deregister(id)
	require.NotNil(t, conn)

	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.ConnectionsForUser("alice"))
	assert.Empty(t, r.ConnectionsForHousehold("h1"))
	// Empty buckets must be pruned, not left dangling.
	assert.Equal(t, 0, r.UserCount())
	assert.Equal(t, 0, r.HouseholdCount())
}

func TestRegistry_DeregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "h1")

	require.NotNil(t, r.Deregister(id))
	assert.Nil(t, r.Deregister(id))
	assert.Nil(t, r.Deregister(uuid.New()))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_UpdateHouseholdMovesBuckets(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "h1")

	r.UpdateHousehold(id, "h2")

	assert.Contains(t, r.ConnectionsForHousehold("h2"), id)
	assert.Empty(t, r.ConnectionsForHousehold("h1"))
	assert.Equal(t, 1, r.HouseholdCount())
}

func TestRegistry_UpdateHouseholdToNone(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "h1")

	r.UpdateHousehold(id, "")

	assert.Empty(t, r.ConnectionsForHousehold("h1"))
	assert.Equal(t, 0, r.HouseholdCount())
	// User index is untouched by household moves.
	assert.Contains(t, r.ConnectionsForUser("alice"), id)
}

func TestRegistry_UpdateHouseholdUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	r.UpdateHousehold(uuid.New(), "h1")
	assert.Equal(t, 0, r.HouseholdCount())
}

func TestRegistry_SnapshotsAreCopies(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "h1")

	snapshot := r.ConnectionsForUser("alice")
	r.Deregister(id)

	// The snapshot survives mutation of the registry.
	assert.Contains(t, snapshot, id)
	assert.Empty(t, r.ConnectionsForUser("alice"))
}

func TestRegistry_Subscriptions(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nil, "alice", "")

	r.Subscribe(id, "recipes")
	r.Subscribe(id, "meal_plans")
	r.Unsubscribe(id, "recipes")

	assert.Equal(t, []string{"meal_plans"}, r.Subscriptions(id))

	// Unknown ids are a no-op, never an error.
	r.Subscribe(uuid.New(), "recipes")
	r.Unsubscribe(uuid.New(), "recipes")
	assert.Nil(t, r.Subscriptions(uuid.New()))
}

func TestRegistry_CountsPerRoom(t *testing.T) {
	r := NewRegistry()
	r.Register(nil, "alice", "h1")
	r.Register(nil, "alice", "h1")
	r.Register(nil, "bob", "h1")

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.CountForUser("alice"))
	assert.Equal(t, 1, r.CountForUser("bob"))
	assert.Equal(t, 3, r.CountForHousehold("h1"))
	assert.Equal(t, 0, r.CountForHousehold("h2"))
}

func TestRegistry_ClearEmptiesAllIndices(t *testing.T) {
	r := NewRegistry()
	r.Register(nil, "alice", "h1")
	r.Register(nil, "bob", "")

	conns := r.Clear()

	assert.Len(t, conns, 2)
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, r.UserCount())
	assert.Equal(t, 0, r.HouseholdCount())
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := r.Register(nil, "alice", "h1")
				r.UpdateHousehold(id, "h2")
				_ = r.ConnectionsForHousehold("h2")
				_ = r.ConnectionsForUser("alice")
				r.Deregister(id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, r.UserCount())
	assert.Equal(t, 0, r.HouseholdCount())
}
