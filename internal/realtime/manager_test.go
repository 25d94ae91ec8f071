package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pantrio/pantrio/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMsg struct {
	channel string
	wire    []byte
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []publishedMsg
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, wire []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, publishedMsg{channel: channel, wire: wire})
}

func (p *recordingPublisher) all() []publishedMsg {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMsg(nil), p.published...)
}

// testManager sets up a Manager with a test HTTP server that upgrades
// connections and runs the read pump the way the real handler does.
// Returns the manager and a dial function for clients.
func testManager(t *testing.T, pub publisher) (*Manager, func(userID, householdID string) *ws.Conn) {
	t.Helper()

	registry := NewRegistry()
	manager := NewManager(registry, NewDispatcher(registry), pub, clockwork.NewRealClock())
	t.Cleanup(manager.Shutdown)

	return manager, serveSockets(t, manager)
}

// serveSockets runs a minimal websocket endpoint in front of a Manager and
// returns a dial helper that connects with the given identity.
func serveSockets(t *testing.T, manager *Manager) func(userID, householdID string) *ws.Conn {
	t.Helper()

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id := manager.Connect(conn, r.URL.Query().Get("user"), r.URL.Query().Get("household"))
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			manager.HandleClientMessage(id, msg)
		}
		manager.Disconnect(id)
	}))
	t.Cleanup(server.Close)

	dial := func(userID, householdID string) *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID + "&household=" + householdID
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return dial
}

// readEnvelope reads the next frame and decodes it as an Envelope.
func readEnvelope(t *testing.T, conn *ws.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := events.Decode(msg)
	require.NoError(t, err)
	return env
}

// readSync consumes the initial data:sync event and returns the connection id.
func readSync(t *testing.T, conn *ws.Conn) uuid.UUID {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, events.DataSync, env.Type)
	var sync events.SyncData
	require.NoError(t, json.Unmarshal(env.Data, &sync))
	return uuid.MustParse(sync.ConnectionID)
}

// assertNoMessage asserts that no frame arrives within the grace window.
func assertNoMessage(t *testing.T, conn *ws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestManager_ConnectSendsSync(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn := dial("alice", "h1")
	id := readSync(t, conn)

	assert.NotEqual(t, uuid.Nil, id)
	require.Eventually(t, func() bool { return manager.UserConnectionCount("alice") == 1 },
		time.Second, time.Millisecond)
}

func TestManager_HouseholdFanOut(t *testing.T) {
	// Scenario: A and B share household H, C has none. A household-or-user
	// broadcast for (A, H) reaches A and B, never C.
	manager, dial := testManager(t, nil)

	connA := dial("alice", "h1")
	connB := dial("bob", "h1")
	connC := dial("carol", "")
	readSync(t, connA)
	readSync(t, connB)
	readSync(t, connC)

	err := manager.BroadcastToHouseholdOrUser(context.Background(), "alice", "h1",
		events.RecipeCreated, map[string]string{"recipe_id": "r1"}, uuid.Nil)
	require.NoError(t, err)

	for _, conn := range []*ws.Conn{connA, connB} {
		env := readEnvelope(t, conn)
		assert.Equal(t, events.RecipeCreated, env.Type)
		assert.JSONEq(t, `{"recipe_id":"r1"}`, string(env.Data))
	}
	assertNoMessage(t, connC)
}

func TestManager_HouseholdOrUserFallsBackToUser(t *testing.T) {
	manager, dial := testManager(t, nil)

	connC := dial("carol", "")
	readSync(t, connC)

	err := manager.BroadcastToHouseholdOrUser(context.Background(), "carol", "",
		events.ShoppingListUpdated, map[string]int{"items": 3}, uuid.Nil)
	require.NoError(t, err)

	env := readEnvelope(t, connC)
	assert.Equal(t, events.ShoppingListUpdated, env.Type)
}

func TestManager_PingPong(t *testing.T) {
	_, dial := testManager(t, nil)

	conn := dial("alice", "")
	readSync(t, conn)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"ping","timestamp":42}`)))

	env := readEnvelope(t, conn)
	assert.Equal(t, events.Pong, env.Type)
	assert.JSONEq(t, `{"timestamp":42}`, string(env.Data))
}

func TestManager_BroadcastAfterDisconnect(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn := dial("alice", "")
	readSync(t, conn)
	require.Eventually(t, func() bool { return manager.ConnectionCount() == 1 },
		time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return manager.ConnectionCount() == 0 },
		time.Second, time.Millisecond)

	// Zero deliveries, no error: absence is a normal state.
	err := manager.BroadcastToUser(context.Background(), "alice", events.Ping, nil, uuid.Nil)
	require.NoError(t, err)
}

func TestManager_ExcludeSkipsOriginator(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn1 := dial("alice", "h1")
	conn2 := dial("bob", "h1")
	id1 := readSync(t, conn1)
	readSync(t, conn2)

	err := manager.BroadcastToHousehold(context.Background(), "h1",
		events.ShoppingListItemChecked, map[string]bool{"checked": true}, id1)
	require.NoError(t, err)

	env := readEnvelope(t, conn2)
	assert.Equal(t, events.ShoppingListItemChecked, env.Type)
	assertNoMessage(t, conn1)
}

func TestManager_BroadcastAll(t *testing.T) {
	manager, dial := testManager(t, nil)

	connA := dial("alice", "h1")
	connC := dial("carol", "")
	readSync(t, connA)
	readSync(t, connC)

	err := manager.BroadcastAll(context.Background(), events.HouseholdUpdated, nil, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, events.HouseholdUpdated, readEnvelope(t, connA).Type)
	assert.Equal(t, events.HouseholdUpdated, readEnvelope(t, connC).Type)
}

func TestManager_UpdateHouseholdJoinsRoomMidSession(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn := dial("carol", "")
	id := readSync(t, conn)

	manager.UpdateHousehold(id, "h9")
	require.Eventually(t, func() bool { return manager.HouseholdConnectionCount("h9") == 1 },
		time.Second, time.Millisecond)

	err := manager.BroadcastToHousehold(context.Background(), "h9",
		events.HouseholdMemberJoined, nil, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, events.HouseholdMemberJoined, readEnvelope(t, conn).Type)
}

func TestManager_UnknownClientMessagesIgnored(t *testing.T) {
	_, dial := testManager(t, nil)

	conn := dial("alice", "")
	readSync(t, conn)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`not json at all`)))
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"teleport"}`)))

	// The connection survives and still answers pings.
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"ping","timestamp":1}`)))
	assert.Equal(t, events.Pong, readEnvelope(t, conn).Type)
}

func TestManager_SubscriptionsAreAdvisory(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn := dial("alice", "")
	readSync(t, conn)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"subscribe","subscription":"recipes"}`)))

	// Subscriptions never filter deliveries: an unrelated event still arrives.
	require.Eventually(t, func() bool { return manager.ConnectionCount() == 1 },
		time.Second, time.Millisecond)
	err := manager.BroadcastToUser(context.Background(), "alice", events.CookSessionStarted, nil, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, events.CookSessionStarted, readEnvelope(t, conn).Type)
}

func TestManager_LocalDeliveryPrecedesPublish(t *testing.T) {
	pub := &recordingPublisher{}
	manager, dial := testManager(t, pub)

	conn := dial("alice", "h1")
	readSync(t, conn)

	err := manager.BroadcastToHousehold(context.Background(), "h1",
		events.MealPlanCreated, map[string]int{"day": 0}, uuid.Nil)
	require.NoError(t, err)

	// Local delivery happened (synchronously before publish returns).
	assert.Equal(t, events.MealPlanCreated, readEnvelope(t, conn).Type)

	published := pub.all()
	require.Len(t, published, 1)
	assert.Equal(t, "household:h1", published[0].channel)
	env, err := events.Decode(published[0].wire)
	require.NoError(t, err)
	assert.Equal(t, events.MealPlanCreated, env.Type)
}

func TestManager_PublishChannelsPerRoomKind(t *testing.T) {
	pub := &recordingPublisher{}
	manager, _ := testManager(t, pub)

	ctx := context.Background()
	require.NoError(t, manager.BroadcastToUser(ctx, "alice", events.Ping, nil, uuid.Nil))
	require.NoError(t, manager.BroadcastToHousehold(ctx, "h1", events.Ping, nil, uuid.Nil))
	require.NoError(t, manager.BroadcastAll(ctx, events.Ping, nil, uuid.Nil))

	published := pub.all()
	require.Len(t, published, 3)
	assert.Equal(t, "user:alice", published[0].channel)
	assert.Equal(t, "household:h1", published[1].channel)
	assert.Equal(t, "broadcast:all", published[2].channel)
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	manager, dial := testManager(t, nil)

	conn := dial("alice", "")
	id := readSync(t, conn)

	manager.Disconnect(id)
	manager.Disconnect(id)

	assert.Equal(t, 0, manager.ConnectionCount())
}
