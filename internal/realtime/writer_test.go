package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrio/pantrio/internal/events"
)

// wsPair upgrades one websocket connection and returns both ends, so a test
// can drive the server side while killing the transport from the client side.
func wsPair(t *testing.T) (*ws.Conn, *ws.Conn) {
	t.Helper()

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conns := make(chan *ws.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return <-conns, client
}

func TestClientWriter_SelfStopsOnWriteError(t *testing.T) {
	serverSide, client := wsPair(t)

	writer := newClientWriter(serverSide, clockwork.NewRealClock())
	t.Cleanup(writer.stop)

	wire := []byte(`{"type":"ping","data":null}`)
	require.True(t, writer.trySend(wire))

	// Kill the transport out from under the writer. The next write errors,
	// the run loop exits, and from then on trySend must refuse messages
	// instead of silently buffering them.
	client.Close()

	require.Eventually(t, func() bool {
		return !writer.trySend(wire)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_EvictsDeadConnection(t *testing.T) {
	serverSide, client := wsPair(t)

	registry := NewRegistry()
	dispatcher := NewDispatcher(registry)
	id := registry.Register(newClientWriter(serverSide, clockwork.NewRealClock()), "alice", "h1")
	require.Equal(t, 1, registry.Count())

	client.Close()

	wire, err := events.Encode(events.RecipeUpdated, nil)
	require.NoError(t, err)

	// The delivery that hits the write error may still be accepted; the
	// writer then stops itself, so a later delivery observes the dead
	// connection and deregisters it everywhere.
	require.Eventually(t, func() bool {
		dispatcher.Deliver(id, wire)
		return registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, registry.ConnectionsForUser("alice"))
	assert.Empty(t, registry.ConnectionsForHousehold("h1"))
}
