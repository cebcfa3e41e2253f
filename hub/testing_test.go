package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/agent-hud/hub/store"
)

// testParts bundles the core components wired against a throwaway
// SQLite database.
type testParts struct {
	store    store.Store
	registry *Registry
	tracker  *Tracker
	fanout   *Fanout
	router   *Router
}

func setupTest(t *testing.T) *testParts {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "hub-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry()
	tracker := NewTracker(st, logger)
	fanout := NewFanout(registry, logger)
	router := NewRouter(registry, tracker, fanout, st, logger)

	return &testParts{
		store:    st,
		registry: registry,
		tracker:  tracker,
		fanout:   fanout,
		router:   router,
	}
}

// recvRaw pops one queued message from a connection, failing the test
// if none arrives promptly.
func recvRaw(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case data, ok := <-c.outbound:
		if !ok {
			t.Fatal("outbound queue closed")
		}
		return data
	case <-time.After(time.Second):
		t.Fatal("no message queued")
	}
	return nil
}

// recvJSON pops one queued message and decodes it into a generic map.
func recvJSON(t *testing.T, c *Conn) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(recvRaw(t, c), &out); err != nil {
		t.Fatalf("queued message is not json: %v", err)
	}
	return out
}

// drainQueue asserts the connection has nothing queued.
func drainQueue(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.outbound:
		t.Fatalf("unexpected queued message: %s", data)
	default:
	}
}
