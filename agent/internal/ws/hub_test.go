package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkscope/linkscope/agent/internal/store"
	wsHub "github.com/linkscope/linkscope/agent/internal/ws"
	"github.com/linkscope/linkscope/pkg/types"
)

// --- helpers ----------------------------------------------------------------

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
// Returns the ws:// URL, the hub, and a cancel function.
func startHub(t *testing.T, st *store.Store, origins ...string) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(st, origins)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

func waitCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Count: got %d, want %d", hub.Count(), want)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	st := store.New()
	st.Dispatch(store.SetStatus{Status: types.StatusGood})
	wsURL, _, _ := startHub(t, st)

	env := readMessage(t, dial(t, wsURL))
	if env.Event != wsHub.EventSnapshot {
		t.Errorf("event: got %q, want snapshot", env.Event)
	}
	var snap types.NetworkSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Status != types.StatusGood {
		t.Errorf("status: got %q, want good", snap.Status)
	}
	if snap.Diagnostics.DNS == nil || snap.History == nil {
		t.Error("collections should encode as empty arrays, not null")
	}
}

func TestHub_PushesStoreChanges(t *testing.T) {
	st := store.New()
	wsURL, _, _ := startHub(t, st)

	conn := dial(t, wsURL)
	readMessage(t, conn) // initial snapshot

	// Run subscribes asynchronously; keep dispatching until a push arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
				st.Dispatch(store.SetConnectionInfo{LatencyMs: types.Ptr(42.0)})
			}
		}
	}()

	env := readMessage(t, conn)
	var snap types.NetworkSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if env.Event != wsHub.EventSnapshot || snap.LatencyMs != 42 {
		t.Errorf("push: got event %q latency %v", env.Event, snap.LatencyMs)
	}
}

func TestHub_PublishProgress(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	waitCount(t, hub, 3)

	hub.Publish(wsHub.EventProgress, map[string]any{"percent": 40, "label": "Testing download speed..."})

	for i, conn := range conns {
		env := readMessage(t, conn)
		if env.Event != wsHub.EventProgress {
			t.Errorf("client %d: event: got %q, want progress", i, env.Event)
			continue
		}
		var p struct {
			Percent int    `json:"percent"`
			Label   string `json:"label"`
		}
		json.Unmarshal(env.Data, &p) //nolint:errcheck
		if p.Percent != 40 {
			t.Errorf("client %d: percent: got %d, want 40", i, p.Percent)
		}
	}
}

func TestHub_CountClients_DecreasesOnDisconnect(t *testing.T) {
	wsURL, hub, _ := startHub(t, store.New())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	conn.Close()
	waitCount(t, hub, 0)
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, store.New())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitCount(t, hub, 1)

	cancel()
	waitCount(t, hub, 0)
}

func TestHub_RejectsUnknownOrigin(t *testing.T) {
	wsURL, _, _ := startHub(t, store.New(), "https://dash.example.com")

	header := http.Header{"Origin": {"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for a disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %v, want 403", resp)
	}

	header.Set("Origin", "https://dash.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(store.New(), nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer srv.Close()

	// Plain HTTP GET without WebSocket upgrade headers -> 400
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
