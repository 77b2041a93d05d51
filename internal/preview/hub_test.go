package preview

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kristol07/ququ/internal/shortcut"
)

// testListenAddr lets the OS assign an ephemeral port, avoiding cross-test
// port conflicts.
const testListenAddr = "127.0.0.1:0"

// waitForCondition polls fn every 10ms until it returns true or the timeout
// expires. Returns true if the condition was met, false on timeout.
func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func waitForConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		return hub.HasActiveConnection()
	}) {
		t.Fatal("timed out waiting for hub to register connection")
	}
}

func waitForNoConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		return !hub.HasActiveConnection()
	}) {
		t.Fatal("timed out waiting for hub to clear connection")
	}
}

// dialHub is a test helper that dials the Hub's WebSocket endpoint.
func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(hub.URL())
	if err != nil {
		t.Fatalf("failed to parse hub URL %q: %v", hub.URL(), err)
	}

	conn, _, dialErr := websocket.DefaultDialer.Dial(u.String(), nil)
	if dialErr != nil {
		t.Fatalf("failed to dial hub: %v", dialErr)
	}
	return conn
}

// readFrame reads one preview frame from the connection.
func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected TextMessage (%d), got %d", websocket.TextMessage, msgType)
	}
	var frame Frame
	if jsonErr := json.Unmarshal(msg, &frame); jsonErr != nil {
		t.Fatalf("failed to unmarshal frame %q: %v", msg, jsonErr)
	}
	return frame
}

// startHub creates and starts a Hub for testing, registering cleanup.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(HubOptions{Addr: testListenAddr})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("hub.Stop() returned error: %v", err)
		}
		cancel()
	})
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub.Start() returned error: %v", err)
	}
	return hub
}

func TestStartAndStop(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})

	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if hub.URL() == "" {
		t.Fatal("URL() returned empty string after Start()")
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop() returned error: %v", err)
	}
}

func TestStartDoubleCallReturnsError(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})

	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("first Start() returned error: %v", err)
	}
	defer func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("Stop() returned error: %v", err)
		}
	}()

	if err := hub.Start(t.Context()); err == nil {
		t.Fatal("second Start() should return an error, got nil")
	}
}

func TestStopIdempotent(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})

	if err := hub.Start(t.Context()); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("first Stop() returned error: %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Fatalf("second Stop() returned error: %v", err)
	}
}

func TestBroadcastDeliversFrame(t *testing.T) {
	hub := startHub(t)

	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sent := Frame{
		Recording: true,
		Modifiers: shortcut.Modifiers{Ctrl: true, Shift: true},
		Display:   "Press shortcut",
	}
	hub.Broadcast(sent)

	got := readFrame(t, conn)
	if got != sent {
		t.Fatalf("frame = %+v, want %+v", got, sent)
	}
}

func TestBroadcastWithoutConnectionIsNoOp(t *testing.T) {
	hub := startHub(t)

	// Must not panic or block.
	hub.Broadcast(Frame{Display: "nobody listening"})
}

func TestNewConnectionReceivesLatestFrame(t *testing.T) {
	hub := startHub(t)

	sent := Frame{Accelerator: "CommandOrControl+Shift+k", Display: "Ctrl + ⇧ + k"}
	hub.Broadcast(sent)

	conn := dialHub(t, hub)
	defer conn.Close()

	got := readFrame(t, conn)
	if got != sent {
		t.Fatalf("replayed frame = %+v, want %+v", got, sent)
	}
}

func TestReplayAction(t *testing.T) {
	hub := startHub(t)

	sent := Frame{Accelerator: "Alt+F5", Display: "⌥ + F5"}
	hub.Broadcast(sent)

	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	// Connection replay first.
	if got := readFrame(t, conn); got != sent {
		t.Fatalf("initial frame = %+v, want %+v", got, sent)
	}

	payload, err := json.Marshal(clientMsg{Action: "replay"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := readFrame(t, conn); got != sent {
		t.Fatalf("replayed frame = %+v, want %+v", got, sent)
	}
}

func TestConnectionReplacement(t *testing.T) {
	hub := startHub(t)

	first := dialHub(t, hub)
	defer first.Close()
	waitForConnection(t, hub)

	second := dialHub(t, hub)
	defer second.Close()

	// The first connection is closed by the hub when replaced.
	if !waitForCondition(t, 2*time.Second, func() bool {
		_ = first.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, _, err := first.ReadMessage()
		return err != nil
	}) {
		t.Fatal("first connection was not closed after replacement")
	}

	sent := Frame{Display: "after replacement"}
	hub.Broadcast(sent)

	if got := readFrame(t, second); got != sent {
		t.Fatalf("frame on second connection = %+v, want %+v", got, sent)
	}
}

func TestInvalidJSONGetsErrorResponse(t *testing.T) {
	hub := startHub(t)

	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	var errResp errorMsg
	if jsonErr := json.Unmarshal(msg, &errResp); jsonErr != nil {
		t.Fatalf("failed to unmarshal error response %q: %v", msg, jsonErr)
	}
	if errResp.Type != "error" {
		t.Fatalf("error response type = %q, want %q", errResp.Type, "error")
	}
}

func TestAbruptDisconnectionClearsConnection(t *testing.T) {
	hub := startHub(t)

	conn := dialHub(t, hub)
	waitForConnection(t, hub)

	// Close the underlying connection without a WebSocket close handshake.
	if err := conn.NetConn().Close(); err != nil {
		t.Fatalf("abrupt close failed: %v", err)
	}

	waitForNoConnection(t, hub)
}

func TestNewHubDefaultAddr(t *testing.T) {
	hub := NewHub(HubOptions{})
	if hub.opts.Addr != "127.0.0.1:0" {
		t.Fatalf("default Addr = %q, want %q", hub.opts.Addr, "127.0.0.1:0")
	}
}
