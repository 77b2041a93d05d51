// Package preview runs a localhost WebSocket server that streams capture
// preview frames to auxiliary windows (the floating recording indicator and
// the settings page), which render held modifiers in real time while the main
// window owns the capture session.
package preview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline is the maximum time allowed for a single WebSocket write to
// complete. 5 seconds is generous for localhost single-client writes; if a
// WebView freezes longer than this, the connection is considered dead.
const writeDeadline = 5 * time.Second

// readDeadline is the maximum time the server waits for any read activity
// (including pong responses) before considering the connection dead.
// 90 seconds allows for ~3 missed pings (pingInterval=30s) before timeout.
const readDeadline = 90 * time.Second

// pingInterval is the interval between server-initiated WebSocket pings.
const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming WebSocket messages. Clients only send
// small JSON control payloads; anything bigger is malformed.
const maxReadMessageSize = 4 * 1024

var wsUpgrader = websocket.Upgrader{
	// CheckOrigin allows all origins because the server binds to 127.0.0.1
	// only. Localhost-only binding prevents external access; origin check
	// is redundant for desktop apps but kept permissive for WebView
	// compatibility.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the preview server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for OS-assigned port.
	// 127.0.0.1 binding restricts access to localhost only, which is safe for
	// a desktop application where frontend and backend run on the same machine.
	Addr string
}

// Hub manages a single WebSocket connection for streaming capture preview
// frames from the Go backend to an auxiliary window.
//
// Design: Single-connection model. New connections replace existing ones to
// handle window reloads gracefully; the latest frame is replayed to each new
// connection so clients never start from a blank state.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// mu protects connection state and the latest-frame cache.
// writeMu serializes gorilla/websocket WriteMessage calls (not concurrency-safe).
//
// Write failure policy: any write failure disconnects the client via
// clearIfCurrent+closeConn. The client must reconnect.
type Hub struct {
	opts HubOptions

	// mu protects conn and lastFrame. See lock ordering comment on Hub.
	mu        sync.RWMutex
	conn      *websocket.Conn
	lastFrame *Frame

	// writeMu serializes WriteMessage calls. gorilla/websocket does not support
	// concurrent writes; all callers of WriteMessage must hold this lock.
	// Independent of mu: never hold mu when acquiring writeMu (lock ordering).
	writeMu sync.Mutex

	listener net.Listener
	server   *http.Server
	url      string // "ws://127.0.0.1:<port>/preview", set after Start

	// closeOnce ensures Stop is idempotent. Once Stop has been called,
	// the Hub cannot be reused; create a new Hub instance instead.
	closeOnce sync.Once
}

// clientMsg is the JSON payload for client requests. The only supported
// action is "replay", which re-sends the latest frame.
type clientMsg struct {
	Action string `json:"action"`
}

const replayAction = "replay"

// errorMsg is the JSON payload for server error notifications sent to the client.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewHub creates a Hub with the given options.
// The hub is not started until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts}
}

// Start begins listening on the configured address and serves WebSocket
// connections. The context is used for the server's BaseContext: when ctx is
// cancelled, active request handlers receive cancellation. The server itself
// must be stopped explicitly via Stop.
//
// Returns an error if the listener cannot be created (e.g. port in use).
//
// Thread safety: Start must be called exactly once during application startup
// (before any concurrent access).
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("preview: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("preview: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/preview", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/preview", h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("[DEBUG-PREVIEW] server error", "error", serveErr)
		}
	}()

	slog.Info("[DEBUG-PREVIEW] server started", "url", h.url)
	return nil
}

// Stop gracefully shuts down the HTTP server and closes any active WebSocket
// connection. Safe to call multiple times (idempotent via sync.Once).
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.lastFrame = nil
		h.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				slog.Debug("[DEBUG-PREVIEW] connection close during stop", "error", err)
			}
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("preview: shutdown: %w", err)
			}
		}

		slog.Info("[DEBUG-PREVIEW] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL for preview clients
// (e.g. "ws://127.0.0.1:54321/preview").
// Returns empty string if the server has not started.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a preview client is currently connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Broadcast sends a preview frame to the connected client and caches it for
// replay to future connections. A no-op when no client is connected, apart
// from updating the cache.
// Thread-safe: uses writeMu to serialize writes as required by gorilla/websocket.
// Write errors close the connection and log the error (write failure policy).
func (h *Hub) Broadcast(frame Frame) {
	h.mu.Lock()
	frameCopy := frame
	h.lastFrame = &frameCopy
	conn := h.conn
	h.mu.Unlock()

	// TOCTOU window: between Unlock and writeMu.Lock the connection may be
	// replaced by a new client. Acceptable: a write on a closed conn returns
	// an error which triggers clearIfCurrent, and clearIfCurrent checks
	// pointer identity so it never clears a newer connection.

	if conn == nil {
		return
	}
	h.writeFrame(conn, frame)
}

func (h *Hub) writeFrame(conn *websocket.Conn, frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("[DEBUG-PREVIEW] failed to encode frame", "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if writeErr != nil {
		slog.Warn("[DEBUG-PREVIEW] write failed, closing connection", "error", writeErr)
		h.clearIfCurrent(conn)
		// Close outside mu to prevent deadlock.
		h.closeConn(conn, "write error in writeFrame")
	}
}

// clearIfCurrent clears the hub's connection only if the provided conn is
// still the current connection. Returns true if it was cleared.
// Caller must NOT hold h.mu (this method acquires it).
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes a WebSocket connection. The close may fail if the connection
// was already closed by another goroutine (e.g. window reload replacing the old
// connection), which is expected and logged at Debug level.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-PREVIEW] connection close", "reason", reason, "error", closeErr)
	}
}

// setWriteDeadlineOrClose sets a write deadline on the connection. If setting
// the deadline fails, the connection is in an indeterminate state and must be
// closed to prevent indefinite blocking.
// Returns false if the deadline could not be set (connection was closed).
func (h *Hub) setWriteDeadlineOrClose(conn *websocket.Conn, d time.Duration) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
		slog.Warn("[DEBUG-PREVIEW] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	return true
}

// clearWriteDeadline resets the write deadline after a successful write.
// Failure to clear is non-fatal: the next write will set a fresh deadline.
func (h *Hub) clearWriteDeadline(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("[DEBUG-PREVIEW] clearWriteDeadline failed (non-fatal)", "error", err)
	}
}

// handleWS upgrades HTTP to WebSocket and runs the read pump for the
// connection. Only one connection is active at a time; new connections
// replace old ones to handle window reloads gracefully.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[DEBUG-PREVIEW] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)

	// Read deadline plus pong handler for dead connection detection.
	// The read deadline is extended on every pong received from the client.
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[DEBUG-PREVIEW] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// Replace existing connection (window reload scenario).
	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	lastFrame := h.lastFrame
	h.mu.Unlock()

	if oldConn != nil {
		// Close old connection outside lock to prevent deadlock.
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[DEBUG-PREVIEW] client connected", "remoteAddr", conn.RemoteAddr())

	// New clients never start blank: replay the latest frame immediately.
	if lastFrame != nil {
		h.writeFrame(conn, *lastFrame)
	}

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] preview handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}

		close(pingDone)

		h.clearIfCurrent(conn)

		// conn.Close() may run multiple times here if the connection was
		// already closed by writeFrame or Stop; gorilla/websocket tolerates
		// closing an already-closed connection.
		h.closeConn(conn, "read pump exit")
		slog.Info("[DEBUG-PREVIEW] client disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[DEBUG-PREVIEW] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var req clientMsg
		if jsonErr := json.Unmarshal(msg, &req); jsonErr != nil {
			slog.Debug("[DEBUG-PREVIEW] invalid JSON from client", "error", jsonErr)
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		h.handleClientMsg(conn, req)
	}
}

// pingLoop sends periodic WebSocket pings to detect dead connections.
// Runs as a goroutine per connection; exits when done is closed or ping fails.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		// On panic, clean up the connection so it doesn't remain open without
		// pings, which would prevent dead connection detection.
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] preview pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
				h.writeMu.Unlock()
				return
			}
			pingErr := conn.WriteMessage(websocket.PingMessage, nil)
			h.clearWriteDeadline(conn)
			h.writeMu.Unlock()

			if pingErr != nil {
				slog.Debug("[DEBUG-PREVIEW] ping failed, connection likely dead", "error", pingErr)
				h.clearIfCurrent(conn)
				h.closeConn(conn, "ping failure")
				return
			}
		}
	}
}

// handleClientMsg applies a client request. Stale connections (already
// replaced by a window reload) are ignored.
func (h *Hub) handleClientMsg(conn *websocket.Conn, msg clientMsg) {
	h.mu.RLock()
	isCurrent := h.conn == conn
	lastFrame := h.lastFrame
	h.mu.RUnlock()

	if !isCurrent {
		slog.Debug("[DEBUG-PREVIEW] request from stale connection, skipping")
		return
	}

	switch msg.Action {
	case replayAction:
		if lastFrame != nil {
			h.writeFrame(conn, *lastFrame)
		}
	default:
		slog.Debug("[DEBUG-PREVIEW] unknown action", "action", msg.Action)
	}
}

// sendError sends a JSON error message to the client. On write failure,
// the connection is cleaned up per write failure policy (see Hub doc).
func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-PREVIEW] failed to marshal error message", "error", err)
		return
	}

	h.writeMu.Lock()
	if !h.setWriteDeadlineOrClose(conn, writeDeadline) {
		h.writeMu.Unlock()
		return
	}
	writeErr := conn.WriteMessage(websocket.TextMessage, payload)
	h.clearWriteDeadline(conn)
	h.writeMu.Unlock()

	if writeErr != nil {
		slog.Debug("[DEBUG-PREVIEW] failed to send error to client", "error", writeErr)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error in sendError")
	}
}
