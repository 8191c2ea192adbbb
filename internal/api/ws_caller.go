package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aiwarssoc/submission-runner/internal/conn"
)

// wsCaller adapts a human's WebSocket connection to the conn.Caller
// interface, so the Turn Engine can drive a human player through
// exactly the same Middleware path as a sandboxed submission — §2's
// "optionally substituting an in-process Connection for a human
// player." Unlike the framed wire.Connection, the boundary protocol is
// a direct JSON request/reply: the server sends `{type: "call"|"ping"}`
// and waits for `{value: ...}`.
type wsCaller struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSCaller(ws *websocket.Conn) *wsCaller {
	return &wsCaller{conn: ws}
}

type wsReply struct {
	Value json.RawMessage `json:"value"`
}

func (w *wsCaller) Call(methodName string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	msg := map[string]any{
		"type":   "call",
		"method": methodName,
		"args":   args,
		"kwargs": kwargs,
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		return nil, conn.ErrConnectionNotActive
	}

	var reply wsReply
	if err := w.conn.ReadJSON(&reply); err != nil {
		return nil, conn.ErrConnectionNotActive
	}
	return reply.Value, nil
}

func (w *wsCaller) Ping() (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	if err := w.conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		return 0, conn.ErrConnectionNotActive
	}
	var reply wsReply
	if err := w.conn.ReadJSON(&reply); err != nil {
		return 0, conn.ErrConnectionNotActive
	}
	return time.Since(start), nil
}

// Close has nothing to drain: a human player has no print buffer and
// the socket is closed by the caller of handleWS once the match ends.
func (w *wsCaller) Close() ([]json.RawMessage, error) {
	return nil, nil
}

// GetPrints always returns empty: the print buffer is a sandboxed
// submission's stdout capture, which a human player has none of.
func (w *wsCaller) GetPrints() string {
	return ""
}

var _ conn.Caller = (*wsCaller)(nil)
