package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwarssoc/submission-runner/internal/gamemode"
)

// TestHandleWSRejectsWrongSubmissionCount drives a real websocket
// handshake against handleWS and checks the early validation path,
// without needing a live Provisioner behind it.
func TestHandleWSRejectsWrongSubmissionCount(t *testing.T) {
	registry := Registry{"fake": func() gamemode.Gamemode { return fakeGamemode{playerCount: 3} }}
	srv := NewServer(registry, nil, 10, zerolog.Nop(), true)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/run"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{"gamemode": "fake", "submissions": []string{"aa"}}))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]any
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
}

func TestHandleWSRejectsUnknownGamemode(t *testing.T) {
	registry := Registry{"fake": func() gamemode.Gamemode { return fakeGamemode{playerCount: 2} }}
	srv := NewServer(registry, nil, 10, zerolog.Nop(), true)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/run"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{"gamemode": "nonsense", "submissions": []string{}}))

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]any
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "unknown gamemode")
}

func TestWSCallerRoundTripsCallsOverJSON(t *testing.T) {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var msg struct {
			Args []json.RawMessage `json:"args"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		var first any
		if len(msg.Args) > 0 {
			_ = json.Unmarshal(msg.Args[0], &first)
		}
		_ = ws.WriteJSON(map[string]any{"value": first})
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientConn.Close()

	caller := newWSCaller(clientConn)
	reply, err := caller.Call("make_move", []any{"e2e4"}, nil)
	require.NoError(t, err)

	var value string
	require.NoError(t, json.Unmarshal(reply, &value))
	assert.Equal(t, "e2e4", value)
}
