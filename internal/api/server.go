// Package api implements the HTTP/WebSocket boundary of §6.1: a
// one-shot `GET /run` that plays a match entirely between provisioned
// sandboxes, and a `WS /ws/run` that substitutes a human WebSocket
// client for one of the Middleware's Callers. It generalises the
// teacher's GameServer/ClientConnection pair — the same upgrader
// construction, the same per-connection lifecycle — to carry Turn
// Engine frames instead of binary racer state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiwarssoc/submission-runner/internal/conn"
	"github.com/aiwarssoc/submission-runner/internal/engine"
	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/middleware"
	"github.com/aiwarssoc/submission-runner/internal/provision"
)

// GamemodeFactory builds a fresh Gamemode instance. Gamemodes carry no
// per-match state of their own, but a fresh instance per request keeps
// that invariant from ever becoming load-bearing.
type GamemodeFactory func() gamemode.Gamemode

// Registry maps a gamemode's Name() to its factory, the set §6.1's
// `gamemode=<name>` query parameter and WS handshake select from.
type Registry map[string]GamemodeFactory

// Server implements GET /run and WS /ws/run over one Registry and one
// Provisioner.
type Server struct {
	Registry     Registry
	Provisioner  *provision.Provisioner
	DefaultTurns int
	Logger       zerolog.Logger

	upgrader websocket.Upgrader
	router   *mux.Router
}

// NewServer wires the routes. allowCORS mirrors the teacher's
// EnableCORS switch: when false, only same-origin WebSocket upgrades
// are accepted.
func NewServer(registry Registry, provisioner *provision.Provisioner, defaultTurns int, logger zerolog.Logger, allowCORS bool) *Server {
	// A nil CheckOrigin makes gorilla/websocket apply its same-origin check.
	var checkOrigin func(r *http.Request) bool
	if allowCORS {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	s := &Server{
		Registry:     registry,
		Provisioner:  provisioner,
		DefaultTurns: defaultTurns,
		Logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/run", s.handleRun).Methods(http.MethodGet)
	r.HandleFunc("/ws/run", s.handleWS)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP lets Server plug directly into http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleRun implements `GET /run?gamemode=<name>&submissions=<h1,h2,...>&moves=<int>&...options`.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	factory, ok := s.Registry[q.Get("gamemode")]
	if !ok {
		http.Error(w, "unknown gamemode", http.StatusNotFound)
		return
	}
	gm := factory()

	hashes := splitNonEmpty(q.Get("submissions"))
	if len(hashes) != gm.PlayerCount() {
		http.Error(w, "submission count does not match gamemode.player_count", http.StatusUnprocessableEntity)
		return
	}

	maxTurns := s.DefaultTurns
	if raw := q.Get("moves"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxTurns = n
		}
	}
	options := queryOptions(q)

	ctx := r.Context()
	players, err := s.provisionAll(ctx, hashes, gm, options)
	if err != nil {
		s.Logger.Error().Err(err).Msg("run: provisioning failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer provision.Teardown(ctx, players)

	callers := make([]conn.Caller, len(players))
	for i, p := range players {
		callers[i] = p.Caller
	}
	mw := middleware.New(callers)

	result, err := engine.Run(gm, mw, options, maxTurns)
	if err != nil {
		s.Logger.Error().Err(err).Msg("run: engine failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// queryOptions folds every query parameter other than the three
// reserved ones into the gamemode options map, parsing numeric-looking
// values as float64 so things like turn_time merge correctly with a
// Gamemode's own numeric defaults.
func queryOptions(q map[string][]string) map[string]any {
	options := map[string]any{}
	for k, vs := range q {
		if k == "gamemode" || k == "submissions" || k == "moves" || len(vs) == 0 {
			continue
		}
		if f, err := strconv.ParseFloat(vs[0], 64); err == nil {
			options[k] = f
			continue
		}
		options[k] = vs[0]
	}
	return options
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// provisionAll stands up one sandbox per hash concurrently, per §5's
// provisioning model, tearing down every sandbox created if any fails.
func (s *Server) provisionAll(ctx context.Context, hashes []string, gm gamemode.Gamemode, options map[string]any) ([]provision.Player, error) {
	turnTime := provision.TurnTimeSeconds(gm, options)

	players := make([]provision.Player, len(hashes))
	group, gctx := errgroup.WithContext(ctx)
	for i, h := range hashes {
		i, h := i, h
		group.Go(func() error {
			p, err := s.Provisioner.Bot(gctx, h, turnTime)
			players[i] = p
			return err
		})
	}
	if err := group.Wait(); err != nil {
		provision.Teardown(ctx, players)
		return nil, err
	}
	return players, nil
}

// handleWS implements `WS /ws/run`: the client occupies player slot 0,
// the remaining slots are bots built from the submissions the client
// names in its handshake message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("ws/run: upgrade failed")
		return
	}
	defer ws.Close()

	var handshake struct {
		Gamemode    string   `json:"gamemode"`
		Submissions []string `json:"submissions"`
	}
	if err := ws.ReadJSON(&handshake); err != nil {
		return
	}

	factory, ok := s.Registry[handshake.Gamemode]
	if !ok {
		_ = ws.WriteJSON(map[string]any{"type": "error", "message": "unknown gamemode"})
		return
	}
	gm := factory()

	if len(handshake.Submissions) != gm.PlayerCount()-1 {
		_ = ws.WriteJSON(map[string]any{"type": "error", "message": "submission count does not match gamemode.player_count - 1"})
		return
	}

	ctx := r.Context()
	bots, err := s.provisionAll(ctx, handshake.Submissions, gm, nil)
	if err != nil {
		s.Logger.Error().Err(err).Msg("ws/run: provisioning failed")
		_ = ws.WriteJSON(map[string]any{"type": "error", "message": err.Error()})
		return
	}
	defer provision.Teardown(ctx, bots)

	callers := make([]conn.Caller, gm.PlayerCount())
	callers[0] = newWSCaller(ws)
	for i, p := range bots {
		callers[i+1] = p.Caller
	}
	mw := middleware.New(callers)

	result, err := engine.Run(gm, mw, nil, s.DefaultTurns)
	if err != nil {
		s.Logger.Error().Err(err).Msg("ws/run: engine failed")
		_ = ws.WriteJSON(map[string]any{"type": "error", "message": err.Error()})
		return
	}

	_ = ws.WriteJSON(map[string]any{"type": "result", "result": result})
}
