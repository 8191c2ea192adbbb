// Package middleware indexes a vector of per-player connections and
// exposes player-addressed operations to the Turn Engine. Middleware is
// oblivious to game rules; it only knows how to route calls by index.
package middleware

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aiwarssoc/submission-runner/internal/conn"
)

// Middleware is an ordered vector of per-player Callers (Connections or
// TimedConnections), indexed 0..n-1.
type Middleware struct {
	players []conn.Caller
}

// New builds a Middleware over the given ordered player connections.
func New(players []conn.Caller) *Middleware {
	return &Middleware{players: players}
}

// PlayerCount returns the number of players in this middleware.
func (m *Middleware) PlayerCount() int {
	return len(m.players)
}

// Call routes a `call` instruction to player i and returns its response.
func (m *Middleware) Call(i int, methodName string, args []any, kwargs map[string]any) (json.RawMessage, error) {
	if err := m.checkIndex(i); err != nil {
		return nil, err
	}
	return m.players[i].Call(methodName, args, kwargs)
}

// Ping measures the round trip to player i.
func (m *Middleware) Ping(i int) (time.Duration, error) {
	if err := m.checkIndex(i); err != nil {
		return 0, err
	}
	return m.players[i].Ping()
}

// GetPlayerPrints returns the accumulated print buffer for player i.
func (m *Middleware) GetPlayerPrints(i int) string {
	if i < 0 || i >= len(m.players) {
		return ""
	}
	return m.players[i].GetPrints()
}

// CompleteAll closes every connection and collects whatever residual
// Results each player sent before closing, indexed the same way as the
// player vector.
func (m *Middleware) CompleteAll() [][]json.RawMessage {
	out := make([][]json.RawMessage, len(m.players))
	for i, p := range m.players {
		drained, _ := p.Close()
		out[i] = drained
	}
	return out
}

func (m *Middleware) checkIndex(i int) error {
	if i < 0 || i >= len(m.players) {
		return fmt.Errorf("player index %d out of range [0,%d)", i, len(m.players))
	}
	return nil
}
