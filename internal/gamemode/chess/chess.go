// Package chess implements the chess Gamemode on top of
// github.com/notnil/chess — the Go analogue of the reference
// implementation's python-chess-backed gamemode.
package chess

import (
	"encoding/json"
	"fmt"
	"strings"

	libchess "github.com/notnil/chess"

	"github.com/aiwarssoc/submission-runner/internal/gamemode"
)

const defaultTurnTime = 10.0

var uci = libchess.UCINotation{}

// Gamemode is the two-player chess rule set: white moves first and is
// player index 0, black is player index 1.
type Gamemode struct{}

// New constructs the chess Gamemode.
func New() *Gamemode {
	return &Gamemode{}
}

func (g *Gamemode) Name() string           { return "chess" }
func (g *Gamemode) Players() []string      { return []string{"white", "black"} }
func (g *Gamemode) PlayerCount() int       { return 2 }
func (g *Gamemode) Options() map[string]any {
	return map[string]any{"turn_time": defaultTurnTime}
}

type board struct {
	game *libchess.Game
}

// Setup starts a standard game from the initial position. turn_time is
// consumed by the Turn Engine, not the board itself.
func (g *Gamemode) Setup(options map[string]any) (gamemode.Board, error) {
	return &board{game: libchess.NewGame()}, nil
}

// FilterBoard hides nothing — chess has no hidden information — and
// returns the FEN string a submission's make_move call receives.
func (g *Gamemode) FilterBoard(b gamemode.Board, playerIdx int) any {
	bs := b.(*board)
	return bs.game.FEN()
}

// ParseMove decodes a UCI move string (e.g. "e2e4", "e7e8q") relative
// to the board's current position.
func (g *Gamemode) ParseMove(raw json.RawMessage) (gamemode.Move, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, gamemode.ErrInvalidMove
	}
	return uciMoveString(normalizeUCI(s)), nil
}

type uciMoveString string

func (g *Gamemode) IsMoveLegal(b gamemode.Board, move gamemode.Move) bool {
	bs := b.(*board)
	s, ok := move.(uciMoveString)
	if !ok {
		return false
	}
	m, err := uci.Decode(bs.game.Position(), string(s))
	if err != nil {
		return false
	}
	for _, valid := range bs.game.ValidMoves() {
		if sameMove(valid, m) {
			return true
		}
	}
	return false
}

func (g *Gamemode) ApplyMove(b gamemode.Board, move gamemode.Move) (gamemode.Board, error) {
	bs := b.(*board)
	s, ok := move.(uciMoveString)
	if !ok {
		return nil, gamemode.ErrInvalidMove
	}

	m, err := uci.Decode(bs.game.Position(), string(s))
	if err != nil {
		return nil, fmt.Errorf("decoding move %q: %w", s, err)
	}

	clone := bs.game.Clone()
	if err := clone.Move(m); err != nil {
		return nil, fmt.Errorf("applying move %q: %w", s, err)
	}
	return &board{game: clone}, nil
}

func (g *Gamemode) IsWin(b gamemode.Board, playerIdx int) bool {
	outcome := b.(*board).game.Outcome()
	if playerIdx == 0 {
		return outcome == libchess.WhiteWon
	}
	return outcome == libchess.BlackWon
}

// IsLoss is never true in chess: a player's loss is always reported as
// the opponent's win (see IsWin), matching the symmetric outcome model
// a two-player checkmate naturally has.
func (g *Gamemode) IsLoss(b gamemode.Board, playerIdx int) bool {
	return false
}

func (g *Gamemode) IsDraw(b gamemode.Board, playerIdx int) bool {
	return b.(*board).game.Outcome() == libchess.Draw
}

func (g *Gamemode) EncodeBoard(b gamemode.Board) string {
	return b.(*board).game.FEN()
}

func (g *Gamemode) EncodeMove(move gamemode.Move, playerIdx int) string {
	s, ok := move.(uciMoveString)
	if !ok {
		return ""
	}
	return string(s)
}

func sameMove(a, b *libchess.Move) bool {
	return a.S1() == b.S1() && a.S2() == b.S2() && a.Promo() == b.Promo()
}

// normalizeUCI lower-cases a promotion suffix, tolerating submissions
// that send "e7e8Q" instead of the canonical "e7e8q".
func normalizeUCI(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
