package chess

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMove(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestChessLegalOpeningMove(t *testing.T) {
	g := New()
	b, err := g.Setup(g.Options())
	require.NoError(t, err)

	move, err := g.ParseMove(mustMove("e2e4"))
	require.NoError(t, err)

	assert.True(t, g.IsMoveLegal(b, move))

	next, err := g.ApplyMove(b, move)
	require.NoError(t, err)
	assert.Contains(t, g.EncodeBoard(next), "rnbqkbnr/pppppppp")
}

func TestChessIllegalMoveRejected(t *testing.T) {
	g := New()
	b, err := g.Setup(g.Options())
	require.NoError(t, err)

	move, err := g.ParseMove(mustMove("e2e5"))
	require.NoError(t, err)

	assert.False(t, g.IsMoveLegal(b, move))
}

func TestChessFoolsMateEndsInWinLoss(t *testing.T) {
	g := New()
	b, err := g.Setup(g.Options())
	require.NoError(t, err)

	moves := []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	for i, s := range moves {
		mv, err := g.ParseMove(mustMove(s))
		require.NoError(t, err)
		require.True(t, g.IsMoveLegal(b, mv), "move %d (%s) should be legal", i, s)
		b, err = g.ApplyMove(b, mv)
		require.NoError(t, err)
	}

	assert.True(t, g.IsWin(b, 1))
	assert.False(t, g.IsWin(b, 0))
}
