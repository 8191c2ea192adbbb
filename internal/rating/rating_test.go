package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiwarssoc/submission-runner/internal/model"
)

func sum(ds []float64) float64 {
	total := 0.0
	for _, d := range ds {
		total += d
	}
	return total
}

func TestComputeDeltasTwoPlayerWinLossIsZeroSum(t *testing.T) {
	entries := []Entry{
		{Rating: 1200, Outcome: model.Win},
		{Rating: 1200, Outcome: model.Loss},
	}
	deltas := ComputeDeltas(32, entries)
	assert.InDelta(t, 0, sum(deltas), 1e-6)
	assert.Greater(t, deltas[0], 0.0)
	assert.Less(t, deltas[1], 0.0)
}

func TestComputeDeltasEqualRatingDrawIsNearZero(t *testing.T) {
	entries := []Entry{
		{Rating: 1500, Outcome: model.Draw},
		{Rating: 1500, Outcome: model.Draw},
	}
	deltas := ComputeDeltas(32, entries)
	assert.InDelta(t, 0, sum(deltas), 1e-6)
	assert.InDelta(t, 0, deltas[0], 1e-6)
	assert.InDelta(t, 0, deltas[1], 1e-6)
}

func TestComputeDeltasDrawBetweenMismatchedRatingsFavoursUnderdog(t *testing.T) {
	entries := []Entry{
		{Rating: 2000, Outcome: model.Draw},
		{Rating: 1000, Outcome: model.Draw},
	}
	deltas := ComputeDeltas(32, entries)
	assert.InDelta(t, 0, sum(deltas), 1e-6)
	assert.Less(t, deltas[0], 0.0, "higher-rated player should lose a little for only drawing")
	assert.Greater(t, deltas[1], 0.0)
}

func TestComputeDeltasThreeWayWinLossDrawIsZeroSum(t *testing.T) {
	entries := []Entry{
		{Rating: 1400, Outcome: model.Win},
		{Rating: 1300, Outcome: model.Draw},
		{Rating: 1200, Outcome: model.Loss},
	}
	deltas := ComputeDeltas(16, entries)
	assert.InDelta(t, 0, sum(deltas), 1e-6)
	assert.Greater(t, deltas[0], deltas[1])
	assert.Greater(t, deltas[1], deltas[2])
}

func TestComputeDeltasUnevenGroupSizesStillZeroSum(t *testing.T) {
	entries := []Entry{
		{Rating: 1500, Outcome: model.Win},
		{Rating: 1500, Outcome: model.Win},
		{Rating: 1500, Outcome: model.Win},
		{Rating: 1500, Outcome: model.Loss},
	}
	deltas := ComputeDeltas(20, entries)
	assert.InDelta(t, 0, sum(deltas), 1e-6)
	assert.InDelta(t, deltas[0], deltas[1], 1e-9)
	assert.InDelta(t, deltas[1], deltas[2], 1e-9)
}

func TestComputeDeltasEmptyInput(t *testing.T) {
	assert.Empty(t, ComputeDeltas(32, nil))
}
