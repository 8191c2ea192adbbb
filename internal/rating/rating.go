// Package rating implements the Rating Engine: an Elo-family rating
// update generalized from two-player pairwise comparison to the
// N-player win/loss/draw outcome vectors the Turn Engine produces.
package rating

import (
	"math"
	"sort"

	"github.com/aiwarssoc/submission-runner/internal/model"
)

// Entry is one player's rating input to a delta computation.
type Entry struct {
	Rating  float64
	Outcome model.Outcome
}

// pairDelta is the pairwise Elo update: the points a side with score a
// gains when the match result (from a's perspective) is w, where w is
// 1 for a win, 0.5 for a draw, 0 for a loss.
func pairDelta(k, a, b, w float64) float64 {
	qa := math.Pow(10, a/400)
	qb := math.Pow(10, b/400)
	expected := qa / (qa + qb)
	return k * (w - expected)
}

type groupLineup struct {
	indices []int
	sum     float64
}

func buildGroup(entries []Entry, outcome model.Outcome) groupLineup {
	var g groupLineup
	for i, e := range entries {
		if e.Outcome == outcome {
			g.indices = append(g.indices, i)
			g.sum += e.Rating
		}
	}
	return g
}

func (g groupLineup) n() int { return len(g.indices) }

// ComputeDeltas returns the per-entry rating delta for one match, at
// the given K-factor (the configured score_turbulence). The deltas
// always sum to zero within floating-point tolerance.
//
// Players are partitioned into Win/Loss/Draw groups. Inter-group
// swings xWL, xWD, xLD are computed from the groups' summed ratings
// and spread evenly across each group (zeroed when either side of the
// pair is empty). When every entry shares one outcome, the swings
// vanish and a single-group rule instead sorts by rating and pairs the
// lowest with the highest, next-lowest with next-highest, and so on,
// applying a draw-expectation (w=0.5) adjustment to each pair so a
// ratings mismatch still produces a small, zero-sum correction.
func ComputeDeltas(k float64, entries []Entry) []float64 {
	deltas := make([]float64, len(entries))
	if len(entries) == 0 {
		return deltas
	}

	win := buildGroup(entries, model.Win)
	loss := buildGroup(entries, model.Loss)
	draw := buildGroup(entries, model.Draw)

	xWL := 0.0
	if win.n() > 0 && loss.n() > 0 {
		xWL = pairDelta(k, win.sum, loss.sum, 1)
	}
	xWD := 0.0
	if win.n() > 0 && draw.n() > 0 {
		xWD = pairDelta(k, win.sum, draw.sum, 1)
	}
	xLD := 0.0
	if loss.n() > 0 && draw.n() > 0 {
		xLD = pairDelta(k, draw.sum, loss.sum, 1)
	}

	for _, i := range win.indices {
		deltas[i] += (xWL + xWD) / float64(win.n())
	}
	for _, i := range loss.indices {
		deltas[i] += (-xWL - xLD) / float64(loss.n())
	}
	for _, i := range draw.indices {
		deltas[i] += (xLD - xWD) / float64(draw.n())
	}

	if singleGroupOnly(win, loss, draw) {
		applySortedPairing(deltas, entries, k)
	}

	return deltas
}

func singleGroupOnly(groups ...groupLineup) bool {
	nonEmpty := 0
	for _, g := range groups {
		if g.n() > 0 {
			nonEmpty++
		}
	}
	return nonEmpty == 1
}

// applySortedPairing handles the case where every player shares one
// outcome: sort by rating ascending, pair index i with n-1-i, and add
// delta(rating_i, rating_pair, 0.5) to player i's delta. The pairwise
// formula is antisymmetric under swapping its two arguments at w=0.5,
// so summing this over every i (each pair visited from both ends)
// nets to zero. The midpoint of an odd-sized group pairs with itself
// and gets no adjustment.
func applySortedPairing(deltas []float64, entries []Entry, k float64) {
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return entries[order[i]].Rating < entries[order[j]].Rating
	})

	n := len(order)
	for i := 0; i < n; i++ {
		j := n - 1 - i
		if i == j {
			continue
		}
		deltas[order[i]] += pairDelta(k, entries[order[i]].Rating, entries[order[j]].Rating, 0.5)
	}
}
