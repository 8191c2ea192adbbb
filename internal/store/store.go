// Package store defines the persistence boundary the Matchmaker and
// Rating Engine consume: exactly the queries and insertions named in
// the component design, nothing more.
package store

import (
	"context"
	"time"

	"github.com/aiwarssoc/submission-runner/internal/model"
)

// Candidate is one row of the active-submissions-with-history query,
// carrying enough to drive health-weighted sampling.
type Candidate struct {
	SubmissionID string
	UserID       string
	Hash         string
	Health       float64 // healthy_result_count / total_result_count
}

// Untested is one row of the zero-prior-results query.
type Untested struct {
	SubmissionID string
	UserID       string
	Hash         string
}

// MatchRecord is the row inserted once per completed match.
type MatchRecord struct {
	ID        string
	MatchDate time.Time
	Recording string // initial_board + moves, per §6.3's `recording` column
}

// ResultRecord is one player's row inserted per completed match.
type ResultRecord struct {
	MatchID      string
	SubmissionID string
	Outcome      model.Outcome
	Healthy      bool
	PointsDelta  float64
	PlayerLabel  string
}

// Store is the persistence boundary. Implementations must make
// InsertMatch's two writes (the match row and its result rows)
// atomic, since a match and zero result rows is not a valid state.
type Store interface {
	// ActiveHealthySubmissions returns active submissions that have at
	// least one prior result, each carrying its health fraction.
	// Zero-health candidates are not returned.
	ActiveHealthySubmissions(ctx context.Context) ([]Candidate, error)

	// UntestedSubmissions returns active submissions with zero prior
	// results, for the untested self-play path.
	UntestedSubmissions(ctx context.Context) ([]Untested, error)

	// SumDeltasByUser returns the running sum of all prior rating
	// deltas recorded for userID's submissions; callers add the
	// configured initial score. A user with no prior results gets 0.
	SumDeltasByUser(ctx context.Context, userID string) (float64, error)

	// InsertMatch persists match and its per-player results.
	InsertMatch(ctx context.Context, match MatchRecord, results []ResultRecord) error
}
