// Package matchmaker implements the long-lived worker described in
// §4.6: it periodically selects submissions, runs a match through the
// Turn Engine, and persists the outcome and rating deltas. It
// generalises the teacher's room-registry Matchmaker — which picked a
// room for an incoming player — to a worker that picks the players
// itself and drives the whole match end to end.
package matchmaker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aiwarssoc/submission-runner/internal/conn"
	"github.com/aiwarssoc/submission-runner/internal/engine"
	"github.com/aiwarssoc/submission-runner/internal/gamemode"
	"github.com/aiwarssoc/submission-runner/internal/middleware"
	"github.com/aiwarssoc/submission-runner/internal/model"
	"github.com/aiwarssoc/submission-runner/internal/provision"
	"github.com/aiwarssoc/submission-runner/internal/rating"
	"github.com/aiwarssoc/submission-runner/internal/store"
)

// Config is everything a Matchmaker needs to run one gamemode's
// matches against one sandbox/store backend.
type Config struct {
	Gamemode            gamemode.Gamemode
	Options             map[string]any
	MaxTurns            int
	Store               store.Store
	Provisioner         *provision.Provisioner
	InitialScore        float64
	ScoreTurbulence     float64
	TargetSecondsPerRun float64
	Untested            bool
	Logger              zerolog.Logger
}

// Matchmaker is one periodic worker. Multiple Matchmakers run
// concurrently as independent goroutines; nothing here coordinates
// between them beyond the shared Store.
type Matchmaker struct {
	cfg Config
	rng *rand.Rand
}

// New builds a Matchmaker from cfg. Each Matchmaker gets its own
// math/rand source so concurrent workers don't contend on one.
func New(cfg Config) *Matchmaker {
	return &Matchmaker{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run loops Tick until ctx is cancelled, sleeping for the configured
// cadence (plus jitter) between ticks, and backing off further on
// failure, per §4.6.
func (m *Matchmaker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		ran, err := m.Tick(ctx)
		elapsed := time.Since(start).Seconds()

		sleep := m.cadenceSleep(elapsed)
		if err != nil {
			m.cfg.Logger.Error().Err(err).Msg("matchmaker tick failed")
			sleep += m.failureBackoff()
		} else if !ran {
			m.cfg.Logger.Debug().Msg("matchmaker tick was a no-op")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (m *Matchmaker) cadenceSleep(elapsed float64) time.Duration {
	target := m.cfg.TargetSecondsPerRun
	jitter := (m.rng.Float64()*2 - 1) * 0.05 * target
	remaining := target - elapsed + jitter
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining * float64(time.Second))
}

func (m *Matchmaker) failureBackoff() time.Duration {
	upper := 2 * maxInt(1, int(m.cfg.TargetSecondsPerRun))
	return time.Duration(1+m.rng.Intn(upper)) * time.Second
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Tick runs at most one match. It returns (false, nil) when selection
// finds nothing to run — a no-op tick, not a failure.
func (m *Matchmaker) Tick(ctx context.Context) (bool, error) {
	players, suppressRating, err := m.selectPlayers(ctx)
	if err != nil {
		return false, err
	}
	if players == nil {
		return false, nil
	}

	result, err := m.playMatch(ctx, players)
	if err != nil {
		return false, err
	}

	if err := m.persist(ctx, players, result, suppressRating); err != nil {
		return false, err
	}
	return true, nil
}

type selectedPlayer struct {
	SubmissionID string
	Hash         string
	UserID       string
}

// selectPlayers implements §4.6's two selection modes. The bool return
// signals whether the resulting match's rating update must be
// suppressed (always true for the untested/self-play path).
func (m *Matchmaker) selectPlayers(ctx context.Context) ([]selectedPlayer, bool, error) {
	n := m.cfg.Gamemode.PlayerCount()

	if m.cfg.Untested {
		untested, err := m.cfg.Store.UntestedSubmissions(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("querying untested submissions: %w", err)
		}
		if len(untested) == 0 {
			return nil, false, nil
		}
		chosen := untested[m.rng.Intn(len(untested))]
		players := make([]selectedPlayer, n)
		for i := range players {
			players[i] = selectedPlayer{SubmissionID: chosen.SubmissionID, Hash: chosen.Hash, UserID: chosen.UserID}
		}
		return players, true, nil
	}

	candidates, err := m.cfg.Store.ActiveHealthySubmissions(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("querying active healthy submissions: %w", err)
	}
	if len(candidates) < n {
		return nil, false, nil
	}

	chosen := weightedSampleWithoutReplacement(m.rng, candidates, n)
	if chosen == nil {
		return nil, false, nil
	}

	players := make([]selectedPlayer, n)
	for i, c := range chosen {
		players[i] = selectedPlayer{SubmissionID: c.SubmissionID, Hash: c.Hash, UserID: c.UserID}
	}
	return players, false, nil
}

// weightedSampleWithoutReplacement draws n distinct candidates weighted
// by Health / sum(Health). Returns nil if the weights are degenerate
// (every remaining candidate has zero health).
func weightedSampleWithoutReplacement(rng *rand.Rand, candidates []store.Candidate, n int) []store.Candidate {
	pool := append([]store.Candidate(nil), candidates...)
	chosen := make([]store.Candidate, 0, n)

	for i := 0; i < n; i++ {
		total := 0.0
		for _, c := range pool {
			total += c.Health
		}
		if total <= 0 {
			return nil
		}

		target := rng.Float64() * total
		acc := 0.0
		idx := len(pool) - 1
		for j, c := range pool {
			acc += c.Health
			if target <= acc {
				idx = j
				break
			}
		}

		chosen = append(chosen, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return chosen
}

// playMatch provisions one sandbox per player in parallel (§5's
// "concurrent provisioning, then strict sequencing" model, expressed
// with golang.org/x/sync/errgroup), then hands the assembled Middleware
// to the Turn Engine for the strictly sequential turn loop.
func (m *Matchmaker) playMatch(ctx context.Context, players []selectedPlayer) (*model.ParsedResult, error) {
	turnTime := provision.TurnTimeSeconds(m.cfg.Gamemode, m.cfg.Options)

	provisioned := make([]provision.Player, len(players))
	group, gctx := errgroup.WithContext(ctx)
	for i, p := range players {
		i, p := i, p
		group.Go(func() error {
			pp, err := m.cfg.Provisioner.Bot(gctx, p.Hash, turnTime)
			provisioned[i] = pp
			if err != nil {
				return fmt.Errorf("provisioning player %d (%s): %w", i, p.Hash, err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		provision.Teardown(ctx, provisioned)
		return nil, err
	}
	defer provision.Teardown(ctx, provisioned)

	callers := make([]conn.Caller, len(provisioned))
	for i, pp := range provisioned {
		callers[i] = pp.Caller
	}
	mw := middleware.New(callers)

	return engine.Run(m.cfg.Gamemode, mw, m.cfg.Options, m.cfg.MaxTurns)
}

// persist writes the match + per-player results and, unless this match
// is a suppressed (untested/self-play or all-unhealthy) rating run,
// computes and persists the rating deltas.
func (m *Matchmaker) persist(ctx context.Context, players []selectedPlayer, result *model.ParsedResult, suppressRating bool) error {
	matchID := uuid.NewString()

	updateRating := !suppressRating && result.AnyHealthy()

	deltas := make([]float64, len(players))
	if updateRating {
		ratings, err := m.fetchRatings(ctx, players)
		if err != nil {
			return err
		}
		entries := make([]rating.Entry, len(players))
		for i, r := range result.SubmissionResults {
			entries[i] = rating.Entry{Rating: ratings[i], Outcome: r.Outcome}
		}
		deltas = rating.ComputeDeltas(m.cfg.ScoreTurbulence, entries)

		// A non-zero-sum result is a rating-engine bug, not data: drop the
		// update and persist the match with zero deltas.
		total := 0.0
		for _, d := range deltas {
			total += d
		}
		if math.Abs(total) >= 1e-6 {
			m.cfg.Logger.Error().Float64("delta_sum", total).Msg("rating deltas are not zero-sum; persisting zero deltas")
			deltas = make([]float64, len(players))
		}
	}

	resultRows := make([]store.ResultRecord, len(players))
	for i, p := range players {
		resultRows[i] = store.ResultRecord{
			MatchID:      matchID,
			SubmissionID: p.SubmissionID,
			Outcome:      result.SubmissionResults[i].Outcome,
			Healthy:      result.SubmissionResults[i].Healthy,
			PointsDelta:  deltas[i],
			PlayerLabel:  result.SubmissionResults[i].PlayerName,
		}
	}

	match := store.MatchRecord{
		ID:        matchID,
		MatchDate: matchTimestamp(),
		Recording: result.InitialBoard + "\n" + result.MovesRecording(),
	}

	return m.cfg.Store.InsertMatch(ctx, match, resultRows)
}

// matchTimestamp is split out so tests can stub it if determinism ever
// becomes load-bearing; today it is simply wall-clock time.
var matchTimestamp = time.Now

func (m *Matchmaker) fetchRatings(ctx context.Context, players []selectedPlayer) ([]float64, error) {
	ratings := make([]float64, len(players))
	for i, p := range players {
		sum, err := m.cfg.Store.SumDeltasByUser(ctx, p.UserID)
		if err != nil {
			return nil, fmt.Errorf("fetching rating for user %s: %w", p.UserID, err)
		}
		ratings[i] = m.cfg.InitialScore + sum
	}
	return ratings, nil
}
