package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiwarssoc/submission-runner/internal/model"
	"github.com/aiwarssoc/submission-runner/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSubmission(t *testing.T, s *Store, id, userID, hash string) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO submissions (id, user_id, hash, submission_date, active) VALUES (?, ?, ?, ?, 1)`,
		id, userID, hash, time.Now(),
	)
	require.NoError(t, err)
}

func TestInsertMatchPersistsMatchAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSubmission(t, s, "sub-1", "user-1", "aaaa")
	seedSubmission(t, s, "sub-2", "user-2", "bbbb")

	err := s.InsertMatch(ctx, store.MatchRecord{
		ID:        "match-1",
		MatchDate: time.Now(),
		Recording: "initial\nmove1",
	}, []store.ResultRecord{
		{MatchID: "match-1", SubmissionID: "sub-1", Outcome: model.Win, Healthy: true, PointsDelta: 8, PlayerLabel: "white"},
		{MatchID: "match-1", SubmissionID: "sub-2", Outcome: model.Loss, Healthy: true, PointsDelta: -8, PlayerLabel: "black"},
	})
	require.NoError(t, err)

	sum, err := s.SumDeltasByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 8.0, sum)
}

func TestActiveHealthySubmissionsExcludesZeroHealth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSubmission(t, s, "sub-healthy", "user-1", "aaaa")
	seedSubmission(t, s, "sub-unhealthy", "user-2", "bbbb")

	require.NoError(t, s.InsertMatch(ctx, store.MatchRecord{ID: "m1", MatchDate: time.Now(), Recording: "r"},
		[]store.ResultRecord{{MatchID: "m1", SubmissionID: "sub-healthy", Outcome: model.Win, Healthy: true, PointsDelta: 1}}))
	require.NoError(t, s.InsertMatch(ctx, store.MatchRecord{ID: "m2", MatchDate: time.Now(), Recording: "r"},
		[]store.ResultRecord{{MatchID: "m2", SubmissionID: "sub-unhealthy", Outcome: model.Loss, Healthy: false, PointsDelta: 0}}))

	candidates, err := s.ActiveHealthySubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "sub-healthy", candidates[0].SubmissionID)
	assert.Equal(t, 1.0, candidates[0].Health)
}

func TestUntestedSubmissionsReturnsOnlyZeroResultSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedSubmission(t, s, "sub-fresh", "user-1", "aaaa")
	seedSubmission(t, s, "sub-played", "user-2", "bbbb")

	require.NoError(t, s.InsertMatch(ctx, store.MatchRecord{ID: "m1", MatchDate: time.Now(), Recording: "r"},
		[]store.ResultRecord{{MatchID: "m1", SubmissionID: "sub-played", Outcome: model.Win, Healthy: true, PointsDelta: 1}}))

	untested, err := s.UntestedSubmissions(ctx)
	require.NoError(t, err)
	require.Len(t, untested, 1)
	assert.Equal(t, "sub-fresh", untested[0].SubmissionID)
}
