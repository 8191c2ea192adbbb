// Package sqlstore is the production store.Store backed by
// database/sql over github.com/mattn/go-sqlite3, implementing the
// three tables named in §6.3: submissions, results, matches.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aiwarssoc/submission-runner/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	hash            TEXT NOT NULL,
	submission_date DATETIME NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS matches (
	id         TEXT PRIMARY KEY,
	match_date DATETIME NOT NULL,
	recording  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id            TEXT PRIMARY KEY,
	match_id      TEXT NOT NULL REFERENCES matches(id),
	submission_id TEXT NOT NULL REFERENCES submissions(id),
	outcome       INTEGER NOT NULL,
	healthy       BOOLEAN NOT NULL,
	points_delta  REAL NOT NULL,
	player_id     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_submission ON results(submission_id);
`

// Store is the sqlite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the schema at dsn and returns a ready Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) ActiveHealthySubmissions(ctx context.Context) ([]store.Candidate, error) {
	const q = `
SELECT sub.id, sub.user_id, sub.hash,
       CAST(SUM(CASE WHEN r.healthy THEN 1 ELSE 0 END) AS REAL) / COUNT(r.id) AS health
FROM submissions sub
JOIN results r ON r.submission_id = sub.id
WHERE sub.active = 1
GROUP BY sub.id
HAVING health > 0
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying active healthy submissions: %w", err)
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var c store.Candidate
		if err := rows.Scan(&c.SubmissionID, &c.UserID, &c.Hash, &c.Health); err != nil {
			return nil, fmt.Errorf("scanning candidate row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UntestedSubmissions(ctx context.Context) ([]store.Untested, error) {
	const q = `
SELECT sub.id, sub.user_id, sub.hash
FROM submissions sub
LEFT JOIN results r ON r.submission_id = sub.id
WHERE sub.active = 1
GROUP BY sub.id
HAVING COUNT(r.id) = 0
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying untested submissions: %w", err)
	}
	defer rows.Close()

	var out []store.Untested
	for rows.Next() {
		var u store.Untested
		if err := rows.Scan(&u.SubmissionID, &u.UserID, &u.Hash); err != nil {
			return nil, fmt.Errorf("scanning untested row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SumDeltasByUser(ctx context.Context, userID string) (float64, error) {
	const q = `
SELECT COALESCE(SUM(r.points_delta), 0)
FROM results r
JOIN submissions sub ON sub.id = r.submission_id
WHERE sub.user_id = ?
`
	var sum float64
	if err := s.db.QueryRowContext(ctx, q, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing deltas for user %s: %w", userID, err)
	}
	return sum, nil
}

// Recording fetches one persisted match's recording string, for
// cmd/matchreplay. It is not part of store.Store because the core
// Turn Engine/Matchmaker path never reads a match back, only writes
// one; this is purely a debugging affordance.
func (s *Store) Recording(ctx context.Context, matchID string) (string, error) {
	const q = `SELECT recording FROM matches WHERE id = ?`
	var recording string
	if err := s.db.QueryRowContext(ctx, q, matchID).Scan(&recording); err != nil {
		return "", fmt.Errorf("fetching recording for match %s: %w", matchID, err)
	}
	return recording, nil
}

func (s *Store) InsertMatch(ctx context.Context, match store.MatchRecord, results []store.ResultRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning match insert transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO matches (id, match_date, recording) VALUES (?, ?, ?)`,
		match.ID, match.MatchDate, match.Recording,
	); err != nil {
		return fmt.Errorf("inserting match %s: %w", match.ID, err)
	}

	for i, r := range results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO results (id, match_id, submission_id, outcome, healthy, points_delta, player_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("%s-%d", match.ID, i), r.MatchID, r.SubmissionID, int(r.Outcome), r.Healthy, r.PointsDelta, r.PlayerLabel,
		); err != nil {
			return fmt.Errorf("inserting result %d for match %s: %w", i, match.ID, err)
		}
	}

	return tx.Commit()
}
