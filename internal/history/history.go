// Package history provides SQLite-backed attempt persistence. The
// shared CSV database only records successes; the local history keeps
// every attempt, including failures, so contributors can see which
// accessions already wasted their bandwidth.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dereneaton/kmunity/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    run TEXT NOT NULL,
    category TEXT NOT NULL,
    stage TEXT NOT NULL,
    outcome TEXT,
    error TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run);
CREATE INDEX IF NOT EXISTS idx_attempts_started_at ON attempts(started_at);
`

// Attempt is one pipeline invocation's lifecycle row.
type Attempt struct {
	ID         string
	Run        string
	Category   domain.Category
	Stage      domain.Stage
	Outcome    domain.Outcome
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Store provides SQLite-backed attempt persistence
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the history database at dbPath.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart inserts a new attempt and returns its id.
func (s *Store) RecordStart(run string, category domain.Category) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO attempts (id, run, category, stage, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, run, string(category), string(domain.StageSelecting), time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordStage updates the attempt's current stage.
func (s *Store) RecordStage(id string, stage domain.Stage) error {
	_, err := s.db.Exec(`UPDATE attempts SET stage = ? WHERE id = ?`, string(stage), id)
	return err
}

// RecordFinish closes the attempt with its terminal outcome. A nil
// attemptErr leaves the error column empty.
func (s *Store) RecordFinish(id string, stage domain.Stage, outcome domain.Outcome, attemptErr error) error {
	errText := ""
	if attemptErr != nil {
		errText = attemptErr.Error()
	}
	_, err := s.db.Exec(`
		UPDATE attempts SET stage = ?, outcome = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, string(stage), string(outcome), errText, time.Now().UTC(), id)
	return err
}

// ListRecent returns the newest attempts first, at most limit rows.
func (s *Store) ListRecent(limit int) ([]*Attempt, error) {
	rows, err := s.db.Query(`
		SELECT id, run, category, stage, outcome, error, started_at, finished_at
		FROM attempts ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// FailedRuns returns accessions whose most recent attempt failed.
// The daemon uses this to skip accessions that keep breaking.
func (s *Store) FailedRuns(category domain.Category) (map[string]struct{}, error) {
	rows, err := s.db.Query(`
		SELECT run, outcome FROM attempts
		WHERE category = ? AND finished_at IS NOT NULL
		ORDER BY started_at
	`, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := map[string]string{}
	for rows.Next() {
		var run, outcome string
		if err := rows.Scan(&run, &outcome); err != nil {
			return nil, err
		}
		latest[run] = outcome
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	failed := map[string]struct{}{}
	for run, outcome := range latest {
		if outcome == string(domain.OutcomeFailed) {
			failed[run] = struct{}{}
		}
	}
	return failed, nil
}

func scanAttempt(rows *sql.Rows) (*Attempt, error) {
	var (
		a        Attempt
		category string
		stage    string
		outcome  sql.NullString
		errText  sql.NullString
		finished sql.NullTime
	)
	if err := rows.Scan(&a.ID, &a.Run, &category, &stage, &outcome, &errText, &a.StartedAt, &finished); err != nil {
		return nil, err
	}
	a.Category = domain.Category(category)
	a.Stage = domain.Stage(stage)
	a.Outcome = domain.Outcome(outcome.String)
	a.Error = errText.String
	if finished.Valid {
		a.FinishedAt = finished.Time
	}
	return &a, nil
}
