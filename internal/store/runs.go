// Package store keeps the history of scenario runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vrpilot/internal/logging"
	"vrpilot/internal/summary"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// ErrAmbiguous is returned by Find when a prefix matches several runs.
var ErrAmbiguous = errors.New("run id prefix is ambiguous")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Run is one execution of a scenario.
type Run struct {
	ID           string
	Scenario     string
	Email        string
	BaseURL      string
	Status       Status
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Error        string
	VRID         string
	Summary      *summary.Summary
	ArtifactsDir string
}

// Duration returns how long the run took, or has taken so far at now.
func (r *Run) Duration(now time.Time) time.Duration {
	if r.FinishedAt.IsZero() {
		return now.Sub(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunStore persists runs.
type RunStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at path.
func Open(path string) (*RunStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database is per connection.
	db.SetMaxOpenConns(1)

	s := &RunStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		email TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		error TEXT DEFAULT '',
		vr_id TEXT DEFAULT '',
		summary_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
	`
	if _, err := s.db.Exec(runsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return RunMigrations(s.db)
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *RunStore) Path() string {
	return s.dbPath
}

// Begin records a new run in the running state.
func (s *RunStore) Begin(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, email, base_url, status, started_at, artifacts_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Scenario, r.Email, r.BaseURL, string(r.Status), r.StartedAt.UTC(), r.ArtifactsDir)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	logging.Store("run %s started (%s)", r.ID, r.Scenario)
	return nil
}

// Finish stores the outcome of r.
func (s *RunStore) Finish(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaryJSON sql.NullString
	if r.Summary != nil {
		b, err := json.Marshal(r.Summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, error = ?, vr_id = ?, summary_json = ?
		WHERE id = ?`,
		string(r.Status), r.FinishedAt.UTC(), r.Error, r.VRID, summaryJSON, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish %s: %w", r.ID, ErrNotFound)
	}
	logging.Store("run %s finished: %s", r.ID, r.Status)
	return nil
}

const selectRun = `
	SELECT id, scenario, email, base_url, status, started_at, finished_at, error, vr_id, summary_json, artifacts_dir
	FROM runs`

// Get returns the run with id.
func (s *RunStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, err
}

// Find returns the run whose id starts with prefix.
func (s *RunStore) Find(ctx context.Context, prefix string) (*Run, error) {
	if r, err := s.Get(ctx, prefix); err == nil || !errors.Is(err, ErrNotFound) {
		return r, err
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx, selectRun+` WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escaped+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", prefix, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", prefix, ErrAmbiguous)
	}
}

// List returns the most recent runs first. limit <= 0 returns all.
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	query := selectRun + ` ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r           Run
		status      string
		finishedAt  sql.NullTime
		errText     sql.NullString
		vrID        sql.NullString
		summaryJSON sql.NullString
		baseURL     sql.NullString
		artifacts   sql.NullString
	)
	err := sc.Scan(&r.ID, &r.Scenario, &r.Email, &baseURL, &status, &r.StartedAt,
		&finishedAt, &errText, &vrID, &summaryJSON, &artifacts)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Status = Status(status)
	r.FinishedAt = finishedAt.Time
	r.Error = errText.String
	r.VRID = vrID.String
	r.BaseURL = baseURL.String
	r.ArtifactsDir = artifacts.String
	if summaryJSON.Valid && summaryJSON.String != "" {
		var sum summary.Summary
		if err := json.Unmarshal([]byte(summaryJSON.String), &sum); err != nil {
			logging.Get(logging.CategoryStore).Warn("run %s: unreadable summary: %v", r.ID, err)
		} else {
			r.Summary = &sum
		}
	}
	return &r, nil
}
