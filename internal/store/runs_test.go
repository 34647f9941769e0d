package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"vrpilot/internal/summary"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to open run store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	if !tableExists(s.db, "runs") {
		t.Fatal("runs table missing")
	}
	for _, col := range []string{"summary_json", "base_url", "artifacts_dir"} {
		if !columnExists(s.db, "runs", col) {
			t.Errorf("column %s missing", col)
		}
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	defer s.Close()

	runs, err := s.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestBeginFinishGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	r := &Run{
		ID:           "run-1",
		Scenario:     "individual",
		Email:        "ops@example.com",
		BaseURL:      "https://portal.example.com",
		StartedAt:    started,
		ArtifactsDir: ".vrpilot/artifacts/run-1",
	}
	if err := s.Begin(ctx, r); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if r.Status != StatusRunning {
		t.Errorf("Begin should default status to running, got %q", r.Status)
	}

	got, err := s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusRunning || !got.FinishedAt.IsZero() || got.Summary != nil {
		t.Errorf("unexpected running row: %+v", got)
	}

	r.Status = StatusSucceeded
	r.FinishedAt = started.Add(90 * time.Second)
	r.VRID = "VR-1"
	r.Summary = &summary.Summary{
		VRID:   "VR-1",
		Status: "Submitted",
		Fields: []summary.Field{{Key: "Reference", Value: "VR-1"}},
	}
	if err := s.Finish(ctx, r); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err = s.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusSucceeded {
		t.Errorf("status = %q, want succeeded", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	if d := got.Duration(time.Now()); d != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d)
	}
	if got.VRID != "VR-1" || got.BaseURL != "https://portal.example.com" || got.ArtifactsDir != ".vrpilot/artifacts/run-1" {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.Summary == nil || got.Summary.Status != "Submitted" || len(got.Summary.Fields) != 1 {
		t.Errorf("summary not round-tripped: %+v", got.Summary)
	}
}

func TestFinish_RecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &Run{ID: "run-2", Scenario: "individual", Email: "ops@example.com", StartedAt: time.Now()}
	if err := s.Begin(ctx, r); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	r.Status = StatusAborted
	r.FinishedAt = time.Now()
	r.Error = "aborted by operator: form:applicant"
	if err := s.Finish(ctx, r); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := s.Get(ctx, "run-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusAborted || got.Error != r.Error {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestFinish_UnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.Finish(context.Background(), &Run{ID: "ghost", Status: StatusFailed, FinishedAt: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBegin_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := &Run{ID: "dup", Scenario: "a", Email: "x", StartedAt: time.Now()}
	if err := s.Begin(ctx, r); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := s.Begin(ctx, r); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestList_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		r := &Run{ID: id, Scenario: "individual", Email: "ops@example.com", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Begin(ctx, r); err != nil {
			t.Fatalf("Begin %s failed: %v", id, err)
		}
	}

	runs, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("unexpected order: %v", ids(runs))
	}

	all, err := s.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 runs, got %d", len(all))
	}
}

func TestRunMigrations_UpgradesOldSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE runs (
		id TEXT PRIMARY KEY, scenario TEXT NOT NULL, email TEXT NOT NULL, status TEXT NOT NULL,
		started_at DATETIME NOT NULL, finished_at DATETIME, error TEXT DEFAULT '', vr_id TEXT DEFAULT '', summary_json TEXT)`)
	if err != nil {
		t.Fatalf("create old schema: %v", err)
	}
	_, err = db.Exec(`INSERT INTO runs (id, scenario, email, status, started_at) VALUES ('old', 's', 'e', 'failed', ?)`, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got, err := s.Get(context.Background(), "old")
	if err != nil {
		t.Fatalf("Get after migration failed: %v", err)
	}
	if got.ArtifactsDir != "" || got.Status != StatusFailed {
		t.Errorf("unexpected migrated row: %+v", got)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.ID
	}
	return out
}

func TestFind_ByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"a1b2c3d4-0001", "a1b2c3d4-0002", "ffee0011-0003"} {
		if err := s.Begin(ctx, &Run{ID: id, Scenario: "individual", Email: "jane@example.com", StartedAt: now}); err != nil {
			t.Fatalf("Begin %s failed: %v", id, err)
		}
	}

	r, err := s.Find(ctx, "ffee")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if r.ID != "ffee0011-0003" {
		t.Errorf("Find returned %s", r.ID)
	}

	if r, err := s.Find(ctx, "a1b2c3d4-0002"); err != nil || r.ID != "a1b2c3d4-0002" {
		t.Errorf("exact id: got %v, %v", r, err)
	}
	if _, err := s.Find(ctx, "a1b2"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}
	if _, err := s.Find(ctx, "zz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Find(ctx, "a1b2c3d4_"); !errors.Is(err, ErrNotFound) {
		t.Errorf("underscore must match literally, got %v", err)
	}
}
