// Package flow executes scenarios: an ordered list of steps that log in,
// fill the Verification Request pages and collect the final summary.
package flow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"vrpilot/internal/browser"
	"vrpilot/internal/config"
	"vrpilot/internal/dom"
	"vrpilot/internal/logging"
	"vrpilot/internal/operator"
	"vrpilot/internal/otp"
	"vrpilot/internal/sessioncache"
	"vrpilot/internal/store"
	"vrpilot/internal/summary"

	"github.com/google/uuid"
)

// Page is a dom.Page that can also move session state in and out of the
// browser.
type Page interface {
	dom.Page
	Cookies(ctx context.Context) ([]sessioncache.Cookie, error)
	SetCookies(ctx context.Context, cookies []sessioncache.Cookie) error
	LocalStorage(ctx context.Context) string
	RestoreLocalStorage(ctx context.Context, localJSON string)
	Close() error
}

// Opener opens the single page a run works in.
type Opener func(ctx context.Context) (Page, error)

// Recorder persists run records. *store.RunStore implements it.
type Recorder interface {
	Begin(ctx context.Context, r *store.Run) error
	Finish(ctx context.Context, r *store.Run) error
}

// EventSource supplies recent browser events for failure artifacts.
type EventSource interface {
	Events() []browser.Event
}

// StepResult records how one step went.
type StepResult struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID        string           `json:"run_id"`
	Scenario     string           `json:"scenario"`
	Status       store.Status     `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Steps        []StepResult     `json:"steps"`
	Summary      *summary.Summary `json:"summary,omitempty"`
	ArtifactsDir string           `json:"artifacts_dir"`
	Error        string           `json:"error,omitempty"`
	// SessionRestored is true when login was skipped thanks to the
	// cookie snapshot.
	SessionRestored bool `json:"session_restored"`
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes scenarios from a configuration.
type Runner struct {
	cfg      *config.Config
	open     Opener
	otp      otp.Provider
	operator operator.Intervener
	recorder Recorder
	events   EventSource
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithOTP sets the one-time password source.
func WithOTP(p otp.Provider) Option { return func(r *Runner) { r.otp = p } }

// WithOperator sets who is asked when automation gets stuck.
func WithOperator(op operator.Intervener) Option { return func(r *Runner) { r.operator = op } }

// WithRecorder persists every run.
func WithRecorder(rec Recorder) Option { return func(r *Runner) { r.recorder = rec } }

// WithEvents attaches browser events to failure artifacts.
func WithEvents(src EventSource) Option { return func(r *Runner) { r.events = src } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// NewRunner creates a runner. Without WithOperator every intervention
// aborts the run.
func NewRunner(cfg *config.Config, open Opener, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		open:     open,
		operator: operator.FailFast{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the named scenario to completion. The returned Result is
// non-nil whenever the scenario exists, also when err is not nil.
func (r *Runner) Run(ctx context.Context, name string) (*Result, error) {
	sc, ok := r.cfg.Scenario(name)
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	steps, err := buildSteps(sc)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.GetRunTimeout())
	defer cancel()

	res := &Result{
		RunID:     uuid.NewString(),
		Scenario:  name,
		Status:    store.StatusRunning,
		StartedAt: r.now(),
	}
	res.ArtifactsDir = artifactsDir(r.cfg, res.RunID)
	rec := &store.Run{
		ID:           res.RunID,
		Scenario:     name,
		Email:        r.cfg.Credentials.Email,
		BaseURL:      r.cfg.Target.BaseURL,
		Status:       store.StatusRunning,
		StartedAt:    res.StartedAt,
		ArtifactsDir: res.ArtifactsDir,
	}
	if r.recorder != nil {
		if err := r.recorder.Begin(ctx, rec); err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}
	logging.Flow("run %s: scenario %q with %d step(s)", res.RunID, name, len(steps))

	audit, err := logging.OpenAudit(filepath.Join(res.ArtifactsDir, AuditFile), res.RunID)
	if err != nil {
		logging.Get(logging.CategoryFlow).Warn("audit trail disabled: %v", err)
	}
	defer audit.Close()
	audit.RunStart(name, rec.Email, rec.BaseURL, len(steps))

	runErr := r.execute(ctx, steps, res, audit)

	res.FinishedAt = r.now()
	res.Status = statusOf(runErr)
	if runErr != nil {
		res.Error = runErr.Error()
	}
	r.finish(ctx, rec, res)
	audit.RunEnd(string(res.Status), res.Duration(), runErr)

	switch res.Status {
	case store.StatusSucceeded:
		logging.Flow("run %s succeeded in %s", res.RunID, res.Duration().Round(time.Millisecond))
	default:
		logging.Get(logging.CategoryFlow).Error("run %s %s after %s: %v", res.RunID, res.Status, res.Duration().Round(time.Millisecond), runErr)
	}
	return res, runErr
}

func (r *Runner) execute(ctx context.Context, steps []step, res *Result, audit *logging.AuditLogger) error {
	page, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logging.FlowDebug("close page: %v", err)
		}
	}()

	st := newState(r, page, res, audit)
	if r.cfg.Session.Enabled && needsLogin(steps) {
		st.restoreSession(ctx)
	}

	for i, s := range steps {
		if err := st.runStep(ctx, i, len(steps), s); err != nil {
			st.captureFailure(ctx, s.spec().DisplayName())
			return err
		}
	}
	return nil
}

// finish writes the final state of the run. The run context may already
// be expired, so the write gets its own deadline.
func (r *Runner) finish(ctx context.Context, rec *store.Run, res *Result) {
	if r.recorder == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	rec.Status = res.Status
	rec.FinishedAt = res.FinishedAt
	rec.Error = res.Error
	rec.Summary = res.Summary
	if res.Summary != nil {
		rec.VRID = res.Summary.VRID
	}
	if err := r.recorder.Finish(wctx, rec); err != nil {
		logging.Get(logging.CategoryFlow).Error("record run %s: %v", res.RunID, err)
	}
}

func statusOf(err error) store.Status {
	switch {
	case err == nil:
		return store.StatusSucceeded
	case errors.Is(err, dom.ErrAborted):
		return store.StatusAborted
	default:
		return store.StatusFailed
	}
}

func needsLogin(steps []step) bool {
	for _, s := range steps {
		if s.spec().Kind == config.StepLogin {
			return true
		}
	}
	return false
}
