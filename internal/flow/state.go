package flow

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/dom"
	"vrpilot/internal/logging"
	"vrpilot/internal/operator"

	"github.com/cenkalti/backoff/v5"
)

// state is what steps of one run share.
type state struct {
	r      *Runner
	cfg    *config.Config
	page   Page
	driver *dom.Driver
	res    *Result
	audit  *logging.AuditLogger

	loggedIn      bool // credentials were submitted in this run
	authenticated bool // the app accepted us, by login or restored session
	restored      bool
	sessionSaved  bool
	shots         int
}

func newState(r *Runner, page Page, res *Result, audit *logging.AuditLogger) *state {
	s := &state{r: r, cfg: r.cfg, page: page, res: res, audit: audit}
	s.driver = newDriver(r.cfg, page, auditedOperator{r.operator, audit})
	s.driver.Snapshot = s.snapshot
	return s
}

// auditedOperator records every decision in the run's audit trail.
type auditedOperator struct {
	operator.Intervener
	audit *logging.AuditLogger
}

func (o auditedOperator) Intervene(ctx context.Context, req operator.Request) (operator.Decision, error) {
	decision, err := o.Intervener.Intervene(ctx, req)
	answer := decision.String()
	if err != nil {
		answer = "error: " + err.Error()
	}
	o.audit.Intervention(req.Step, req.Action, req.Reason, answer, req.Screenshot)
	return decision, err
}

func newDriver(cfg *config.Config, page dom.Page, op operator.Intervener) *dom.Driver {
	sel := cfg.Selectors
	initial, maxInterval := cfg.GetRetryIntervals()
	return &dom.Driver{
		Page:              page,
		Operator:          op,
		Timeout:           cfg.GetElementTimeout(),
		TransitionTimeout: cfg.GetNavigationTimeout(),
		Attempts:          cfg.Retry.Attempts,
		InitialInterval:   initial,
		MaxInterval:       maxInterval,
		Options:           dom.NewChain("dropdown option", sel.Option...),
		Validation:        dom.NewChain("validation message", sel.Validation...),
		StepMarker:        dom.NewChain("step marker", sel.StepMarker...),
		TypeToFilter:      sel.TypeToFilter,
	}
}

// runStep executes one step, retrying retryable kinds. Attempts before the
// last run unattended so the operator is only asked once the step has
// exhausted its retries. Optional steps never ask the operator.
func (s *state) runStep(ctx context.Context, i, total int, st step) error {
	spec := st.spec()
	name := spec.DisplayName()
	sr := StepResult{Name: name, Kind: spec.Kind}
	start := time.Now()
	logging.Flow("[%d/%d] %s started", i+1, total, name)

	attempts := 1
	if st.retryable() && s.cfg.Retry.Attempts > 1 {
		attempts = s.cfg.Retry.Attempts
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval, b.MaxInterval = s.cfg.GetRetryIntervals()

	d := s.driver.WithStep(name)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		sr.Attempts++
		ad := d
		if sr.Attempts < attempts || spec.Optional {
			ad = d.Unattended()
		}
		err := st.run(ctx, s, ad)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil || errors.Is(err, dom.ErrAborted) {
			return struct{}{}, backoff.Permanent(err)
		}
		if sr.Attempts < attempts {
			logging.Get(logging.CategoryFlow).Warn("%s attempt %d/%d failed: %v", name, sr.Attempts, attempts, err)
			s.audit.StepRetry(name, sr.Attempts, attempts, err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(attempts)))

	if err != nil && spec.Optional && ctx.Err() == nil && !errors.Is(err, dom.ErrAborted) {
		logging.Get(logging.CategoryFlow).Warn("optional step %s skipped: %v", name, err)
		s.audit.StepSkip(name, err)
		sr.Skipped = true
		sr.Error = err.Error()
		err = nil
	}

	sr.Duration = time.Since(start)
	if err != nil {
		sr.Error = err.Error()
	}
	s.res.Steps = append(s.res.Steps, sr)
	s.audit.StepEnd(name, spec.Kind, sr.Attempts, sr.Duration, err)
	if err != nil {
		logging.Get(logging.CategoryFlow).Error("[%d/%d] %s failed after %s: %v", i+1, total, name, sr.Duration.Round(time.Millisecond), err)
		return err
	}
	logging.Flow("[%d/%d] %s finished in %s", i+1, total, name, sr.Duration.Round(time.Millisecond))
	return nil
}

func (s *state) chain(name string, raw []string, fallback []string) dom.Chain {
	if len(raw) == 0 {
		raw = fallback
	}
	return dom.NewChain(name, raw...)
}

func (s *state) nextChain(raw []string) dom.Chain {
	return s.chain("next", raw, s.cfg.Selectors.Next)
}

// onLoginPage reports whether the current URL is under the login path.
func (s *state) onLoginPage(ctx context.Context) bool {
	raw, err := s.page.URL(ctx)
	if err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	login := "/" + strings.Trim(s.cfg.Target.LoginPath, "/")
	return login != "/" && (u.Path == login || strings.HasPrefix(u.Path, login+"/"))
}

func (s *state) navigate(ctx context.Context, d *dom.Driver, target string) error {
	nav := func() error { return d.Page.Navigate(ctx, target) }
	if err := nav(); err != nil {
		return d.Recover(ctx, "open "+target, err, nav)
	}
	return nil
}

// markAuthenticated records that the app let us in and snapshots the
// session for the next run.
func (s *state) markAuthenticated(ctx context.Context) {
	s.authenticated = true
	s.saveSession(ctx)
}
