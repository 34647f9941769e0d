package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/dom"
	"vrpilot/internal/logging"
	"vrpilot/internal/operator"
	"vrpilot/internal/otp"
	"vrpilot/internal/summary"

	"golang.org/x/sync/errgroup"
)

// step is one executable scenario step.
type step interface {
	spec() config.StepSpec
	// retryable steps are re-run from the top when they fail.
	retryable() bool
	run(ctx context.Context, s *state, d *dom.Driver) error
}

type base struct{ s config.StepSpec }

func (b base) spec() config.StepSpec { return b.s }
func (base) retryable() bool         { return false }

func buildSteps(sc config.Scenario) ([]step, error) {
	if len(sc.Steps) == 0 {
		return nil, errors.New("no steps")
	}
	steps := make([]step, 0, len(sc.Steps))
	for i, spec := range sc.Steps {
		b := base{spec}
		switch spec.Kind {
		case config.StepLogin:
			steps = append(steps, loginStep{b})
		case config.StepOTP:
			steps = append(steps, otpStep{b})
		case config.StepNavigate:
			steps = append(steps, navigateStep{b})
		case config.StepClick:
			steps = append(steps, clickStep{b})
		case config.StepForm:
			steps = append(steps, formStep{b})
		case config.StepDocuments:
			steps = append(steps, documentsStep{b})
		case config.StepPayment:
			steps = append(steps, paymentStep{b})
		case config.StepESign:
			steps = append(steps, esignStep{b})
		case config.StepSummary:
			steps = append(steps, summaryStep{b})
		case config.StepPause:
			steps = append(steps, pauseStep{b})
		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", i+1, spec.Kind)
		}
	}
	return steps, nil
}

type loginStep struct{ base }

func (loginStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	if s.authenticated {
		logging.Flow("login skipped, restored session reached the dashboard")
		return nil
	}
	creds := s.cfg.Credentials
	if creds.Email == "" || creds.Password == "" {
		return errors.New("credentials.email and credentials.password are required to log in")
	}
	if err := s.navigate(ctx, d, s.cfg.URL(s.cfg.Target.LoginPath)); err != nil {
		return err
	}

	sel := s.cfg.Selectors
	if err := d.Fill(ctx, dom.NewChain("email", sel.Email...), creds.Email); err != nil {
		return err
	}
	if err := d.Fill(ctx, dom.NewChain("password", sel.Password...), creds.Password); err != nil {
		return err
	}
	if err := d.Click(ctx, dom.NewChain("log in", sel.LoginSubmit...)); err != nil {
		return err
	}
	s.loggedIn = true

	// Done once the URL leaves the login path or a code is asked for.
	left := func(ctx context.Context) (bool, error) {
		return !s.onLoginPage(ctx) || s.otpVisibleNow(ctx, d), nil
	}
	wait := func() error {
		if err := dom.Poll(ctx, 200*time.Millisecond, s.cfg.GetNavigationTimeout(), left); err != nil {
			if msgs := d.ValidationMessages(ctx); len(msgs) > 0 {
				return &dom.ValidationError{Messages: msgs}
			}
			return fmt.Errorf("still on the login page: %w", err)
		}
		return nil
	}
	if err := wait(); err != nil {
		if err := d.Recover(ctx, "log in as "+creds.Email, err, wait); err != nil {
			return err
		}
	}

	if !s.otpVisibleNow(ctx, d) {
		s.markAuthenticated(ctx)
	}
	logging.Flow("logged in as %s", creds.Email)
	return nil
}

type otpStep struct{ base }

func (otpStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	if s.restored {
		logging.Flow("one-time code skipped, session restored")
		return nil
	}
	entered, err := s.enterOTP(ctx, d, otp.PurposeLogin)
	if err != nil {
		return err
	}
	if !entered {
		logging.Flow("no one-time code requested within %s", s.cfg.GetOTPWindow())
	}
	s.markAuthenticated(ctx)
	return nil
}

type navigateStep struct{ base }

func (st navigateStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	return s.navigate(ctx, d, s.cfg.URL(st.s.Path))
}

type clickStep struct{ base }

func (st clickStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	chain := dom.NewChain(st.s.DisplayName(), st.s.Selectors...)
	if st.s.WaitTransition {
		return d.Advance(ctx, chain)
	}
	return d.Click(ctx, chain)
}

type formStep struct{ base }

func (formStep) retryable() bool { return true }

func (st formStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	for _, f := range st.s.Fields {
		if err := fillField(ctx, d, f); err != nil {
			return err
		}
	}
	if st.s.NoAdvance {
		return nil
	}
	return d.Advance(ctx, s.nextChain(st.s.Next))
}

type documentsStep struct{ base }

func (st documentsStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	paths, err := checkDocuments(ctx, st.s.Files)
	if err != nil {
		return err
	}
	for i, doc := range st.s.Files {
		name := documentName(doc)
		if err := d.Upload(ctx, dom.NewChain(name, doc.Selectors...), paths[i]); err != nil {
			return err
		}
		done := s.chain(name+" upload complete", doc.Done, s.cfg.Selectors.UploadDone)
		wait := func() error {
			if dom.Present(ctx, d.Page, done, s.cfg.GetNavigationTimeout()) {
				return nil
			}
			return fmt.Errorf("%s did not finish uploading", name)
		}
		if err := wait(); err != nil {
			if err := d.Recover(ctx, "upload "+name, err, wait); err != nil {
				return err
			}
		}
		logging.Flow("uploaded %s (%s)", name, filepath.Base(paths[i]))
	}
	if st.s.Advance {
		return d.Advance(ctx, s.nextChain(st.s.Next))
	}
	return nil
}

func documentName(doc config.DocumentSpec) string {
	if doc.Name != "" {
		return doc.Name
	}
	return filepath.Base(doc.Path)
}

// checkDocuments verifies every file exists and is non-empty before the
// first upload starts, returning absolute paths in input order.
func checkDocuments(ctx context.Context, docs []config.DocumentSpec) ([]string, error) {
	paths := make([]string, len(docs))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, doc := range docs {
		g.Go(func() error {
			abs, err := filepath.Abs(doc.Path)
			if err != nil {
				return fmt.Errorf("document %q: %w", documentName(doc), err)
			}
			info, err := os.Stat(abs)
			if err != nil {
				return fmt.Errorf("document %q: %w", documentName(doc), err)
			}
			if info.IsDir() {
				return fmt.Errorf("document %q: %s is a directory", documentName(doc), abs)
			}
			if info.Size() == 0 {
				return fmt.Errorf("document %q: %s is empty", documentName(doc), abs)
			}
			paths[i] = abs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

type paymentStep struct{ base }

func (st paymentStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	p := st.s.Payment
	if p == nil {
		p = &config.PaymentSpec{}
	}
	sel := s.cfg.Selectors

	// Card fields need the frame; a bare submit uses it only if rendered.
	fd := d
	frame := s.chain("payment frame", p.Frame, sel.PaymentFrame)
	if !frame.Empty() && (len(p.Fields) > 0 || dom.PresentNow(ctx, d.Page, frame)) {
		var err error
		if fd, err = d.Frame(ctx, frame); err != nil {
			return err
		}
	}
	for _, f := range p.Fields {
		if err := fillField(ctx, fd, f); err != nil {
			return err
		}
	}

	submit := s.chain("pay", p.Submit, sel.PaymentSubmit)
	if fd != d && dom.PresentNow(ctx, fd.Page, submit) {
		if err := fd.Click(ctx, submit); err != nil {
			return err
		}
	} else if err := d.Click(ctx, submit); err != nil {
		return err
	}

	success := s.chain("payment success", p.Success, sel.PaymentSuccess)
	wait := func() error {
		if dom.Present(ctx, d.Page, success, s.cfg.GetNavigationTimeout()) {
			return nil
		}
		if msgs := fd.ValidationMessages(ctx); len(msgs) > 0 {
			return &dom.ValidationError{Messages: msgs}
		}
		return errors.New("payment was not confirmed")
	}
	if err := wait(); err != nil {
		if err := d.Recover(ctx, "confirm payment", err, wait); err != nil {
			return err
		}
	}
	logging.Flow("payment confirmed")
	return nil
}

type esignStep struct{ base }

func (esignStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	sel := s.cfg.Selectors
	if err := d.Click(ctx, dom.NewChain("e-sign", sel.ESignStart...)); err != nil {
		return err
	}
	entered, err := s.enterOTP(ctx, d, otp.PurposeESign)
	if err != nil {
		return err
	}
	if !entered {
		logging.Flow("no one-time code requested for signing")
	}

	done := dom.NewChain("signed", sel.ESignDone...)
	if dom.Present(ctx, d.Page, done, s.cfg.GetElementTimeout()) {
		return nil
	}
	if confirm := dom.NewChain("confirm signature", sel.ESignConfirm...); dom.PresentNow(ctx, d.Page, confirm) {
		if err := d.Click(ctx, confirm); err != nil {
			return err
		}
	}
	wait := func() error {
		if dom.Present(ctx, d.Page, done, s.cfg.GetNavigationTimeout()) {
			return nil
		}
		return errors.New("document was not signed")
	}
	if err := wait(); err != nil {
		return d.Recover(ctx, "finish e-signing", err, wait)
	}
	logging.Flow("document signed")
	return nil
}

type summaryStep struct{ base }

func (summaryStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	html, err := d.Page.HTML(ctx)
	if err != nil {
		return fmt.Errorf("read summary page: %w", err)
	}
	pageURL, _ := d.Page.URL(ctx)
	sum, err := summary.Extract(html, pageURL, s.r.now(), s.cfg.Selectors.Summary...)
	if err != nil {
		return err
	}
	if len(sum.Fields) == 0 && sum.VRID == "" {
		logging.Get(logging.CategoryFlow).Warn("summary page at %s shows no recognizable fields", pageURL)
	}
	s.res.Summary = sum
	if err := writeJSON(filepath.Join(s.res.ArtifactsDir, SummaryFile), sum); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	logging.Flow("summary: VR %q status %q, %d field(s)", sum.VRID, sum.Status, len(sum.Fields))
	return nil
}

type pauseStep struct{ base }

func (st pauseStep) run(ctx context.Context, s *state, d *dom.Driver) error {
	op := d.Operator
	if op == nil {
		// Only optional pauses run unattended; the error marks them skipped.
		return errors.New("pause needs an operator, running unattended")
	}
	reason := st.s.Reason
	if reason == "" {
		reason = "scenario paused"
	}
	req := operator.Request{Step: d.Step, Action: "pause", Reason: reason, Screenshot: s.snapshot(ctx, "pause")}
	decision, err := op.Intervene(ctx, req)
	if err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	if decision == operator.Abort {
		return &dom.AbortError{Step: d.Step, Reason: reason}
	}
	return nil
}
