package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/dom"
	"vrpilot/internal/logging"
	"vrpilot/internal/otp"
)

// fillField sets one form input. Optional fields never reach the operator
// and are left alone when they cannot be set.
func fillField(ctx context.Context, d *dom.Driver, f config.FieldSpec) error {
	chain := dom.NewChain(f.Label, f.Selectors...)
	fd := d
	if f.Optional {
		fd = d.Unattended()
	}

	var err error
	switch f.Kind {
	case config.FieldText, config.FieldTextarea, "":
		err = fd.Fill(ctx, chain, f.Value)
	case config.FieldDropdown:
		err = fd.Select(ctx, chain, f.Value)
	case config.FieldDate:
		var date time.Time
		if date, err = time.Parse(config.DateInputLayout, f.Value); err != nil {
			return fmt.Errorf("field %q: %w", f.Label, err)
		}
		layout := f.Layout
		if layout == "" {
			layout = config.DateInputLayout
		}
		err = fd.SetDate(ctx, chain, date, layout)
	case config.FieldCheckbox:
		err = fd.Check(ctx, chain, checkValue(f.Value))
	case config.FieldRadio:
		err = fd.Check(ctx, chain, true)
	default:
		return fmt.Errorf("field %q: unknown kind %q", f.Label, f.Kind)
	}

	if err != nil && f.Optional && ctx.Err() == nil && !errors.Is(err, dom.ErrAborted) {
		logging.Get(logging.CategoryFlow).Warn("optional field %q not set: %v", f.Label, err)
		return nil
	}
	return err
}

// checkValue reads a checkbox value; empty means checked.
func checkValue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "no", "off", "0", "unchecked":
		return false
	}
	return true
}

// otpVisibleNow reports whether a single or split code input is shown.
func (s *state) otpVisibleNow(ctx context.Context, d *dom.Driver) bool {
	if dom.PresentNow(ctx, d.Page, dom.NewChain("one-time code", s.cfg.Selectors.OTPInput...)) {
		return true
	}
	if s.cfg.Selectors.OTPDigits == "" {
		return false
	}
	els, err := d.Page.FindAll(ctx, dom.Query{Expr: s.cfg.Selectors.OTPDigits})
	return err == nil && len(els) >= 4
}

type otpOutcome int

const (
	otpPending otpOutcome = iota
	otpAccepted
	otpRejected
)

var errOTPRejected = errors.New("one-time code was rejected")

// enterOTP waits up to the OTP window for a code input. When one shows up
// it fetches a code and submits it; a rejected code is retried once with a
// fresh code. It reports whether a code was asked for.
func (s *state) enterOTP(ctx context.Context, d *dom.Driver, purpose otp.Purpose) (bool, error) {
	asked := dom.Poll(ctx, 100*time.Millisecond, s.cfg.GetOTPWindow(), func(ctx context.Context) (bool, error) {
		return s.otpVisibleNow(ctx, d), nil
	})
	if asked != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	if s.r.otp == nil {
		return true, fmt.Errorf("a %s code was requested but no OTP provider is configured", purpose)
	}

	action := fmt.Sprintf("enter %s code", purpose)
	for try := 1; ; try++ {
		code, err := s.r.otp.Code(ctx, purpose)
		if err != nil {
			return true, fmt.Errorf("get %s code: %w", purpose, err)
		}
		if err := s.submitCode(ctx, d, code); err != nil {
			return true, err
		}

		switch s.waitOTPOutcome(ctx, d) {
		case otpAccepted:
			logging.OTP("%s code accepted", purpose)
			s.audit.OTP(string(purpose), true, try)
			return true, nil
		case otpRejected:
			s.audit.OTP(string(purpose), false, try)
			if try < 2 {
				logging.Get(logging.CategoryOTP).Warn("%s code rejected, requesting a fresh one", purpose)
				continue
			}
			return true, d.Recover(ctx, action, errOTPRejected, s.recheckOTP(ctx, d))
		default:
			return true, d.Recover(ctx, action, errors.New("one-time code was neither accepted nor rejected"), s.recheckOTP(ctx, d))
		}
	}
}

func (s *state) recheckOTP(ctx context.Context, d *dom.Driver) func() error {
	return func() error {
		if s.otpVisibleNow(ctx, d) {
			return errors.New("one-time code input is still shown")
		}
		return nil
	}
}

// submitCode types code into the single input or spreads it over the
// split one-digit inputs, then clicks submit when a button is shown.
func (s *state) submitCode(ctx context.Context, d *dom.Driver, code string) error {
	sel := s.cfg.Selectors
	input := dom.NewChain("one-time code", sel.OTPInput...)

	if dom.PresentNow(ctx, d.Page, input) {
		if err := d.Fill(ctx, input, code); err != nil {
			return err
		}
	} else {
		digits, err := d.Page.FindAll(ctx, dom.Query{Expr: sel.OTPDigits})
		if err != nil {
			return fmt.Errorf("find code digits: %w", err)
		}
		if len(digits) < len(code) {
			return fmt.Errorf("code has %d digits but the page shows %d inputs", len(code), len(digits))
		}
		for i, r := range code {
			if err := digits[i].Fill(ctx, string(r)); err != nil {
				return fmt.Errorf("fill digit %d: %w", i+1, err)
			}
		}
	}

	if submit := dom.NewChain("verify code", sel.OTPSubmit...); dom.PresentNow(ctx, d.Page, submit) {
		return d.Click(ctx, submit)
	}
	return nil
}

func (s *state) waitOTPOutcome(ctx context.Context, d *dom.Driver) otpOutcome {
	rejected := dom.NewChain("code error", s.cfg.Selectors.OTPError...)
	outcome := otpPending
	_ = dom.Poll(ctx, 200*time.Millisecond, s.cfg.GetNavigationTimeout(), func(ctx context.Context) (bool, error) {
		switch {
		case !s.otpVisibleNow(ctx, d):
			outcome = otpAccepted
		case dom.PresentNow(ctx, d.Page, rejected):
			outcome = otpRejected
		default:
			return false, nil
		}
		return true, nil
	})
	return outcome
}
