package dom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vrpilot/internal/logging"
	"vrpilot/internal/operator"
)

// Driver performs actions on a page, resolving fallback chains and asking
// the operator when every fallback fails.
type Driver struct {
	Page Page
	// Operator is consulted when an action cannot be completed. Nil means
	// fail immediately with the underlying error.
	Operator operator.Intervener
	// Step names the current scenario step in intervention requests.
	Step string
	// Snapshot, when set, saves a screenshot and returns its path.
	Snapshot func(ctx context.Context, label string) string

	Timeout           time.Duration // per locator in a chain
	TransitionTimeout time.Duration
	Attempts          int
	InitialInterval   time.Duration
	MaxInterval       time.Duration

	Options      Chain // custom dropdown option candidates (CSS)
	Validation   Chain // validation message containers (CSS)
	StepMarker   Chain // optional marker that a new step was rendered
	TypeToFilter bool
}

// WithStep returns a copy of d reporting interventions under step.
func (d *Driver) WithStep(step string) *Driver {
	c := *d
	c.Step = step
	return &c
}

// WithPage returns a copy of d acting on page (e.g. an iframe document).
func (d *Driver) WithPage(page Page) *Driver {
	c := *d
	c.Page = page
	return &c
}

// Unattended returns a copy of d that never consults the operator.
func (d *Driver) Unattended() *Driver {
	c := *d
	c.Operator = nil
	return &c
}

func (d *Driver) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 5 * time.Second
	}
	return d.Timeout
}

func (d *Driver) transitionTimeout() time.Duration {
	if d.TransitionTimeout <= 0 {
		return 15 * time.Second
	}
	return d.TransitionTimeout
}

func (d *Driver) attempts() int {
	if d.Attempts < 1 {
		return 1
	}
	return d.Attempts
}

// Do resolves chain and runs fn on the element.
func (d *Driver) Do(ctx context.Context, action string, chain Chain, fn func(context.Context, Element) error) error {
	attempt := func() error {
		el, _, err := Resolve(ctx, d.Page, chain, d.timeout())
		if err != nil {
			return err
		}
		return fn(ctx, el)
	}
	if err := attempt(); err != nil {
		return d.Recover(ctx, action, err, attempt)
	}
	return nil
}

// Recover hands a failed action to the operator. Resume retries once,
// Skip treats the action as done, Abort stops the run.
func (d *Driver) Recover(ctx context.Context, action string, cause error, retry func() error) error {
	if ctx.Err() != nil || errors.Is(cause, ErrAborted) {
		return cause
	}
	if d.Operator == nil {
		return fmt.Errorf("%s: %w", action, cause)
	}

	req := operator.Request{Step: d.Step, Action: action, Reason: cause.Error()}
	if d.Snapshot != nil {
		req.Screenshot = d.Snapshot(ctx, action)
	}
	decision, err := d.Operator.Intervene(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: intervention: %w", action, err)
	}

	switch decision {
	case operator.Skip:
		logging.DOM("%s: operator skipped %s", d.Step, action)
		return nil
	case operator.Resume:
		if err := retry(); err != nil {
			return fmt.Errorf("%s: still failing after operator resumed: %w", action, err)
		}
		return nil
	default:
		return &AbortError{Step: d.Step, Reason: fmt.Sprintf("%s: %v", action, cause)}
	}
}

// Click clicks the first match of chain.
func (d *Driver) Click(ctx context.Context, chain Chain) error {
	return d.Do(ctx, "click "+chain.Name, chain, func(ctx context.Context, el Element) error {
		return el.Click(ctx)
	})
}

// Fill replaces the value of the first match of chain.
func (d *Driver) Fill(ctx context.Context, chain Chain, text string) error {
	return d.Do(ctx, "fill "+chain.Name, chain, func(ctx context.Context, el Element) error {
		if err := el.Fill(ctx, text); err != nil {
			return err
		}
		got, err := el.Value(ctx)
		if err != nil {
			logging.DOMDebug("%s: value not readable: %v", chain.Name, err)
			return nil
		}
		if !sameValue(got, text) {
			return &ValueError{Field: chain.Name, Want: text, Got: got}
		}
		return nil
	})
}

// sameValue compares a typed value with what the input holds. Case and
// whitespace are ignored, and values with digits are compared digit by
// digit because masked inputs insert separators.
func sameValue(got, want string) bool {
	if got == want {
		return true
	}
	norm := func(s string) string { return strings.Join(strings.Fields(s), " ") }
	if strings.EqualFold(norm(got), norm(want)) {
		return true
	}
	wd := digits(want)
	return wd != "" && wd == digits(got)
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Check sets a checkbox or radio to want.
func (d *Driver) Check(ctx context.Context, chain Chain, want bool) error {
	return d.Do(ctx, "check "+chain.Name, chain, func(ctx context.Context, el Element) error {
		checked, err := el.Checked(ctx)
		if err == nil && checked == want {
			return nil
		}
		return el.Click(ctx)
	})
}

// Upload sets files on a file input. Hidden inputs are accepted.
func (d *Driver) Upload(ctx context.Context, chain Chain, paths ...string) error {
	return d.Do(ctx, "upload to "+chain.Name, chain.Hidden(), func(ctx context.Context, el Element) error {
		return el.SetFiles(ctx, paths)
	})
}

// Frame resolves an iframe and returns a driver acting inside it.
func (d *Driver) Frame(ctx context.Context, chain Chain) (*Driver, error) {
	var inner *Driver
	err := d.Do(ctx, "enter frame "+chain.Name, chain, func(ctx context.Context, el Element) error {
		p, err := el.Frame(ctx)
		if err != nil {
			return err
		}
		inner = d.WithPage(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if inner == nil {
		// Operator skipped; keep working in the outer document.
		return d, nil
	}
	return inner, nil
}

// ValidationMessages returns the visible, non-empty validation texts.
func (d *Driver) ValidationMessages(ctx context.Context) []string {
	seen := make(map[string]bool)
	var msgs []string
	for _, loc := range d.Validation.Locators {
		els, err := d.Page.FindAll(ctx, loc.Query())
		if err != nil {
			continue
		}
		for _, el := range els {
			txt, err := el.Text(ctx)
			txt = strings.Join(strings.Fields(txt), " ")
			if err != nil || txt == "" || seen[txt] {
				continue
			}
			seen[txt] = true
			msgs = append(msgs, txt)
		}
	}
	return msgs
}

// SetDate types date into a date field formatted with layout.
func (d *Driver) SetDate(ctx context.Context, chain Chain, date time.Time, layout string) error {
	return d.Do(ctx, "set date "+chain.Name, chain, func(ctx context.Context, el Element) error {
		return el.Fill(ctx, date.Format(layout))
	})
}
