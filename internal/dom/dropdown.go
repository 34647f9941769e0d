package dom

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vrpilot/internal/logging"

	"github.com/cenkalti/backoff/v5"
)

// Select chooses option in the dropdown located by control. Native
// <select> elements are set directly; custom comboboxes are opened, the
// option text typed to filter, and the matching option clicked. Failed
// attempts close the menu with Escape and retry with exponential backoff.
func (d *Driver) Select(ctx context.Context, control Chain, option string) error {
	retry := func() error { return d.selectWithRetry(ctx, control, option) }
	if err := retry(); err != nil {
		return d.Recover(ctx, fmt.Sprintf("select %q in %s", option, control.Name), err, retry)
	}
	return nil
}

func (d *Driver) selectWithRetry(ctx context.Context, control Chain, option string) error {
	b := backoff.NewExponentialBackOff()
	if d.InitialInterval > 0 {
		b.InitialInterval = d.InitialInterval
	}
	if d.MaxInterval > 0 {
		b.MaxInterval = d.MaxInterval
	}

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		err := d.selectOnce(ctx, control, option)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		logging.DOMDebug("%s: select %q attempt %d failed: %v", control.Name, option, tries, err)
		_ = d.Page.Press(ctx, KeyEscape)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(d.attempts())))
	if err != nil {
		return &SelectError{Control: control.Name, Option: option, Attempts: tries, Err: err}
	}
	return nil
}

func (d *Driver) selectOnce(ctx context.Context, control Chain, option string) error {
	el, _, err := Resolve(ctx, d.Page, control, d.timeout())
	if err != nil {
		return err
	}

	if tag, _ := el.Tag(ctx); tag == "select" {
		if err := el.Select(ctx, option, false); err == nil {
			return nil
		}
		return el.Select(ctx, option, true)
	}

	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("open dropdown: %w", err)
	}
	if d.TypeToFilter {
		if err := d.Page.InsertText(ctx, option); err != nil {
			logging.DOMDebug("%s: typing filter failed: %v", control.Name, err)
		}
	}

	opt, err := d.findOption(ctx, option)
	if err != nil {
		return err
	}
	if err := opt.Click(ctx); err != nil {
		return fmt.Errorf("click option %q: %w", option, err)
	}
	return verifySelection(ctx, el, option)
}

// findOption waits for a listed option whose text equals option, falling
// back to the first one containing it.
func (d *Driver) findOption(ctx context.Context, option string) (Element, error) {
	want := normalizeText(option)
	candidates := append(append([]Locator(nil), d.Options.Locators...), Locator{Kind: KindText, Value: option})

	var found Element
	err := Poll(ctx, 100*time.Millisecond, d.timeout(), func(ctx context.Context) (bool, error) {
		var partial Element
		for _, loc := range candidates {
			els, err := d.Page.FindAll(ctx, loc.Query())
			if err != nil {
				continue
			}
			for _, el := range els {
				txt, err := el.Text(ctx)
				if err != nil {
					continue
				}
				got := normalizeText(txt)
				if got == want {
					found = el
					return true, nil
				}
				if partial == nil && got != "" && strings.Contains(got, want) {
					partial = el
				}
			}
		}
		if partial != nil {
			found = partial
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("option %q not listed: %w", option, err)
	}
	return found, nil
}

// verifySelection checks that the control now displays option. Controls
// that expose neither text nor value cannot be verified and pass.
func verifySelection(ctx context.Context, control Element, option string) error {
	txt, _ := control.Text(ctx)
	val, _ := control.Value(ctx)
	shown := normalizeText(txt + " " + val)
	if shown == "" || strings.Contains(shown, normalizeText(option)) {
		return nil
	}
	return fmt.Errorf("dropdown shows %q after choosing %q", strings.TrimSpace(txt), option)
}
