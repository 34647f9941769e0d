package dom

import (
	"context"
	"errors"
	"time"
)

// PageState is what WaitTransition compares to detect navigation,
// including client-side route changes that keep the document.
type PageState struct {
	URL     string
	Heading string
	Marker  bool
}

var headingQueries = []Query{
	{Expr: "h1"},
	{Expr: `[role=heading][aria-level="1"]`},
	{Expr: "h2"},
}

// State captures the current page state.
func (d *Driver) State(ctx context.Context) PageState {
	u, _ := d.Page.URL(ctx)
	st := PageState{URL: u, Heading: d.heading(ctx)}
	if !d.StepMarker.Empty() {
		st.Marker = PresentNow(ctx, d.Page, d.StepMarker)
	}
	return st
}

func (d *Driver) heading(ctx context.Context) string {
	for _, q := range headingQueries {
		els, err := d.Page.FindAll(ctx, q)
		if err != nil || len(els) == 0 {
			continue
		}
		if txt, err := els[0].Text(ctx); err == nil {
			if h := normalizeText(txt); h != "" {
				return h
			}
		}
	}
	return ""
}

// WaitTransition waits until the URL or main heading differs from before,
// or the step marker appears.
func (d *Driver) WaitTransition(ctx context.Context, before PageState, timeout time.Duration) error {
	err := Poll(ctx, 200*time.Millisecond, timeout, func(ctx context.Context) (bool, error) {
		now := d.State(ctx)
		return now.URL != before.URL || now.Heading != before.Heading || (now.Marker && !before.Marker), nil
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrNoTransition
	}
	return err
}

// Advance clicks the next-button chain and waits for the page to move on.
// When it does not, visible validation messages are reported and the
// operator is asked; resuming waits for the transition once more.
func (d *Driver) Advance(ctx context.Context, next Chain) error {
	before := d.State(ctx)
	if err := d.Click(ctx, next); err != nil {
		return err
	}

	err := d.WaitTransition(ctx, before, d.transitionTimeout())
	if err == nil || !errors.Is(err, ErrNoTransition) {
		return err
	}
	if msgs := d.ValidationMessages(ctx); len(msgs) > 0 {
		err = &ValidationError{Messages: msgs}
	}
	return d.Recover(ctx, "advance from "+describeState(before), err, func() error {
		return d.WaitTransition(ctx, before, d.transitionTimeout())
	})
}

func describeState(st PageState) string {
	if st.Heading != "" {
		return "\"" + st.Heading + "\""
	}
	if st.URL != "" {
		return st.URL
	}
	return "current page"
}
