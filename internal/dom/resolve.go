package dom

import (
	"context"
	"fmt"
	"time"

	"vrpilot/internal/logging"
)

// Resolve tries each locator of chain in order, giving each at most perTry,
// and returns the first match with its index in the chain.
func Resolve(ctx context.Context, page Page, chain Chain, perTry time.Duration) (Element, int, error) {
	if chain.Empty() {
		return nil, -1, fmt.Errorf("chain %q has no locators", chain.Name)
	}
	for i, loc := range chain.Locators {
		tctx, cancel := context.WithTimeout(ctx, perTry)
		el, err := page.Find(tctx, loc.Query())
		cancel()
		if err == nil && el != nil {
			if i > 0 {
				logging.DOMDebug("%s matched fallback #%d %s", chain.Name, i, loc)
			}
			return el, i, nil
		}
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		logging.DOMDebug("%s: %s did not match: %v", chain.Name, loc, err)
	}
	return nil, -1, &NotFoundError{Chain: chain}
}

// Present reports whether any locator of chain matches within wait.
func Present(ctx context.Context, page Page, chain Chain, wait time.Duration) bool {
	if chain.Empty() {
		return false
	}
	err := Poll(ctx, 50*time.Millisecond, wait, func(ctx context.Context) (bool, error) {
		return PresentNow(ctx, page, chain), nil
	})
	return err == nil
}

// PresentNow reports whether any locator of chain matches right now.
func PresentNow(ctx context.Context, page Page, chain Chain) bool {
	for _, loc := range chain.Locators {
		els, err := page.FindAll(ctx, loc.Query())
		if err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// Poll calls cond every interval until it returns true, returns an error,
// or timeout elapses.
func Poll(ctx context.Context, interval, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(tctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-tctx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			return context.DeadlineExceeded
		case <-ticker.C:
		}
	}
}
