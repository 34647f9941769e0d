package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAborted is returned when the operator aborts the run.
var ErrAborted = errors.New("aborted by operator")

// ErrNoTransition is returned when a page did not change after advancing.
var ErrNoTransition = errors.New("page did not transition")

// NotFoundError reports that no locator in a chain matched.
type NotFoundError struct {
	Chain Chain
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no element matched %s", e.Chain)
}

// Is lets errors.Is(err, ErrNoMatch) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNoMatch
}

// SelectError reports a dropdown that could not be set.
type SelectError struct {
	Control  string
	Option   string
	Attempts int
	Err      error
}

func (e *SelectError) Error() string {
	return fmt.Sprintf("select %q in %s failed after %d attempt(s): %v", e.Option, e.Control, e.Attempts, e.Err)
}

func (e *SelectError) Unwrap() error { return e.Err }

// ValidationError lists messages the page showed after a submit.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "page reported validation errors: " + strings.Join(e.Messages, "; ")
}

// Unwrap lets errors.Is(err, ErrNoTransition) match.
func (e *ValidationError) Unwrap() error { return ErrNoTransition }

// AbortError carries the reason the operator was asked.
type AbortError struct {
	Step   string
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrAborted, e.Step, e.Reason)
}

func (e *AbortError) Unwrap() error { return ErrAborted }

// ValueError reports an input that does not hold what was typed into it.
// Error leaves out both values; the field may be a password.
type ValueError struct {
	Field string
	Want  string
	Got   string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("%s does not hold the typed value (%d of %d characters)", e.Field, len([]rune(e.Got)), len([]rune(e.Want)))
}
