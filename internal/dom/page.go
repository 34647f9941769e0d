package dom

import (
	"context"
	"errors"
)

// Key is a keyboard key the driver may press.
type Key string

const (
	KeyEscape Key = "Escape"
	KeyEnter  Key = "Enter"
	KeyTab    Key = "Tab"
)

// ErrNoMatch is returned by Page.Find when nothing matched in time.
var ErrNoMatch = errors.New("no matching element")

// Page is the browser surface the interaction layer needs. The rod
// implementation lives in internal/browser.
type Page interface {
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	// Find waits until ctx is done for the first match of q.
	Find(ctx context.Context, q Query) (Element, error)
	// FindAll returns the current matches of q without waiting.
	FindAll(ctx context.Context, q Query) ([]Element, error)
	InsertText(ctx context.Context, text string) error
	Press(ctx context.Context, key Key) error
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a resolved DOM node.
type Element interface {
	Click(ctx context.Context) error
	// Fill replaces the element's value with text.
	Fill(ctx context.Context, text string) error
	Value(ctx context.Context) (string, error)
	Text(ctx context.Context) (string, error)
	Tag(ctx context.Context) (string, error)
	Checked(ctx context.Context) (bool, error)
	// Select picks an <option> by visible text, or by value when byValue.
	Select(ctx context.Context, option string, byValue bool) error
	SetFiles(ctx context.Context, paths []string) error
	// Frame returns the document of an <iframe> element.
	Frame(ctx context.Context) (Page, error)
}
