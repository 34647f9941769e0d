// Package domtest provides an in-memory dom.Page for tests.
package domtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"vrpilot/internal/dom"
)

// Page is a scriptable fake. Elements are registered under the compiled
// query of a locator string, so tests describe pages in the same syntax
// scenarios use.
type Page struct {
	mu          sync.Mutex
	url         string
	html        string
	elements    map[string][]*Element
	typed       []string
	pressed     []dom.Key
	navigations []string

	// OnNavigate runs after Navigate updates the URL.
	OnNavigate func(p *Page, url string)
	// NavigateErr is returned by Navigate when set.
	NavigateErr error
}

// NewPage returns an empty page at url.
func NewPage(url string) *Page {
	return &Page{url: url, elements: make(map[string][]*Element)}
}

func key(q dom.Query) string {
	if q.XPath {
		return "xpath:" + q.Expr
	}
	return "css:" + q.Expr
}

// Add registers el under the locator string raw and returns el.
func (p *Page) Add(raw string, el *Element) *Element {
	q := dom.ParseLocator(raw).Query()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[key(q)] = append(p.elements[key(q)], el)
	return el
}

// Remove unregisters everything under raw.
func (p *Page) Remove(raw string) {
	q := dom.ParseLocator(raw).Query()
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, key(q))
}

// SetURL changes the current URL.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetHTML sets what HTML returns.
func (p *Page) SetHTML(h string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = h
}

// Typed returns the text inserted via InsertText.
func (p *Page) Typed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.typed...)
}

// Pressed returns the keys pressed.
func (p *Page) Pressed() []dom.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dom.Key(nil), p.pressed...)
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	if p.NavigateErr != nil {
		p.mu.Unlock()
		return p.NavigateErr
	}
	p.url = url
	p.navigations = append(p.navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) match(q dom.Query) []dom.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []dom.Element
	for _, el := range p.elements[key(q)] {
		if el.isHidden() && !q.AllowHidden {
			continue
		}
		out = append(out, el)
	}
	return out
}

func (p *Page) Find(ctx context.Context, q dom.Query) (dom.Element, error) {
	for {
		if els := p.match(q); len(els) > 0 {
			return els[0], nil
		}
		select {
		case <-ctx.Done():
			return nil, dom.ErrNoMatch
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (p *Page) FindAll(_ context.Context, q dom.Query) ([]dom.Element, error) {
	return p.match(q), nil
}

func (p *Page) InsertText(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = append(p.typed, text)
	return nil
}

func (p *Page) Press(_ context.Context, k dom.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pressed = append(p.pressed, k)
	return nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return []byte("png"), nil
}

// Element is a fake DOM node.
type Element struct {
	mu sync.Mutex

	TagName  string
	Label    string // text content
	Val      string
	On       bool // checked
	Hidden   bool
	Options  []string // <option> texts for TagName "select"
	Values   []string // <option> values, parallel to Options
	FrameDoc *Page

	// Rewrite, when set, decides what Fill leaves in the input.
	Rewrite func(typed string) string
	// OnClick runs after each click.
	OnClick func()
	// ClickErr is returned by Click when set.
	ClickErr error

	clicks int
	files  []string
	fills  []string
}

func (e *Element) isHidden() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Hidden
}

// SetHidden toggles visibility.
func (e *Element) SetHidden(h bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hidden = h
}

// SetText changes the element's text content.
func (e *Element) SetText(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Label = s
}

// Clicks returns how often the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Files returns the files last set on the element.
func (e *Element) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.files...)
}

// Fills returns every value written with Fill.
func (e *Element) Fills() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.fills...)
}

// CurrentValue returns the element's value.
func (e *Element) CurrentValue() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Val
}

// IsChecked returns the checked state.
func (e *Element) IsChecked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.On
}

func (e *Element) Click(context.Context) error {
	e.mu.Lock()
	if e.ClickErr != nil {
		err := e.ClickErr
		e.mu.Unlock()
		return err
	}
	e.clicks++
	if e.TagName == "input" {
		e.On = !e.On
	}
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *Element) Fill(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fills = append(e.fills, text)
	if e.Rewrite != nil {
		text = e.Rewrite(text)
	}
	e.Val = text
	return nil
}

func (e *Element) Value(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Val, nil
}

func (e *Element) Text(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Label, nil
}

func (e *Element) Tag(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TagName == "" {
		return "div", nil
	}
	return e.TagName, nil
}

func (e *Element) Checked(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.On, nil
}

func (e *Element) Select(_ context.Context, option string, byValue bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, text := range e.Options {
		value := text
		if i < len(e.Values) {
			value = e.Values[i]
		}
		if byValue && value == option {
			e.Val = value
			return nil
		}
		if !byValue && strings.Contains(strings.ToLower(text), strings.ToLower(option)) {
			e.Val = value
			return nil
		}
	}
	return errors.New("no such option: " + option)
}

func (e *Element) SetFiles(_ context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = append([]string(nil), paths...)
	return nil
}

func (e *Element) Frame(context.Context) (dom.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FrameDoc == nil {
		return nil, errors.New("not an iframe")
	}
	return e.FrameDoc, nil
}
