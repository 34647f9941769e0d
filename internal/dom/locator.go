// Package dom implements resilient page interaction on top of a minimal
// Page abstraction: ordered selector fallback chains, dropdown selection
// with retries, page-transition detection and manual-intervention hand-off.
package dom

import (
	"fmt"
	"strings"
)

// LocatorKind identifies how a locator value is interpreted.
type LocatorKind string

const (
	KindCSS    LocatorKind = "css"
	KindText   LocatorKind = "text"
	KindTestID LocatorKind = "testid"
	KindLabel  LocatorKind = "label"
	KindXPath  LocatorKind = "xpath"
)

// Locator is one way of finding an element.
type Locator struct {
	Kind  LocatorKind
	Value string
	// AllowHidden accepts elements that are attached but not visible,
	// which is what file inputs behind styled drop zones look like.
	AllowHidden bool
}

// Query is a locator compiled to something a Page can execute.
type Query struct {
	XPath       bool
	Expr        string
	AllowHidden bool
}

// ParseLocator parses "kind=value". A string without a known kind prefix
// is treated as CSS.
func ParseLocator(raw string) Locator {
	raw = strings.TrimSpace(raw)
	if kind, value, ok := strings.Cut(raw, "="); ok {
		switch k := LocatorKind(strings.ToLower(strings.TrimSpace(kind))); k {
		case KindCSS, KindText, KindTestID, KindLabel, KindXPath:
			return Locator{Kind: k, Value: strings.TrimSpace(value)}
		}
	}
	return Locator{Kind: KindCSS, Value: raw}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Kind, l.Value)
}

// Query compiles the locator.
func (l Locator) Query() Query {
	q := Query{AllowHidden: l.AllowHidden}
	switch l.Kind {
	case KindText:
		lit := xpathLiteral(l.Value)
		// Innermost element whose normalized text equals the value.
		q.XPath = true
		q.Expr = fmt.Sprintf(`//*[not(self::script or self::style)][normalize-space(.)=%s][not(*[normalize-space(.)=%s])]`, lit, lit)
	case KindTestID:
		q.Expr = fmt.Sprintf(`[data-testid=%s]`, cssString(l.Value))
	case KindLabel:
		lit := xpathLiteral(l.Value)
		control := `*[self::input or self::select or self::textarea or @role='combobox']`
		q.XPath = true
		q.Expr = fmt.Sprintf(
			`//%[2]s[@id=//label[starts-with(normalize-space(.), %[1]s)]/@for] | //label[starts-with(normalize-space(.), %[1]s)]//%[2]s | //%[2]s[@aria-label=%[1]s]`,
			lit, control)
	case KindXPath:
		q.XPath = true
		q.Expr = l.Value
	default:
		q.Expr = l.Value
	}
	return q
}

// Chain is an ordered list of locators for one logical element. Earlier
// locators win.
type Chain struct {
	Name     string
	Locators []Locator
}

// NewChain builds a chain from raw locator strings.
func NewChain(name string, raw ...string) Chain {
	c := Chain{Name: name, Locators: make([]Locator, 0, len(raw))}
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		c.Locators = append(c.Locators, ParseLocator(r))
	}
	return c
}

// Hidden returns a copy of the chain that accepts invisible elements.
func (c Chain) Hidden() Chain {
	out := Chain{Name: c.Name, Locators: make([]Locator, len(c.Locators))}
	for i, l := range c.Locators {
		l.AllowHidden = true
		out.Locators[i] = l
	}
	return out
}

// With appends extra locators, returning a new chain.
func (c Chain) With(raw ...string) Chain {
	extra := NewChain(c.Name, raw...)
	out := Chain{Name: c.Name, Locators: append(append([]Locator(nil), c.Locators...), extra.Locators...)}
	return out
}

// Empty reports whether the chain has no locators.
func (c Chain) Empty() bool { return len(c.Locators) == 0 }

func (c Chain) String() string {
	parts := make([]string, len(c.Locators))
	for i, l := range c.Locators {
		parts[i] = l.String()
	}
	return fmt.Sprintf("%s[%s]", c.Name, strings.Join(parts, ", "))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

func cssString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// normalizeText collapses whitespace and lowercases for comparisons.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
