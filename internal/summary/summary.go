// Package summary extracts the key facts of a submitted verification
// request from the final page.
package summary

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"vrpilot/internal/dom"

	"github.com/PuerkitoBio/goquery"
)

// Field is one labelled value shown on the page.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Summary is what a run reports once the request is submitted.
type Summary struct {
	VRID        string    `json:"vr_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	URL         string    `json:"url"`
	Fields      []Field   `json:"fields"`
	ExtractedAt time.Time `json:"extracted_at"`
}

var (
	idKey     = regexp.MustCompile(`(?i)reference|request\s*id|vr\s*id`)
	statusKey = regexp.MustCompile(`(?i)status`)
	idSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{3,}$`)
	digit     = regexp.MustCompile(`[0-9]`)
)

// Extract reads key/value pairs from html. When scope selectors are given
// and one matches, only that part of the page is read.
func Extract(html, pageURL string, now time.Time, scope ...string) (*Summary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse summary page: %w", err)
	}

	root := doc.Selection
	for _, raw := range scope {
		loc := dom.ParseLocator(raw)
		if loc.Kind != dom.KindCSS && loc.Kind != dom.KindTestID {
			continue
		}
		if sel := doc.Find(loc.Query().Expr); sel.Length() > 0 {
			root = sel.First()
			break
		}
	}

	s := &Summary{URL: pageURL, ExtractedAt: now}
	c := collector{seen: make(map[string]bool)}

	root.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		if dd := dt.Next(); dd.Is("dd") {
			c.add(dt.Text(), dd.Text())
		}
	})
	root.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("th, td")
		if cells.Length() == 2 {
			c.add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})
	root.Find(`[data-testid$="-label"]`).Each(func(_ int, label *goquery.Selection) {
		id, _ := label.Attr("data-testid")
		base := strings.TrimSuffix(id, "-label")
		value := root.Find(fmt.Sprintf(`[data-testid="%s-value"]`, base)).First()
		if value.Length() > 0 {
			c.add(label.Text(), value.Text())
		}
	})
	s.Fields = c.fields

	for _, f := range s.Fields {
		if s.VRID == "" && idKey.MatchString(f.Key) {
			s.VRID = f.Value
		}
		if s.Status == "" && statusKey.MatchString(f.Key) {
			s.Status = f.Value
		}
	}
	if s.VRID == "" {
		s.VRID = idFromURL(pageURL)
	}
	return s, nil
}

type collector struct {
	seen   map[string]bool
	fields []Field
}

func (c *collector) add(key, value string) {
	key = NormalizeKey(key)
	if key == "" || c.seen[strings.ToLower(key)] {
		return
	}
	c.seen[strings.ToLower(key)] = true
	c.fields = append(c.fields, Field{Key: key, Value: collapse(value)})
}

// NormalizeKey trims, collapses whitespace and strips a trailing colon.
func NormalizeKey(key string) string {
	key = collapse(key)
	return strings.TrimSpace(strings.TrimSuffix(key, ":"))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// idFromURL returns the last path segment when it looks like an id.
func idFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if idSegment.MatchString(seg) && digit.MatchString(seg) {
		return seg
	}
	return ""
}

// Get returns the value for key, matched case-insensitively after
// normalization.
func (s *Summary) Get(key string) (string, bool) {
	key = NormalizeKey(key)
	for _, f := range s.Fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the fields as a map.
func (s *Summary) Map() map[string]string {
	m := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		m[f.Key] = f.Value
	}
	return m
}
