// Package sessioncache persists authenticated browser cookies so later runs
// can skip login and OTP while the session is still fresh.
package sessioncache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vrpilot/internal/logging"

	"golang.org/x/net/publicsuffix"
)

// ErrNoSnapshot is returned by Load when nothing was saved.
var ErrNoSnapshot = errors.New("no session snapshot")

// Cookie is a browser cookie. Expires is seconds since the epoch; zero or
// negative means a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// Session reports whether the cookie lives only for the browser session.
func (c Cookie) Session() bool {
	return c.Expires <= 0
}

// Expired reports whether a persistent cookie is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	if c.Session() {
		return false
	}
	return now.After(time.Unix(0, int64(c.Expires*float64(time.Second))))
}

// Snapshot is what gets written to disk.
type Snapshot struct {
	Email   string   `json:"email"`
	BaseURL string   `json:"base_url"`
	Cookies []Cookie `json:"cookies"`
	// LocalStorage is the target origin's localStorage as a JSON object.
	LocalStorage string    `json:"local_storage,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Age returns how old the snapshot is at now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

// Valid reports whether the snapshot can be restored for email against
// baseURL: same account, same host, younger than ttl, and holding at least
// one unexpired cookie.
func (s *Snapshot) Valid(email, baseURL string, now time.Time, ttl time.Duration) bool {
	return s.Reason(email, baseURL, now, ttl) == ""
}

// Reason explains why the snapshot is not valid, or returns "".
func (s *Snapshot) Reason(email, baseURL string, now time.Time, ttl time.Duration) string {
	if s == nil {
		return "no snapshot"
	}
	if !strings.EqualFold(strings.TrimSpace(s.Email), strings.TrimSpace(email)) {
		return "saved for a different account"
	}
	if hostOf(s.BaseURL) != hostOf(baseURL) {
		return "saved for a different host"
	}
	if age := s.Age(now); age < 0 || age >= ttl {
		return fmt.Sprintf("older than %s", ttl)
	}
	for _, c := range s.Cookies {
		if !c.Expired(now) {
			return ""
		}
	}
	return "all cookies expired"
}

// Load reads the snapshot at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read session snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return &s, nil
}

// Save writes s to path atomically with owner-only permissions.
func Save(path string, s *Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace session snapshot: %w", err)
	}
	logging.Session("saved %d cookies for %s to %s", len(s.Cookies), s.Email, path)
	return nil
}

// Clear removes the snapshot. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session snapshot: %w", err)
	}
	logging.Session("cleared session snapshot %s", path)
	return nil
}

// FilterCookies keeps the cookies whose domain belongs to the same
// registrable domain (eTLD+1) as baseURL. Third-party cookies (analytics,
// payment providers) are dropped.
func FilterCookies(cookies []Cookie, baseURL string) []Cookie {
	site := registrableDomain(hostOf(baseURL))
	if site == "" {
		return cookies
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if registrableDomain(strings.TrimPrefix(c.Domain, ".")) == site {
			out = append(out, c)
		}
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if host == "" {
		return ""
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// localhost, bare IPs and single-label hosts.
		return host
	}
	return site
}
