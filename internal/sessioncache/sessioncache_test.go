package sessioncache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func epoch(t time.Time) float64 {
	return float64(t.Unix())
}

func freshSnapshot() *Snapshot {
	return &Snapshot{
		Email:   "Ops@Example.com",
		BaseURL: "https://portal.example.com",
		SavedAt: now.Add(-time.Hour),
		Cookies: []Cookie{
			{Name: "sid", Value: "abc", Domain: "portal.example.com", Path: "/", Expires: epoch(now.Add(time.Hour))},
		},
	}
}

func TestSnapshot_Valid(t *testing.T) {
	ttl := 24 * time.Hour
	base := "https://portal.example.com/app"

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		email  string
		want   string
	}{
		{"fresh", func(*Snapshot) {}, " ops@example.com ", ""},
		{"other account", func(*Snapshot) {}, "someone@example.com", "saved for a different account"},
		{"other host", func(s *Snapshot) { s.BaseURL = "https://staging.example.com" }, "ops@example.com", "saved for a different host"},
		{"too old", func(s *Snapshot) { s.SavedAt = now.Add(-25 * time.Hour) }, "ops@example.com", "older than 24h0m0s"},
		{"exactly ttl", func(s *Snapshot) { s.SavedAt = now.Add(-ttl) }, "ops@example.com", "older than 24h0m0s"},
		{"from the future", func(s *Snapshot) { s.SavedAt = now.Add(time.Hour) }, "ops@example.com", "older than 24h0m0s"},
		{"expired cookies", func(s *Snapshot) { s.Cookies[0].Expires = epoch(now.Add(-time.Minute)) }, "ops@example.com", "all cookies expired"},
		{"no cookies", func(s *Snapshot) { s.Cookies = nil }, "ops@example.com", "all cookies expired"},
		{"session cookie", func(s *Snapshot) { s.Cookies[0].Expires = 0 }, "ops@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := freshSnapshot()
			tt.mutate(s)
			assert.Equal(t, tt.want, s.Reason(tt.email, base, now, ttl))
			assert.Equal(t, tt.want == "", s.Valid(tt.email, base, now, ttl))
		})
	}

	var missing *Snapshot
	assert.False(t, missing.Valid("ops@example.com", base, now, ttl))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	want := freshSnapshot()

	require.NoError(t, Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	first := freshSnapshot()
	require.NoError(t, Save(path, first))

	second := freshSnapshot()
	second.Email = "other@example.com"
	require.NoError(t, Save(path, second))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other@example.com", got.Email)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.json"))
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))
	_, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, Save(path, freshSnapshot()))

	require.NoError(t, Clear(path))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, Clear(path), "clearing twice is fine")
}

func TestFilterCookies(t *testing.T) {
	cookies := []Cookie{
		{Name: "sid", Domain: "portal.example.com"},
		{Name: "sso", Domain: ".example.com"},
		{Name: "_ga", Domain: ".google-analytics.com"},
		{Name: "psp", Domain: "checkout.payments.test"},
		{Name: "evil", Domain: "example.com.evil.io"},
	}

	got := FilterCookies(cookies, "https://portal.example.com/login")
	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"sid", "sso"}, names)
}

func TestFilterCookies_PublicSuffixHosts(t *testing.T) {
	// github.io is a public suffix: sibling sites must not share cookies.
	cookies := []Cookie{
		{Name: "mine", Domain: "team.github.io"},
		{Name: "theirs", Domain: "other.github.io"},
	}
	got := FilterCookies(cookies, "https://team.github.io")
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].Name)
}

func TestFilterCookies_Localhost(t *testing.T) {
	cookies := []Cookie{{Name: "sid", Domain: "localhost"}, {Name: "x", Domain: "example.com"}}
	got := FilterCookies(cookies, "http://localhost:8080")
	require.Len(t, got, 1)
	assert.Equal(t, "sid", got[0].Name)
}

func TestCookie_Expired(t *testing.T) {
	assert.False(t, Cookie{}.Expired(now))
	assert.True(t, Cookie{Expires: epoch(now.Add(-time.Second))}.Expired(now))
	assert.False(t, Cookie{Expires: epoch(now.Add(time.Second))}.Expired(now))
}
