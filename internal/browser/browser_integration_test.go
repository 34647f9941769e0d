//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vrpilot/internal/browser"
	"vrpilot/internal/dom"
	"vrpilot/internal/sessioncache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formPage = `<html><body>
<h1>Applicant</h1>
<label for="first">First name</label><input id="first">
<select id="country"><option value="">Choose</option><option value="EE">Estonia (+372)</option><option value="LV">Latvia (+371)</option></select>
<input id="terms" type="checkbox">
<button data-testid="next-button" onclick="document.querySelector('h1').innerText='Address'">Next</button>
<script>console.error("widget failed to load")</script>
<img src="/missing.png">
</body></html>`

func newServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/form":
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/", Expires: time.Now().Add(time.Hour)})
			fmt.Fprint(w, formPage)
		default:
			http.NotFound(w, r)
		}
	}))
}

func startManager(t *testing.T, sink browser.EventSink) *browser.Manager {
	t.Helper()
	cfg := browser.DefaultConfig()
	cfg.Headless = true
	cfg.NavigationTimeout = 10 * time.Second
	cfg.EventThrottleMs = 0

	sm := browser.NewManager(cfg, sink)
	t.Cleanup(func() {
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, sm.Start(ctx), "Failed to start browser")
	return sm
}

func TestPage_DriverAgainstRealDOM_Integration(t *testing.T) {
	ts := newServer()
	defer ts.Close()

	events := browser.NewEventLog(50)
	sm := startManager(t, events)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	page, err := sm.OpenPage(ctx)
	require.NoError(t, err)
	defer page.Close()

	require.NoError(t, page.Navigate(ctx, ts.URL+"/form"))

	d := &dom.Driver{Page: page, Timeout: 2 * time.Second, TransitionTimeout: 5 * time.Second, Attempts: 2}
	require.NoError(t, d.Fill(ctx, dom.NewChain("first name", "#missing", "label=First name"), "Jane"))
	require.NoError(t, d.Select(ctx, dom.NewChain("country", "#country"), "Latvia (+371)"))
	country, _, err := dom.Resolve(ctx, page, dom.NewChain("country", "#country"), time.Second)
	require.NoError(t, err)
	cv, err := country.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LV", cv)
	require.NoError(t, d.Check(ctx, dom.NewChain("terms", "#terms"), true))
	require.NoError(t, d.Advance(ctx, dom.NewChain("next", "testid=next-button")))

	el, _, err := dom.Resolve(ctx, page, dom.NewChain("first", "#first"), time.Second)
	require.NoError(t, err)
	v, err := el.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jane", v)

	cookies, err := page.Cookies(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cookies)
	assert.Equal(t, "sid", cookies[0].Name)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	require.Eventually(t, func() bool {
		var console, http404 bool
		for _, ev := range events.Events() {
			console = console || ev.Kind == browser.EventConsole
			http404 = http404 || (ev.Kind == browser.EventHTTPError && ev.Status == http.StatusNotFound)
		}
		return console && http404
	}, 10*time.Second, 100*time.Millisecond)

	require.Eventually(t, func() bool {
		pages := sm.Pages()
		return len(pages) == 1 && pages[0].ID == page.ID() && strings.HasSuffix(pages[0].URL, "/form")
	}, 5*time.Second, 50*time.Millisecond, "navigation should be tracked")
}

func TestPage_CookiesCarryToNewPage_Integration(t *testing.T) {
	ts := newServer()
	defer ts.Close()

	sm := startManager(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	first, err := sm.OpenPage(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Navigate(ctx, ts.URL+"/form"))
	cookies, err := first.Cookies(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sm.OpenPage(ctx)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetCookies(ctx, sessioncache.FilterCookies(cookies, ts.URL)))
	require.NoError(t, second.Navigate(ctx, ts.URL+"/form"))
	got, err := second.Cookies(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}
