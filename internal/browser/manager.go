// Package browser drives Chrome through go-rod and exposes pages that
// satisfy the dom interaction layer.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
)

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string
	Bin               string
	Flags             []string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	SlowMotion        time.Duration
	Trace             bool
	EventThrottleMs   int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ViewportWidth:     1440,
		ViewportHeight:    900,
		NavigationTimeout: 30 * time.Second,
		EventThrottleMs:   100,
	}
}

// FromConfig maps the browser section of the application config.
func FromConfig(c *config.Config) Config {
	b := c.Browser
	return Config{
		DebuggerURL:       b.DebuggerURL,
		Bin:               b.Bin,
		Flags:             b.Flags,
		Headless:          b.Headless,
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		NavigationTimeout: c.GetNavigationTimeout(),
		SlowMotion:        c.GetSlowMotion(),
		Trace:             b.Trace,
		EventThrottleMs:   b.EventThrottleMs,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1440
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// PageInfo describes a page the manager is tracking.
type PageInfo struct {
	ID             string    `json:"id"`
	TargetID       string    `json:"target_id"`
	URL            string    `json:"url"`
	OpenedAt       time.Time `json:"opened_at"`
	LastNavigation time.Time `json:"last_navigation,omitempty"`
}

type trackedPage struct {
	info PageInfo
	page *rod.Page
	stop context.CancelFunc // ends the event stream
}

// Manager owns one Chrome, launched or attached to, and the pages opened
// in it. Each page gets its own incognito context, so a run starts with
// an empty cookie jar.
type Manager struct {
	cfg  Config
	sink EventSink

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher // nil when attached through DebuggerURL
	pages    map[string]*trackedPage
}

// NewManager creates a manager. sink may be nil; browser events are
// always logged.
func NewManager(cfg Config, sink EventSink) *Manager {
	return &Manager{
		cfg:   cfg,
		sink:  sink,
		pages: make(map[string]*trackedPage),
	}
}

// Start connects to Chrome, launching it unless a debugger URL is set.
// Calling it again with a live connection is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.Get(logging.CategoryBrowser).Warn("Lost the Chrome connection, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.pages = make(map[string]*trackedPage)
	}

	controlURL := m.cfg.DebuggerURL
	if controlURL == "" {
		l, u, err := launch(ctx, m.cfg)
		if err != nil {
			return err
		}
		controlURL = u
		m.launcher = l
		logging.Browser("Launched Chrome (headless=%v)", m.cfg.Headless)
	} else {
		logging.Browser("Attaching to Chrome at %s", controlURL)
	}

	b := rod.New().ControlURL(controlURL).SlowMotion(m.cfg.SlowMotion).Trace(m.cfg.Trace)
	if err := b.Connect(); err != nil {
		m.killLauncherLocked()
		return fmt.Errorf("connect to chrome: %w", err)
	}
	m.browser = b
	return nil
}

// launch starts a local Chrome. The process is not tied to ctx: failure
// artifacts are captured after the run context ends, and Shutdown kills it.
func launch(ctx context.Context, cfg Config) (*launcher.Launcher, string, error) {
	l := launcher.New().Context(context.WithoutCancel(ctx)).Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	for _, raw := range cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	u, err := l.Launch()
	if err != nil {
		return nil, "", fmt.Errorf("launch chrome: %w", err)
	}
	return l, u, nil
}

// Shutdown closes tracked pages and the browser. A browser attached to
// through a debugger URL is left running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, tp := range m.pages {
		tp.stop()
		_ = tp.page.Close()
		delete(m.pages, id)
	}

	var err error
	if m.browser != nil && m.launcher != nil {
		err = m.browser.Close()
	}
	m.browser = nil
	m.killLauncherLocked()
	logging.Browser("Browser shut down")
	return err
}

func (m *Manager) killLauncherLocked() {
	if m.launcher == nil {
		return
	}
	m.launcher.Kill()
	m.launcher.Cleanup()
	m.launcher = nil
}

// OpenPage opens a blank page in a fresh incognito context and starts
// streaming its console and network events.
func (m *Manager) OpenPage(ctx context.Context) (*Page, error) {
	m.mu.Lock()
	if err := m.startLocked(ctx); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	b := m.browser
	m.mu.Unlock()
	if b == nil {
		return nil, errors.New("browser not connected")
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		logging.Get(logging.CategoryBrowser).Warn("failed to set viewport: %v", err)
	}

	streamCtx, stop := context.WithCancel(context.Background())
	tp := &trackedPage{
		info: PageInfo{
			ID:       uuid.NewString(),
			TargetID: string(page.TargetID),
			URL:      "about:blank",
			OpenedAt: time.Now(),
		},
		page: page,
		stop: stop,
	}

	m.mu.Lock()
	m.pages[tp.info.ID] = tp
	m.mu.Unlock()

	m.startEventStream(streamCtx, tp.info.ID, page)
	logging.BrowserDebug("Opened page %s (target %s)", tp.info.ID, tp.info.TargetID)

	return &Page{page: page, id: tp.info.ID, mgr: m, navTimeout: m.cfg.GetNavigationTimeout()}, nil
}

// Pages returns the open pages, oldest first.
func (m *Manager) Pages() []PageInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PageInfo, 0, len(m.pages))
	for _, tp := range m.pages {
		out = append(out, tp.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// navigated records the latest top-level URL of a page.
func (m *Manager) navigated(id, url string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tp, ok := m.pages[id]; ok {
		tp.info.URL = url
		tp.info.LastNavigation = at
	}
}

// closePage stops tracking id and closes its page.
func (m *Manager) closePage(id string) error {
	m.mu.Lock()
	tp, ok := m.pages[id]
	delete(m.pages, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	tp.stop()
	return tp.page.Close()
}
