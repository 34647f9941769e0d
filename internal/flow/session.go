package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vrpilot/internal/dom"
	"vrpilot/internal/logging"
	"vrpilot/internal/sessioncache"
)

// restoreSession installs a valid cookie snapshot and probes the
// dashboard. A probe that ends on the login page clears the snapshot.
func (s *state) restoreSession(ctx context.Context) {
	path := s.cfg.Session.CachePath
	snap, err := sessioncache.Load(path)
	if err != nil {
		if !errors.Is(err, sessioncache.ErrNoSnapshot) {
			logging.Get(logging.CategorySession).Warn("ignoring session snapshot: %v", err)
		}
		return
	}

	now := s.r.now()
	if reason := snap.Reason(s.cfg.Credentials.Email, s.cfg.Target.BaseURL, now, s.cfg.GetSessionTTL()); reason != "" {
		logging.Session("not reusing session snapshot: %s", reason)
		s.audit.SessionEvent(logging.AuditSessionReject, path, reason)
		return
	}
	if err := s.page.SetCookies(ctx, snap.Cookies); err != nil {
		logging.Get(logging.CategorySession).Warn("restore cookies: %v", err)
		return
	}
	if snap.LocalStorage != "" {
		// localStorage is per origin, so the origin must be loaded first.
		if err := s.page.Navigate(ctx, s.cfg.URL("")); err == nil {
			s.page.RestoreLocalStorage(ctx, snap.LocalStorage)
		}
	}
	if err := s.page.Navigate(ctx, s.cfg.URL(s.cfg.Target.DashboardPath)); err != nil {
		logging.Get(logging.CategorySession).Warn("probe dashboard: %v", err)
		return
	}

	if !s.probeDashboard(ctx) {
		logging.Session("session snapshot from %s no longer logs in, clearing it", snap.SavedAt.Format(time.RFC3339))
		s.audit.SessionEvent(logging.AuditSessionReject, path, "dashboard probe ended on the login page")
		if err := sessioncache.Clear(path); err != nil {
			logging.Get(logging.CategorySession).Warn("clear snapshot: %v", err)
		}
		return
	}

	s.authenticated = true
	s.restored = true
	s.sessionSaved = true
	s.res.SessionRestored = true
	logging.Session("restored session for %s saved %s ago", snap.Email, snap.Age(now).Round(time.Minute))
	s.audit.SessionEvent(logging.AuditSessionRestore, path, fmt.Sprintf("saved %s ago", snap.Age(now).Round(time.Minute)))
}

// probeDashboard waits until the page shows either the dashboard or the
// login form and reports whether it was the dashboard.
func (s *state) probeDashboard(ctx context.Context) bool {
	sel := s.cfg.Selectors
	dashboard := dom.NewChain("dashboard", sel.Dashboard...)
	login := dom.NewChain("login form", sel.LoginMarker...)

	var ok bool
	_ = dom.Poll(ctx, 200*time.Millisecond, s.cfg.GetNavigationTimeout(), func(ctx context.Context) (bool, error) {
		if s.onLoginPage(ctx) || dom.PresentNow(ctx, s.page, login) {
			return true, nil
		}
		if dom.PresentNow(ctx, s.page, dashboard) {
			ok = true
			return true, nil
		}
		return false, nil
	})
	return ok
}

// saveSession snapshots the cookies of the target site. It runs once per
// run and never fails the run.
func (s *state) saveSession(ctx context.Context) {
	if !s.cfg.Session.Enabled || s.sessionSaved {
		return
	}
	cookies, err := s.page.Cookies(ctx)
	if err != nil {
		logging.Get(logging.CategorySession).Warn("read cookies: %v", err)
		return
	}
	kept := sessioncache.FilterCookies(cookies, s.cfg.Target.BaseURL)
	if len(kept) == 0 {
		logging.Session("no cookies for %s, session not saved", s.cfg.Host())
		return
	}

	snap := &sessioncache.Snapshot{
		Email:        s.cfg.Credentials.Email,
		BaseURL:      s.cfg.Target.BaseURL,
		Cookies:      kept,
		LocalStorage: s.page.LocalStorage(ctx),
		SavedAt:      s.r.now(),
	}
	if err := sessioncache.Save(s.cfg.Session.CachePath, snap); err != nil {
		logging.Get(logging.CategorySession).Warn("save session: %v", err)
		return
	}
	s.sessionSaved = true
	logging.Session("saved %d of %d cookie(s) to %s", len(kept), len(cookies), s.cfg.Session.CachePath)
	s.audit.SessionEvent(logging.AuditSessionSave, s.cfg.Session.CachePath, fmt.Sprintf("%d cookie(s)", len(kept)))
}
