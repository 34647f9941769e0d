package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/logging"
)

// Artifact file names inside a run's directory.
const (
	FailureScreenshot = "failure.png"
	FailureHTML       = "page.html"
	BrowserEvents     = "browser-events.json"
	SummaryFile       = "summary.json"
	AuditFile         = "audit.jsonl"
)

func artifactsDir(cfg *config.Config, runID string) string {
	return filepath.Join(cfg.Artifacts.Dir, runID)
}

// snapshot saves a screenshot taken for an intervention request and
// returns its path, or "" when screenshots are off or fail.
func (s *state) snapshot(ctx context.Context, label string) string {
	if !s.cfg.Artifacts.ScreenshotOnFailure {
		return ""
	}
	png, err := s.page.Screenshot(ctx)
	if err != nil {
		logging.FlowDebug("intervention screenshot: %v", err)
		return ""
	}
	s.shots++
	path := filepath.Join(s.res.ArtifactsDir, fmt.Sprintf("intervention-%02d-%s.png", s.shots, slug(label)))
	if err := writeFile(path, png); err != nil {
		logging.FlowDebug("intervention screenshot: %v", err)
		return ""
	}
	return path
}

// captureFailure writes a screenshot, the page HTML and recent browser
// events. The run context may be expired by now.
func (s *state) captureFailure(ctx context.Context, step string) {
	if !s.cfg.Artifacts.ScreenshotOnFailure {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	dir := s.res.ArtifactsDir
	written := func(name string, err error) {
		if err != nil {
			logging.Get(logging.CategoryFlow).Warn("failure artifact %s: %v", name, err)
			return
		}
		s.audit.Artifact(step, filepath.Join(dir, name))
	}
	if png, err := s.page.Screenshot(cctx); err != nil {
		written(FailureScreenshot, err)
	} else {
		written(FailureScreenshot, writeFile(filepath.Join(dir, FailureScreenshot), png))
	}
	if html, err := s.page.HTML(cctx); err != nil {
		written(FailureHTML, err)
	} else {
		written(FailureHTML, writeFile(filepath.Join(dir, FailureHTML), []byte(html)))
	}
	if s.r.events != nil {
		written(BrowserEvents, writeJSON(filepath.Join(dir, BrowserEvents), s.r.events.Events()))
	}
	logging.Flow("failure artifacts for %s written to %s", step, dir)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifacts directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// slug turns an action description into a file name fragment.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "action"
	}
	return out
}
