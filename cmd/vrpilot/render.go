package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/flow"
	"vrpilot/internal/sessioncache"
	"vrpilot/internal/store"
	"vrpilot/internal/summary"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)

	statusStyles = map[store.Status]lipgloss.Style{
		store.StatusSucceeded: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		store.StatusFailed:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		store.StatusAborted:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		store.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func renderStatus(s store.Status) string {
	if st, ok := statusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// renderResult prints what a run did, step by step.
func renderResult(res *flow.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s  %s\n", titleStyle.Render("Run"), res.RunID, res.Scenario, renderStatus(res.Status))
	if res.SessionRestored {
		b.WriteString(dimStyle.Render("login skipped: saved session reused") + "\n")
	}

	steps := newTable("#", "Step", "Kind", "Tries", "Time", "Note")
	for i, s := range res.Steps {
		note := ""
		switch {
		case s.Skipped:
			note = "skipped: " + s.Error
		case s.Error != "":
			note = s.Error
		}
		steps.Row(strconv.Itoa(i+1), s.Name, s.Kind, strconv.Itoa(s.Attempts), formatDuration(s.Duration), truncate(note, 60))
	}
	b.WriteString(steps.String())
	b.WriteString("\n")

	if res.Summary != nil {
		b.WriteString(renderSummary(res.Summary))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "finished in %s, artifacts in %s", formatDuration(res.Duration()), res.ArtifactsDir)
	if res.Error != "" {
		fmt.Fprintf(&b, "\nerror: %s", res.Error)
	}
	return b.String()
}

func renderSummary(s *summary.Summary) string {
	t := newTable("Field", "Value")
	if s.VRID != "" {
		t.Row("VR ID", s.VRID)
	}
	if s.Status != "" {
		t.Row("Status", s.Status)
	}
	for _, f := range s.Fields {
		t.Row(f.Key, truncate(f.Value, 60))
	}
	return t.String()
}

func renderRuns(runs []*store.Run) string {
	t := newTable("ID", "Scenario", "Status", "Started", "Duration", "VR ID")
	now := time.Now()
	for _, r := range runs {
		t.Row(shortID(r.ID), r.Scenario, renderStatus(r.Status), r.StartedAt.Local().Format("2006-01-02 15:04:05"), formatDuration(r.Duration(now)), r.VRID)
	}
	return t.String()
}

func renderRun(r *store.Run) string {
	var b strings.Builder
	t := newTable("", "")
	t.Row("ID", r.ID)
	t.Row("Scenario", r.Scenario)
	t.Row("Status", renderStatus(r.Status))
	t.Row("Account", r.Email)
	t.Row("Target", r.BaseURL)
	t.Row("Started", r.StartedAt.Local().Format(time.RFC3339))
	if !r.FinishedAt.IsZero() {
		t.Row("Finished", r.FinishedAt.Local().Format(time.RFC3339))
	}
	t.Row("Duration", formatDuration(r.Duration(time.Now())))
	if r.VRID != "" {
		t.Row("VR ID", r.VRID)
	}
	if r.Error != "" {
		t.Row("Error", truncate(r.Error, 80))
	}
	if r.ArtifactsDir != "" {
		t.Row("Artifacts", r.ArtifactsDir)
	}
	b.WriteString(t.String())
	if r.Summary != nil && len(r.Summary.Fields) > 0 {
		b.WriteString("\n")
		b.WriteString(renderSummary(r.Summary))
	}
	return b.String()
}

func renderScenarios(scenarios map[string]config.Scenario) string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	t := newTable("Scenario", "Steps", "Description")
	for _, name := range names {
		sc := scenarios[name]
		kinds := make([]string, len(sc.Steps))
		for i, st := range sc.Steps {
			kinds[i] = st.DisplayName()
		}
		t.Row(name, strconv.Itoa(len(sc.Steps)), sc.Description)
		t.Row("", "", dimStyle.Render(truncate(strings.Join(kinds, " > "), 70)))
	}
	return t.String()
}

func renderSnapshot(path string, s *sessioncache.Snapshot, now time.Time, status string) string {
	t := newTable("", "")
	t.Row("File", path)
	t.Row("Account", s.Email)
	t.Row("Target", s.BaseURL)
	t.Row("Saved", fmt.Sprintf("%s (%s ago)", s.SavedAt.Local().Format(time.RFC3339), s.Age(now).Round(time.Minute)))
	t.Row("Cookies", strconv.Itoa(len(s.Cookies)))
	t.Row("Status", status)
	return t.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
