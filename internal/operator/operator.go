// Package operator hands control to a human when automation cannot
// proceed on its own.
package operator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"vrpilot/internal/logging"

	"github.com/charmbracelet/lipgloss"
)

// Decision is the operator's answer to an intervention request.
type Decision int

const (
	// Resume means the human fixed the page; retry the action.
	Resume Decision = iota
	// Skip means the human performed the action; move on.
	Skip
	// Abort stops the run.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Resume:
		return "resume"
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Request describes why automation stopped.
type Request struct {
	Step       string
	Action     string
	Reason     string
	Screenshot string // path, optional
}

// Intervener decides how to continue after a failure.
type Intervener interface {
	Intervene(ctx context.Context, req Request) (Decision, error)
}

// FailFast aborts every request. Used when nobody is watching.
type FailFast struct{}

// Intervene implements Intervener.
func (FailFast) Intervene(_ context.Context, req Request) (Decision, error) {
	logging.Get(logging.CategoryOperator).Warn("no operator available, aborting %s: %s", req.Step, req.Reason)
	return Abort, nil
}

var (
	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Console asks a human on a terminal.
type Console struct {
	in  *Terminal
	out io.Writer
}

// NewConsole creates a console operator reading answers from in.
func NewConsole(in *Terminal, out io.Writer) *Console {
	return &Console{in: in, out: out}
}

// Intervene prints the request and waits for an answer. An empty line or
// "r" resumes, "s" skips, "a" aborts. EOF and context cancellation abort.
func (c *Console) Intervene(ctx context.Context, req Request) (Decision, error) {
	logging.Get(logging.CategoryOperator).Info("intervention requested in %s: %s", req.Step, req.Reason)
	fmt.Fprintln(c.out, c.banner(req))

	for {
		fmt.Fprint(c.out, "[r]esume / [s]kip / [a]bort > ")
		line, err := c.in.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Abort, nil
			}
			return Abort, err
		}
		if d, ok := parseDecision(line); ok {
			logging.Get(logging.CategoryOperator).Info("operator chose %s for %s", d, req.Step)
			return d, nil
		}
		fmt.Fprintf(c.out, "unrecognised answer %q\n", line)
	}
}

func (c *Console) banner(req Request) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Manual intervention needed"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "step:   %s\n", req.Step)
	if req.Action != "" {
		fmt.Fprintf(&b, "action: %s\n", req.Action)
	}
	fmt.Fprintf(&b, "reason: %s", req.Reason)
	if req.Screenshot != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("screenshot: " + req.Screenshot))
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Fix the page in the browser window, then choose how to continue."))
	return bannerStyle.Render(b.String())
}

func parseDecision(answer string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "r", "resume":
		return Resume, true
	case "s", "skip":
		return Skip, true
	case "a", "abort", "q", "quit":
		return Abort, true
	}
	return Abort, false
}

// New picks an operator for the configured mode. An empty mode prompts
// when in is a terminal and fails fast otherwise.
func New(mode string, in *Terminal) Intervener {
	switch mode {
	case "fail":
		return FailFast{}
	case "prompt":
		return NewConsole(in, os.Stderr)
	}
	if in.IsTerminal() {
		return NewConsole(in, os.Stderr)
	}
	return FailFast{}
}
