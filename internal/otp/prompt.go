package otp

import (
	"context"
	"fmt"
	"io"
	"time"

	"vrpilot/internal/logging"
	"vrpilot/internal/operator"
)

const maxPromptTries = 3

// Prompt asks the operator for the code. On a terminal the input is not
// echoed; otherwise a plain line is read.
type Prompt struct {
	in      *operator.Terminal
	out     io.Writer
	timeout time.Duration
}

// NewPrompt returns a prompt provider reading from in, which it may share
// with the console operator.
func NewPrompt(in *operator.Terminal, out io.Writer, timeout time.Duration) *Prompt {
	return &Prompt{in: in, out: out, timeout: timeout}
}

func (p *Prompt) Code(ctx context.Context, purpose Purpose) (string, error) {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	for try := 1; try <= maxPromptTries; try++ {
		fmt.Fprintf(p.out, "Enter the one-time code for %s: ", purpose)
		line, err := p.in.ReadSecret(ctx)
		if p.in.IsTerminal() {
			fmt.Fprintln(p.out)
		}
		if err != nil {
			return "", fmt.Errorf("read %s code: %w", purpose, err)
		}
		code, err := Validate(line)
		if err == nil {
			logging.OTP("operator entered %s code", purpose)
			return code, nil
		}
		fmt.Fprintf(p.out, "%v\n", err)
	}
	return "", fmt.Errorf("no valid %s code after %d tries: %w", purpose, maxPromptTries, ErrInvalidCode)
}
