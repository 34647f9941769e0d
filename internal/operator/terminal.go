package operator

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Terminal is the one input stream every prompt of a run reads from. At
// most one read is outstanding; a line read for a caller that gave up is
// handed to the next caller.
type Terminal struct {
	in  *bufio.Reader
	fd  int
	tty bool

	mu      sync.Mutex
	reading bool
	results chan termResult
}

type termResult struct {
	line   string
	secret bool
	err    error
}

// NewTerminal wraps in. Secrets are read without echo when in is a tty.
func NewTerminal(in io.Reader) *Terminal {
	t := &Terminal{in: bufio.NewReader(in), fd: -1, results: make(chan termResult, 1)}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.tty = true
	}
	return t
}

// IsTerminal reports whether the input is an interactive terminal.
func (t *Terminal) IsTerminal() bool {
	return t != nil && t.tty
}

// ReadLine returns the next line, trimmed.
func (t *Terminal) ReadLine(ctx context.Context) (string, error) {
	return t.read(ctx, false)
}

// ReadSecret is ReadLine without echo.
func (t *Terminal) ReadSecret(ctx context.Context) (string, error) {
	return t.read(ctx, true)
}

func (t *Terminal) read(ctx context.Context, secret bool) (string, error) {
	if t == nil {
		return "", io.EOF
	}
	for {
		t.mu.Lock()
		if !t.reading && len(t.results) == 0 {
			t.reading = true
			go t.fill(secret)
		}
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case r := <-t.results:
			if r.secret && !secret && r.err == nil {
				// A code typed for an abandoned prompt is not an answer.
				continue
			}
			return r.line, r.err
		}
	}
}

func (t *Terminal) fill(secret bool) {
	var r termResult
	if secret && t.tty {
		b, err := term.ReadPassword(t.fd)
		r = termResult{line: strings.TrimSpace(string(b)), secret: true, err: err}
	} else {
		line, err := t.in.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		r = termResult{line: strings.TrimSpace(line), secret: secret, err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.reading = false
	t.results <- r
}
