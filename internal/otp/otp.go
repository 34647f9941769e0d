// Package otp supplies one-time passwords for login and e-signing.
package otp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/logging"
	"vrpilot/internal/operator"
)

// Purpose says what a code is for; it is shown to the operator and logged.
type Purpose string

const (
	PurposeLogin Purpose = "login"
	PurposeESign Purpose = "esign"
)

// ErrInvalidCode is returned for codes that are not 4 to 8 digits.
var ErrInvalidCode = errors.New("one-time code must be 4-8 digits")

// Provider returns a one-time code.
type Provider interface {
	Code(ctx context.Context, purpose Purpose) (string, error)
}

// Validate normalizes code (whitespace removed) and checks it is 4-8 digits.
func Validate(code string) (string, error) {
	code = strings.Join(strings.Fields(code), "")
	if len(code) < 4 || len(code) > 8 {
		return "", fmt.Errorf("%w: got %d characters", ErrInvalidCode, len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: contains %q", ErrInvalidCode, r)
		}
	}
	return code, nil
}

// Static always returns the same code. It suits test environments with a
// fixed OTP.
type Static struct {
	Value string
}

func (s Static) Code(_ context.Context, purpose Purpose) (string, error) {
	code, err := Validate(s.Value)
	if err != nil {
		return "", fmt.Errorf("static %s code: %w", purpose, err)
	}
	logging.OTP("using static code for %s", purpose)
	return code, nil
}

// New builds the provider selected by cfg.OTP.Mode. in and out are used by
// the prompt provider.
func New(cfg *config.Config, in *operator.Terminal, out io.Writer) (Provider, error) {
	timeout := cfg.GetOTPTimeout()
	switch cfg.OTP.Mode {
	case config.OTPModeStatic:
		return Static{Value: cfg.OTP.Value}, nil
	case config.OTPModeFile:
		return &File{Path: cfg.OTP.File, Timeout: timeout}, nil
	case config.OTPModePrompt, "":
		return NewPrompt(in, out, timeout), nil
	default:
		return nil, fmt.Errorf("unknown otp mode %q", cfg.OTP.Mode)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
