package otp

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/operator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"123456", "123456", false},
		{" 1234\n", "1234", false},
		{"123 456", "123456", false},
		{"12345678", "12345678", false},
		{"123", "", true},
		{"123456789", "", true},
		{"12a456", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Validate(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatic(t *testing.T) {
	code, err := Static{Value: "000000"}.Code(context.Background(), PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, "000000", code)

	_, err = Static{Value: "nope"}.Code(context.Background(), PurposeESign)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestPrompt_RepromptsOnInvalidInput(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompt(operator.NewTerminal(strings.NewReader("abc\n 654 321 \n")), &out, time.Second)

	code, err := p.Code(context.Background(), PurposeESign)
	require.NoError(t, err)
	assert.Equal(t, "654321", code)
	assert.Equal(t, 2, strings.Count(out.String(), "Enter the one-time code for esign"))
	assert.Contains(t, out.String(), "4-8 digits")
}

func TestPrompt_ReadsSuccessiveCodes(t *testing.T) {
	p := NewPrompt(operator.NewTerminal(strings.NewReader("1111\n2222")), io.Discard, time.Second)

	first, err := p.Code(context.Background(), PurposeLogin)
	require.NoError(t, err)
	second, err := p.Code(context.Background(), PurposeESign)
	require.NoError(t, err)
	assert.Equal(t, "1111", first)
	assert.Equal(t, "2222", second)
}

func TestPrompt_GivesUp(t *testing.T) {
	p := NewPrompt(operator.NewTerminal(strings.NewReader("a\nb\nc\n1234\n")), io.Discard, time.Second)
	_, err := p.Code(context.Background(), PurposeLogin)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestPrompt_EOF(t *testing.T) {
	p := NewPrompt(operator.NewTerminal(strings.NewReader("")), io.Discard, time.Second)
	_, err := p.Code(context.Background(), PurposeLogin)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPrompt_Timeout(t *testing.T) {
	r, w := io.Pipe()
	p := NewPrompt(operator.NewTerminal(r), io.Discard, 20*time.Millisecond)

	_, err := p.Code(context.Background(), PurposeLogin)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Unblock the reader goroutine.
	require.NoError(t, w.Close())
	time.Sleep(10 * time.Millisecond)
}

func TestPrompt_SharesInputWithOperator(t *testing.T) {
	in := operator.NewTerminal(strings.NewReader("123456\ns\n"))

	code, err := NewPrompt(in, io.Discard, time.Second).Code(context.Background(), PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	d, err := operator.NewConsole(in, io.Discard).Intervene(context.Background(), operator.Request{Step: "esign", Reason: "not signed"})
	require.NoError(t, err)
	assert.Equal(t, operator.Skip, d)
}

func TestFile_WaitsForFreshCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.txt")
	require.NoError(t, os.WriteFile(path, []byte("111111\n"), 0600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	f := &File{Path: path, Timeout: 5 * time.Second}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("246810\n"), 0600)
	}()

	code, err := f.Code(context.Background(), PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, "246810", code)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, b, "consumed code must be truncated")
}

func TestFile_IgnoresStaleCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.txt")
	require.NoError(t, os.WriteFile(path, []byte("111111\n"), 0600))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	f := &File{Path: path, Timeout: 100 * time.Millisecond}
	_, err := f.Code(context.Background(), PurposeLogin)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "111111\n", string(b))
}

func TestFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inbox", "otp.txt")
	f := &File{Path: path, Timeout: 5 * time.Second}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("9876"), 0600)
	}()

	code, err := f.Code(context.Background(), PurposeESign)
	require.NoError(t, err)
	assert.Equal(t, "9876", code)
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()

	p, err := New(cfg, operator.NewTerminal(strings.NewReader("")), io.Discard)
	require.NoError(t, err)
	assert.IsType(t, &Prompt{}, p)

	cfg.OTP.Mode = config.OTPModeStatic
	cfg.OTP.Value = "1234"
	p, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Static{Value: "1234"}, p)

	cfg.OTP.Mode = config.OTPModeFile
	cfg.OTP.File = "otp.txt"
	p, err = New(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &File{}, p)

	cfg.OTP.Mode = "sms"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}
