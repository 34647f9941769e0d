package otp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vrpilot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// File waits for a code to be written to Path, e.g. by a mail hook or by
// hand with `echo 123456 > otp.txt`. Only writes made after the request
// count. The file is truncated once the code is consumed.
type File struct {
	Path    string
	Timeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (f *File) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *File) Code(ctx context.Context, purpose Purpose) (string, error) {
	if f.Path == "" {
		return "", errors.New("otp file path not configured")
	}
	ctx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()

	requested := f.now()
	path := filepath.Clean(f.Path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create otp dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files instead of writing them.
	if err := watcher.Add(dir); err != nil {
		return "", fmt.Errorf("watch %s: %w", dir, err)
	}
	logging.OTP("waiting for %s code in %s", purpose, path)

	// Some filesystems do not deliver events.
	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		if code, ok := f.read(path, requested); ok {
			logging.OTP("read %s code from %s", purpose, path)
			return code, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for %s code in %s: %w", purpose, path, ctx.Err())
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", errors.New("otp watcher closed")
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", errors.New("otp watcher closed")
			}
			logging.Get(logging.CategoryOTP).Warn("otp watcher: %v", err)
		case <-poll.C:
		}
	}
}

// read returns a valid code written after since and truncates the file.
func (f *File) read(path string, since time.Time) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.ModTime().Before(since) || info.Size() == 0 {
		return "", false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	code, err := Validate(string(b))
	if err != nil {
		// Partial writes show up as short codes; wait for the next event.
		logging.Get(logging.CategoryOTP).Debug("ignoring %s: %v", path, err)
		return "", false
	}
	if err := os.Truncate(path, 0); err != nil {
		logging.Get(logging.CategoryOTP).Warn("could not truncate %s: %v", path, err)
	}
	return code, true
}
