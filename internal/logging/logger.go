// Package logging provides categorized logging for vrpilot.
//
// Every category logs through the base zap logger installed by the CLI.
// When debug mode is enabled each category additionally gets its own file
// under the configured log directory (<date>_<category>.log).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config
	CategoryBrowser  Category = "browser"  // Chrome lifecycle, console, network
	CategoryDOM      Category = "dom"      // Selector resolution, dropdowns, transitions
	CategoryFlow     Category = "flow"     // Scenario and step execution
	CategorySession  Category = "session"  // Cookie snapshot reuse
	CategoryOTP      Category = "otp"      // One-time password retrieval
	CategoryOperator Category = "operator" // Manual intervention
	CategoryStore    Category = "store"    // Run history
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	JSONFormat bool
	DebugMode  bool
	Dir        string
	Categories map[string]bool
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	file     *os.File
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	cfg     Config
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers = make(map[Category]*Logger)
)

// Initialize installs the base logger and the category configuration.
// It may be called again; previously opened category files are closed.
func Initialize(c Config, baseLogger *zap.Logger) error {
	CloseAll()

	mu.Lock()
	defer mu.Unlock()

	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}
	base = baseLogger
	cfg = c

	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	if !c.DebugMode {
		return nil
	}
	if c.Dir == "" {
		return fmt.Errorf("log directory required in debug mode")
	}
	if err := os.MkdirAll(c.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// IsCategoryEnabled reports whether a category gets its own file.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !cfg.DebugMode {
		return false
	}
	if cfg.Categories == nil {
		return true
	}
	enabled, exists := cfg.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for a category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	core := base.Core()
	var file *os.File
	if categoryEnabledLocked(category) {
		date := time.Now().Format("2006-01-02")
		path := filepath.Join(cfg.Dir, fmt.Sprintf("%s_%s.log", date, category))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", path, err)
		} else {
			file = f
			core = zapcore.NewTee(core, zapcore.NewCore(fileEncoder(), zapcore.AddSync(f), level))
		}
	}

	l := &Logger{
		category: category,
		sugar:    zap.New(core).Named(string(category)).Sugar(),
		file:     file,
	}
	loggers[category] = l
	return l
}

func fileEncoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.JSONFormat {
		return zapcore.NewJSONEncoder(ec)
	}
	return zapcore.NewConsoleEncoder(ec)
}

// Zap exposes the underlying structured logger.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// With returns a logger carrying extra key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// CloseAll flushes and closes category files (call at shutdown).
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()

	for _, l := range loggers {
		_ = l.sugar.Sync()
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})         { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})     { Get(CategoryBoot).Warn(format, args...) }
func Browser(format string, args ...interface{})      { Get(CategoryBrowser).Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }
func DOM(format string, args ...interface{})          { Get(CategoryDOM).Info(format, args...) }
func DOMDebug(format string, args ...interface{})     { Get(CategoryDOM).Debug(format, args...) }
func Flow(format string, args ...interface{})         { Get(CategoryFlow).Info(format, args...) }
func FlowDebug(format string, args ...interface{})    { Get(CategoryFlow).Debug(format, args...) }
func Session(format string, args ...interface{})      { Get(CategorySession).Info(format, args...) }
func OTP(format string, args ...interface{})          { Get(CategoryOTP).Info(format, args...) }
func Store(format string, args ...interface{})        { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})   { Get(CategoryStore).Debug(format, args...) }

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}
