// Package config loads the vrpilot YAML configuration: the target
// application, credentials, browser settings, selector chains and the
// scenarios that describe each Verification Request flow.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "vrpilot.yaml"

// Config holds all vrpilot configuration.
type Config struct {
	Target       TargetConfig        `yaml:"target"`
	Credentials  CredentialsConfig   `yaml:"credentials"`
	OTP          OTPConfig           `yaml:"otp"`
	Browser      BrowserConfig       `yaml:"browser"`
	Session      SessionConfig       `yaml:"session"`
	Intervention InterventionConfig  `yaml:"intervention"`
	Retry        RetryConfig         `yaml:"retry"`
	Artifacts    ArtifactsConfig     `yaml:"artifacts"`
	Store        StoreConfig         `yaml:"store"`
	Logging      LoggingConfig       `yaml:"logging"`
	Selectors    Selectors           `yaml:"selectors"`
	Scenarios    map[string]Scenario `yaml:"scenarios"`

	// RunTimeout bounds a whole scenario run.
	RunTimeout string `yaml:"run_timeout"`
}

// TargetConfig locates the application under automation.
type TargetConfig struct {
	BaseURL       string `yaml:"base_url"`
	LoginPath     string `yaml:"login_path"`
	DashboardPath string `yaml:"dashboard_path"`
}

// CredentialsConfig holds the login identity.
type CredentialsConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// OTP modes.
const (
	OTPModePrompt = "prompt"
	OTPModeStatic = "static"
	OTPModeFile   = "file"
)

// OTPConfig selects where one-time passwords come from.
type OTPConfig struct {
	Mode    string `yaml:"mode"`
	Value   string `yaml:"value"`
	File    string `yaml:"file"`
	Timeout string `yaml:"timeout"`
	// Window is how long the otp step waits for an OTP input to appear
	// before deciding none was requested.
	Window string `yaml:"window"`
}

// BrowserConfig configures the rod-driven Chrome instance.
type BrowserConfig struct {
	Headless          bool     `yaml:"headless"`
	Bin               string   `yaml:"bin"`
	Flags             []string `yaml:"flags"`
	DebuggerURL       string   `yaml:"debugger_url"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	ElementTimeout    string   `yaml:"element_timeout"`
	SlowMotion        string   `yaml:"slow_motion"`
	Trace             bool     `yaml:"trace"`
	EventThrottleMs   int      `yaml:"event_throttle_ms"`
}

// SessionConfig controls the cookie snapshot used to skip login.
type SessionConfig struct {
	Enabled   bool   `yaml:"enabled"`
	CachePath string `yaml:"cache_path"`
	TTL       string `yaml:"ttl"`
}

// Intervention modes.
const (
	InterventionPrompt = "prompt"
	InterventionFail   = "fail"
)

// InterventionConfig decides what happens when automation gets stuck.
// An empty mode means prompt on a terminal, fail otherwise.
type InterventionConfig struct {
	Mode string `yaml:"mode"`
}

// RetryConfig tunes dropdown and form-step retries.
type RetryConfig struct {
	Attempts        int    `yaml:"attempts"`
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// ArtifactsConfig controls failure screenshots and summary output.
type ArtifactsConfig struct {
	Dir                 string `yaml:"dir"`
	ScreenshotOnFailure bool   `yaml:"screenshot_on_failure"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the categorized file logs.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	DebugMode  bool            `yaml:"debug_mode"` // false = no category files
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			LoginPath:     "/login",
			DashboardPath: "/dashboard",
		},
		OTP: OTPConfig{
			Mode:    OTPModePrompt,
			Timeout: "3m",
			Window:  "5s",
		},
		Browser: BrowserConfig{
			Headless:          false,
			ViewportWidth:     1440,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
			ElementTimeout:    "5s",
			EventThrottleMs:   100,
		},
		Session: SessionConfig{
			Enabled:   true,
			CachePath: filepath.Join(".vrpilot", "session.json"),
			TTL:       "24h",
		},
		Retry: RetryConfig{
			Attempts:        3,
			InitialInterval: "500ms",
			MaxInterval:     "5s",
		},
		Artifacts: ArtifactsConfig{
			Dir:                 filepath.Join(".vrpilot", "artifacts"),
			ScreenshotOnFailure: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(".vrpilot", "runs.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(".vrpilot", "logs"),
		},
		Selectors:  DefaultSelectors(),
		Scenarios:  map[string]Scenario{},
		RunTimeout: "15m",
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandScenarioEnv()
	cfg.Selectors.fillDefaults()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Credentials may live in the file.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VRPILOT_BASE_URL"); v != "" {
		c.Target.BaseURL = v
	}
	if v := os.Getenv("VRPILOT_EMAIL"); v != "" {
		c.Credentials.Email = v
	}
	if v := os.Getenv("VRPILOT_PASSWORD"); v != "" {
		c.Credentials.Password = v
	}
	if v := os.Getenv("VRPILOT_OTP"); v != "" {
		c.OTP.Mode = OTPModeStatic
		c.OTP.Value = v
	}
	if v := os.Getenv("VRPILOT_DEBUGGER_URL"); v != "" {
		c.Browser.DebuggerURL = v
	}
	if v := os.Getenv("VRPILOT_HEADLESS"); v != "" {
		c.Browser.Headless = v == "1" || strings.EqualFold(v, "true")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Target.BaseURL == "" {
		errs = append(errs, errors.New("target.base_url is required"))
	} else if u, err := url.Parse(c.Target.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("target.base_url %q is not an absolute URL", c.Target.BaseURL))
	}

	switch c.OTP.Mode {
	case OTPModePrompt:
	case OTPModeStatic:
		if c.OTP.Value == "" {
			errs = append(errs, errors.New("otp.value is required in static mode"))
		}
	case OTPModeFile:
		if c.OTP.File == "" {
			errs = append(errs, errors.New("otp.file is required in file mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown otp.mode %q", c.OTP.Mode))
	}

	switch c.Intervention.Mode {
	case "", InterventionPrompt, InterventionFail:
	default:
		errs = append(errs, fmt.Errorf("unknown intervention.mode %q", c.Intervention.Mode))
	}

	if c.Retry.Attempts < 1 {
		errs = append(errs, fmt.Errorf("retry.attempts must be >= 1, got %d", c.Retry.Attempts))
	}

	durations := map[string]string{
		"otp.timeout":                c.OTP.Timeout,
		"otp.window":                 c.OTP.Window,
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.element_timeout":    c.Browser.ElementTimeout,
		"browser.slow_motion":        c.Browser.SlowMotion,
		"session.ttl":                c.Session.TTL,
		"retry.initial_interval":     c.Retry.InitialInterval,
		"retry.max_interval":         c.Retry.MaxInterval,
		"run_timeout":                c.RunTimeout,
	}
	for key, raw := range durations {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	for name, sc := range c.Scenarios {
		if err := sc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("scenario %q: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

// Scenario returns a named scenario.
func (c *Config) Scenario(name string) (Scenario, bool) {
	sc, ok := c.Scenarios[name]
	return sc, ok
}

// URL joins a path onto the target base URL.
func (c *Config) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(c.Target.BaseURL, "/")
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// Host returns the host of the target base URL.
func (c *Config) Host() string {
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// GetRunTimeout returns the whole-run deadline.
func (c *Config) GetRunTimeout() time.Duration {
	return parseDuration(c.RunTimeout, 15*time.Minute)
}

// GetNavigationTimeout returns the page navigation timeout.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetElementTimeout returns how long each locator in a chain is tried.
func (c *Config) GetElementTimeout() time.Duration {
	return parseDuration(c.Browser.ElementTimeout, 5*time.Second)
}

// GetSlowMotion returns the delay rod inserts between input actions.
func (c *Config) GetSlowMotion() time.Duration {
	return parseDuration(c.Browser.SlowMotion, 0)
}

// GetSessionTTL returns how long a cookie snapshot stays usable.
func (c *Config) GetSessionTTL() time.Duration {
	return parseDuration(c.Session.TTL, 24*time.Hour)
}

// GetOTPTimeout returns how long an OTP provider may take.
func (c *Config) GetOTPTimeout() time.Duration {
	return parseDuration(c.OTP.Timeout, 3*time.Minute)
}

// GetOTPWindow returns how long to look for an OTP input.
func (c *Config) GetOTPWindow() time.Duration {
	return parseDuration(c.OTP.Window, 5*time.Second)
}

// GetRetryIntervals returns the initial and max backoff intervals.
func (c *Config) GetRetryIntervals() (time.Duration, time.Duration) {
	return parseDuration(c.Retry.InitialInterval, 500*time.Millisecond),
		parseDuration(c.Retry.MaxInterval, 5*time.Second)
}
