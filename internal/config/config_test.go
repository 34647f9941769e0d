package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
target:
  base_url: https://staging.example.com
credentials:
  email: jane@example.com
otp:
  mode: static
  value: "123456"
session:
  ttl: 12h
selectors:
  email: ["#login-email"]
scenarios:
  individual:
    description: Individual applicant
    steps:
      - kind: login
      - kind: otp
      - kind: navigate
        path: /vr/new
      - kind: form
        name: applicant
        fields:
          - {label: First name, kind: text, selectors: ["#firstName"], value: "${VRPILOT_TEST_NAME}"}
          - {label: Born, kind: date, selectors: ["#dob"], value: "1990-04-01", layout: "02/01/2006"}
      - kind: documents
        files:
          - {name: passport, selectors: ["input[type=file]"], path: "${VRPILOT_TEST_DIR}/passport.pdf"}
      - kind: summary
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vrpilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected Attempts=3, got %d", cfg.Retry.Attempts)
	}
	if cfg.GetSessionTTL() != 24*time.Hour {
		t.Errorf("expected session TTL 24h, got %s", cfg.GetSessionTTL())
	}
	if !cfg.Session.Enabled {
		t.Error("session cache should be enabled by default")
	}
	if len(cfg.Selectors.Next) == 0 {
		t.Error("default next chain is empty")
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("VRPILOT_BASE_URL", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/login", cfg.Target.LoginPath)
	assert.Empty(t, cfg.Scenarios)
}

func TestLoad_ParsesScenarioAndExpandsEnv(t *testing.T) {
	t.Setenv("VRPILOT_TEST_NAME", "Jane")
	t.Setenv("VRPILOT_TEST_DIR", "/docs")
	t.Setenv("VRPILOT_OTP", "")
	t.Setenv("VRPILOT_EMAIL", "")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	sc, ok := cfg.Scenario("individual")
	require.True(t, ok)
	require.Len(t, sc.Steps, 6)

	form := sc.Steps[3]
	assert.Equal(t, "applicant", form.DisplayName())
	assert.Equal(t, "Jane", form.Fields[0].Value)
	assert.Equal(t, "/docs/passport.pdf", sc.Steps[4].Files[0].Path)

	assert.Equal(t, 12*time.Hour, cfg.GetSessionTTL())
	assert.Equal(t, []string{"#login-email"}, cfg.Selectors.Email)
	// Chains the file did not mention keep their defaults.
	assert.Equal(t, DefaultSelectors().Password, cfg.Selectors.Password)
	assert.True(t, cfg.Selectors.TypeToFilter)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("VRPILOT_BASE_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "vrpilot.yaml")

	cfg := DefaultConfig()
	cfg.Target.BaseURL = "https://app.example.com"
	cfg.Scenarios["quick"] = Scenario{Steps: []StepSpec{{Kind: StepLogin}}}
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", loaded.Target.BaseURL)
	assert.Len(t, loaded.Scenarios["quick"].Steps, 1)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Target.BaseURL = "" },
			wantErr: "base_url is required",
		},
		{
			name:    "relative base url",
			mutate:  func(c *Config) { c.Target.BaseURL = "/app" },
			wantErr: "not an absolute URL",
		},
		{
			name:    "static otp without value",
			mutate:  func(c *Config) { c.OTP.Mode = OTPModeStatic },
			wantErr: "otp.value is required",
		},
		{
			name:    "unknown intervention",
			mutate:  func(c *Config) { c.Intervention.Mode = "shrug" },
			wantErr: "unknown intervention.mode",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Session.TTL = "a day" },
			wantErr: "session.ttl",
		},
		{
			name: "unknown step kind",
			mutate: func(c *Config) {
				c.Scenarios["x"] = Scenario{Steps: []StepSpec{{Kind: "teleport"}}}
			},
			wantErr: `unknown kind "teleport"`,
		},
		{
			name: "field without selectors",
			mutate: func(c *Config) {
				c.Scenarios["x"] = Scenario{Steps: []StepSpec{{
					Kind:   StepForm,
					Fields: []FieldSpec{{Label: "Name", Kind: FieldText}},
				}}}
			},
			wantErr: `field "Name" has no selectors`,
		},
		{
			name: "bad date value",
			mutate: func(c *Config) {
				c.Scenarios["x"] = Scenario{Steps: []StepSpec{{
					Kind:   StepForm,
					Fields: []FieldSpec{{Label: "DOB", Kind: FieldDate, Selectors: []string{"#dob"}, Value: "01/04/1990"}},
				}}}
			},
			wantErr: "YYYY-MM-DD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Target.BaseURL = "https://app.example.com"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

const documentedScenario = `
target:
  base_url: https://staging.example.com
scenarios:
  individual:
    description: Individual applicant VR
    steps:
      - kind: login
      - kind: otp
      - kind: navigate
        path: /verification-requests/new
      - kind: form
        name: applicant
        fields:
          - {label: First name, kind: text, selectors: ["#firstName", "label=First name"], value: Jane}
          - {label: Country, kind: dropdown, selectors: ["testid=country-select"], value: Latvia}
      - kind: documents
        files:
          - {selectors: ["testid=passport-upload", "input[type=file]"], path: ./docs/passport.pdf}
      - kind: payment
      - kind: esign
      - kind: summary
`

func TestLoad_BarePaymentStepIsValid(t *testing.T) {
	t.Setenv("VRPILOT_BASE_URL", "")
	t.Setenv("VRPILOT_OTP", "")
	cfg, err := Load(writeConfig(t, documentedScenario))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	steps := cfg.Scenarios["individual"].Steps
	require.Len(t, steps, 7)
	assert.Equal(t, StepPayment, steps[5].Kind)
	assert.Nil(t, steps[5].Payment)
}

func TestConfig_ValidatePaymentFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.BaseURL = "https://app.example.com"
	cfg.Scenarios["x"] = Scenario{Steps: []StepSpec{{
		Kind:    StepPayment,
		Payment: &PaymentSpec{Fields: []FieldSpec{{Label: "Card", Kind: FieldText}}},
	}}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `field "Card" has no selectors`)
}

func TestConfig_URL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target.BaseURL = "https://app.example.com/"

	assert.Equal(t, "https://app.example.com/login", cfg.URL("/login"))
	assert.Equal(t, "https://app.example.com/vr/new", cfg.URL("vr/new"))
	assert.Equal(t, "https://other.example.com/x", cfg.URL("https://other.example.com/x"))
	assert.Equal(t, "app.example.com", cfg.Host())
}
