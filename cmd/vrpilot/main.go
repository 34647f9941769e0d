// Command vrpilot drives a Verification Request onboarding flow in Chrome:
// login, one-time codes, multi-page forms, document upload, payment,
// e-signing and the final summary.
package main

import (
	"fmt"
	"os"
	"time"

	"vrpilot/internal/config"
	"vrpilot/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	verbose    bool
	headless   bool
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vrpilot",
	Short: "vrpilot - browser automation for Verification Request onboarding",
	Long: `vrpilot runs scripted Verification Request flows against the onboarding
web application: it logs in, enters one-time codes, fills the applicant
pages, uploads documents, pays, e-signs and reports the resulting summary.

Scenarios are described in the YAML configuration (default vrpilot.yaml).
When automation gets stuck, vrpilot hands the browser to you and waits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = headless
		}
		if cmd.Flags().Changed("timeout") {
			cfg.RunTimeout = timeout.String()
		}

		logger, err = buildLogger(cfg, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(logging.Config{
			Level:      level,
			JSONFormat: cfg.Logging.JSONFormat,
			DebugMode:  cfg.Logging.DebugMode,
			Dir:        cfg.Logging.Dir,
			Categories: cfg.Logging.Categories,
		}, logger); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.Boot("config loaded from %s (%d scenario(s))", configPath, len(cfg.Scenarios))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// buildLogger writes to stderr so stdout stays free for tables.
func buildLogger(c *config.Config, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if !c.Logging.JSONFormat {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	if lvl, err := zapcore.ParseLevel(c.Logging.Level); err == nil && c.Logging.Level != "" {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "Run Chrome without a window")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Minute, "Deadline for a whole scenario run")

	// Run flags
	runCmd.Flags().BoolVar(&noSession, "no-session", false, "Ignore and do not write the session snapshot")
	runCmd.Flags().StringVar(&interventionMode, "intervention", "", "prompt or fail (default: prompt on a terminal)")

	// Session subcommands
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionClearCmd)

	// Run history subcommands
	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	// Add commands to root
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
