package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"vrpilot/internal/browser"
	"vrpilot/internal/flow"
	"vrpilot/internal/operator"
	"vrpilot/internal/otp"
	"vrpilot/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	noSession        bool
	interventionMode string
)

// runCmd executes one scenario end to end
var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario in Chrome",
	Long: `Runs the named scenario from the configuration in a fresh browser page.

A valid session snapshot from a previous run skips login. Screenshots,
the page HTML and browser events are written to the artifacts directory
when a step fails; the extracted summary is written there on success.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func runScenario(cmd *cobra.Command, args []string) error {
	name := args[0]
	if noSession {
		cfg.Session.Enabled = false
	}
	if interventionMode != "" {
		cfg.Intervention.Mode = interventionMode
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, ok := cfg.Scenario(name); !ok {
		return fmt.Errorf("unknown scenario %q (see 'vrpilot scenarios')", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer runs.Close()

	// The code prompt and the console operator share stdin.
	stdin := operator.NewTerminal(os.Stdin)
	codes, err := otp.New(cfg, stdin, os.Stderr)
	if err != nil {
		return err
	}

	events := browser.NewEventLog(200)
	mgr := browser.NewManager(browser.FromConfig(cfg), events)
	defer func() {
		if err := mgr.Shutdown(context.Background()); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}()
	open := func(ctx context.Context) (flow.Page, error) {
		p, err := mgr.OpenPage(ctx)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	runner := flow.NewRunner(cfg, open,
		flow.WithOTP(codes),
		flow.WithOperator(operator.New(cfg.Intervention.Mode, stdin)),
		flow.WithRecorder(runs),
		flow.WithEvents(events),
	)

	logger.Info("Running scenario",
		zap.String("scenario", name),
		zap.String("target", cfg.Target.BaseURL),
		zap.Bool("headless", cfg.Browser.Headless),
	)
	res, runErr := runner.Run(ctx, name)
	if res != nil {
		fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
	}
	return runErr
}
