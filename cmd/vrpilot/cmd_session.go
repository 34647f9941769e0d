package main

import (
	"errors"
	"fmt"
	"time"

	"vrpilot/internal/sessioncache"

	"github.com/spf13/cobra"
)

// sessionCmd inspects the login snapshot
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or clear the saved login session",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the saved session snapshot and whether it is reusable",
	Args:  cobra.NoArgs,
	RunE:  sessionShow,
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the saved session snapshot",
	Args:  cobra.NoArgs,
	RunE:  sessionClear,
}

func sessionShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := cfg.Session.CachePath
	snap, err := sessioncache.Load(path)
	if errors.Is(err, sessioncache.ErrNoSnapshot) {
		fmt.Fprintf(out, "No session snapshot at %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now()
	status := "reusable"
	if reason := snap.Reason(cfg.Credentials.Email, cfg.Target.BaseURL, now, cfg.GetSessionTTL()); reason != "" {
		status = "not reusable: " + reason
	}
	fmt.Fprintln(out, renderSnapshot(path, snap, now, status))
	return nil
}

func sessionClear(cmd *cobra.Command, args []string) error {
	if err := sessioncache.Clear(cfg.Session.CachePath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session snapshot %s cleared\n", cfg.Session.CachePath)
	return nil
}
