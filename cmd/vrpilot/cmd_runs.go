package main

import (
	"errors"
	"fmt"

	"vrpilot/internal/store"

	"github.com/spf13/cobra"
)

var runsLimit int

// runsCmd browses the run history
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Browse the history of scenario runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its summary (an id prefix is enough)",
	Args:  cobra.ExactArgs(1),
	RunE:  runsShow,
}

func runsList(cmd *cobra.Command, args []string) error {
	runs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer runs.Close()

	list, err := runs.List(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRuns(list))
	return nil
}

func runsShow(cmd *cobra.Command, args []string) error {
	runs, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer runs.Close()

	run, err := runs.Find(cmd.Context(), args[0])
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("no run with id %q", args[0])
	case errors.Is(err, store.ErrAmbiguous):
		return fmt.Errorf("%q matches more than one run, use a longer id", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderRun(run))
	return nil
}
