package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// scenariosCmd lists configured scenarios
var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the scenarios defined in the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Scenarios) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No scenarios defined in %s\n", configPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderScenarios(cfg.Scenarios))
		return nil
	},
}

// validateCmd checks the configuration without opening a browser
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and every scenario",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s is invalid:\n%w", configPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d scenario(s), target %s\n", configPath, len(cfg.Scenarios), cfg.Target.BaseURL)
		return nil
	},
}
