package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration without contacting the API.

This parses the YAML file (if any), applies TASKPOLL_* environment
overrides, expands ${VAR} references and validates all fields. It is useful
for CI pipelines and pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  taskpoll validate -c taskpoll.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	submit := cfg.API.SubmitURL
	if submit == "" {
		submit = "(none, poll only)"
	}
	delays := "default"
	if n := len(cfg.Polling.Delays); n > 0 {
		delays = fmt.Sprintf("%d custom", n)
	}
	maxWait := "unbounded"
	if cfg.Polling.MaxWait > 0 {
		maxWait = cfg.Polling.MaxWait.Duration().String()
	}
	history := cfg.History.Backend
	if cfg.History.User != "" {
		history += fmt.Sprintf(" (%s/%s)", cfg.History.User, cfg.History.Domain)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Submit URL: %s\n", submit)
	fmt.Fprintf(out, "  Status URL: %s\n", cfg.API.StatusURL)
	fmt.Fprintf(out, "  Timeout:    %s\n", cfg.API.Timeout.Duration())
	fmt.Fprintf(out, "  Delays:     %s (first %s)\n", delays, firstDelay(cfg.Polling.Delays))
	fmt.Fprintf(out, "  Max wait:   %s\n", maxWait)
	fmt.Fprintf(out, "  History:    %s\n", history)
	return nil
}

func firstDelay(delays []config.Duration) string {
	if len(delays) == 0 {
		return taskpoll.DefaultDelays[0].String()
	}
	return delays[0].Duration().String()
}
