package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var pollQuiet bool

var pollCmd = &cobra.Command{
	Use:   "poll TASK_ID",
	Short: "Follow an already-submitted task",
	Long: `Poll the status endpoint for TASK_ID until the task finishes, then
print the answer. Useful after a cancelled "taskpoll ask".

Example:
  taskpoll poll -c taskpoll.yaml t42`,
	Args: cobra.ExactArgs(1),
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().BoolVarP(&pollQuiet, "quiet", "q", false, "do not print progress")
}

func runPoll(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var progress = cmd.ErrOrStderr()
	if pollQuiet {
		progress = nil
	}
	s, cleanup, err := openSession(ctx, cfg, logger, progress)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := s.Resume(ctx, args[0])
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
	return nil
}
