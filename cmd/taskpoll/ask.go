package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll"
)

var (
	askFile  string
	askQuiet bool
)

var askCmd = &cobra.Command{
	Use:   "ask QUESTION...",
	Short: "Submit a query and wait for the answer",
	Long: `Submit a natural-language query, optionally with a dataset file, and
poll the resulting task until it finishes. The answer is printed to stdout;
progress goes to stderr.

Ctrl+C cancels polling locally. The remote task keeps running and can be
picked up again with "taskpoll poll TASK_ID".

Example:
  taskpoll ask -c taskpoll.yaml --file sales.csv "Which region grew fastest?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "dataset file to attach")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "do not print progress")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	query := taskpoll.Query{Text: strings.Join(args, " ")}
	if askFile != "" {
		f, err := os.Open(askFile)
		if err != nil {
			return fmt.Errorf("failed to open dataset: %w", err)
		}
		defer f.Close()
		query.File = f
		query.FileName = filepath.Base(askFile)
	}

	var progress = cmd.ErrOrStderr()
	if askQuiet {
		progress = nil
	}
	s, cleanup, err := openSession(ctx, cfg, logger, progress)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := s.Submit(ctx, query)
	if err != nil {
		return err
	}
	printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
	return nil
}
