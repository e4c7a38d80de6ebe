package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/config"
)

const historyTimeout = 10 * time.Second

var (
	historyClear bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or clear recorded runs",
	Long: `List the runs recorded for the configured history user and domain,
oldest first. Requires a history backend other than "none".

Example:
  taskpoll history -c taskpoll.yaml
  taskpoll history -c taskpoll.yaml --json
  taskpoll history -c taskpoll.yaml --clear`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all recorded runs")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print one JSON object per line")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Backend == config.BackendNone {
		return errors.New("no history backend configured (set history.backend)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), historyTimeout)
	defer cancel()

	h, closeHistory, err := config.OpenHistory(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer func() { _ = closeHistory() }()

	key := taskpoll.HistoryKey{User: cfg.History.User, Domain: cfg.History.Domain}

	if historyClear {
		if err := h.Clear(ctx, key); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "History cleared for %s/%s\n", key.User, key.Domain)
		return nil
	}

	entries, err := h.List(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if historyJSON {
		return writeHistoryJSON(cmd.OutOrStdout(), entries)
	}
	return writeHistoryTable(cmd.OutOrStdout(), entries)
}

func writeHistoryJSON(w io.Writer, entries []taskpoll.HistoryEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func writeHistoryTable(w io.Writer, entries []taskpoll.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No recorded runs.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tSTATE\tTASK\tQUERY\tRESULT")
	for _, e := range entries {
		result := e.Answer
		if e.Error != "" {
			result = "error: " + e.Error
		}
		task := e.TaskID
		if task == "" {
			task = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime),
			e.State,
			task,
			truncate(e.Query, 40),
			truncate(result, 60),
		)
	}
	return tw.Flush()
}

// truncate shortens s to n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
