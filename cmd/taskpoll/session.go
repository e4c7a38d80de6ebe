package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/config"
)

// openSession builds a session from cfg, with history recording when a
// backend is configured. The returned cleanup closes both.
func openSession(ctx context.Context, cfg *config.Config, logger zerolog.Logger, progress io.Writer) (*taskpoll.Session, func(), error) {
	opts := config.BuildOptions(cfg, logger)

	history, closeHistory, err := config.OpenHistory(ctx, cfg.History)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history: %w", err)
	}
	if history != nil {
		opts = append(opts, taskpoll.WithHistory(history, cfg.History.User, cfg.History.Domain))
	}
	if progress != nil {
		opts = append(opts, taskpoll.WithUpdateCallback(newProgressPrinter(progress).print))
	}

	s, err := taskpoll.NewSession(opts...)
	if err != nil {
		_ = closeHistory()
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	cleanup := func() {
		s.Close()
		if err := closeHistory(); err != nil {
			logger.Warn().Err(err).Msg("failed to close history")
		}
	}
	return s, cleanup, nil
}

// progressPrinter writes one line per visible change of a session snapshot.
type progressPrinter struct {
	w io.Writer

	mu   sync.Mutex
	last string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

func (p *progressPrinter) print(snap taskpoll.Snapshot) {
	line := formatProgress(snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	if line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.w, line)
}

// formatProgress renders a snapshot as "[state] 40% message".
func formatProgress(snap taskpoll.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", snap.State)
	if snap.TaskID != "" && !snap.State.Terminal() {
		fmt.Fprintf(&b, " task %s", snap.TaskID)
	}
	if snap.HasProgress {
		fmt.Fprintf(&b, " %d%%", snap.Progress)
	}
	if snap.Message != "" && !snap.State.Terminal() {
		b.WriteString(" " + snap.Message)
	}
	return b.String()
}

// printOutcome writes the answer, or explains a cancellation.
func printOutcome(out, errOut io.Writer, o taskpoll.Outcome) {
	if o.State == taskpoll.StateCancelled {
		fmt.Fprintln(errOut, "cancelled")
		if o.TaskID != "" {
			fmt.Fprintf(errOut, "resume with: taskpoll poll %s\n", o.TaskID)
		}
		return
	}
	fmt.Fprintln(out, o.Text)
}
