// Command example runs a Session against the in-process mock API and prints
// progress as the task moves through its states.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/internal/mockserver"
)

const addr = "localhost:9999"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.InfoLevel).
		With().Timestamp().Logger()

	// start the scripted API
	srv := &http.Server{Addr: addr, Handler: mockserver.New(logger).Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("mock API failed")
		}
	}()
	defer srv.Close()
	time.Sleep(100 * time.Millisecond)

	history := taskpoll.NewMemoryHistory(10)

	s, err := taskpoll.NewSession(
		taskpoll.WithSubmitURL("http://"+addr+"/analyze"),
		taskpoll.WithStatusURL("http://"+addr+"/status/"),
		taskpoll.WithDelays(300*time.Millisecond, 600*time.Millisecond),
		taskpoll.WithMaxWait(time.Minute),
		taskpoll.WithLogger(logger),
		taskpoll.WithHistory(history, "demo", "sales"),
		taskpoll.WithUpdateCallback(func(snap taskpoll.Snapshot) {
			if snap.HasProgress {
				fmt.Printf("  %-10s %3d%% %s\n", snap.State, snap.Progress, snap.Message)
			} else {
				fmt.Printf("  %-10s\n", snap.State)
			}
		}),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create session")
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := s.Submit(ctx, taskpoll.Query{
		Text:     "Which region grew fastest last quarter?",
		FileName: "sales.csv",
		File:     strings.NewReader("region,q1,q2\nemea,100,112\namer,90,94\n"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("query failed")
	}

	fmt.Println()
	fmt.Println("Answer:", out.Text)

	entries, _ := history.List(ctx, taskpoll.HistoryKey{User: "demo", Domain: "sales"})
	fmt.Printf("Recorded %d run(s), last after %d poll(s)\n", len(entries), out.Attempts)
}
