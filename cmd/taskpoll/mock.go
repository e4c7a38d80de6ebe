package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll/config"
	"github.com/jpalmerr/taskpoll/internal/mockserver"
)

const shutdownTimeout = 10 * time.Second

var (
	mockAddr      string
	mockImmediate string
)

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run a scripted analysis API locally",
	Long: `Run a local stand-in for the analysis API.

Every submitted task reports progress twice and then completes with a canned
answer. With --immediate, submissions answer directly without a task.

Endpoints:
  POST /analyze          multipart query submission
  GET  /status/{taskID}  task status
  GET  /healthz          liveness

Example:
  taskpoll mock --addr :8090`,
	Args: cobra.NoArgs,
	RunE: runMock,
}

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().StringVar(&mockAddr, "addr", "", "listen address (default from config, :8090)")
	mockCmd.Flags().StringVar(&mockImmediate, "immediate", "", "answer every submission directly with this text")
}

func runMock(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	addr := mockAddr
	if addr == "" {
		addr = mockAddrFromConfig()
	}

	mock := mockserver.New(logger)
	if mockImmediate != "" {
		mock.SetImmediate(map[string]any{"answer": mockImmediate})
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mock.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("mock API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok && err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Dur("timeout", shutdownTimeout).Msg("shutdown timed out")
		return nil
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// mockAddrFromConfig falls back to :8090 when no valid config is available.
func mockAddrFromConfig() string {
	cfg, err := config.Load(configFile)
	if err != nil || cfg.Mock.Addr == "" {
		return ":8090"
	}
	return cfg.Mock.Addr
}
