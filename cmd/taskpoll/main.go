// Package main is the entry point for the taskpoll CLI.
//
// Usage:
//
//	taskpoll ask -c taskpoll.yaml "Which region grew fastest?"
//	taskpoll poll -c taskpoll.yaml t42
//	taskpoll history -c taskpoll.yaml
//	taskpoll mock --addr :8090
//	taskpoll validate -c taskpoll.yaml
//	taskpoll version
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/taskpoll/config"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags shared by every subcommand.
var (
	configFile string
	envFile    string
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "taskpoll",
	Short: "Submit analysis queries and follow their tasks",
	Long: `taskpoll submits natural-language queries (with an optional dataset
file) to an asynchronous analysis API and polls the resulting task until the
answer is ready.

Configuration comes from an optional YAML file (-c) and TASKPOLL_*
environment variables. A .env file in the working directory is loaded first.

Quick start:
  1. Run a local API: taskpoll mock
  2. In another shell:
     export TASKPOLL_API_SUBMIT_URL=http://localhost:8090/analyze
     export TASKPOLL_API_STATUS_URL=http://localhost:8090/status/
     taskpoll ask "Which region grew fastest?"`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "taskpoll %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to config file (optional, TASKPOLL_* env vars override it)")
	flags.StringVar(&envFile, "env-file", "", "dotenv file to load (default .env if present)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&prettyLogs, "pretty", false, "human-readable logs instead of JSON")

	rootCmd.AddCommand(versionCmd)
}

// loadEnvFile loads dotenv variables without overriding the real environment.
func loadEnvFile(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// newLogger creates the CLI logger writing to w.
func newLogger(w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	if prettyLogs {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
