// Package config provides YAML and environment configuration for the taskpoll
// command.
//
// A config file is optional. Values from the file are overridden by
// TASKPOLL_* environment variables, so a deployment can run from the
// environment alone.
//
// Example configuration:
//
//	api:
//	  submit_url: ${ANALYSIS_API:-http://localhost:8090}/analyze
//	  status_url: ${ANALYSIS_API:-http://localhost:8090}/status/
//	  api_key: ${ANALYSIS_API_KEY:-}
//	  timeout: 30s
//
//	polling:
//	  delays: [1200ms, 1500ms, 2s, 2500ms, 3s]
//	  max_wait: 10m
//
//	history:
//	  backend: sqlite
//	  user: ada
//	  domain: sales
//	  limit: 50
//	  sqlite:
//	    path: taskpoll.db
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. TASKPOLL_API_STATUS_URL.
const EnvPrefix = "TASKPOLL_"

const (
	defaultTimeout    = 30 * time.Second
	defaultMockAddr   = ":8090"
	defaultLimit      = 50
	minDelay          = 100 * time.Millisecond
	maxDelay          = time.Minute
	minRequestTimeout = time.Second
)

// History backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the root configuration structure.
//
// Use [Load] or [Parse] to create a Config.
type Config struct {
	API     APIConfig     `yaml:"api" envPrefix:"API_"`
	Polling PollingConfig `yaml:"polling" envPrefix:"POLL_"`
	History HistoryConfig `yaml:"history" envPrefix:"HISTORY_"`
	Mock    MockConfig    `yaml:"mock" envPrefix:"MOCK_"`
}

// APIConfig locates the analysis API.
type APIConfig struct {
	// SubmitURL receives multipart queries. Optional for poll-only use.
	SubmitURL string `yaml:"submit_url" env:"SUBMIT_URL"`

	// StatusURL is the status endpoint prefix; the task id is appended.
	StatusURL string `yaml:"status_url" env:"STATUS_URL"`

	// APIKey is sent as the api_key form field when set.
	APIKey string `yaml:"api_key" env:"KEY"`

	// Headers are sent with every request. Values support ${VAR} expansion.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PollingConfig controls the status backoff.
type PollingConfig struct {
	// Delays is the wait before each successive poll; the last entry repeats.
	// Defaults to 1.2s, 1.5s, 2s, 2.5s, 3s.
	Delays []Duration `yaml:"delays" env:"DELAYS" envSeparator:","`

	// MaxWait bounds a whole run. Zero waits until the task finishes.
	MaxWait Duration `yaml:"max_wait" env:"MAX_WAIT"`
}

// HistoryConfig selects where finished runs are recorded.
type HistoryConfig struct {
	// Backend is none, memory, redis or sqlite. Defaults to none.
	Backend string `yaml:"backend" env:"BACKEND"`

	// User and Domain scope the recorded runs. Required unless Backend is none.
	User   string `yaml:"user" env:"USER"`
	Domain string `yaml:"domain" env:"DOMAIN"`

	// Limit keeps only the newest entries per user and domain. Defaults to 50;
	// a negative value disables trimming.
	Limit int `yaml:"limit" env:"LIMIT"`

	Redis  RedisConfig  `yaml:"redis" envPrefix:"REDIS_"`
	SQLite SQLiteConfig `yaml:"sqlite" envPrefix:"SQLITE_"`
}

// RedisConfig configures the Redis history backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// SQLiteConfig configures the SQLite history backend.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string `yaml:"path" env:"PATH"`
}

// MockConfig configures `taskpoll mock`.
type MockConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Duration wraps time.Duration for YAML and environment unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used for environment
// overrides.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part, present when a default was given
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}

		name := sub[1]
		hasDefault := len(sub) > 2 && sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file. An empty path skips the
// file and builds the configuration from the environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies TASKPOLL_* environment
// overrides, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = Duration(defaultTimeout)
	}
	if c.History.Backend == "" {
		c.History.Backend = BackendNone
	}
	if c.History.Limit == 0 {
		c.History.Limit = defaultLimit
	}
	if c.Mock.Addr == "" {
		c.Mock.Addr = defaultMockAddr
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	if c.API.SubmitURL, err = expandEnvVars(c.API.SubmitURL); err != nil {
		return fmt.Errorf("api.submit_url: %w", err)
	}
	if c.API.StatusURL, err = expandEnvVars(c.API.StatusURL); err != nil {
		return fmt.Errorf("api.status_url: %w", err)
	}
	if c.API.APIKey, err = expandEnvVars(c.API.APIKey); err != nil {
		return fmt.Errorf("api.api_key: %w", err)
	}
	for k, v := range c.API.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("api.headers[%s]: %w", k, err)
		}
		c.API.Headers[k] = expanded
	}

	if c.API.StatusURL == "" {
		return errors.New("api.status_url is required")
	}
	if err := validateURL(c.API.StatusURL); err != nil {
		return fmt.Errorf("api.status_url: %w", err)
	}
	if c.API.SubmitURL != "" {
		if err := validateURL(c.API.SubmitURL); err != nil {
			return fmt.Errorf("api.submit_url: %w", err)
		}
	}
	if c.API.Timeout.Duration() < minRequestTimeout {
		return fmt.Errorf("api.timeout must be at least %s, got %s", minRequestTimeout, c.API.Timeout.Duration())
	}

	for i, d := range c.Polling.Delays {
		if d.Duration() < minDelay || d.Duration() > maxDelay {
			return fmt.Errorf("polling.delays[%d] must be between %s and %s, got %s",
				i, minDelay, maxDelay, d.Duration())
		}
	}
	if c.Polling.MaxWait.Duration() < 0 {
		return fmt.Errorf("polling.max_wait cannot be negative, got %s", c.Polling.MaxWait.Duration())
	}

	return c.History.validate()
}

func (h *HistoryConfig) validate() error {
	switch h.Backend {
	case BackendNone:
		return nil
	case BackendMemory:
	case BackendRedis:
		if h.Redis.Addr == "" {
			return errors.New("history.redis.addr is required for the redis backend")
		}
	case BackendSQLite:
		if h.SQLite.Path == "" {
			return errors.New("history.sqlite.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("history.backend must be none, memory, redis or sqlite, got %q", h.Backend)
	}

	if h.User == "" || h.Domain == "" {
		return fmt.Errorf("history.user and history.domain are required for the %s backend", h.Backend)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
