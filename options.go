package taskpoll

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// sessionConfig holds mutable state during Session construction.
type sessionConfig struct {
	submitURL  string
	statusURL  string
	apiKey     string
	headers    map[string]string
	timeout    time.Duration
	delays     []time.Duration
	maxWait    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
	extractor  Extractor
	callbacks  []func(Snapshot)
	history    History
	historyKey HistoryKey
}

// Option is a function that configures a [Session] during construction.
//
// Options return an error if validation fails, which [NewSession] returns.
type Option func(*sessionConfig) error

// WithSubmitURL sets the submission endpoint that accepts multipart queries.
//
// Required for [Session.Submit]; sessions that only [Session.Resume] may
// omit it.
func WithSubmitURL(rawURL string) Option {
	return func(cfg *sessionConfig) error {
		if err := validateURL(rawURL); err != nil {
			return fmt.Errorf("submit URL: %w", err)
		}
		cfg.submitURL = rawURL
		return nil
	}
}

// WithStatusURL sets the status endpoint prefix. The task id is appended
// verbatim (path-escaped), so include the trailing slash:
//
//	taskpoll.WithStatusURL("https://api.example.com/status/")
func WithStatusURL(rawURL string) Option {
	return func(cfg *sessionConfig) error {
		if err := validateURL(rawURL); err != nil {
			return fmt.Errorf("status URL: %w", err)
		}
		cfg.statusURL = rawURL
		return nil
	}
}

// WithAPIKey sets the optional credential sent as the api_key form field.
func WithAPIKey(key string) Option {
	return func(cfg *sessionConfig) error {
		cfg.apiKey = key
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every request, as key-value pairs.
//
// Example:
//
//	taskpoll.WithHeaders("Authorization", "Bearer token", "X-Tenant", "acme")
//
// Returns an error if an odd number of arguments is given.
func WithHeaders(kv ...string) Option {
	return func(cfg *sessionConfig) error {
		if len(kv)%2 != 0 {
			return errors.New("headers must be key-value pairs")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(kv)/2)
		}
		for i := 0; i < len(kv); i += 2 {
			if kv[i] == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[kv[i]] = kv[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *sessionConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithDelays sets the backoff table between status polls. After the last
// entry is reached it is reused for every further attempt. Defaults to
// [DefaultDelays].
//
// Returns an error if the table is empty or contains a non-positive delay.
func WithDelays(delays ...time.Duration) Option {
	return func(cfg *sessionConfig) error {
		if len(delays) == 0 {
			return errors.New("at least one delay is required")
		}
		for i, d := range delays {
			if d <= 0 {
				return fmt.Errorf("delays[%d] must be positive, got %s", i, d)
			}
		}
		cfg.delays = append([]time.Duration(nil), delays...)
		return nil
	}
}

// WithMaxWait bounds how long a task is polled before the run fails with
// [ErrMaxWaitExceeded]. Zero, the default, polls until the task finishes or
// the session is cancelled.
//
// Returns an error if the duration is negative.
func WithMaxWait(d time.Duration) Option {
	return func(cfg *sessionConfig) error {
		if d < 0 {
			return errors.New("max wait cannot be negative")
		}
		cfg.maxWait = d
		return nil
	}
}

// WithHTTPClient sets the http.Client used for all requests. By default the
// session creates its own pooled client.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *sessionConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithLogger sets the logger for session events. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *sessionConfig) error {
		cfg.logger = logger
		return nil
	}
}

// WithExtractor replaces [DefaultExtractor] for turning results into
// display text. When the extractor does not match, the payload is serialized.
//
// Extractors run behind a panic recovery boundary: a panicking extractor is
// logged with a correlation id and the default chain is used instead.
func WithExtractor(extractor Extractor) Option {
	return func(cfg *sessionConfig) error {
		if extractor == nil {
			return errors.New("extractor cannot be nil")
		}
		cfg.extractor = extractor
		return nil
	}
}

// WithUpdateCallback registers fn to receive every [Snapshot] change.
//
// Callbacks run synchronously, in registration order, on the goroutine
// running Submit or Resume. [Session.Cancel] never invokes them, so a
// callback may call Cancel. Panics are recovered and logged.
func WithUpdateCallback(fn func(Snapshot)) Option {
	return func(cfg *sessionConfig) error {
		if fn == nil {
			return errors.New("callback cannot be nil")
		}
		cfg.callbacks = append(cfg.callbacks, fn)
		return nil
	}
}

// WithHistory records every finished run under user and domain in h.
//
// Returns an error if h is nil or user or domain is empty.
func WithHistory(h History, user, domain string) Option {
	return func(cfg *sessionConfig) error {
		if h == nil {
			return errors.New("history store cannot be nil")
		}
		key := HistoryKey{User: user, Domain: domain}
		if err := key.Validate(); err != nil {
			return err
		}
		cfg.history = h
		cfg.historyKey = key
		return nil
	}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
