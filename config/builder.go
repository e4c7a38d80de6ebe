package config

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/jpalmerr/taskpoll"
	"github.com/jpalmerr/taskpoll/internal/store"
)

// BuildOptions converts parsed configuration into session options.
func BuildOptions(cfg *Config, logger zerolog.Logger) []taskpoll.Option {
	opts := []taskpoll.Option{
		taskpoll.WithStatusURL(cfg.API.StatusURL),
		taskpoll.WithTimeout(cfg.API.Timeout.Duration()),
		taskpoll.WithLogger(logger),
	}

	if cfg.API.SubmitURL != "" {
		opts = append(opts, taskpoll.WithSubmitURL(cfg.API.SubmitURL))
	}
	if cfg.API.APIKey != "" {
		opts = append(opts, taskpoll.WithAPIKey(cfg.API.APIKey))
	}
	if len(cfg.API.Headers) > 0 {
		opts = append(opts, taskpoll.WithHeaders(mapToKeyValuePairs(cfg.API.Headers)...))
	}
	if len(cfg.Polling.Delays) > 0 {
		delays := make([]time.Duration, len(cfg.Polling.Delays))
		for i, d := range cfg.Polling.Delays {
			delays[i] = d.Duration()
		}
		opts = append(opts, taskpoll.WithDelays(delays...))
	}
	if cfg.Polling.MaxWait > 0 {
		opts = append(opts, taskpoll.WithMaxWait(cfg.Polling.MaxWait.Duration()))
	}

	return opts
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// OpenHistory opens the configured history backend. The returned close
// function releases its connections and is never nil. A "none" backend
// returns a nil store.
func OpenHistory(ctx context.Context, cfg HistoryConfig) (taskpoll.HistoryStore, func() error, error) {
	noop := func() error { return nil }
	limit := cfg.Limit
	if limit < 0 {
		limit = 0
	}

	switch cfg.Backend {
	case "", BackendNone:
		return nil, noop, nil

	case BackendMemory:
		return store.NewMemoryStore(limit), noop, nil

	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rs := store.NewRedisStore(rdb, cfg.Redis.Prefix, limit)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, noop, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return rs, rs.Close, nil

	case BackendSQLite:
		db, err := sql.Open("sqlite", cfg.SQLite.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite %s: %w", cfg.SQLite.Path, err)
		}
		// a single connection keeps ":memory:" databases alive and serializes writers
		db.SetMaxOpenConns(1)

		ss := store.NewSQLStore(db, limit)
		if err := ss.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, noop, fmt.Errorf("migrate sqlite %s: %w", cfg.SQLite.Path, err)
		}
		return ss, db.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}
