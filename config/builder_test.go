package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/taskpoll"
)

func TestBuildOptions(t *testing.T) {
	yaml := `
api:
  submit_url: https://api.example.com/analyze
  status_url: https://api.example.com/status/
  api_key: secret
  headers:
    X-B: "2"
    X-A: "1"
polling:
  delays: [200ms, 300ms]
  max_wait: 1m
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts := BuildOptions(cfg, zerolog.Nop())
	s, err := taskpoll.NewSession(opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.Close()
}

func TestBuildOptions_StatusOnly(t *testing.T) {
	cfg, err := Parse([]byte(`api: {status_url: http://localhost:8090/status/}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	s, err := taskpoll.NewSession(BuildOptions(cfg, zerolog.Nop())...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer s.Close()

	_, err = s.Submit(context.Background(), taskpoll.Query{Text: "q"})
	if !errors.Is(err, taskpoll.ErrNoSubmitURL) {
		t.Errorf("Submit() error = %v, want ErrNoSubmitURL", err)
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}

func exerciseHistory(t *testing.T, h taskpoll.HistoryStore) {
	t.Helper()
	ctx := context.Background()
	key := taskpoll.HistoryKey{User: "ada", Domain: "sales"}

	err := h.Append(ctx, key, taskpoll.HistoryEntry{
		ID:         "e1",
		Query:      "q",
		Answer:     "a",
		State:      "done",
		CreatedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	entries, err := h.List(ctx, key)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Answer != "a" {
		t.Errorf("List() = %+v", entries)
	}
}

func TestOpenHistory_Backends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  HistoryConfig
	}{
		{"memory", HistoryConfig{Backend: BackendMemory, Limit: 5}},
		{"redis", HistoryConfig{Backend: BackendRedis, Limit: 5, Redis: RedisConfig{Addr: mr.Addr()}}},
		{"sqlite", HistoryConfig{Backend: BackendSQLite, Limit: 5, SQLite: SQLiteConfig{Path: ":memory:"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, closeFn, err := OpenHistory(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("OpenHistory() error = %v", err)
			}
			defer func() {
				if err := closeFn(); err != nil {
					t.Errorf("close error = %v", err)
				}
			}()
			exerciseHistory(t, h)
		})
	}
}

func TestOpenHistory_None(t *testing.T) {
	h, closeFn, err := OpenHistory(context.Background(), HistoryConfig{Backend: BackendNone})
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	if h != nil {
		t.Errorf("OpenHistory(none) = %v, want nil", h)
	}
	if closeFn == nil || closeFn() != nil {
		t.Error("close function should be a no-op")
	}
}

func TestOpenHistory_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := OpenHistory(ctx, HistoryConfig{Backend: BackendRedis, Redis: RedisConfig{Addr: addr}})
	if err == nil || !strings.Contains(err.Error(), "connect to redis") {
		t.Errorf("OpenHistory() error = %v, want connect error", err)
	}
}

func TestOpenHistory_UnknownBackend(t *testing.T) {
	_, _, err := OpenHistory(context.Background(), HistoryConfig{Backend: "mongo"})
	if err == nil {
		t.Error("OpenHistory() expected error for unknown backend")
	}
}
