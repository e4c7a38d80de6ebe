package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces history keys in Redis.
const DefaultRedisPrefix = "taskpoll:history"

// RedisStore keeps each key's history as a Redis list of JSON entries.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	limit  int
}

// NewRedisStore creates a [RedisStore]. An empty prefix uses
// [DefaultRedisPrefix]; a positive limit trims each list to its newest
// entries.
func NewRedisStore(rdb *redis.Client, prefix string, limit int) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, limit: limit}
}

// Ping checks the connection to Redis.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

func (r *RedisStore) listKey(key Key) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, url.QueryEscape(key.User), url.QueryEscape(key.Domain))
}

// Append pushes entry onto key's list and trims it to the limit.
func (r *RedisStore) Append(ctx context.Context, key Key, entry Entry) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	lk := r.listKey(key)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, lk, b)
		if r.limit > 0 {
			pipe.LTrim(ctx, lk, int64(-r.limit), -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

// List returns key's history, oldest first.
func (r *RedisStore) List(ctx context.Context, key Key) ([]Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	raw, err := r.rdb.LRange(ctx, r.listKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, s := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to decode history entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear deletes key's list.
func (r *RedisStore) Clear(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, r.listKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
