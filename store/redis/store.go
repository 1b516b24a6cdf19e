// Package redis implements store.Store backed by Redis. Entities are
// stored as JSON strings; Sets index them for enumeration, Hashes back
// the idempotency and schedule lookups, and schedule locks are SET NX
// keys with a TTL released by an owner-checked script.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/flowline/cron"
	"github.com/xraph/flowline/execution"
	"github.com/xraph/flowline/workflow"
)

// Compile-time interface checks.
var (
	_ workflow.Store  = (*Store)(nil)
	_ execution.Store = (*Store)(nil)
	_ cron.Store      = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

// ── entity helpers ──

// setEntity stores v as a JSON string at key.
func (s *Store) setEntity(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// getEntity loads the JSON string at key into v.
func (s *Store) getEntity(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Store) entityExists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func isRedisNil(err error) bool { return errors.Is(err, redis.Nil) }

func now() time.Time { return time.Now().UTC() }

// paginate applies offset/limit to a sorted result slice.
func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
