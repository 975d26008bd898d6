// Package cache provides coverage-resolution caches: a process-local
// map and a Redis-backed cache for multi-instance deployments.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learnward/metron/pkg/logger"
	"github.com/learnward/metron/pkg/metrics"
)

// Default cache configuration constants.
const (
	defaultTTL = 5 * time.Minute
)

// Memory is a process-local coverage cache. Entries never expire; the
// catalog version inside the key invalidates naturally.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]string)}
}

// Get returns the cached id set for key.
func (m *Memory) Get(_ context.Context, key string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.entries[key]
	if !ok {
		metrics.RecordCacheMiss()
		return nil, false
	}
	metrics.RecordCacheHit()
	out := make([]string, len(ids))
	copy(out, ids)
	return out, true
}

// Set stores an id set under key.
func (m *Memory) Set(_ context.Context, key string, ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]string, len(ids))
	copy(cp, ids)
	m.entries[key] = cp
}

// Redis caches resolved coverage sets in Redis with a TTL. Failures
// degrade to cache misses; the resolver always has the catalog.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// RedisOption applies a configuration option to the Redis cache.
type RedisOption func(*Redis)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRedisLogger sets a custom logger for the cache.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRedis creates a Redis-backed coverage cache over the given client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) log() logger.Logger {
	if r.logger == nil {
		r.logger = logger.Get().Named("coverage-cache")
	}
	return r.logger
}

// Get returns the cached id set for key.
func (r *Redis) Get(ctx context.Context, key string) ([]string, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		metrics.RecordCacheMiss()
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		metrics.RecordCacheMiss()
		r.log().Warn(ctx, "malformed cache entry", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	metrics.RecordCacheHit()
	return ids, true
}

// Set stores an id set under key with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, ids []string) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.log().Warn(ctx, "cache write failed", logger.String("key", key), logger.Error(err))
	}
}
