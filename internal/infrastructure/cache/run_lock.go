// Package cache holds the shared-state stores backed by Redis, with
// in-memory stand-ins for single-instance deployments and tests.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/bloodchain/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRunLockPrefix = "bloodchain:runlock:"

// RedisRunLock claims named runs with SET NX so that only one instance of
// the service runs a job for a given key.
type RedisRunLock struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRunLock connects to Redis and checks the connection.
func NewRedisRunLock(ctx context.Context, cfg config.RedisConfig) (*RedisRunLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisRunLockWithClient(client, ""), nil
}

// NewRedisRunLockWithClient wraps an existing client.
func NewRedisRunLockWithClient(client *redis.Client, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = defaultRunLockPrefix
	}
	return &RedisRunLock{client: client, keyPrefix: keyPrefix}
}

// Acquire claims key for ttl. It reports false when another holder already
// claimed it and the claim has not expired.
func (l *RedisRunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock %s: %w", key, err)
	}
	return ok, nil
}

// Ping checks the connection. It backs the readiness check.
func (l *RedisRunLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *RedisRunLock) Close() error {
	return l.client.Close()
}

// InMemoryRunLock is a RunLock for a single process.
type InMemoryRunLock struct {
	mu     sync.Mutex
	clock  shared.Clock
	claims map[string]time.Time
}

// NewInMemoryRunLock creates an in-memory lock. A nil clock uses the system clock.
func NewInMemoryRunLock(clock shared.Clock) *InMemoryRunLock {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &InMemoryRunLock{clock: clock, claims: make(map[string]time.Time)}
}

// Acquire claims key for ttl.
func (l *InMemoryRunLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for k, expiresAt := range l.claims {
		if !now.Before(expiresAt) {
			delete(l.claims, k)
		}
	}
	if _, held := l.claims[key]; held {
		return false, nil
	}
	l.claims[key] = now.Add(ttl)
	return true, nil
}

// Close is a no-op.
func (l *InMemoryRunLock) Close() error { return nil }

// RunLock is what NewRunLock returns.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// NewRunLock returns a Redis lock when Redis is enabled, and an in-memory one
// otherwise. An unreachable Redis is an error: silently degrading would let
// several instances run the same job.
func NewRunLock(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (RunLock, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, scheduler run lock is process-local")
		return NewInMemoryRunLock(nil), nil
	}
	lock, err := NewRedisRunLock(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("Scheduler run lock backed by Redis", zap.String("addr", cfg.Addr))
	return lock, nil
}

var (
	_ RunLock = (*RedisRunLock)(nil)
	_ RunLock = (*InMemoryRunLock)(nil)
)
