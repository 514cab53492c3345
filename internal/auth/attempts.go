package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AttemptStore counts failed logins per key inside a rolling window
type AttemptStore interface {
	Count(ctx context.Context, key string) (int, error)
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttemptStore keeps counters in redis so every API instance sees them
type RedisAttemptStore struct {
	client redis.UniversalClient
}

func NewRedisAttemptStore(client redis.UniversalClient) *RedisAttemptStore {
	return &RedisAttemptStore{client: client}
}

func (s *RedisAttemptStore) Count(ctx context.Context, key string) (int, error) {
	n, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get attempts: %w", err)
	}
	return n, nil
}

func (s *RedisAttemptStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr attempts: %w", err)
	}
	// the window starts at the first failure
	if n == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("expire attempts: %w", err)
		}
	}
	return int(n), nil
}

func (s *RedisAttemptStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset attempts: %w", err)
	}
	return nil
}

// MemoryAttemptStore is the single-instance fallback used without redis
type MemoryAttemptStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{cache: cache.New(cache.NoExpiration, time.Minute)}
}

func (s *MemoryAttemptStore) Count(_ context.Context, key string) (int, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return 0, nil
	}
	return v.(int), nil
}

func (s *MemoryAttemptStore) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Add(key, 1, window); err == nil {
		return 1, nil
	}
	n, err := s.cache.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and IncrementInt
		s.cache.Set(key, 1, window)
		return 1, nil
	}
	return n, nil
}

func (s *MemoryAttemptStore) Reset(_ context.Context, key string) error {
	s.cache.Delete(key)
	return nil
}

// FailureLimiter throttles credential guessing per username. Store errors are
// logged and never block a login.
type FailureLimiter struct {
	store  AttemptStore
	max    int
	window time.Duration
	log    *zap.Logger
}

func NewFailureLimiter(store AttemptStore, max int, window time.Duration, log *zap.Logger) *FailureLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailureLimiter{store: store, max: max, window: window, log: log}
}

func (l *FailureLimiter) key(username string) string {
	return "login:attempts:" + strings.ToLower(strings.TrimSpace(username))
}

// Allow fails with ErrTooManyAttempts once the username reached the limit
func (l *FailureLimiter) Allow(ctx context.Context, username string) error {
	n, err := l.store.Count(ctx, l.key(username))
	if err != nil {
		l.log.Warn("login attempt store unavailable", zap.Error(err))
		return nil
	}
	if n >= l.max {
		return newError(KindTooManyAttempts, nil)
	}
	return nil
}

// RecordFailure counts a failed credential check
func (l *FailureLimiter) RecordFailure(ctx context.Context, username string) {
	if _, err := l.store.Increment(ctx, l.key(username), l.window); err != nil {
		l.log.Warn("failed to record login failure", zap.Error(err))
	}
}

// Reset clears the counter after a successful login
func (l *FailureLimiter) Reset(ctx context.Context, username string) {
	if err := l.store.Reset(ctx, l.key(username)); err != nil {
		l.log.Warn("failed to reset login failures", zap.Error(err))
	}
}
