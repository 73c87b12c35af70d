// Package ratelimit counts failed logins per key and locks a key out for a window once it reaches
// the attempt threshold.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/classboard/core"
)

const keyPrefix = "classboard:login:"

type Limiter interface {
	// Allow reports whether key is below its failure threshold.
	Allow(ctx context.Context, key string) (bool, error)
	// Fail records a failed attempt. The window starts at the first failure.
	Fail(ctx context.Context, key string) error
	// Reset forgets all failures of key.
	Reset(ctx context.Context, key string) error
}

// New returns a Redis limiter when conf.Redis.URL is set, an in-memory one otherwise.
func New(conf *core.Config) (Limiter, error) {
	if conf.Redis.URL == "" {
		return NewMemoryLimiter(conf.Auth.MaxLoginAttempts, conf.Auth.LockoutWindow), nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return NewRedisLimiter(redis.NewClient(opts), conf.Auth.MaxLoginAttempts, conf.Auth.LockoutWindow), nil
}

// Redis

type redisLimiter struct {
	client      redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(client redis.UniversalClient, maxAttempts int, window time.Duration) Limiter {
	return &redisLimiter{client: client, maxAttempts: maxAttempts, window: window}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.maxAttempts <= 0 {
		return true, nil
	}
	n, err := l.client.Get(ctx, keyPrefix+key).Int()
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return true, errors.Wrap(err, "reading login failures")
	}
	return n < l.maxAttempts, nil
}

func (l *redisLimiter) Fail(ctx context.Context, key string) error {
	k := keyPrefix + key
	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return errors.Wrap(err, "recording login failure")
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return errors.Wrap(err, "setting login failure window")
		}
	}
	return nil
}

func (l *redisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return errors.Wrap(err, "resetting login failures")
	}
	return nil
}

// Memory

type entry struct {
	failures int
	expires  time.Time
}

type memoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]entry
	maxAttempts int
	window      time.Duration
	nowFunc     func() time.Time // mockable
}

func NewMemoryLimiter(maxAttempts int, window time.Duration) Limiter {
	return &memoryLimiter{
		entries:     make(map[string]entry),
		maxAttempts: maxAttempts,
		window:      window,
		nowFunc:     time.Now,
	}
}

func (l *memoryLimiter) get(key string) entry {
	e, ok := l.entries[key]
	if ok && !l.nowFunc().Before(e.expires) {
		delete(l.entries, key)
		return entry{}
	}
	return e
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.maxAttempts <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(key).failures < l.maxAttempts, nil
}

func (l *memoryLimiter) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.get(key)
	if e.failures == 0 {
		e.expires = l.nowFunc().Add(l.window)
	}
	e.failures++
	l.entries[key] = e
	return nil
}

func (l *memoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
