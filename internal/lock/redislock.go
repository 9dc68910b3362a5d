// Package lock serialises work on a single resource across API replicas.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backoffice-toko/internal/obs"
)

// ErrNotAcquired is returned when the lock stays held past MaxWait.
var ErrNotAcquired = errors.New("lock: resource is busy")

// release deletes the key only while it still holds our token, so a holder
// whose TTL lapsed cannot drop a successor's lock.
var release = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 50 * time.Millisecond
)

// Client is the subset of go-redis used by Locker.
type Client interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            Client
	Prefix       string
	RetryBackoff time.Duration
	// MaxWait bounds how long WithLock retries. Zero waits until ctx is done.
	MaxWait time.Duration
}

// Key builds the lock key for a resource, e.g. "backoffice:lock:order:<id>".
func (l Locker) Key(resource, id string) string {
	prefix := strings.TrimSuffix(l.Prefix, ":")
	if prefix == "" {
		prefix = "lock"
	}
	return prefix + ":" + resource + ":" + id
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// whatever its result.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	token, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		_ = release.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = defaultRetry
	}
	start := time.Now()
	resource := resourceOf(key)
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			obs.ObserveLockWait(resource, "acquired", time.Since(start).Seconds())
			return token, nil
		}
		if l.MaxWait > 0 && time.Since(start) >= l.MaxWait {
			obs.ObserveLockWait(resource, "busy", time.Since(start).Seconds())
			return "", ErrNotAcquired
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// resourceOf extracts the resource segment from a Key-built key for metric
// labels, keeping ids out of label values.
func resourceOf(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 3 {
		return "unknown"
	}
	return parts[len(parts)-2]
}
