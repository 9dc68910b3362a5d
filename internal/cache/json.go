// Package cache wraps Redis helpers for JSON payloads shared by catalog and loyalty lookups.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSON stores JSON-encoded values under a key prefix with a fixed TTL.
// A nil *JSON or one without a client behaves as an always-empty cache.
type JSON struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewJSON constructs a cache helper. A non-positive ttl disables caching.
func NewJSON(client redis.Cmdable, prefix string, ttl time.Duration) *JSON {
	if ttl <= 0 {
		client = nil
	}
	return &JSON{client: client, prefix: strings.TrimSuffix(prefix, ":"), ttl: ttl}
}

// Key joins parts onto the configured prefix.
func (c *JSON) Key(parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	if c != nil && c.prefix != "" {
		all = append(all, c.prefix)
	}
	all = append(all, parts...)
	return strings.Join(all, ":")
}

// Get unmarshals a cached payload into dst. It reports whether the key existed.
func (c *JSON) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		// a payload we cannot decode is treated as a miss and dropped
		_ = c.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// Set serialises v and stores it with the configured TTL.
func (c *JSON) Set(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete evicts keys.
func (c *JSON) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
