// Package cache implements the result cache (C8): a Redis-backed,
// namespace-isolated store of completed intel.Result values keyed by a
// deterministic hash of (query text, depth), grounded on
// core/redis_client.go's DB-isolation pattern.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/internal/rediswrap"
	"github.com/itsneelabh/intelcore/pkg/intel"
)

const scanPattern = "intel:cache:*"

// ResultCache stores gathered intel.Result values with a TTL, isolated from
// the knowledge store by Redis DB and namespace (spec §4.6).
type ResultCache struct {
	client *rediswrap.Client
	logger corelog.Logger
}

// New wires a ResultCache onto an already-connected namespaced Redis
// client. Callers are expected to construct the client with a DB/namespace
// dedicated to caching, distinct from the knowledge store's.
func New(client *rediswrap.Client, logger corelog.Logger) *ResultCache {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &ResultCache{client: client, logger: logger}
}

// Key computes the deterministic cache key for a (text, depth) pair:
// "intel:cache:" + sha256hex(text + ":" + depth), matching spec §4.6.
func Key(text string, depth intel.Depth) string {
	sum := sha256.Sum256([]byte(text + ":" + string(depth)))
	return "intel:cache:" + hex.EncodeToString(sum[:])
}

// Get returns the cached Result for the given key, and whether it was
// found.
func (c *ResultCache) Get(ctx context.Context, key string) (intel.Result, bool, error) {
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return intel.Result{}, false, nil
		}
		return intel.Result{}, false, err
	}

	var result intel.Result
	if jerr := json.Unmarshal([]byte(raw), &result); jerr != nil {
		return intel.Result{}, false, fmt.Errorf("unmarshal cached result: %w", jerr)
	}
	result.Cached = true
	return result, true, nil
}

// Set stores a Result under key with the given TTL.
func (c *ResultCache) Set(ctx context.Context, key string, result intel.Result, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return c.client.Set(ctx, key, data, ttl)
}

// Delete removes a single cache entry.
func (c *ResultCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key)
}

// ClearAll removes every cached result by scanning the cache's key space.
func (c *ResultCache) ClearAll(ctx context.Context) (int, error) {
	removed := 0
	err := c.client.Scan(ctx, scanPattern, func(bareKey string) error {
		if delErr := c.client.Del(ctx, bareKey); delErr != nil {
			return delErr
		}
		removed++
		return nil
	})
	return removed, err
}

// HealthCheck verifies connectivity to the backing Redis instance.
func (c *ResultCache) HealthCheck(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}
