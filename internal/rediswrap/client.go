// Package rediswrap wraps go-redis with the DB-isolation and
// key-namespacing conventions the rest of the module relies on (grounded on
// core/redis_client.go's RedisClient).
package rediswrap

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/intelcore/internal/corelog"
)

// Client wraps *redis.Client with namespaced keys and a fixed logical DB,
// used to keep the result cache and the knowledge store on separate Redis
// databases even when they share a server.
type Client struct {
	Raw       *redis.Client
	dbID      int
	namespace string
	logger    corelog.Logger
}

// Options configures a Client.
type Options struct {
	RedisURL  string
	DB        int
	Namespace string
	Logger    corelog.Logger
}

// New parses RedisURL, overrides its DB selector, pings to verify
// connectivity, and returns a namespaced Client.
func New(opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = corelog.NoOpLogger{}
	}
	if opts.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	redisOpt, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.DB >= 0 && opts.DB <= 15 {
		redisOpt.DB = opts.DB
	}

	raw := redis.NewClient(redisOpt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis db %d: %w", opts.DB, err)
	}

	opts.Logger.Info("redis client connected", map[string]interface{}{
		"db": opts.DB, "namespace": opts.Namespace,
	})

	return &Client{Raw: raw, dbID: opts.DB, namespace: opts.Namespace, logger: opts.Logger}, nil
}

func (c *Client) Close() error {
	return c.Raw.Close()
}

func (c *Client) DB() int {
	return c.dbID
}

// Key namespaces a bare key with the client's configured prefix.
func (c *Client) Key(key string) string {
	if c.namespace == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.namespace, key)
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Raw.Get(ctx, c.Key(key)).Result()
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Raw.Set(ctx, c.Key(key), value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = c.Key(k)
	}
	return c.Raw.Del(ctx, namespaced...).Err()
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.Raw.TTL(ctx, c.Key(key)).Result()
}

// Scan walks every key under the given bare-key pattern (namespaced
// automatically), invoking fn with the bare (de-namespaced) key.
func (c *Client) Scan(ctx context.Context, pattern string, fn func(bareKey string) error) error {
	var cursor uint64
	namespacedPattern := c.Key(pattern)
	prefix := ""
	if c.namespace != "" {
		prefix = c.namespace + ":"
	}
	for {
		keys, next, err := c.Raw.Scan(ctx, cursor, namespacedPattern, 100).Result()
		if err != nil {
			return err
		}
		for _, k := range keys {
			bare := k
			if prefix != "" && len(k) > len(prefix) {
				bare = k[len(prefix):]
			}
			if err := fn(bare); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Raw.Ping(ctx).Err()
}
