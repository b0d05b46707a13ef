package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr        string // Redis address, e.g. "localhost:6379"
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Client is the shared (L2) cache tier backed by Redis. It satisfies
// cache.L2; values are opaque bytes stored with a per-key TTL.
type Client struct {
	client *goredis.Client
	addr   string
}

// New creates a Redis client without contacting the server. Connectivity is
// established lazily, so a missing Redis never blocks startup.
func New(cfg Config) *Client {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 500 * time.Millisecond
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dial,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   -1,
	})
	return &Client{client: client, addr: cfg.Addr}
}

// Connect creates a client and pings the server.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	c := New(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("redis connected", "component", "redis", "addr", cfg.Addr)
	return c, nil
}

// Get returns the value and its remaining TTL in one round trip.
func (c *Client) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	pipe := c.client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	val, err := getCmd.Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return val, ttl, true, nil
}

// Set stores val under key for ttl.
func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes keys. Missing keys are not an error.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
