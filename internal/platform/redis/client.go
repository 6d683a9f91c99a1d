// Package redis opens the shared Redis connection used for idempotency
// markers and rate-limit windows.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"credence/internal/platform/config"
)

const pingTimeout = 2 * time.Second

type Client struct {
	*redis.Client
}

// New connects and pings. Returns nil if the URL is empty (Redis not configured).
// Zero-valued pool and timeout settings keep the URL's or go-redis defaults.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	setInt(&opts.PoolSize, cfg.PoolSize)
	setInt(&opts.MinIdleConns, cfg.MinIdleConns)
	setDuration(&opts.DialTimeout, cfg.DialTimeout)
	setDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	setDuration(&opts.WriteTimeout, cfg.WriteTimeout)

	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

// Health pings with a short deadline; it backs the readiness probe.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
