package redis

import (
	"context"
	"fmt"

	"github.com/carewire/hospital-router/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client holds the Redis connection shared by the context snapshot store
// and the rate limiter.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection before handing
// it out.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping verifies connectivity, for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
