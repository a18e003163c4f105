package redisclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const connectAttempts = 5

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &Client{redisdb: redisdb}
}

// Connect builds a client and waits for the server to answer a ping.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	c := New(cfg)

	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(250*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "redis_ping_failed", "addr", cfg.Addr, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		_ = c.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Addr).Wrap(err)
	}

	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Raw exposes the underlying client to the retry queue.
func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
