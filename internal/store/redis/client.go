package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the redis connection used as the ledger's hot cache. It is a
// read-through accelerator only; the postgres ledger stays authoritative.
type Client struct {
	client *redis.Client
}

func New(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetProcessed records a processed ledger key with a TTL. The TTL only
// bounds cache size; expiry falls back to the store read.
func (c *Client) SetProcessed(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Set(ctx, "processed:"+key, "1", ttl).Err()
}

// IsProcessed reports whether the key is in the hot cache. A miss means
// "unknown", not "unprocessed".
func (c *Client) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, "processed:"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
