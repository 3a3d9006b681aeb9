package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection shared by paywall state.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "path402"
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func (c *Client) requestKey(id string) string {
	return fmt.Sprintf("%s:paywall:request:%s", c.prefix, id)
}

func (c *Client) fulfilledKey(id string) string {
	return fmt.Sprintf("%s:paywall:fulfilled:%s", c.prefix, id)
}

func (c *Client) receiptKey(id string) string {
	return fmt.Sprintf("%s:paywall:receipt:%s", c.prefix, id)
}

func (c *Client) receiptIndexKey() string {
	return fmt.Sprintf("%s:paywall:receipts", c.prefix)
}

func (c *Client) redeemedKey(requestID string) string {
	return fmt.Sprintf("%s:paywall:redeemed:%s", c.prefix, requestID)
}

func (c *Client) settlementKey(ref string) string {
	return fmt.Sprintf("%s:paywall:settlement:%s", c.prefix, ref)
}

func (c *Client) tokenKey(token string) string {
	return fmt.Sprintf("%s:paywall:token:%s", c.prefix, token)
}

func (c *Client) usageKey(token string) string {
	return fmt.Sprintf("%s:paywall:usage:%s", c.prefix, token)
}

func (c *Client) revokedKey(token string) string {
	return fmt.Sprintf("%s:paywall:revoked:%s", c.prefix, token)
}
