package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client.
type Client struct {
	*redis.Client
}

// New returns nil when url is empty so callers can fall back to in-process state.
func New(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// KeyValue stores idempotent responses under a key prefix.
type KeyValue struct {
	client *redis.Client
	prefix string
}

func NewKeyValue(c *Client, prefix string) *KeyValue {
	return &KeyValue{client: c.Client, prefix: prefix}
}

func (kv *KeyValue) Load(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := kv.client.Get(ctx, kv.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// StoreIfAbsent reports whether value was written.
func (kv *KeyValue) StoreIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return kv.client.SetNX(ctx, kv.prefix+key, value, ttl).Result()
}
