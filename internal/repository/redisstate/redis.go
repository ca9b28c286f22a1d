// Package redisstate stores conversation state in Redis hashes. It is the
// alternative to the DynamoDB repository for deployments that already run
// Redis, and for local development.
package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "petstore:"
	// DefaultTTL matches the DynamoDB item TTL.
	DefaultTTL = 30 * 24 * time.Hour
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key (default "petstore:").
	Prefix string
	// TTL is the expiry applied on every save; 0 disables expiry.
	TTL time.Duration
}

// Client persists conversation state as one hash per conversation.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redisstate: address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstate: ping: %w", err)
	}
	return NewFromClient(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb *redis.Client, prefix string, ttl time.Duration) *Client {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Client) convKey(conversationID string) string {
	return c.prefix + "conv:" + conversationID
}

// LoadState returns the hash fields of the conversation, or an empty map.
func (c *Client) LoadState(ctx context.Context, conversationID string) (map[string]string, error) {
	values, err := c.rdb.HGetAll(ctx, c.convKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstate: LoadState: %w", err)
	}
	return values, nil
}

// SaveState replaces the hash of the conversation and refreshes its TTL.
func (c *Client) SaveState(ctx context.Context, conversationID string, values map[string]string) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("redisstate: SaveState: conversation id is required")
	}
	key := c.convKey(conversationID)

	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			fields := make(map[string]interface{}, len(values))
			for k, v := range values {
				fields[k] = v
			}
			pipe.HSet(ctx, key, fields)
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstate: SaveState: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
