// Package cache provides the redis-backed board listing cache. The forum
// core does not need it to be correct; it only promises to invalidate
// entries whenever a structural mutation commits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no cached listing exists for a board.
var ErrMiss = errors.New("cache miss")

type BoardCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(redisURL string) (*BoardCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient builds a cache from an existing redis client.
func NewWithClient(client *redis.Client) *BoardCache {
	return &BoardCache{
		client: client,
		prefix: "board:",
		ttl:    5 * time.Minute,
	}
}

func (c *BoardCache) key(boardID int64) string {
	return fmt.Sprintf("%s%d:listing", c.prefix, boardID)
}

// GetListing returns the cached listing payload for a board, ErrMiss when
// absent.
func (c *BoardCache) GetListing(ctx context.Context, boardID int64) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.key(boardID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get board listing: %w", err)
	}
	return payload, nil
}

func (c *BoardCache) SetListing(ctx context.Context, boardID int64, payload []byte) error {
	if err := c.client.Set(ctx, c.key(boardID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set board listing: %w", err)
	}
	return nil
}

// InvalidateBoard drops the cached listing after a structural mutation
// commits on the board.
func (c *BoardCache) InvalidateBoard(ctx context.Context, boardID int64) error {
	if err := c.client.Del(ctx, c.key(boardID)).Err(); err != nil {
		return fmt.Errorf("invalidate board listing: %w", err)
	}
	return nil
}

func (c *BoardCache) Close() error {
	return c.client.Close()
}

func (c *BoardCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
