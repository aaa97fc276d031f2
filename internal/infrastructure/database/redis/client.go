// Package redis provides the engine's Redis client, the score cache keyed
// by weight version and item fingerprint, and the distributed run lock.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/PriorityCraft/internal/config"
	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorityCraft/pkg/errors"
)

var (
	ErrClientClosed     = errors.New(errors.ErrCodeInternal, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeCacheError, "redis connection failed")
)

// Client wraps the go-redis client with close-once semantics.
type Client struct {
	rdb    *redis.Client
	cfg    config.RedisConfig
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient connects and verifies the connection.
func NewClient(cfg config.RedisConfig, log logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, ErrConnectionFailed
	}

	log.Info("redis client connected",
		logging.String("addr", cfg.Addr),
		logging.Int("db", cfg.DB),
	)
	return &Client{rdb: rdb, cfg: cfg, logger: log}, nil
}

// NewClientWithRedis wraps an existing go-redis client, for tests.
func NewClientWithRedis(rdb *redis.Client, cfg config.RedisConfig, log logging.Logger) *Client {
	return &Client{rdb: rdb, cfg: cfg, logger: log}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.rdb.Ping(ctx).Err()
}

// Close shuts the client down; subsequent commands fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rdb.Close()
	if err != nil {
		c.logger.Error("failed to close redis client", logging.Err(err))
	}
	return err
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) get(ctx context.Context, key string) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.rdb.Get(ctx, key).Bytes()
}

func (c *Client) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) setNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c.isClosed() {
		return false, ErrClientClosed
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}

func (c *Client) del(ctx context.Context, keys ...string) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	if c.isClosed() {
		return nil, 0, ErrClientClosed
	}
	return c.rdb.Scan(ctx, cursor, match, count).Result()
}
