package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"stock-ledger/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/unlock.lua
var unlockScript string

type Client struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewClient creates a new Redis client with the unlock script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:    rdb,
		unlock: redis.NewScript(unlockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireProductLock takes the advisory write lock for a product. The token
// must be presented back to ReleaseProductLock so an expired lock cannot be
// released by a later holder.
func (c *Client) AcquireProductLock(ctx context.Context, productID int64, token string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:product:%d", productID)
	return c.rdb.SetNX(ctx, key, token, ttl).Result()
}

// ReleaseProductLock releases the advisory lock if token still holds it
func (c *Client) ReleaseProductLock(ctx context.Context, productID int64, token string) error {
	key := fmt.Sprintf("lock:product:%d", productID)
	_, err := c.unlock.Run(ctx, c.rdb, []string{key}, token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock script failed: %w", err)
	}
	return nil
}

// SetStatusSnapshot mirrors a derived status for dashboards. This is
// advisory only: status reads always recompute from the ledger.
func (c *Client) SetStatusSnapshot(ctx context.Context, status models.StockStatus) error {
	key := fmt.Sprintf("stock:status:%d", status.ProductID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "total", status.Total)
	pipe.HSet(ctx, key, "reserved", status.Reserved)
	pipe.HSet(ctx, key, "available", status.Available)
	pipe.HSet(ctx, key, "status", status.Status)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStatusSnapshot retrieves the mirrored status, if any
func (c *Client) GetStatusSnapshot(ctx context.Context, productID int64) (map[string]string, error) {
	key := fmt.Sprintf("stock:status:%d", productID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no status snapshot for product %d", productID)
	}
	return result, nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
