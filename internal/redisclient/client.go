package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

//go:embed scripts/commit_stock.lua
var commitStockScript string

// ErrNotWarmed indicates the counter for a (product, size) pair has not been
// loaded into Redis; callers fall back to the database path
var ErrNotWarmed = errors.New("inventory counter not warmed")

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
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

func stockKey(productID, size string) string {
	return fmt.Sprintf("inventory:%s:%s", productID, size)
}

// ReserveStock atomically reserves stock for a (product, size) pair using a
// Lua script. Returns true if the reservation succeeded, false if stock is
// insufficient, ErrNotWarmed if the counter is missing.
func (c *Client) ReserveStock(ctx context.Context, productID, size string, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID, size)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type %T", result)
	}

	switch code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -2:
		return false, ErrNotWarmed
	default:
		return false, fmt.Errorf("unexpected script result %d", code)
	}
}

// ReleaseStock atomically restores reserved stock (compensation)
func (c *Client) ReleaseStock(ctx context.Context, productID, size string, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(productID, size)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// CommitStock atomically burns reserved stock (final deduction)
func (c *Client) CommitStock(ctx context.Context, productID, size string, quantity int) error {
	_, err := c.commitScript.Run(ctx, c.rdb, []string{stockKey(productID, size)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}
	return nil
}

// InitInventory initializes the counter for a (product, size) pair
func (c *Client) InitInventory(ctx context.Context, productID, size string, available, reserved int) error {
	key := stockKey(productID, size)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", available)
	pipe.HSet(ctx, key, "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// SetAvailable overwrites the available count for a warmed counter; used by
// merchant stock edits so the fast path stays in step with the database
func (c *Client) SetAvailable(ctx context.Context, productID, size string, available int) error {
	return c.rdb.HSet(ctx, stockKey(productID, size), "available", available).Err()
}

// GetStock retrieves the current counter for a (product, size) pair
func (c *Client) GetStock(ctx context.Context, productID, size string) (available, reserved int, err error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(productID, size)).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, ErrNotWarmed
	}

	fmt.Sscanf(result["available"], "%d", &available)
	fmt.Sscanf(result["reserved"], "%d", &reserved)
	return available, reserved, nil
}

// DropInventory removes counters for a product's sizes, used on hard delete
func (c *Client) DropInventory(ctx context.Context, productID string, sizes []string) error {
	keys := make([]string, 0, len(sizes))
	for _, size := range sizes {
		keys = append(keys, stockKey(productID, size))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
