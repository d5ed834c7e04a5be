// Package store wraps the shared Redis instance that coordinates
// overlapping ticks. Everything safety-critical goes through the
// conditional counter primitives below; plain get/set is reserved for
// state that tolerates last-writer-wins.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Coordination key layout. A single controller deployment shares one
// namespace; keys are fixed, not per-user.
const (
	SlotCounterKey     = "controller:slots:active"
	SlotSyncedAtKey    = "controller:slots:synced_at"
	CircuitStateKey    = "controller:circuit:state"
	CooldownKeyPrefix  = "controller:cooldown"
	DefaultCallTimeout = 3 * time.Second
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("store: key not found")

// incrIfBelow increments the counter only while it stays under the bound.
// Missing keys count as zero. Returns 1 on success, 0 when at capacity.
var incrIfBelow = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current < tonumber(ARGV[1]) then
  redis.call('INCR', KEYS[1])
  return 1
end
return 0
`)

// decrIfAbove decrements the counter only while it stays above the floor,
// so duplicate releases can never drive it negative.
var decrIfAbove = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return 1
end
return 0
`)

// Client wraps a Redis connection with bounded call timeouts.
type Client struct {
	rdb         *redis.Client
	callTimeout time.Duration
}

// Config holds store connection settings
type Config struct {
	Address     string
	Password    string
	DB          int
	PoolSize    int
	CallTimeout time.Duration
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, callTimeout: cfg.CallTimeout}, nil
}

// NewClientFromRedis wraps an existing Redis client. Used by tests and by
// components that share the controller's connection.
func NewClientFromRedis(rdb *redis.Client, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Client{rdb: rdb, callTimeout: callTimeout}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.callTimeout)
}

// IncrIfBelow performs the conditional increment in a single server-side
// script. It never reads-then-writes from the client.
func (c *Client) IncrIfBelow(ctx context.Context, key string, max int64) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := incrIfBelow.Run(ctx, c.rdb, []string{key}, max).Int64()
	if err != nil {
		return false, fmt.Errorf("store: conditional increment on %s: %w", key, err)
	}
	return res == 1, nil
}

// DecrIfAbove performs the guarded decrement.
func (c *Client) DecrIfAbove(ctx context.Context, key string, min int64) (bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	res, err := decrIfAbove.Run(ctx, c.rdb, []string{key}, min).Int64()
	if err != nil {
		return false, fmt.Errorf("store: conditional decrement on %s: %w", key, err)
	}
	return res == 1, nil
}

// GetCounter reads a counter value; a missing key reads as zero.
func (c *Client) GetCounter(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	val, err := c.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read counter %s: %w", key, err)
	}
	return val, nil
}

// SetCounter overwrites a counter with ground truth. Only the slot sync
// reconciliation path uses this.
func (c *Client) SetCounter(ctx context.Context, key string, value int64) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store: set counter %s: %w", key, err)
	}
	return nil
}

// GetJSON reads and unmarshals a JSON value into dest.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("store: unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals and writes a JSON value with an optional TTL.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", key, err)
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

// GetTime reads a stored RFC3339 timestamp. The second return reports
// whether the key existed.
func (c *Client) GetTime(ctx context.Context, key string) (time.Time, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: read time %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: parse time %s: %w", key, err)
	}
	return t, true, nil
}

// SetTime writes a timestamp with a TTL.
func (c *Client) SetTime(ctx context.Context, key string, t time.Time, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, key, t.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("store: write time %s: %w", key, err)
	}
	return nil
}

// Ping checks store health.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
