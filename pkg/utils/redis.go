package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
// Timeouts are short: Redis sits on the webhook hot path.
type RedisConfig struct {
	Addr string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 2 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 2 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// ClaimState is the outcome of ClaimDelivery.
type ClaimState int

const (
	// ClaimAcquired: caller owns the delivery and must MarkDelivered or ReleaseDelivery.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight: another request is delivering the same key right now.
	ClaimInFlight
	// ClaimDelivered: the key was already delivered successfully.
	ClaimDelivered
)

const claimDeliveredValue = "done"

var claimDeliveryScript = redis.NewScript(`
-- KEYS[1] = delivery key
-- ARGV[1] = in-flight ttl_ms
--
-- Returns 0 acquired, 1 in flight, 2 delivered
local v = redis.call('GET', KEYS[1])
if v == 'done' then
  return 2
end
if v then
  return 1
end
redis.call('SET', KEYS[1], 'inflight', 'PX', ARGV[1])
return 0
`)

var releaseDeliveryScript = redis.NewScript(`
-- KEYS[1] = delivery key
-- Only drop an in-flight claim; never forget a completed delivery.
if redis.call('GET', KEYS[1]) == 'inflight' then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// ClaimDelivery atomically claims key for one delivery attempt.
// The in-flight claim expires after ttl so a crashed process cannot block redelivery.
func ClaimDelivery(ctx context.Context, rdb redis.Scripter, key string, ttl time.Duration) (ClaimState, error) {
	if rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		return 0, fmt.Errorf("key is required")
	}
	if ttl <= 0 {
		return 0, fmt.Errorf("ttl must be > 0")
	}
	res, err := claimDeliveryScript.Run(ctx, rdb, []string{key}, ttl.Milliseconds()).Int()
	if err != nil {
		return 0, err
	}
	switch res {
	case 0:
		return ClaimAcquired, nil
	case 1:
		return ClaimInFlight, nil
	case 2:
		return ClaimDelivered, nil
	default:
		return 0, fmt.Errorf("unexpected claim result %d", res)
	}
}

// MarkDelivered records a successful delivery for ttl.
func MarkDelivered(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	return rdb.Set(ctx, key, claimDeliveredValue, ttl).Err()
}

// ReleaseDelivery drops an in-flight claim so the next attempt can deliver.
func ReleaseDelivery(ctx context.Context, rdb redis.Scripter, key string) error {
	if rdb == nil {
		return fmt.Errorf("redis client is nil")
	}
	_, err := releaseDeliveryScript.Run(ctx, rdb, []string{key}).Result()
	return err
}
