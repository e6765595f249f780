package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/payproof/internal/metrics"
)

const keyPrefix = "payproof:claim:"

// Claimer grants first-writer-wins claims on delivery keys.
type Claimer interface {
	// Claim returns true if the caller is the first to claim key.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so a later delivery can retry.
	Release(ctx context.Context, key string) error
	Close() error
}

type redisClaimer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClaimer connects to Redis and verifies the connection.
func NewRedisClaimer(redisURL string, ttl time.Duration) (Claimer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisClaimerFromClient(client, ttl), nil
}

// NewRedisClaimerFromClient wraps an existing client.
func NewRedisClaimerFromClient(client *redis.Client, ttl time.Duration) Claimer {
	return &redisClaimer{client: client, ttl: ttl}
}

// Claim uses SETNX so concurrent deliveries race on a single key.
func (c *redisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	claimed, err := c.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !claimed {
		metrics.ClaimsRejected.Inc()
	}
	return claimed, nil
}

func (c *redisClaimer) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (c *redisClaimer) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// NoOpClaimer grants every claim. Used when deduplication is disabled, which
// yields one proof record per delivery.
type NoOpClaimer struct{}

func (NoOpClaimer) Claim(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (NoOpClaimer) Release(ctx context.Context, key string) error {
	return nil
}

func (NoOpClaimer) Close() error {
	return nil
}
