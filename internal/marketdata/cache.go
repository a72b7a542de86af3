package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jax-papertrader/internal/candles"
)

// Cache provides Redis-backed caching of vendor responses, keyed by
// (symbol, tf, start, end), so a retried ingest within the TTL window
// doesn't re-hit the vendor.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to redisURL and verifies reachability before returning.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("marketdata cache: invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("marketdata cache: failed to connect to redis: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

func cacheKey(symbol, tf string, start, end time.Time) string {
	return fmt.Sprintf("candles:%s:%s:%d:%d", symbol, tf, start.Unix(), end.Unix())
}

// Get returns a cached candle batch, or (nil, false) on a miss.
func (c *Cache) Get(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, bool) {
	data, err := c.client.Get(ctx, cacheKey(symbol, tf, start, end)).Bytes()
	if err != nil {
		return nil, false
	}
	var cs []candles.Candle
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, false
	}
	return cs, true
}

// Set caches a candle batch for ttl.
func (c *Cache) Set(ctx context.Context, symbol, tf string, start, end time.Time, cs []candles.Candle) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marketdata cache: marshal: %w", err)
	}
	return c.client.Set(ctx, cacheKey(symbol, tf, start, end), data, c.ttl).Err()
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
