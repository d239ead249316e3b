package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
	"github.com/redis/go-redis/v9"
)

// priceKeyPrefix namespaces quote entries in Redis
const priceKeyPrefix = "price:"

// PriceCache stores live quotes in Redis with a TTL. The stored entry
// carries its own expiry so validity survives clock skew between readers.
type PriceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a new price cache
func NewPriceCache(redis *RedisCache, ttl time.Duration) *PriceCache {
	return &PriceCache{redis: redis, ttl: ttl}
}

// Get returns the cached entry for a symbol, or ErrNotFound on a miss.
// Expired and non-positive entries count as misses.
func (c *PriceCache) Get(ctx context.Context, symbol string) (*models.PriceCacheEntry, error) {
	raw, err := c.redis.Client().Get(ctx, c.key(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read price cache: %w", err)
	}

	var entry models.PriceCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode price cache entry: %w", err)
	}

	if !entry.Valid(time.Now()) {
		return nil, ErrNotFound
	}

	return &entry, nil
}

// Set stores a quote for a symbol. Non-positive prices are never cached.
func (c *PriceCache) Set(ctx context.Context, symbol string, price float64, source types.PriceSource, fetchedAt time.Time) error {
	if price <= 0 {
		return fmt.Errorf("refusing to cache non-positive price %v for %s", price, symbol)
	}

	entry := models.PriceCacheEntry{
		Symbol:    types.NormalizeSymbol(symbol),
		Price:     price,
		Source:    source,
		FetchedAt: fetchedAt,
		ExpiresAt: fetchedAt.Add(c.ttl),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode price cache entry: %w", err)
	}

	if err := c.redis.Client().Set(ctx, c.key(symbol), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write price cache: %w", err)
	}

	return nil
}

// Delete removes a cached quote
func (c *PriceCache) Delete(ctx context.Context, symbol string) error {
	return c.redis.Client().Del(ctx, c.key(symbol)).Err()
}

func (c *PriceCache) key(symbol string) string {
	return priceKeyPrefix + types.NormalizeSymbol(symbol)
}
