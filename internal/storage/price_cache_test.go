package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/portfolio-sentinel/internal/types"
	"github.com/redis/go-redis/v9"
)

func newTestPriceCache(t *testing.T, ttl time.Duration) *PriceCache {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewPriceCache(NewRedisCacheFromClient(client), ttl)
}

func TestPriceCacheSetGet(t *testing.T) {
	cache := newTestPriceCache(t, time.Minute)
	ctx := context.Background()

	fetchedAt := time.Now()
	if err := cache.Set(ctx, "eth", 3000, types.SourceProvider, fetchedAt); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Lookups are case-insensitive on symbol
	entry, err := cache.Get(ctx, "ETH")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Price != 3000 {
		t.Errorf("Price = %v, want 3000", entry.Price)
	}
	if entry.Source != types.SourceProvider {
		t.Errorf("Source = %v, want %v", entry.Source, types.SourceProvider)
	}
	if !entry.ExpiresAt.After(time.Now()) {
		t.Error("entry should not be expired yet")
	}
}

func TestPriceCacheMiss(t *testing.T) {
	cache := newTestPriceCache(t, time.Minute)

	_, err := cache.Get(context.Background(), "XYZ")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPriceCacheRejectsNonPositive(t *testing.T) {
	cache := newTestPriceCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "ETH", 0, types.SourceProvider, time.Now()); err == nil {
		t.Error("Set() should reject a zero price")
	}
	if err := cache.Set(ctx, "ETH", -10, types.SourceProvider, time.Now()); err == nil {
		t.Error("Set() should reject a negative price")
	}

	if _, err := cache.Get(ctx, "ETH"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after rejected writes = %v, want ErrNotFound", err)
	}
}

func TestPriceCacheExpiredEntryIsMiss(t *testing.T) {
	cache := newTestPriceCache(t, 50*time.Millisecond)
	ctx := context.Background()

	// Entry written in the past so its embedded expiry is already behind us,
	// even though the Redis key may still exist.
	fetchedAt := time.Now().Add(-time.Second)
	entry := `{"symbol":"ETH","price":3000,"source":"coingecko",` +
		`"fetchedAt":"` + fetchedAt.Format(time.RFC3339Nano) + `",` +
		`"expiresAt":"` + fetchedAt.Add(50*time.Millisecond).Format(time.RFC3339Nano) + `"}`
	if err := cache.redis.Client().Set(ctx, "price:ETH", entry, time.Minute).Err(); err != nil {
		t.Fatalf("seeding redis: %v", err)
	}

	if _, err := cache.Get(ctx, "ETH"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on expired entry = %v, want ErrNotFound", err)
	}
}
