package models

import (
	"time"

	"github.com/portfolio-sentinel/internal/types"
)

// PriceCacheEntry is the Redis representation of a cached quote
type PriceCacheEntry struct {
	Symbol    string            `json:"symbol"`
	Price     float64           `json:"price"`
	Source    types.PriceSource `json:"source"`
	FetchedAt time.Time         `json:"fetchedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Valid reports whether the entry can still be served as a live quote
func (e *PriceCacheEntry) Valid(now time.Time) bool {
	return e.Price > 0 && now.Before(e.ExpiresAt)
}

// PriceHistoryPoint is one recorded price observation in ClickHouse
type PriceHistoryPoint struct {
	Symbol    string            `json:"symbol"`
	ChainID   types.ChainID     `json:"chainId"`
	Price     float64           `json:"price"`
	Timestamp time.Time         `json:"timestamp"`
	Source    types.PriceSource `json:"source"`
}

// PricePoint is a bare (timestamp, price) pair used by backtests
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}
