// Package oracle resolves asset prices through a tiered fallback chain:
// live cache, recorded history within a staleness bound, the external
// provider, and finally the static configured table.
package oracle

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
)

// Quote is a resolved price with its provenance
type Quote struct {
	Symbol    string
	Price     float64
	Source    types.PriceSource
	FetchedAt time.Time
}

// Degraded reports whether the quote came from a fallback tier
func (q *Quote) Degraded() bool {
	return q.Source.Degraded()
}

// Provider fetches prices from the external market API
type Provider interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	MarketChart(ctx context.Context, symbol string, days int) ([]models.PricePoint, error)
}

// Cache is the live quote cache tier
type Cache interface {
	Get(ctx context.Context, symbol string) (*models.PriceCacheEntry, error)
	Set(ctx context.Context, symbol string, price float64, source types.PriceSource, fetchedAt time.Time) error
}

// History is the recorded price observation store
type History interface {
	InsertPoints(ctx context.Context, points []*models.PriceHistoryPoint) error
	LatestPoint(ctx context.Context, symbol string) (*models.PriceHistoryPoint, error)
	FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
	Covers(ctx context.Context, symbol string, from, to time.Time) (bool, error)
}

// defaultStaticPrices seed the static tier for common assets when the
// operator configures nothing.
var defaultStaticPrices = map[string]float64{
	"ETH":  3000,
	"BNB":  600,
	"USDC": 1,
}

// Config holds oracle behavior parameters
type Config struct {
	Staleness          time.Duration // max history point age served as a quote
	MinPersistInterval time.Duration // min gap between recorded history points
	StaticPrices       map[string]float64
}

// Oracle resolves quotes with per-symbol single-flight so concurrent
// lookups for one symbol share a single provider call.
type Oracle struct {
	cache    Cache
	history  History
	provider Provider
	cfg      Config
	static   map[string]float64
	logger   *logging.Logger

	nowFn func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightFetch
}

// inflightFetch broadcasts one fetch result to every waiter. Fields are
// written before done is closed and only read after.
type inflightFetch struct {
	done  chan struct{}
	quote *Quote
	err   error
}

// New creates an oracle
func New(cache Cache, history History, provider Provider, cfg Config) *Oracle {
	static := make(map[string]float64, len(defaultStaticPrices)+len(cfg.StaticPrices))
	for symbol, price := range defaultStaticPrices {
		static[symbol] = price
	}
	for symbol, price := range cfg.StaticPrices {
		static[types.NormalizeSymbol(symbol)] = price
	}

	return &Oracle{
		cache:    cache,
		history:  history,
		provider: provider,
		cfg:      cfg,
		static:   static,
		logger:   logging.WithField("component", "oracle"),
		nowFn:    time.Now,
		inflight: make(map[string]*inflightFetch),
	}
}

// GetQuote resolves the current price for a symbol
func (o *Oracle) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = types.NormalizeSymbol(symbol)

	// Cache tier first; a hit never takes the single-flight path
	if entry, err := o.cache.Get(ctx, symbol); err == nil {
		return &Quote{
			Symbol:    symbol,
			Price:     entry.Price,
			Source:    types.SourceCache,
			FetchedAt: entry.FetchedAt,
		}, nil
	}

	return o.fetchShared(ctx, symbol)
}

// fetchShared collapses concurrent misses for one symbol into a single
// resolution.
func (o *Oracle) fetchShared(ctx context.Context, symbol string) (*Quote, error) {
	o.mu.Lock()
	if flight, ok := o.inflight[symbol]; ok {
		o.mu.Unlock()
		select {
		case <-flight.done:
			return flight.quote, flight.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	flight := &inflightFetch{done: make(chan struct{})}
	o.inflight[symbol] = flight
	o.mu.Unlock()

	quote, err := o.resolve(ctx, symbol)

	flight.quote = quote
	flight.err = err
	close(flight.done)

	o.mu.Lock()
	delete(o.inflight, symbol)
	o.mu.Unlock()

	return quote, err
}

// resolve walks the fallback tiers below the cache
func (o *Oracle) resolve(ctx context.Context, symbol string) (*Quote, error) {
	now := o.nowFn()

	// History tier: a recent enough recorded point substitutes for a
	// live fetch
	if point, err := o.history.LatestPoint(ctx, symbol); err == nil {
		if point.Price > 0 && now.Sub(point.Timestamp) <= o.cfg.Staleness {
			return &Quote{
				Symbol:    symbol,
				Price:     point.Price,
				Source:    types.SourceHistory,
				FetchedAt: point.Timestamp,
			}, nil
		}
	}

	// Provider tier
	price, provErr := o.provider.GetPrice(ctx, symbol)
	if provErr == nil {
		quote := &Quote{
			Symbol:    symbol,
			Price:     price,
			Source:    types.SourceProvider,
			FetchedAt: now,
		}
		o.record(ctx, quote)
		return quote, nil
	}

	o.logger.WithField("symbol", symbol).WithError(provErr).Warn("provider fetch failed, trying static tier")

	// Static tier
	if price, ok := o.static[symbol]; ok && price > 0 {
		return &Quote{
			Symbol:    symbol,
			Price:     price,
			Source:    types.SourceStatic,
			FetchedAt: now,
		}, nil
	}

	return nil, apperrors.NewPriceUnavailable(symbol, provErr)
}

// record writes a fresh provider quote to the cache and, throttled, to
// history. Failures here degrade observability but never fail the quote.
func (o *Oracle) record(ctx context.Context, quote *Quote) {
	if err := o.cache.Set(ctx, quote.Symbol, quote.Price, quote.Source, quote.FetchedAt); err != nil {
		o.logger.WithField("symbol", quote.Symbol).WithError(err).Warn("failed to cache quote")
	}

	// Only persist a history point if the last one is old enough
	if last, err := o.history.LatestPoint(ctx, quote.Symbol); err == nil {
		if quote.FetchedAt.Sub(last.Timestamp) < o.cfg.MinPersistInterval {
			return
		}
	}

	point := &models.PriceHistoryPoint{
		Symbol:    quote.Symbol,
		Price:     quote.Price,
		Timestamp: quote.FetchedAt,
		Source:    quote.Source,
	}
	if err := o.history.InsertPoints(ctx, []*models.PriceHistoryPoint{point}); err != nil {
		o.logger.WithField("symbol", quote.Symbol).WithError(err).Warn("failed to record history point")
	}
}

// HistoricalPrices returns recorded prices for [from, to]. When recorded
// history does not cover the range, the provider's market chart fills in
// and the fetched points are persisted for next time.
func (o *Oracle) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	symbol = types.NormalizeSymbol(symbol)

	covered, err := o.history.Covers(ctx, symbol, from, to)
	if err == nil && covered {
		return o.history.FetchRange(ctx, symbol, from, to)
	}

	days := int(to.Sub(from).Hours()/24) + 1
	points, err := o.provider.MarketChart(ctx, symbol, days)
	if err != nil {
		// Partial recorded history beats nothing
		if recorded, hErr := o.history.FetchRange(ctx, symbol, from, to); hErr == nil && len(recorded) > 0 {
			return recorded, nil
		}
		return nil, err
	}

	historyPoints := make([]*models.PriceHistoryPoint, 0, len(points))
	for _, p := range points {
		historyPoints = append(historyPoints, &models.PriceHistoryPoint{
			Symbol:    symbol,
			Price:     p.Price,
			Timestamp: p.Timestamp,
			Source:    types.SourceProvider,
		})
	}
	if err := o.history.InsertPoints(ctx, historyPoints); err != nil {
		o.logger.WithField("symbol", symbol).WithError(err).Warn("failed to persist market chart")
	}

	filtered := points[:0]
	for _, p := range points {
		if !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			filtered = append(filtered, p)
		}
	}

	return filtered, nil
}
