package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/storage"
	"github.com/portfolio-sentinel/internal/types"
	"github.com/redis/go-redis/v9"
)

var errNoHistory = errors.New("no history")

type fakeHistory struct {
	mu      sync.Mutex
	points  []*models.PriceHistoryPoint
	covered bool
}

func (h *fakeHistory) InsertPoints(ctx context.Context, points []*models.PriceHistoryPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.points = append(h.points, points...)
	return nil
}

func (h *fakeHistory) LatestPoint(ctx context.Context, symbol string) (*models.PriceHistoryPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var latest *models.PriceHistoryPoint
	for _, p := range h.points {
		if p.Symbol != symbol {
			continue
		}
		if latest == nil || p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	if latest == nil {
		return nil, errNoHistory
	}
	return latest, nil
}

func (h *fakeHistory) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.PricePoint
	for _, p := range h.points {
		if p.Symbol == symbol && !p.Timestamp.Before(from) && !p.Timestamp.After(to) {
			out = append(out, models.PricePoint{Timestamp: p.Timestamp, Price: p.Price})
		}
	}
	return out, nil
}

func (h *fakeHistory) Covers(ctx context.Context, symbol string, from, to time.Time) (bool, error) {
	return h.covered, nil
}

func (h *fakeHistory) count(symbol string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, p := range h.points {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

type fakeProvider struct {
	price float64
	err   error
	delay time.Duration
	calls int32
	chart []models.PricePoint
}

func (p *fakeProvider) GetPrice(ctx context.Context, symbol string) (float64, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return 0, p.err
	}
	return p.price, nil
}

func (p *fakeProvider) MarketChart(ctx context.Context, symbol string, days int) ([]models.PricePoint, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return p.chart, nil
}

func newTestOracle(t *testing.T, provider Provider, history History) *Oracle {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cache := storage.NewPriceCache(storage.NewRedisCacheFromClient(client), time.Minute)

	return New(cache, history, provider, Config{
		Staleness:          5 * time.Minute,
		MinPersistInterval: time.Minute,
	})
}

func TestGetQuoteProviderTier(t *testing.T) {
	provider := &fakeProvider{price: 3123.0}
	history := &fakeHistory{}
	oracle := newTestOracle(t, provider, history)
	ctx := context.Background()

	quote, err := oracle.GetQuote(ctx, "eth")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Price != 3123.0 || quote.Source != types.SourceProvider {
		t.Errorf("quote = %+v, want provider price 3123", quote)
	}

	// A fresh provider quote is recorded as a history point
	if history.count("ETH") != 1 {
		t.Errorf("history points = %d, want 1", history.count("ETH"))
	}

	// Second lookup comes from the cache tier
	quote, err = oracle.GetQuote(ctx, "ETH")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Source != types.SourceCache {
		t.Errorf("Source = %v, want cache", quote.Source)
	}
	if atomic.LoadInt32(&provider.calls) != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestGetQuoteHistoryTier(t *testing.T) {
	provider := &fakeProvider{err: apperrors.NewProviderTimeout("coingecko")}
	history := &fakeHistory{}
	oracle := newTestOracle(t, provider, history)

	history.points = append(history.points, &models.PriceHistoryPoint{
		Symbol:    "ETH",
		Price:     2950.0,
		Timestamp: time.Now().Add(-2 * time.Minute),
		Source:    types.SourceProvider,
	})

	quote, err := oracle.GetQuote(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Source != types.SourceHistory {
		t.Errorf("Source = %v, want history", quote.Source)
	}
	if quote.Price != 2950.0 {
		t.Errorf("Price = %v, want 2950", quote.Price)
	}
	if !quote.Degraded() {
		t.Error("history quote should be flagged degraded")
	}
	if atomic.LoadInt32(&provider.calls) != 0 {
		t.Errorf("provider calls = %d, a fresh history point should pre-empt the provider", provider.calls)
	}
}

func TestGetQuoteSkipsStaleHistory(t *testing.T) {
	provider := &fakeProvider{price: 3000.0}
	history := &fakeHistory{}
	oracle := newTestOracle(t, provider, history)

	history.points = append(history.points, &models.PriceHistoryPoint{
		Symbol:    "ETH",
		Price:     1.0,
		Timestamp: time.Now().Add(-time.Hour),
	})

	quote, err := oracle.GetQuote(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Source != types.SourceProvider {
		t.Errorf("Source = %v, stale history must fall through to the provider", quote.Source)
	}
}

func TestGetQuoteStaticTier(t *testing.T) {
	provider := &fakeProvider{err: apperrors.NewProviderTimeout("coingecko")}
	oracle := newTestOracle(t, provider, &fakeHistory{})

	quote, err := oracle.GetQuote(context.Background(), "USDC")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if quote.Source != types.SourceStatic || quote.Price != 1 {
		t.Errorf("quote = %+v, want static USDC=1", quote)
	}
}

func TestGetQuoteExhausted(t *testing.T) {
	provider := &fakeProvider{err: apperrors.NewProviderTimeout("coingecko")}
	oracle := newTestOracle(t, provider, &fakeHistory{})

	_, err := oracle.GetQuote(context.Background(), "OBSCURE")
	if !apperrors.IsExhausted(err) {
		t.Errorf("error category = %v, want exhausted", apperrors.CategoryOf(err))
	}
}

func TestGetQuoteSingleFlight(t *testing.T) {
	provider := &fakeProvider{price: 3000.0, delay: 50 * time.Millisecond}
	oracle := newTestOracle(t, provider, &fakeHistory{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quote, err := oracle.GetQuote(ctx, "ETH")
			if err != nil {
				t.Errorf("GetQuote() error = %v", err)
				return
			}
			if quote.Price != 3000.0 {
				t.Errorf("Price = %v, want 3000", quote.Price)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&provider.calls); got != 1 {
		t.Errorf("provider calls = %d, concurrent lookups must share one fetch", got)
	}
}

func TestRecordThrottlesHistoryWrites(t *testing.T) {
	provider := &fakeProvider{price: 3000.0}
	history := &fakeHistory{}
	oracle := newTestOracle(t, provider, history)

	now := time.Now()
	quote := &Quote{Symbol: "ETH", Price: 3000, Source: types.SourceProvider, FetchedAt: now}
	oracle.record(context.Background(), quote)

	// A second quote inside the persist interval is cached but not recorded
	quote2 := &Quote{Symbol: "ETH", Price: 3001, Source: types.SourceProvider, FetchedAt: now.Add(10 * time.Second)}
	oracle.record(context.Background(), quote2)

	if history.count("ETH") != 1 {
		t.Errorf("history points = %d, want 1 (second write throttled)", history.count("ETH"))
	}

	// Past the interval a new point lands
	quote3 := &Quote{Symbol: "ETH", Price: 3002, Source: types.SourceProvider, FetchedAt: now.Add(2 * time.Minute)}
	oracle.record(context.Background(), quote3)

	if history.count("ETH") != 2 {
		t.Errorf("history points = %d, want 2", history.count("ETH"))
	}
}

func TestHistoricalPricesCovered(t *testing.T) {
	provider := &fakeProvider{}
	history := &fakeHistory{covered: true}
	oracle := newTestOracle(t, provider, history)

	from := time.Now().Add(-24 * time.Hour)
	history.points = append(history.points, &models.PriceHistoryPoint{
		Symbol: "ETH", Price: 3000, Timestamp: from.Add(time.Hour),
	})

	points, err := oracle.HistoricalPrices(context.Background(), "ETH", from, time.Now())
	if err != nil {
		t.Fatalf("HistoricalPrices() error = %v", err)
	}
	if len(points) != 1 {
		t.Errorf("len(points) = %d, want 1", len(points))
	}
	if atomic.LoadInt32(&provider.calls) != 0 {
		t.Errorf("provider calls = %d, covered history must not hit the provider", provider.calls)
	}
}

func TestHistoricalPricesFetchesAndPersists(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	from := now.Add(-24 * time.Hour)
	provider := &fakeProvider{chart: []models.PricePoint{
		{Timestamp: from.Add(time.Hour), Price: 3000},
		{Timestamp: from.Add(2 * time.Hour), Price: 3010},
	}}
	history := &fakeHistory{covered: false}
	oracle := newTestOracle(t, provider, history)

	points, err := oracle.HistoricalPrices(context.Background(), "ETH", from, now)
	if err != nil {
		t.Fatalf("HistoricalPrices() error = %v", err)
	}
	if len(points) != 2 {
		t.Errorf("len(points) = %d, want 2", len(points))
	}
	if history.count("ETH") != 2 {
		t.Errorf("persisted points = %d, fetched chart must be recorded", history.count("ETH"))
	}
}
