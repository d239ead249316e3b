package backtest

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/portfolio-sentinel/internal/models"
)

// HistorySource loads recorded price history for a symbol
type HistorySource interface {
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error)
}

// series is the price input a backtest runs on, with provenance
type series struct {
	points    []models.PricePoint
	synthetic bool
}

// assembleSeries resolves the price series for a run. Caller-supplied
// prices win; otherwise recorded history is used, and when history is
// unavailable or empty a synthetic series stands in, flagged in the
// result metrics.
func (r *Runner) assembleSeries(ctx context.Context, symbol string, supplied []models.PricePoint, days int) series {
	if len(supplied) > 0 {
		return series{points: supplied}
	}

	if days <= 0 {
		days = defaultSeriesDays
	}

	now := r.nowFn()
	points, err := r.history.HistoricalPrices(ctx, symbol, now.AddDate(0, 0, -days), now)
	if err != nil {
		r.logger.WithField("symbol", symbol).WithError(err).Warn("history load failed, using synthetic series")
	} else if len(points) > 0 {
		return series{points: points}
	}

	return series{points: syntheticPrices(now, days, r.randFn), synthetic: true}
}

// syntheticPrices generates a daily random-walk series ending at now,
// with a small upward drift around a 100.0 starting price.
func syntheticPrices(now time.Time, days int, randFn func() float64) []models.PricePoint {
	if days < 7 {
		days = 7
	}

	price := 100.0
	points := make([]models.PricePoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		ts := now.AddDate(0, 0, -i)
		noise := randFn()*0.02 - 0.01
		price *= 1.0 + 0.0015 + noise
		price = math.Round(price*100) / 100
		points = append(points, models.PricePoint{Timestamp: ts, Price: price})
	}
	return points
}

func defaultRand() float64 {
	return rand.Float64()
}
