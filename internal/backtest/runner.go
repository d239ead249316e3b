package backtest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
)

const (
	defaultSeriesDays  = 30
	defaultShortWindow = 5
	defaultLongWindow  = 20
	defaultLookback    = 20
	defaultLag         = 5
)

// StrategyStore loads strategy definitions and persists run results
type StrategyStore interface {
	GetStrategy(ctx context.Context, id uuid.UUID) (*models.Strategy, error)
	InsertResult(ctx context.Context, result *models.BacktestResult) error
}

// Runner executes backtests for stored strategies
type Runner struct {
	strategies StrategyStore
	history    HistorySource
	logger     *logging.Logger

	nowFn  func() time.Time
	randFn func() float64
}

// NewRunner creates a backtest runner
func NewRunner(strategies StrategyStore, history HistorySource) *Runner {
	return &Runner{
		strategies: strategies,
		history:    history,
		logger:     logging.WithField("component", "backtest_runner"),
		nowFn:      time.Now,
		randFn:     defaultRand,
	}
}

// Run loads the strategy, resolves a price series for the symbol, runs
// the simulation and persists an immutable result record.
func (r *Runner) Run(ctx context.Context, strategyID uuid.UUID, symbol string, prices []models.PricePoint, days int) (*models.BacktestResult, error) {
	strategy, err := r.strategies.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	startedAt := r.nowFn()
	src := r.assembleSeries(ctx, symbol, prices, days)

	curve, metrics := r.simulate(strategy, src.points)
	if src.synthetic {
		metrics["synthetic_data"] = true
	}

	equityCurve := make([]models.EquityPoint, 0, len(curve))
	for _, p := range curve {
		equityCurve = append(equityCurve, models.EquityPoint{Timestamp: p.ts, Equity: p.equity})
	}

	result := &models.BacktestResult{
		ID:          uuid.New(),
		StrategyID:  strategy.ID,
		Symbol:      symbol,
		EquityCurve: equityCurve,
		Metrics:     metrics,
		StartedAt:   startedAt,
		CompletedAt: r.nowFn(),
	}

	if err := r.strategies.InsertResult(ctx, result); err != nil {
		return nil, err
	}

	r.logger.WithFields(map[string]interface{}{
		"strategyId": strategy.ID.String(),
		"kind":       strategy.Kind,
		"symbol":     symbol,
		"points":     len(src.points),
		"synthetic":  src.synthetic,
	}).Info("backtest completed")

	return result, nil
}

// simulate dispatches on the strategy kind. Unknown kinds fall back to
// the moving average crossover.
func (r *Runner) simulate(strategy *models.Strategy, prices []models.PricePoint) ([]curvePoint, map[string]interface{}) {
	switch strings.ToLower(strategy.Kind) {
	case models.StrategyVolatility:
		lookback := int(strategy.Param("lookback", defaultLookback))
		return backtestVolatility(prices, lookback)
	case models.StrategyCorrelation:
		lag := int(strategy.Param("lag", defaultLag))
		return backtestCorrelation(prices, lag)
	case models.StrategyMACross, "ma":
		fallthrough
	default:
		short := int(strategy.Param("short_window", defaultShortWindow))
		long := int(strategy.Param("long_window", defaultLongWindow))
		return backtestMA(prices, short, long)
	}
}
