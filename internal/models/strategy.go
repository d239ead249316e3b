package models

import (
	"time"

	"github.com/google/uuid"
)

// Strategy kinds understood by the backtest engine
const (
	StrategyMACross     = "ma_cross"
	StrategyVolatility  = "volatility"
	StrategyCorrelation = "correlation"
)

// Strategy is a stored trading strategy definition
type Strategy struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	UserID    uuid.UUID          `json:"userId" db:"user_id"`
	Name      string             `json:"name" db:"name"`
	Kind      string             `json:"kind" db:"kind"`
	Params    map[string]float64 `json:"params" db:"params"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
}

// Param returns a named parameter or the given default when absent or
// non-positive.
func (s *Strategy) Param(name string, def float64) float64 {
	if v, ok := s.Params[name]; ok && v > 0 {
		return v
	}
	return def
}

// EquityPoint is one sample of a backtest equity curve
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// BacktestResult is an immutable record of one completed backtest run
type BacktestResult struct {
	ID          uuid.UUID              `json:"id" db:"id"`
	StrategyID  uuid.UUID              `json:"strategyId" db:"strategy_id"`
	Symbol      string                 `json:"symbol" db:"symbol"`
	EquityCurve []EquityPoint          `json:"equityCurve" db:"equity_curve"`
	Metrics     map[string]interface{} `json:"metrics" db:"metrics"`
	StartedAt   time.Time              `json:"startedAt" db:"started_at"`
	CompletedAt time.Time              `json:"completedAt" db:"completed_at"`
}
