package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio-sentinel/internal/models"
)

// StrategyRepository handles strategy and backtest result storage
type StrategyRepository struct {
	pool *pgxpool.Pool
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(pool *pgxpool.Pool) *StrategyRepository {
	return &StrategyRepository{pool: pool}
}

// CreateStrategy stores a new strategy definition
func (r *StrategyRepository) CreateStrategy(ctx context.Context, strategy *models.Strategy) error {
	paramsJSON, err := json.Marshal(strategy.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy params: %w", err)
	}

	query := `
		INSERT INTO strategies (id, user_id, name, kind, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		strategy.ID,
		strategy.UserID,
		strategy.Name,
		strategy.Kind,
		paramsJSON,
		strategy.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert strategy: %w", err)
	}

	return nil
}

// GetStrategy retrieves a strategy by id
func (r *StrategyRepository) GetStrategy(ctx context.Context, id uuid.UUID) (*models.Strategy, error) {
	query := `
		SELECT id, user_id, name, kind, params, created_at
		FROM strategies
		WHERE id = $1
	`

	var strategy models.Strategy
	var paramsJSON []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&strategy.ID,
		&strategy.UserID,
		&strategy.Name,
		&strategy.Kind,
		&paramsJSON,
		&strategy.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &strategy.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy params: %w", err)
		}
	}

	return &strategy, nil
}

// InsertResult stores a completed backtest run. Results are immutable;
// there is no update path.
func (r *StrategyRepository) InsertResult(ctx context.Context, result *models.BacktestResult) error {
	curveJSON, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to marshal equity curve: %w", err)
	}

	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO backtest_results (id, strategy_id, symbol, equity_curve, metrics, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(
		ctx,
		query,
		result.ID,
		result.StrategyID,
		result.Symbol,
		curveJSON,
		metricsJSON,
		result.StartedAt,
		result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backtest result: %w", err)
	}

	return nil
}

// ListResults returns past backtest runs for a strategy, newest first
func (r *StrategyRepository) ListResults(ctx context.Context, strategyID uuid.UUID, limit int) ([]*models.BacktestResult, error) {
	query := `
		SELECT id, strategy_id, symbol, equity_curve, metrics, started_at, completed_at
		FROM backtest_results
		WHERE strategy_id = $1
		ORDER BY completed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backtest results: %w", err)
	}
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		var result models.BacktestResult
		var curveJSON, metricsJSON []byte
		err := rows.Scan(
			&result.ID,
			&result.StrategyID,
			&result.Symbol,
			&curveJSON,
			&metricsJSON,
			&result.StartedAt,
			&result.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest result: %w", err)
		}

		if len(curveJSON) > 0 {
			if err := json.Unmarshal(curveJSON, &result.EquityCurve); err != nil {
				return nil, fmt.Errorf("failed to unmarshal equity curve: %w", err)
			}
		}
		if len(metricsJSON) > 0 {
			if err := json.Unmarshal(metricsJSON, &result.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}

		results = append(results, &result)
	}

	return results, rows.Err()
}
