package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
)

// PriceHistoryRepository stores recorded price observations in ClickHouse
type PriceHistoryRepository struct {
	db *ClickHouseDB
}

// NewPriceHistoryRepository creates a new price history repository
func NewPriceHistoryRepository(db *ClickHouseDB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// InsertPoints appends price observations
func (r *PriceHistoryRepository) InsertPoints(ctx context.Context, points []*models.PriceHistoryPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO price_history (symbol, chain_id, price, ts, source)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare price history batch: %w", err)
	}

	for _, p := range points {
		err := batch.Append(
			types.NormalizeSymbol(p.Symbol),
			uint64(p.ChainID),
			p.Price,
			p.Timestamp,
			string(p.Source),
		)
		if err != nil {
			return fmt.Errorf("failed to append price history point: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send price history batch: %w", err)
	}

	return nil
}

// LatestPoint returns the newest recorded point for a symbol, or
// ErrNotFound when the symbol has no history.
func (r *PriceHistoryRepository) LatestPoint(ctx context.Context, symbol string) (*models.PriceHistoryPoint, error) {
	query := `
		SELECT symbol, chain_id, price, ts, source
		FROM price_history
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT 1
	`

	var point models.PriceHistoryPoint
	var chainID uint64
	var source string
	err := r.db.Conn().QueryRow(ctx, query, types.NormalizeSymbol(symbol)).Scan(
		&point.Symbol, &chainID, &point.Price, &point.Timestamp, &source,
	)
	if err != nil {
		return nil, ErrNotFound
	}

	point.ChainID = types.ChainID(chainID)
	point.Source = types.PriceSource(source)
	return &point, nil
}

// LatestTimestamp returns the newest recorded timestamp for a symbol.
// Used to throttle history writes.
func (r *PriceHistoryRepository) LatestTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	point, err := r.LatestPoint(ctx, symbol)
	if err != nil {
		return time.Time{}, err
	}
	return point.Timestamp, nil
}

// FetchRange returns recorded points for a symbol within [from, to],
// chronological order.
func (r *PriceHistoryRepository) FetchRange(ctx context.Context, symbol string, from, to time.Time) ([]models.PricePoint, error) {
	query := `
		SELECT ts, price
		FROM price_history
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts
	`

	rows, err := r.db.Conn().Query(ctx, query, types.NormalizeSymbol(symbol), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// Covers reports whether recorded history spans the requested range.
// The trailing edge tolerates up to one hour of missing data.
func (r *PriceHistoryRepository) Covers(ctx context.Context, symbol string, from, to time.Time) (bool, error) {
	query := `
		SELECT min(ts), max(ts)
		FROM price_history
		WHERE symbol = ?
	`

	var first, last time.Time
	if err := r.db.Conn().QueryRow(ctx, query, types.NormalizeSymbol(symbol)).Scan(&first, &last); err != nil {
		return false, nil
	}
	if first.IsZero() || last.IsZero() {
		return false, nil
	}

	return !first.After(from) && !last.Before(to.Add(-time.Hour)), nil
}
