package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio-sentinel/internal/models"
)

// SnapshotRepository handles portfolio snapshot storage operations
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Insert stores a new portfolio snapshot. Snapshots are append-only.
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *models.PortfolioSnapshot) error {
	return r.insert(ctx, r.pool, snapshot)
}

// InsertTx stores a snapshot inside an existing transaction
func (r *SnapshotRepository) InsertTx(ctx context.Context, tx pgx.Tx, snapshot *models.PortfolioSnapshot) error {
	return r.insert(ctx, tx, snapshot)
}

func (r *SnapshotRepository) insert(ctx context.Context, db pgxExecutor, snapshot *models.PortfolioSnapshot) error {
	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}

	query := `
		INSERT INTO portfolio_snapshots (id, wallet_id, total_usd_value, positions, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = db.Exec(
		ctx,
		query,
		snapshot.ID,
		snapshot.WalletID,
		snapshot.TotalUSDValue,
		positionsJSON,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return nil
}

// Latest returns the most recent snapshot for a wallet
func (r *SnapshotRepository) Latest(ctx context.Context, walletID uuid.UUID) (*models.PortfolioSnapshot, error) {
	query := `
		SELECT id, wallet_id, total_usd_value, positions, created_at
		FROM portfolio_snapshots
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.pool.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snapshot, nil
}

// Recent returns the most recent snapshots for a wallet, newest first
func (r *SnapshotRepository) Recent(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.PortfolioSnapshot, error) {
	query := `
		SELECT id, wallet_id, total_usd_value, positions, created_at
		FROM portfolio_snapshots
		WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.PortfolioSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, rows.Err()
}

// UpsertDaily writes the end-of-day rollup row for a wallet. Re-syncing the
// same date overwrites the previous value.
func (r *SnapshotRepository) UpsertDaily(ctx context.Context, daily *models.DailySnapshot) error {
	return r.upsertDaily(ctx, r.pool, daily)
}

// UpsertDailyTx writes the rollup row inside an existing transaction
func (r *SnapshotRepository) UpsertDailyTx(ctx context.Context, tx pgx.Tx, daily *models.DailySnapshot) error {
	return r.upsertDaily(ctx, tx, daily)
}

func (r *SnapshotRepository) upsertDaily(ctx context.Context, db pgxExecutor, daily *models.DailySnapshot) error {
	query := `
		INSERT INTO daily_snapshots (wallet_id, snapshot_date, total_usd_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_id, snapshot_date)
		DO UPDATE SET
			total_usd_value = EXCLUDED.total_usd_value,
			updated_at = EXCLUDED.updated_at
	`

	_, err := db.Exec(
		ctx,
		query,
		daily.WalletID,
		daily.SnapshotDate,
		daily.TotalUSDValue,
		daily.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}

	return nil
}

// DailyRange returns rollup rows for a wallet within a date range,
// chronological order.
func (r *SnapshotRepository) DailyRange(ctx context.Context, walletID uuid.UUID, from, to time.Time) ([]*models.DailySnapshot, error) {
	query := `
		SELECT wallet_id, snapshot_date, total_usd_value, updated_at
		FROM daily_snapshots
		WHERE wallet_id = $1 AND snapshot_date >= $2 AND snapshot_date <= $3
		ORDER BY snapshot_date
	`

	rows, err := r.pool.Query(ctx, query, walletID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily snapshots: %w", err)
	}
	defer rows.Close()

	var dailies []*models.DailySnapshot
	for rows.Next() {
		var daily models.DailySnapshot
		if err := rows.Scan(&daily.WalletID, &daily.SnapshotDate, &daily.TotalUSDValue, &daily.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan daily snapshot: %w", err)
		}
		dailies = append(dailies, &daily)
	}

	return dailies, rows.Err()
}

func scanSnapshot(row pgx.Row) (*models.PortfolioSnapshot, error) {
	var snapshot models.PortfolioSnapshot
	var positionsJSON []byte

	err := row.Scan(
		&snapshot.ID,
		&snapshot.WalletID,
		&snapshot.TotalUSDValue,
		&positionsJSON,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(positionsJSON) > 0 {
		if err := json.Unmarshal(positionsJSON, &snapshot.Positions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
		}
	}

	return &snapshot, nil
}
