package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/models"
)

// SyncRunRepository appends wallet sync attempt records to ClickHouse
type SyncRunRepository struct {
	db *ClickHouseDB
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *ClickHouseDB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Append records one sync attempt
func (r *SyncRunRepository) Append(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, wallet_id, status, error, attempt, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Exec(
		ctx,
		query,
		run.ID.String(),
		run.WalletID.String(),
		run.Status,
		run.Error,
		int32(run.Attempt),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append sync run: %w", err)
	}

	return nil
}

// RecentByWallet returns the latest sync attempts for a wallet, newest first
func (r *SyncRunRepository) RecentByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.SyncRun, error) {
	query := `
		SELECT id, wallet_id, status, error, attempt, started_at, finished_at
		FROM sync_runs
		WHERE wallet_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, walletID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var id, wallet string
		var attempt int32
		if err := rows.Scan(&id, &wallet, &run.Status, &run.Error, &attempt, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.ID, _ = uuid.Parse(id)
		run.WalletID, _ = uuid.Parse(wallet)
		run.Attempt = int(attempt)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}
