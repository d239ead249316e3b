package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio-sentinel/internal/models"
)

// SyncPass is the complete result of one wallet sync: the new snapshot,
// newly discovered transfers, the advanced cursor and the daily rollup.
type SyncPass struct {
	Snapshot     *models.PortfolioSnapshot
	Transactions []*models.WalletTransaction
	Cursor       *models.SyncCursor
	Daily        *models.DailySnapshot
}

// SyncStore applies a sync pass atomically. Either all writes land or none
// do, so a crash mid-sync never leaves a snapshot without its cursor.
type SyncStore struct {
	pool      *pgxpool.Pool
	snapshots *SnapshotRepository
	txs       *TransactionRepository
}

// NewSyncStore creates a new sync store
func NewSyncStore(pool *pgxpool.Pool, snapshots *SnapshotRepository, txs *TransactionRepository) *SyncStore {
	return &SyncStore{
		pool:      pool,
		snapshots: snapshots,
		txs:       txs,
	}
}

// Apply commits a sync pass in a single database transaction
func (s *SyncStore) Apply(ctx context.Context, pass *SyncPass) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // nolint:errcheck // no-op after commit
	}()

	if pass.Snapshot != nil {
		if err := s.snapshots.InsertTx(ctx, tx, pass.Snapshot); err != nil {
			return err
		}
	}

	if len(pass.Transactions) > 0 {
		if err := s.txs.InsertBatchTx(ctx, tx, pass.Transactions); err != nil {
			return err
		}
	}

	if pass.Cursor != nil {
		if err := s.txs.UpsertCursorTx(ctx, tx, pass.Cursor); err != nil {
			return err
		}
	}

	if pass.Daily != nil {
		if err := s.snapshots.UpsertDailyTx(ctx, tx, pass.Daily); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	return nil
}
