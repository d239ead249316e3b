package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/types"
)

// TransactionRepository handles wallet transaction and sync cursor storage
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// InsertBatch stores a batch of transactions. Rows that collide on
// (wallet_id, tx_hash, log_index) are skipped so re-scanned block ranges
// never produce duplicates.
func (r *TransactionRepository) InsertBatch(ctx context.Context, txs []*models.WalletTransaction) error {
	return r.insertBatch(ctx, r.pool, txs)
}

// InsertBatchTx stores a batch inside an existing transaction
func (r *TransactionRepository) InsertBatchTx(ctx context.Context, tx pgx.Tx, txs []*models.WalletTransaction) error {
	return r.insertBatch(ctx, tx, txs)
}

func (r *TransactionRepository) insertBatch(ctx context.Context, db pgxExecutor, txs []*models.WalletTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	query := `
		INSERT INTO wallet_transactions (
			id, wallet_id, chain_id, tx_hash, block_number, log_index,
			symbol, amount, usd_value, direction, from_address, to_address, block_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (wallet_id, tx_hash, log_index) DO NOTHING
	`

	for _, tx := range txs {
		_, err := db.Exec(
			ctx,
			query,
			tx.ID,
			tx.WalletID,
			uint64(tx.ChainID),
			tx.TxHash,
			tx.BlockNumber,
			tx.LogIndex,
			tx.Symbol,
			tx.Amount,
			tx.USDValue,
			tx.Direction,
			tx.FromAddress,
			tx.ToAddress,
			tx.BlockTimestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.TxHash, err)
		}
	}

	return nil
}

// Recent returns the most recent transactions for a wallet, newest first
func (r *TransactionRepository) Recent(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.WalletTransaction, error) {
	query := `
		SELECT id, wallet_id, chain_id, tx_hash, block_number, log_index,
		       symbol, amount, usd_value, direction, from_address, to_address, block_timestamp
		FROM wallet_transactions
		WHERE wallet_id = $1
		ORDER BY block_timestamp DESC, log_index DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.WalletTransaction
	for rows.Next() {
		var tx models.WalletTransaction
		var chainID uint64
		err := rows.Scan(
			&tx.ID, &tx.WalletID, &chainID, &tx.TxHash, &tx.BlockNumber, &tx.LogIndex,
			&tx.Symbol, &tx.Amount, &tx.USDValue, &tx.Direction, &tx.FromAddress, &tx.ToAddress, &tx.BlockTimestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.ChainID = types.ChainID(chainID)
		txs = append(txs, &tx)
	}

	return txs, rows.Err()
}

// NetFlowSince returns outflow minus inflow in USD for a wallet since the
// given time. Positive values mean net funds left the wallet.
func (r *TransactionRepository) NetFlowSince(ctx context.Context, walletID uuid.UUID, since time.Time) (float64, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'out' THEN usd_value ELSE 0 END), 0) -
			COALESCE(SUM(CASE WHEN direction = 'in' THEN usd_value ELSE 0 END), 0)
		FROM wallet_transactions
		WHERE wallet_id = $1 AND block_timestamp >= $2
	`

	var netFlow float64
	if err := r.pool.QueryRow(ctx, query, walletID, since).Scan(&netFlow); err != nil {
		return 0, fmt.Errorf("failed to compute net flow: %w", err)
	}

	return netFlow, nil
}

// GetCursor returns the sync cursor for a wallet, or ErrNotFound when the
// wallet has never been scanned.
func (r *TransactionRepository) GetCursor(ctx context.Context, walletID uuid.UUID) (*models.SyncCursor, error) {
	query := `
		SELECT wallet_id, chain_id, last_tx_block, last_rollup_date, updated_at
		FROM sync_cursors
		WHERE wallet_id = $1
	`

	var cursor models.SyncCursor
	var chainID uint64
	err := r.pool.QueryRow(ctx, query, walletID).Scan(
		&cursor.WalletID, &chainID, &cursor.LastTxBlock, &cursor.LastRollupDate, &cursor.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}

	cursor.ChainID = types.ChainID(chainID)
	return &cursor, nil
}

// UpsertCursor advances the sync cursor for a wallet. The cursor only moves
// forward; a stale write is ignored.
func (r *TransactionRepository) UpsertCursor(ctx context.Context, cursor *models.SyncCursor) error {
	return r.upsertCursor(ctx, r.pool, cursor)
}

// UpsertCursorTx advances the cursor inside an existing transaction
func (r *TransactionRepository) UpsertCursorTx(ctx context.Context, tx pgx.Tx, cursor *models.SyncCursor) error {
	return r.upsertCursor(ctx, tx, cursor)
}

func (r *TransactionRepository) upsertCursor(ctx context.Context, db pgxExecutor, cursor *models.SyncCursor) error {
	query := `
		INSERT INTO sync_cursors (wallet_id, chain_id, last_tx_block, last_rollup_date, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id)
		DO UPDATE SET
			last_tx_block = EXCLUDED.last_tx_block,
			last_rollup_date = EXCLUDED.last_rollup_date,
			updated_at = EXCLUDED.updated_at
		WHERE sync_cursors.last_tx_block <= EXCLUDED.last_tx_block
	`

	_, err := db.Exec(
		ctx,
		query,
		cursor.WalletID,
		uint64(cursor.ChainID),
		cursor.LastTxBlock,
		cursor.LastRollupDate,
		cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync cursor: %w", err)
	}

	return nil
}
