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

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// WalletRepository handles wallet storage operations
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Create stores a new tracked wallet
func (r *WalletRepository) Create(ctx context.Context, wallet *models.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, address, chain_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		wallet.ID,
		wallet.UserID,
		types.NormalizeAddress(wallet.Address),
		uint64(wallet.ChainID),
		wallet.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wallet: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet by its id
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	query := `
		SELECT id, user_id, address, chain_id, role_cache, role_cache_updated_at, created_at
		FROM wallets
		WHERE id = $1
	`

	wallet, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return wallet, nil
}

// ListAll returns every tracked wallet
func (r *WalletRepository) ListAll(ctx context.Context) ([]*models.Wallet, error) {
	query := `
		SELECT id, user_id, address, chain_id, role_cache, role_cache_updated_at, created_at
		FROM wallets
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	return collectWallets(rows)
}

// ListByUser returns all wallets belonging to a user
func (r *WalletRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error) {
	query := `
		SELECT id, user_id, address, chain_id, role_cache, role_cache_updated_at, created_at
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets for user: %w", err)
	}
	defer rows.Close()

	return collectWallets(rows)
}

// ListByChain returns all wallets on a chain
func (r *WalletRepository) ListByChain(ctx context.Context, chainID types.ChainID) ([]*models.Wallet, error) {
	query := `
		SELECT id, user_id, address, chain_id, role_cache, role_cache_updated_at, created_at
		FROM wallets
		WHERE chain_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, uint64(chainID))
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets for chain: %w", err)
	}
	defer rows.Close()

	return collectWallets(rows)
}

// ListUserIDs returns the distinct user ids that own at least one wallet
func (r *WalletRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM wallets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpdateRoleCache persists a freshly resolved role for a wallet
func (r *WalletRepository) UpdateRoleCache(ctx context.Context, walletID uuid.UUID, role types.Role, cachedAt time.Time) error {
	query := `
		UPDATE wallets
		SET role_cache = $2, role_cache_updated_at = $3
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, walletID, uint8(role), cachedAt)
	if err != nil {
		return fmt.Errorf("failed to update role cache: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var wallet models.Wallet
	var chainID uint64
	var roleCache *uint8

	err := row.Scan(
		&wallet.ID,
		&wallet.UserID,
		&wallet.Address,
		&chainID,
		&roleCache,
		&wallet.RoleCachedAt,
		&wallet.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	wallet.ChainID = types.ChainID(chainID)
	if roleCache != nil {
		role := types.Role(*roleCache)
		wallet.Role = &role
	}

	return &wallet, nil
}

func collectWallets(rows pgx.Rows) ([]*models.Wallet, error) {
	var wallets []*models.Wallet
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	return wallets, rows.Err()
}
