package models

import (
	"time"

	"github.com/google/uuid"
)

// Position is one asset line inside a snapshot
type Position struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usdValue"`
}

// PortfolioSnapshot is one valuation of a wallet at a point in time.
// Positions are stored as a jsonb column.
type PortfolioSnapshot struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	WalletID      uuid.UUID  `json:"walletId" db:"wallet_id"`
	TotalUSDValue float64    `json:"totalUsdValue" db:"total_usd_value"`
	Positions     []Position `json:"positions" db:"positions"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// DailySnapshot is the end-of-day rollup row, one per wallet per date.
// Re-syncing the same day overwrites the previous value.
type DailySnapshot struct {
	WalletID      uuid.UUID `json:"walletId" db:"wallet_id"`
	SnapshotDate  time.Time `json:"snapshotDate" db:"snapshot_date"`
	TotalUSDValue float64   `json:"totalUsdValue" db:"total_usd_value"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
