package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/types"
)

// Wallet represents a tracked wallet address on a specific chain
type Wallet struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	UserID       uuid.UUID     `json:"userId" db:"user_id"`
	Address      string        `json:"address" db:"address"`
	ChainID      types.ChainID `json:"chainId" db:"chain_id"`
	Role         *types.Role   `json:"role,omitempty" db:"role_cache"`
	RoleCachedAt *time.Time    `json:"roleCachedAt,omitempty" db:"role_cache_updated_at"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}
