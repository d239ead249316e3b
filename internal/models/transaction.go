package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/types"
)

// Transfer directions relative to the tracked wallet
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// WalletTransaction is one token transfer touching a tracked wallet.
// (wallet_id, tx_hash, log_index) is unique so re-scanned ranges dedupe.
type WalletTransaction struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	WalletID       uuid.UUID     `json:"walletId" db:"wallet_id"`
	ChainID        types.ChainID `json:"chainId" db:"chain_id"`
	TxHash         string        `json:"txHash" db:"tx_hash"`
	BlockNumber    uint64        `json:"blockNumber" db:"block_number"`
	LogIndex       uint64        `json:"logIndex" db:"log_index"`
	Symbol         string        `json:"symbol" db:"symbol"`
	Amount         float64       `json:"amount" db:"amount"`
	USDValue       float64       `json:"usdValue" db:"usd_value"`
	Direction      string        `json:"direction" db:"direction"`
	FromAddress    string        `json:"fromAddress" db:"from_address"`
	ToAddress      string        `json:"toAddress" db:"to_address"`
	BlockTimestamp time.Time     `json:"blockTimestamp" db:"block_timestamp"`
}

// SyncCursor tracks how far a wallet's transfer history has been scanned
// and the last calendar day rolled up into the daily aggregate. Written
// only by successful sync passes.
type SyncCursor struct {
	WalletID       uuid.UUID     `json:"walletId" db:"wallet_id"`
	ChainID        types.ChainID `json:"chainId" db:"chain_id"`
	LastTxBlock    uint64        `json:"lastTxBlock" db:"last_tx_block"`
	LastRollupDate time.Time     `json:"lastRollupDate" db:"last_rollup_date"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
}
