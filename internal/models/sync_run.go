package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync run statuses
const (
	SyncStatusOK    = "ok"
	SyncStatusError = "error"
	SyncStatusFatal = "fatal"
)

// SyncRun is one audit record of a wallet sync attempt, appended to
// ClickHouse for operational queries.
type SyncRun struct {
	ID         uuid.UUID `json:"id"`
	WalletID   uuid.UUID `json:"walletId"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
