package worker

import (
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/models"
)

// buildDailyRollup produces the end-of-day row for a sync pass. The date
// is the UTC calendar day; later passes on the same day overwrite earlier
// ones via the upsert.
func buildDailyRollup(walletID uuid.UUID, totalUSD float64, now time.Time) *models.DailySnapshot {
	return &models.DailySnapshot{
		WalletID:      walletID,
		SnapshotDate:  now.UTC().Truncate(24 * time.Hour),
		TotalUSDValue: totalUSD,
		UpdatedAt:     now,
	}
}
