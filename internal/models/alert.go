package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/portfolio-sentinel/internal/errors"
)

// RuleKind is the closed set of supported alert rule kinds
type RuleKind string

const (
	RuleTVLDrop       RuleKind = "tvl_drop_pct"
	RuleExposureAbove RuleKind = "exposure_pct"
	RuleNetOutflow    RuleKind = "net_outflow_pct"
	RuleApprovalSpike RuleKind = "approval_spike"
	RuleTVLBelow      RuleKind = "tvl_below"
)

// ParseRuleKind validates a stored rule kind. Unknown kinds are a
// configuration error, not a silent skip.
func ParseRuleKind(raw string) (RuleKind, error) {
	switch RuleKind(raw) {
	case RuleTVLDrop, RuleExposureAbove, RuleNetOutflow, RuleApprovalSpike, RuleTVLBelow:
		return RuleKind(raw), nil
	default:
		return "", apperrors.NewConfiguration(fmt.Sprintf("unknown alert rule kind: %q", raw))
	}
}

// AlertRule is a user-defined condition evaluated against wallet state
type AlertRule struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"userId" db:"user_id"`
	Kind         RuleKind  `json:"kind" db:"kind"`
	Threshold    float64   `json:"threshold" db:"threshold"`
	Enabled      bool      `json:"enabled" db:"enabled"`
	CooldownSecs int64     `json:"cooldownSecs" db:"cooldown_secs"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Cooldown returns the rule's cooldown, or the given default when unset
func (r *AlertRule) Cooldown(defaultCooldown time.Duration) time.Duration {
	if r.CooldownSecs > 0 {
		return time.Duration(r.CooldownSecs) * time.Second
	}
	return defaultCooldown
}

// AlertTrigger records one firing of a rule against a wallet
type AlertTrigger struct {
	ID          uuid.UUID `json:"id" db:"id"`
	RuleID      uuid.UUID `json:"ruleId" db:"rule_id"`
	WalletID    uuid.UUID `json:"walletId" db:"wallet_id"`
	Message     string    `json:"message" db:"message"`
	TriggeredAt time.Time `json:"triggeredAt" db:"triggered_at"`
}
