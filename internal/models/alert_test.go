package models

import (
	"testing"
	"time"

	apperrors "github.com/portfolio-sentinel/internal/errors"
)

func TestParseRuleKindAcceptsStoredVocabulary(t *testing.T) {
	kinds := []string{
		"tvl_drop_pct",
		"tvl_below",
		"exposure_pct",
		"net_outflow_pct",
		"approval_spike",
	}

	for _, raw := range kinds {
		kind, err := ParseRuleKind(raw)
		if err != nil {
			t.Errorf("ParseRuleKind(%q) error = %v", raw, err)
		}
		if string(kind) != raw {
			t.Errorf("ParseRuleKind(%q) = %q", raw, kind)
		}
	}
}

func TestParseRuleKindRejectsUnknown(t *testing.T) {
	_, err := ParseRuleKind("tvl_drop")
	if err == nil {
		t.Fatal("ParseRuleKind() should reject unknown kinds")
	}
	if apperrors.CategoryOf(err) != apperrors.CategoryConfiguration {
		t.Errorf("error category = %v, want configuration", apperrors.CategoryOf(err))
	}
}

func TestRuleCooldownFallsBackToDefault(t *testing.T) {
	rule := &AlertRule{CooldownSecs: 0}
	if got := rule.Cooldown(5 * time.Minute); got != 5*time.Minute {
		t.Errorf("Cooldown() = %v, want default 5m", got)
	}

	rule.CooldownSecs = 60
	if got := rule.Cooldown(5 * time.Minute); got != time.Minute {
		t.Errorf("Cooldown() = %v, want 1m", got)
	}
}
