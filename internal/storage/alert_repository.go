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
)

// AlertRepository handles alert rule and trigger storage operations
type AlertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(pool *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

// CreateRule stores a new alert rule
func (r *AlertRepository) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, user_id, kind, threshold, enabled, cooldown_secs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		rule.ID,
		rule.UserID,
		string(rule.Kind),
		rule.Threshold,
		rule.Enabled,
		rule.CooldownSecs,
		rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}

	return nil
}

// GetRule retrieves a rule by id
func (r *AlertRepository) GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error) {
	query := `
		SELECT id, user_id, kind, threshold, enabled, cooldown_secs, created_at
		FROM alert_rules
		WHERE id = $1
	`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}

	return rule, nil
}

// ListEnabledRules returns every enabled rule for a user
func (r *AlertRepository) ListEnabledRules(ctx context.Context, userID uuid.UUID) ([]*models.AlertRule, error) {
	query := `
		SELECT id, user_id, kind, threshold, enabled, cooldown_secs, created_at
		FROM alert_rules
		WHERE user_id = $1 AND enabled = true
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// LastTriggerAt returns the time a rule last fired for a wallet, or
// ErrNotFound when it never has.
func (r *AlertRepository) LastTriggerAt(ctx context.Context, ruleID, walletID uuid.UUID) (time.Time, error) {
	query := `
		SELECT triggered_at
		FROM alert_triggers
		WHERE rule_id = $1 AND wallet_id = $2
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	var triggeredAt time.Time
	err := r.pool.QueryRow(ctx, query, ruleID, walletID).Scan(&triggeredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to get last trigger: %w", err)
	}

	return triggeredAt, nil
}

// InsertTrigger records one firing of a rule
func (r *AlertRepository) InsertTrigger(ctx context.Context, trigger *models.AlertTrigger) error {
	query := `
		INSERT INTO alert_triggers (id, rule_id, wallet_id, message, triggered_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		trigger.ID,
		trigger.RuleID,
		trigger.WalletID,
		trigger.Message,
		trigger.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert trigger: %w", err)
	}

	return nil
}

// RecentTriggers returns the most recent triggers for a user's rules
func (r *AlertRepository) RecentTriggers(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AlertTrigger, error) {
	query := `
		SELECT t.id, t.rule_id, t.wallet_id, t.message, t.triggered_at
		FROM alert_triggers t
		JOIN alert_rules r ON r.id = t.rule_id
		WHERE r.user_id = $1
		ORDER BY t.triggered_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*models.AlertTrigger
	for rows.Next() {
		var trigger models.AlertTrigger
		err := rows.Scan(&trigger.ID, &trigger.RuleID, &trigger.WalletID, &trigger.Message, &trigger.TriggeredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert trigger: %w", err)
		}
		triggers = append(triggers, &trigger)
	}

	return triggers, rows.Err()
}

func scanRule(row pgx.Row) (*models.AlertRule, error) {
	var rule models.AlertRule
	var kind string

	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&kind,
		&rule.Threshold,
		&rule.Enabled,
		&rule.CooldownSecs,
		&rule.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := models.ParseRuleKind(kind)
	if err != nil {
		return nil, err
	}
	rule.Kind = parsed

	return &rule, nil
}
