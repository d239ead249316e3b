// Package alert evaluates user-defined rules against wallet state and
// records triggers, rate-limited by per-rule cooldowns.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/adapter"
	"github.com/portfolio-sentinel/internal/config"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/storage"
	"github.com/portfolio-sentinel/internal/types"
)

// WalletSource lists users and their wallets
type WalletSource interface {
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
}

// SnapshotSource reads recent snapshots for rule evaluation
type SnapshotSource interface {
	Recent(ctx context.Context, walletID uuid.UUID, limit int) ([]*models.PortfolioSnapshot, error)
}

// FlowSource computes trailing net flows
type FlowSource interface {
	NetFlowSince(ctx context.Context, walletID uuid.UUID, since time.Time) (float64, error)
}

// RuleStore reads rules and writes triggers
type RuleStore interface {
	ListEnabledRules(ctx context.Context, userID uuid.UUID) ([]*models.AlertRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*models.AlertRule, error)
	LastTriggerAt(ctx context.Context, ruleID, walletID uuid.UUID) (time.Time, error)
	InsertTrigger(ctx context.Context, trigger *models.AlertTrigger) error
}

// AdapterSource resolves chain adapters for approval counting
type AdapterSource interface {
	Get(chainID types.ChainID) (adapter.ChainAdapter, error)
}

// facts is the wallet state a single evaluation works from
type facts struct {
	wallet        *models.Wallet
	snapshots     []*models.PortfolioSnapshot // newest first, up to 2
	netOutflow    float64
	approvalCount int
}

func (f *facts) latestTotal() (float64, bool) {
	if len(f.snapshots) == 0 {
		return 0, false
	}
	return f.snapshots[0].TotalUSDValue, true
}

// Evaluator runs the alert tick loop
type Evaluator struct {
	cfg      config.AlertConfig
	wallets  WalletSource
	snaps    SnapshotSource
	flows    FlowSource
	rules    RuleStore
	adapters AdapterSource
	tokens   []config.ERC20Token
	logger   *logging.Logger
	nowFn    func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEvaluator creates an alert evaluator
func NewEvaluator(
	cfg config.AlertConfig,
	wallets WalletSource,
	snaps SnapshotSource,
	flows FlowSource,
	rules RuleStore,
	adapters AdapterSource,
	tokens []config.ERC20Token,
) *Evaluator {
	return &Evaluator{
		cfg:      cfg,
		wallets:  wallets,
		snaps:    snaps,
		flows:    flows,
		rules:    rules,
		adapters: adapters,
		tokens:   tokens,
		logger:   logging.WithField("component", "alert_evaluator"),
		nowFn:    time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the evaluation loop in a background goroutine
func (e *Evaluator) Start() {
	e.logger.WithField("interval", e.cfg.TickInterval.String()).Info("starting alert evaluator")
	go e.run()
}

// Stop signals the loop to exit and waits for the current tick to finish
func (e *Evaluator) Stop() {
	close(e.stopCh)

	select {
	case <-e.doneCh:
		e.logger.Info("alert evaluator stopped")
	case <-time.After(30 * time.Second):
		e.logger.Warn("alert evaluator stop timed out")
	}
}

func (e *Evaluator) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(context.Background())
		case <-e.stopCh:
			return
		}
	}
}

// Tick evaluates every enabled rule for every user. A failing rule or
// wallet never aborts the tick.
func (e *Evaluator) Tick(ctx context.Context) {
	userIDs, err := e.wallets.ListUserIDs(ctx)
	if err != nil {
		e.logger.WithError(err).Error("failed to list users")
		return
	}

	for _, userID := range userIDs {
		rules, err := e.rules.ListEnabledRules(ctx, userID)
		if err != nil {
			e.logger.WithField("userId", userID.String()).WithError(err).Error("failed to list rules")
			continue
		}
		if len(rules) == 0 {
			continue
		}

		wallets, err := e.wallets.ListByUser(ctx, userID)
		if err != nil {
			e.logger.WithField("userId", userID.String()).WithError(err).Error("failed to list wallets")
			continue
		}

		for _, wallet := range wallets {
			f, err := e.gatherFacts(ctx, wallet, rules)
			if err != nil {
				e.logger.WithField("walletId", wallet.ID.String()).WithError(err).Warn("failed to gather wallet facts")
				continue
			}

			for _, rule := range rules {
				if _, _, err := e.evaluateAndFire(ctx, rule, f); err != nil {
					e.logger.WithFields(map[string]interface{}{
						"ruleId":   rule.ID.String(),
						"walletId": wallet.ID.String(),
					}).WithError(err).Warn("rule evaluation failed")
				}
			}
		}
	}
}

// Simulate evaluates one rule against one wallet immediately. The cooldown
// check still applies: simulation cannot double-fire a rule.
func (e *Evaluator) Simulate(ctx context.Context, ruleID, walletID uuid.UUID) (bool, string, error) {
	rule, err := e.rules.GetRule(ctx, ruleID)
	if err != nil {
		return false, "", err
	}
	wallet, err := e.wallets.GetByID(ctx, walletID)
	if err != nil {
		return false, "", err
	}

	f, err := e.gatherFacts(ctx, wallet, []*models.AlertRule{rule})
	if err != nil {
		return false, "", err
	}

	return e.evaluateAndFire(ctx, rule, f)
}

// gatherFacts collects only the state the given rules actually need
func (e *Evaluator) gatherFacts(ctx context.Context, wallet *models.Wallet, rules []*models.AlertRule) (*facts, error) {
	f := &facts{wallet: wallet}

	snapshots, err := e.snaps.Recent(ctx, wallet.ID, 2)
	if err != nil && err != storage.ErrNotFound {
		return nil, err
	}
	f.snapshots = snapshots

	if hasKind(rules, models.RuleNetOutflow) {
		netFlow, err := e.flows.NetFlowSince(ctx, wallet.ID, e.nowFn().Add(-e.cfg.FlowWindow))
		if err != nil {
			return nil, err
		}
		f.netOutflow = netFlow
	}

	if hasKind(rules, models.RuleApprovalSpike) {
		chainAdapter, err := e.adapters.Get(wallet.ChainID)
		if err != nil {
			return nil, err
		}
		count, err := chainAdapter.ApprovalCount(ctx, wallet.Address, e.chainTokens(wallet.ChainID), e.cfg.ApprovalLookbackBlocks)
		if err != nil {
			return nil, err
		}
		f.approvalCount = count
	}

	return f, nil
}

// evaluateAndFire checks the rule condition and, when met, records a
// trigger unless the cooldown suppresses it. Returns whether a trigger
// was written.
func (e *Evaluator) evaluateAndFire(ctx context.Context, rule *models.AlertRule, f *facts) (bool, string, error) {
	message, met := e.evaluate(rule, f)
	if !met {
		return false, "", nil
	}
	fired, err := e.fire(ctx, rule, f.wallet.ID, message)
	return fired, message, err
}

// evaluate applies one rule to the wallet facts. Missing data means the
// condition is not met; it is never an error.
func (e *Evaluator) evaluate(rule *models.AlertRule, f *facts) (string, bool) {
	addr := f.wallet.Address

	switch rule.Kind {
	case models.RuleTVLDrop:
		if len(f.snapshots) < 2 {
			return "", false
		}
		latest, prev := f.snapshots[0].TotalUSDValue, f.snapshots[1].TotalUSDValue
		if prev <= 0 {
			return "", false
		}
		drop := (prev - latest) / prev * 100
		if drop >= rule.Threshold {
			return fmt.Sprintf("Wallet %s TVL dropped %.2f%% (%v -> %v)", addr, drop, prev, latest), true
		}

	case models.RuleTVLBelow:
		total, ok := f.latestTotal()
		if ok && total <= rule.Threshold {
			return fmt.Sprintf("Wallet %s TVL below $%.2f", addr, rule.Threshold), true
		}

	case models.RuleExposureAbove:
		total, ok := f.latestTotal()
		if !ok || total <= 0 {
			return "", false
		}
		for _, position := range f.snapshots[0].Positions {
			pct := position.USDValue / total * 100
			if pct >= rule.Threshold {
				return fmt.Sprintf("Wallet %s %s exposure %.2f%%", addr, position.Symbol, pct), true
			}
		}

	case models.RuleNetOutflow:
		total, ok := f.latestTotal()
		if !ok || total <= 0 {
			return "", false
		}
		pct := f.netOutflow / total * 100
		if pct >= rule.Threshold {
			return fmt.Sprintf("Wallet %s net outflow %.2f%% (~$%.2f) past 24h", addr, pct, f.netOutflow), true
		}

	case models.RuleApprovalSpike:
		if float64(f.approvalCount) >= rule.Threshold {
			return fmt.Sprintf("Wallet %s saw %d approvals in recent blocks", addr, f.approvalCount), true
		}
	}

	return "", false
}

// fire records a trigger unless one exists within the cooldown window
func (e *Evaluator) fire(ctx context.Context, rule *models.AlertRule, walletID uuid.UUID, message string) (bool, error) {
	now := e.nowFn()

	last, err := e.rules.LastTriggerAt(ctx, rule.ID, walletID)
	if err == nil && now.Before(last.Add(rule.Cooldown(e.cfg.DefaultCooldown))) {
		return false, nil
	}
	if err != nil && err != storage.ErrNotFound {
		return false, err
	}

	trigger := &models.AlertTrigger{
		ID:          uuid.New(),
		RuleID:      rule.ID,
		WalletID:    walletID,
		Message:     message,
		TriggeredAt: now,
	}
	if err := e.rules.InsertTrigger(ctx, trigger); err != nil {
		return false, err
	}

	e.logger.WithFields(map[string]interface{}{
		"ruleId":   rule.ID.String(),
		"walletId": walletID.String(),
		"kind":     string(rule.Kind),
	}).Info(message)

	return true, nil
}

func (e *Evaluator) chainTokens(chainID types.ChainID) []config.ERC20Token {
	var tokens []config.ERC20Token
	for _, token := range e.tokens {
		if token.ChainID == chainID {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func hasKind(rules []*models.AlertRule, kind models.RuleKind) bool {
	for _, rule := range rules {
		if rule.Kind == kind {
			return true
		}
	}
	return false
}
