// Package worker runs the periodic portfolio sync engine and the
// websocket-driven trigger listener.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-sentinel/internal/adapter"
	"github.com/portfolio-sentinel/internal/config"
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/models"
	"github.com/portfolio-sentinel/internal/oracle"
	"github.com/portfolio-sentinel/internal/retry"
	"github.com/portfolio-sentinel/internal/storage"
	"github.com/portfolio-sentinel/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// WalletSource lists the wallets to sync
type WalletSource interface {
	ListAll(ctx context.Context) ([]*models.Wallet, error)
}

// SnapshotSource reads the latest snapshot for due-ness checks
type SnapshotSource interface {
	Latest(ctx context.Context, walletID uuid.UUID) (*models.PortfolioSnapshot, error)
}

// CursorSource reads sync cursors
type CursorSource interface {
	GetCursor(ctx context.Context, walletID uuid.UUID) (*models.SyncCursor, error)
}

// PassApplier commits a completed sync pass atomically
type PassApplier interface {
	Apply(ctx context.Context, pass *storage.SyncPass) error
}

// RunRecorder appends sync attempt audit records
type RunRecorder interface {
	Append(ctx context.Context, run *models.SyncRun) error
}

// AdapterSource resolves the chain adapter for a wallet
type AdapterSource interface {
	Get(chainID types.ChainID) (adapter.ChainAdapter, error)
}

// QuoteSource resolves prices for valuation
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*oracle.Quote, error)
}

// Engine periodically values every tracked wallet and persists snapshots,
// transfers and cursors.
type Engine struct {
	cfg      config.SyncConfig
	wallets  WalletSource
	snaps    SnapshotSource
	cursors  CursorSource
	store    PassApplier
	runs     RunRecorder
	adapters AdapterSource
	quotes   QuoteSource
	tokens   []config.ERC20Token
	logger   *logging.Logger
	nowFn    func() time.Time

	mu    sync.Mutex
	dirty map[types.ChainID]bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEngine creates a sync engine
func NewEngine(
	cfg config.SyncConfig,
	wallets WalletSource,
	snaps SnapshotSource,
	cursors CursorSource,
	store PassApplier,
	runs RunRecorder,
	adapters AdapterSource,
	quotes QuoteSource,
	tokens []config.ERC20Token,
) *Engine {
	return &Engine{
		cfg:      cfg,
		wallets:  wallets,
		snaps:    snaps,
		cursors:  cursors,
		store:    store,
		runs:     runs,
		adapters: adapters,
		quotes:   quotes,
		tokens:   tokens,
		logger:   logging.WithField("component", "sync_engine"),
		nowFn:    time.Now,
		dirty:    make(map[types.ChainID]bool),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the sync loop in a background goroutine
func (e *Engine) Start() {
	e.logger.WithFields(map[string]interface{}{
		"interval":       e.cfg.Interval.String(),
		"maxConcurrency": e.cfg.MaxConcurrency,
	}).Info("starting sync engine")

	go e.run()
}

// Stop signals the loop to exit and waits for the current pass to finish
func (e *Engine) Stop() {
	close(e.stopCh)

	select {
	case <-e.doneCh:
		e.logger.Info("sync engine stopped")
	case <-time.After(30 * time.Second):
		e.logger.Warn("sync engine stop timed out")
	}
}

// MarkChainDirty flags every wallet on a chain as due on the next pass.
// Called by the head listener when new blocks arrive.
func (e *Engine) MarkChainDirty(chainID types.ChainID) {
	e.mu.Lock()
	e.dirty[chainID] = true
	e.mu.Unlock()
}

func (e *Engine) run() {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.RunPass(context.Background())

	for {
		select {
		case <-ticker.C:
			e.RunPass(context.Background())
		case <-e.stopCh:
			return
		}
	}
}

// RunPass syncs every due wallet once, bounded by MaxConcurrency
func (e *Engine) RunPass(ctx context.Context) {
	wallets, err := e.wallets.ListAll(ctx)
	if err != nil {
		e.logger.WithError(err).Error("failed to list wallets")
		return
	}

	dirtyChains := e.takeDirty()

	var due []*models.Wallet
	for _, wallet := range wallets {
		if dirtyChains[wallet.ChainID] || e.isDue(ctx, wallet) {
			due = append(due, wallet)
		}
	}

	if len(due) == 0 {
		return
	}

	e.logger.WithFields(map[string]interface{}{
		"due":   len(due),
		"total": len(wallets),
	}).Info("sync pass starting")

	p := pool.New().WithMaxGoroutines(e.cfg.MaxConcurrency)
	for _, wallet := range due {
		wallet := wallet
		p.Go(func() {
			e.syncWalletWithRetry(ctx, wallet)
		})
	}
	p.Wait()
}

// takeDirty returns and clears the dirty chain set
func (e *Engine) takeDirty() map[types.ChainID]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	dirty := e.dirty
	e.dirty = make(map[types.ChainID]bool)
	return dirty
}

// isDue reports whether the wallet's latest snapshot is older than the
// sync interval. Wallets with no snapshot at all are always due.
func (e *Engine) isDue(ctx context.Context, wallet *models.Wallet) bool {
	latest, err := e.snaps.Latest(ctx, wallet.ID)
	if err != nil {
		return true
	}
	return e.nowFn().Sub(latest.CreatedAt) >= e.cfg.Interval
}

// syncWalletWithRetry wraps one wallet sync in the retry policy. Every
// attempt is recorded as a sync run.
func (e *Engine) syncWalletWithRetry(ctx context.Context, wallet *models.Wallet) {
	retryCfg := retry.Config{
		MaxAttempts:  e.cfg.MaxRetries,
		InitialDelay: e.cfg.RetryInitialDelay,
		MaxDelay:     e.cfg.RetryMaxDelay,
		Multiplier:   e.cfg.RetryMultiplier,
	}

	started := e.nowFn()
	retryCfg.Observer = func(attempt int, err error) {
		run := &models.SyncRun{
			ID:         uuid.New(),
			WalletID:   wallet.ID,
			Status:     models.SyncStatusOK,
			Attempt:    attempt,
			StartedAt:  started,
			FinishedAt: e.nowFn(),
		}
		if err != nil {
			run.Status = models.SyncStatusError
			if !apperrors.IsTransient(err) {
				run.Status = models.SyncStatusFatal
			}
			run.Error = err.Error()
		}
		if appendErr := e.runs.Append(ctx, run); appendErr != nil {
			e.logger.WithError(appendErr).Warn("failed to record sync run")
		}
	}

	result := retry.Run(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		return e.syncWallet(ctx, wallet)
	})

	log := e.logger.WithFields(map[string]interface{}{
		"walletId": wallet.ID.String(),
		"attempts": result.Attempts,
		"outcome":  string(result.Outcome),
	})
	switch result.Outcome {
	case retry.OutcomeSucceeded:
		log.Debug("wallet synced")
	case retry.OutcomeRetryable:
		log.WithError(result.Err).Warn("wallet sync exhausted retries, will retry next pass")
	case retry.OutcomeFatal:
		log.WithError(result.Err).Error("wallet sync failed fatally")
	}
}

// syncWallet performs one sync attempt: value balances, scan transfers
// since the cursor, and commit everything atomically.
func (e *Engine) syncWallet(ctx context.Context, wallet *models.Wallet) error {
	chainAdapter, err := e.adapters.Get(wallet.ChainID)
	if err != nil {
		return err
	}

	latestBlock, err := chainAdapter.LatestBlock(ctx)
	if err != nil {
		return err
	}

	now := e.nowFn()

	positions, total, err := e.valuePositions(ctx, chainAdapter, wallet)
	if err != nil {
		return err
	}

	snapshot := &models.PortfolioSnapshot{
		ID:            uuid.New(),
		WalletID:      wallet.ID,
		TotalUSDValue: total,
		Positions:     positions,
		CreatedAt:     now,
	}

	pass := &storage.SyncPass{
		Snapshot: snapshot,
		Daily:    buildDailyRollup(wallet.ID, total, now),
	}

	// Transfer scanning failures degrade the pass rather than fail it:
	// the cursor is left alone so the range is retried next time.
	txs, cursor, err := e.scanTransfers(ctx, chainAdapter, wallet, latestBlock, now)
	if err != nil {
		e.logger.WithField("walletId", wallet.ID.String()).WithError(err).Warn("transfer scan failed, snapshot proceeds without it")
	} else {
		pass.Transactions = txs
		pass.Cursor = cursor
	}

	return e.store.Apply(ctx, pass)
}

// valuePositions reads native and token balances and values them in USD.
// Zero balances are dropped.
func (e *Engine) valuePositions(ctx context.Context, chainAdapter adapter.ChainAdapter, wallet *models.Wallet) ([]models.Position, float64, error) {
	var positions []models.Position
	var total float64

	nativeAmount, err := chainAdapter.NativeBalance(ctx, wallet.Address)
	if err != nil {
		return nil, 0, err
	}
	if nativeAmount > 0 {
		symbol := wallet.ChainID.NativeSymbol()
		usd, err := e.value(ctx, symbol, nativeAmount)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, models.Position{Symbol: symbol, Amount: nativeAmount, USDValue: usd})
		total += usd
	}

	for _, token := range e.chainTokens(wallet.ChainID) {
		amount, err := chainAdapter.TokenBalance(ctx, wallet.Address, token)
		if err != nil {
			return nil, 0, err
		}
		if amount <= 0 {
			continue
		}
		usd, err := e.value(ctx, token.Symbol, amount)
		if err != nil {
			return nil, 0, err
		}
		positions = append(positions, models.Position{Symbol: token.Symbol, Amount: amount, USDValue: usd})
		total += usd
	}

	return positions, total, nil
}

func (e *Engine) value(ctx context.Context, symbol string, amount float64) (float64, error) {
	quote, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return amount * quote.Price, nil
}

// scanTransfers fetches transfer events since the cursor and builds the
// advanced cursor. A wallet with no cursor starts a bounded lookback
// behind the head rather than scanning from genesis.
func (e *Engine) scanTransfers(ctx context.Context, chainAdapter adapter.ChainAdapter, wallet *models.Wallet, latestBlock uint64, now time.Time) ([]*models.WalletTransaction, *models.SyncCursor, error) {
	var fromBlock uint64

	cursor, err := e.cursors.GetCursor(ctx, wallet.ID)
	switch {
	case err == nil:
		fromBlock = cursor.LastTxBlock + 1
	case errors.Is(err, storage.ErrNotFound):
		if latestBlock > e.cfg.TxLookbackBlocks {
			fromBlock = latestBlock - e.cfg.TxLookbackBlocks
		}
	default:
		return nil, nil, err
	}

	advanced := &models.SyncCursor{
		WalletID:       wallet.ID,
		ChainID:        wallet.ChainID,
		LastTxBlock:    latestBlock,
		LastRollupDate: now.UTC().Truncate(24 * time.Hour),
		UpdatedAt:      now,
	}

	// Nothing new since the last scan; just advance the cursor
	if fromBlock > latestBlock {
		return nil, advanced, nil
	}

	events, err := chainAdapter.TransferEvents(ctx, wallet.Address, e.chainTokens(wallet.ChainID), fromBlock, latestBlock)
	if err != nil {
		return nil, nil, err
	}

	txs := make([]*models.WalletTransaction, 0, len(events))
	for _, event := range events {
		usd, err := e.value(ctx, event.Symbol, event.Amount)
		if err != nil {
			// Valuation failure does not lose the transfer record
			e.logger.WithField("symbol", event.Symbol).WithError(err).Warn("transfer valuation failed")
			usd = 0
		}
		txs = append(txs, &models.WalletTransaction{
			ID:             uuid.New(),
			WalletID:       wallet.ID,
			ChainID:        wallet.ChainID,
			TxHash:         event.TxHash,
			BlockNumber:    event.BlockNumber,
			LogIndex:       event.LogIndex,
			Symbol:         event.Symbol,
			Amount:         event.Amount,
			USDValue:       usd,
			Direction:      event.Direction(wallet.Address),
			FromAddress:    types.NormalizeAddress(event.From),
			ToAddress:      types.NormalizeAddress(event.To),
			BlockTimestamp: event.Timestamp,
		})
	}

	return txs, advanced, nil
}

func (e *Engine) chainTokens(chainID types.ChainID) []config.ERC20Token {
	var tokens []config.ERC20Token
	for _, token := range e.tokens {
		if token.ChainID == chainID {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
