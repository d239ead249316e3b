package oracle

import (
	"context"
	"time"

	"github.com/portfolio-sentinel/internal/logging"
)

// Refresher keeps the cache tier warm by periodically re-resolving a fixed
// set of symbols.
type Refresher struct {
	oracle   *Oracle
	symbols  []string
	interval time.Duration
	logger   *logging.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefresher creates a refresher for the given symbols
func NewRefresher(oracle *Oracle, symbols []string, interval time.Duration) *Refresher {
	return &Refresher{
		oracle:   oracle,
		symbols:  symbols,
		interval: interval,
		logger:   logging.WithField("component", "price_refresher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the refresh loop in a background goroutine
func (r *Refresher) Start() {
	r.logger.WithFields(map[string]interface{}{
		"symbols":  len(r.symbols),
		"interval": r.interval.String(),
	}).Info("starting price refresher")

	go r.run()
}

// Stop signals the loop to exit and waits for it to finish
func (r *Refresher) Stop() {
	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.Info("price refresher stopped")
	case <-time.After(30 * time.Second):
		r.logger.Warn("price refresher stop timed out")
	}
}

func (r *Refresher) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Warm the cache immediately rather than waiting a full interval
	r.refreshAll()

	for {
		select {
		case <-ticker.C:
			r.refreshAll()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()

	for _, symbol := range r.symbols {
		if _, err := r.oracle.GetQuote(ctx, symbol); err != nil {
			r.logger.WithField("symbol", symbol).WithError(err).Warn("refresh failed")
		}
	}
}
