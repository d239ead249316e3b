package worker

import (
	"context"
	"time"

	"github.com/portfolio-sentinel/internal/adapter"
	"github.com/portfolio-sentinel/internal/logging"
	"github.com/portfolio-sentinel/internal/types"
)

// HeadListener watches chain heads over websocket and marks chains dirty
// on the sync engine. It never writes snapshots itself; the engine's next
// pass picks the work up.
type HeadListener struct {
	engine   *Engine
	adapters map[types.ChainID]adapter.HeadSubscriber
	logger   *logging.Logger

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewHeadListener creates a listener for the given subscribable adapters
func NewHeadListener(engine *Engine, adapters map[types.ChainID]adapter.HeadSubscriber) *HeadListener {
	return &HeadListener{
		engine:   engine,
		adapters: adapters,
		logger:   logging.WithField("component", "head_listener"),
		doneCh:   make(chan struct{}),
	}
}

// Start begins one watch goroutine per chain
func (l *HeadListener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go func() {
		defer close(l.doneCh)

		done := make(chan types.ChainID)
		for chainID, sub := range l.adapters {
			chainID, sub := chainID, sub
			go func() {
				l.watch(ctx, chainID, sub)
				done <- chainID
			}()
		}
		for range l.adapters {
			<-done
		}
	}()

	l.logger.WithField("chains", len(l.adapters)).Info("head listener started")
}

// Stop cancels every subscription and waits for the watchers to exit
func (l *HeadListener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()

	select {
	case <-l.doneCh:
		l.logger.Info("head listener stopped")
	case <-time.After(30 * time.Second):
		l.logger.Warn("head listener stop timed out")
	}
}

// watch maintains one subscription, reconnecting with backoff on failure
func (l *HeadListener) watch(ctx context.Context, chainID types.ChainID, sub adapter.HeadSubscriber) {
	log := l.logger.WithField("chainId", uint64(chainID))
	backoff := time.Second

	for {
		heads := make(chan uint64, 16)
		watchCtx, cancel := context.WithCancel(ctx)

		go func() {
			for {
				select {
				case <-heads:
					l.engine.MarkChainDirty(chainID)
				case <-watchCtx.Done():
					return
				}
			}
		}()

		err := sub.SubscribeNewHeads(watchCtx, heads)
		cancel()

		if ctx.Err() != nil {
			return
		}

		log.WithError(err).Warn("head subscription dropped, reconnecting")

		select {
		case <-time.After(backoff):
			if backoff < time.Minute {
				backoff *= 2
			}
		case <-ctx.Done():
			return
		}
	}
}
