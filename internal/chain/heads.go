package chain

import (
	"context"
	"sync/atomic"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

// HeadTracker follows newHeads and exposes the latest block number. Consumers
// read it lock-free on every pending transaction.
type HeadTracker struct {
	provider *Provider
	latest   atomic.Uint64
	baseFee  atomic.Uint64
}

// NewHeadTracker starts following heads on the given provider.
func NewHeadTracker(provider *Provider) *HeadTracker {
	return &HeadTracker{provider: provider}
}

// Latest returns the most recent head number seen, zero before the first head.
func (h *HeadTracker) Latest() uint64 {
	return h.latest.Load()
}

// BaseFee returns the most recent head's base fee in wei, zero before the
// first head.
func (h *HeadTracker) BaseFee() uint64 {
	return h.baseFee.Load()
}

// Run subscribes to newHeads and resubscribes with a fixed backoff until ctx
// is done.
func (h *HeadTracker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := h.follow(ctx); err != nil && ctx.Err() == nil {
			metrics.Reconnects.WithLabelValues("new_heads").Inc()
			chainLogger.Warn().Err(err).Msg("Head subscription lost, reconnecting")
			select {
			case <-time.After(config.ReconnectDelay):
			case <-ctx.Done():
			}
		}
	}
}

func (h *HeadTracker) follow(ctx context.Context) error {
	heads := make(chan *gethtypes.Header, 16)
	sub, err := h.provider.Eth.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		select {
		case head := <-heads:
			h.latest.Store(head.Number.Uint64())
			if head.BaseFee != nil {
				h.baseFee.Store(head.BaseFee.Uint64())
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
