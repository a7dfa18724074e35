/*

This file contains the mempool pre-emption pipeline: two feeders (node IPC
pending stream, relay hint stream) push candidates into one bounded channel,
a single decoder drains it, deduplicates by content and emits PriceUpdate
messages. The decoder never crashes on malformed calldata; upstream protocol
changes surface as counters, not panics.

*/

package scout

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
	"github.com/hernan-erasmo/overlord/internal/oracle"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

var scoutLogger = logger.GetForComponent("oops_decoder")

// candidate is one transaction worth decoding, from either feeder. Hint-fed
// candidates carry no raw bytes and no sender; the brain falls back to state
// overrides for those.
type candidate struct {
	txHash   common.Hash
	to       common.Address
	sender   common.Address
	calldata []byte
	rawTx    []byte
}

// Emitter is the outbound side of the scout. *bus.Pusher satisfies it.
type Emitter interface {
	Send(msg any) error
}

// HeadSource exposes the chain tip for target block stamping.
type HeadSource interface {
	Latest() uint64
}

// Scout owns the filter pipeline from pending streams to the bus.
type Scout struct {
	feeds   *oracle.FeedTable
	heads   HeadSource
	emitter Emitter
	dedup   *Dedup
	pending chan candidate
}

// New builds a scout with the default queue depth and dedup window.
func New(feeds *oracle.FeedTable, heads HeadSource, emitter Emitter) (*Scout, error) {
	dedup, err := NewDedup(config.ScoutDedupCacheSize)
	if err != nil {
		return nil, err
	}
	return &Scout{
		feeds:   feeds,
		heads:   heads,
		emitter: emitter,
		dedup:   dedup,
		pending: make(chan candidate, config.PendingTxBuffer),
	}, nil
}

// Run starts the feeders and drains the decode queue until ctx is done.
func (s *Scout) Run(ctx context.Context, provider *chain.Provider) error {
	go s.feedPendingTransactions(ctx, provider)
	go s.feedRelayHints(ctx)
	return s.decodeLoop(ctx)
}

// enqueue pushes a candidate, dropping the oldest entry when the queue is at
// capacity. Freshness beats completeness on this path.
func (s *Scout) enqueue(c candidate) {
	for {
		select {
		case s.pending <- c:
			return
		default:
		}
		select {
		case <-s.pending:
			metrics.PendingTxDropped.Inc()
		default:
		}
	}
}

// feedPendingTransactions subscribes to the node's full pending stream and
// forwards transactions addressed to tracked forwarders. Reconnects forever
// with a fixed delay.
func (s *Scout) feedPendingTransactions(ctx context.Context, provider *chain.Provider) {
	for ctx.Err() == nil {
		if err := s.followPending(ctx, provider); err != nil && ctx.Err() == nil {
			metrics.Reconnects.WithLabelValues("pending_txs").Inc()
			scoutLogger.Warn().Err(err).Msg("Pending stream lost, reconnecting")
			select {
			case <-time.After(config.ReconnectDelay):
			case <-ctx.Done():
			}
		}
	}
}

func (s *Scout) followPending(ctx context.Context, provider *chain.Provider) error {
	txs := make(chan *gethtypes.Transaction, 128)
	sub, err := provider.Geth.SubscribeFullPendingTransactions(ctx, txs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	signer := gethtypes.LatestSignerForChainID(chainID())
	for {
		select {
		case tx := <-txs:
			to := tx.To()
			if to == nil || !s.feeds.IsTrackedForwarder(*to) {
				continue
			}
			raw, err := tx.MarshalBinary()
			if err != nil {
				metrics.DecodeFailures.WithLabelValues("raw_tx").Inc()
				continue
			}
			sender, err := gethtypes.Sender(signer, tx)
			if err != nil {
				metrics.DecodeFailures.WithLabelValues("sender").Inc()
				continue
			}
			s.enqueue(candidate{
				txHash:   tx.Hash(),
				to:       *to,
				sender:   sender,
				calldata: tx.Data(),
				rawTx:    raw,
			})
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeLoop is the single decoder worker.
func (s *Scout) decodeLoop(ctx context.Context) error {
	for {
		select {
		case c := <-s.pending:
			s.process(c)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Scout) process(c candidate) {
	decoded, err := oracle.DecodeForwardCall(c.calldata)
	if err != nil {
		s.countDecodeFailure(c, err)
		return
	}
	if s.dedup.Seen(c.to, decoded.NewPrice) {
		metrics.DedupHits.Inc()
		return
	}

	traceID := utils.TraceIDFromTxHash(c.txHash)
	targetBlock := s.heads.Latest() + 1
	update := &bus.PriceUpdate{
		TraceID:     traceID,
		TxHash:      c.txHash,
		RawTx:       c.rawTx,
		TargetBlock: targetBlock,
		NewPrice:    decoded.NewPrice,
		Forwarder:   c.to,
		Sender:      c.sender,
		Recipient:   decoded.Aggregator,
		Calldata:    c.calldata,
	}
	if err := s.emitter.Send(update); err != nil {
		scoutLogger.Error().Err(err).Str("trace_id", traceID).Msg("Failed to emit price update")
		return
	}
	metrics.TracesStarted.WithLabelValues("price_update").Inc()
	scoutLogger.Info().
		Str("trace_id", traceID).
		Str("tx", "https://etherscan.io/tx/"+c.txHash.Hex()).
		Str("forwarder", c.to.Hex()).
		Str("new_price", decoded.NewPrice.Dec()).
		Uint64("target_block", targetBlock).
		Msg("Pending price update emitted")
}

func chainID() *big.Int {
	return big.NewInt(aave.MainnetChainID)
}

func (s *Scout) countDecodeFailure(c candidate, err error) {
	switch {
	case errors.Is(err, oracle.ErrNotForward), errors.Is(err, oracle.ErrShortCalldata):
		// Routine traffic to the forwarder that is not a price report.
		metrics.DecodeFailures.WithLabelValues("not_forward").Inc()
	case errors.Is(err, oracle.ErrNonPositivePrice):
		metrics.DecodeFailures.WithLabelValues("bad_price").Inc()
		scoutLogger.Warn().Str("tx", c.txHash.Hex()).Msg("Transmit carried a non-positive median")
	default:
		metrics.DecodeFailures.WithLabelValues("structural").Inc()
		scoutLogger.Warn().Err(err).Str("tx", c.txHash.Hex()).Msg("Structural decode failure")
	}
}
