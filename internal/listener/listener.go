/*

This file contains the Pool log subscription loop. Logs arrive in block order
from the node and are forwarded in arrival order, so per-block ordering is
preserved end to end. The subscription reconnects forever with a fixed delay.

*/

package listener

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

var listenerLogger = logger.GetForComponent("whistleblower")

// priceRefreshInterval keeps the dust filter's price view roughly one block
// behind the chain, which is plenty for a $6 threshold.
const priceRefreshInterval = 12 * time.Second

// Emitter is the outbound side of the listener. *bus.Pusher satisfies it.
type Emitter interface {
	Send(msg any) error
}

// Listener subscribes to the four position-mutating Pool events and emits a
// PositionEvent per occurrence.
type Listener struct {
	emitter Emitter
	filter  *DustFilter
	assets  []common.Address
}

// New builds a listener over the given dust filter.
func New(emitter Emitter, filter *DustFilter, assets []common.Address) *Listener {
	return &Listener{emitter: emitter, filter: filter, assets: assets}
}

// Run streams Pool logs until ctx is done, reconnecting on subscription loss.
func (l *Listener) Run(ctx context.Context, provider *chain.Provider) error {
	go l.refreshPrices(ctx, provider)
	for ctx.Err() == nil {
		if err := l.follow(ctx, provider); err != nil && ctx.Err() == nil {
			metrics.Reconnects.WithLabelValues("pool_logs").Inc()
			listenerLogger.Warn().Err(err).Msg("Log subscription lost, reconnecting")
			select {
			case <-time.After(config.ReconnectDelay):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

func (l *Listener) follow(ctx context.Context, provider *chain.Provider) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{aave.PoolAddress},
		Topics: [][]common.Hash{{
			aave.LiquidationCallTopic,
			aave.BorrowTopic,
			aave.SupplyTopic,
			aave.RepayTopic,
		}},
	}
	logs := make(chan gethtypes.Log, 128)
	sub, err := provider.Eth.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case log := <-logs:
			if log.Removed {
				// Reorged out. The warm path will reconcile from chain state
				// on the next event for this user.
				continue
			}
			l.handleLog(&log)
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Listener) handleLog(log *gethtypes.Log) {
	event, err := DecodePoolLog(log)
	if err != nil {
		if !errors.Is(err, ErrUnknownTopic) {
			metrics.DecodeFailures.WithLabelValues("pool_log").Inc()
			listenerLogger.Warn().Err(err).Str("tx", log.TxHash.Hex()).Msg("Undecodable pool log")
		}
		return
	}

	if event.Kind != bus.EventLiquidationCall && l.filter.IsDust(event.Reserve, event.Amount) {
		listenerLogger.Debug().
			Str("trace_id", event.TraceID).
			Str("reserve", event.Reserve.Hex()).
			Msg("Dust event filtered")
		return
	}

	if err := l.emitter.Send(event); err != nil {
		listenerLogger.Error().Err(err).Str("trace_id", event.TraceID).Msg("Failed to emit position event")
		return
	}
	metrics.TracesStarted.WithLabelValues("position_event").Inc()
	listenerLogger.Info().
		Str("trace_id", event.TraceID).
		Uint8("kind", event.Kind).
		Str("user", event.User.Hex()).
		Str("reserve", event.Reserve.Hex()).
		Uint64("block", event.Block).
		Msg("Position event emitted")
}

func (l *Listener) refreshPrices(ctx context.Context, provider *chain.Provider) {
	ticker := time.NewTicker(priceRefreshInterval)
	defer ticker.Stop()
	for {
		prices, err := aave.FetchPrices(ctx, provider.Eth, l.assets)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			listenerLogger.Warn().Err(err).Msg("Price refresh failed")
		} else {
			l.filter.UpdatePrices(prices)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
