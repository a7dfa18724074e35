/*

This file contains the warm path: confirmed Pool events flow in over the bus
and keep the cache canonical. Each event triggers a single-user re-read from
the chain, an atomic cache replace, and a canonical health check. A user who
turns underwater here is emitted too, unless a concurrent speculative trace
already covered them for the same block.

*/

package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
	"github.com/hernan-erasmo/overlord/internal/types"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

// userRefreshTimeout bounds the single-user re-read; the warm path is not
// latency critical but must not wedge the dispatch loop.
const userRefreshTimeout = 10 * time.Second

// HandlePositionEvent refreshes one user from canonical state. The bus
// dispatch goroutine is the only caller, so events for the same user are
// applied in arrival order.
func (e *Engine) HandlePositionEvent(ctx context.Context, event *bus.PositionEvent) {
	traceLog := logger.WithTrace(engineLogger, event.TraceID)

	ctx, cancel := context.WithTimeout(ctx, userRefreshTimeout)
	defer cancel()

	positions, err := aave.FetchUserPositions(ctx, e.node.Eth, []common.Address{event.User})
	if err != nil {
		traceLog.Error().Err(err).Str("user", event.User.Hex()).Msg("Failed to refresh user positions")
		return
	}

	up := types.UserPositions{User: event.User}
	if len(positions) > 0 {
		up = positions[0]
	}

	// A liquidated or fully repaid user with no remaining footprint drops
	// out of the index entirely.
	if !up.HasCollateral() && !up.HasDebt() {
		e.cache.Remove(event.User)
		traceLog.Info().
			Str("user", event.User.Hex()).
			Str("event", bus.EventName(event.Kind)).
			Msg("User left the protocol, dropped from cache")
		return
	}

	e.cache.Replace(up)
	if e.cache.IsDormant(event.User) {
		// Borrow and withdraw-side events can wake a position that was
		// parked as untouchable at bootstrap.
		e.cache.SetDormant(event.User, false)
		traceLog.Info().Str("user", event.User.Hex()).Msg("Dormant user woke up")
	}

	accounts, err := aave.FetchAccountData(ctx, e.node.Eth, []common.Address{event.User}, nil)
	if err != nil {
		traceLog.Warn().Err(err).Str("user", event.User.Hex()).Msg("Canonical account read failed after refresh")
		return
	}
	account, ok := accounts[event.User]
	if !ok {
		return
	}

	if account.HealthFactor.Cmp(aave.Wad) >= 0 {
		return
	}
	if account.TotalCollateralBase.Cmp(config.MinReportableCollateralBase) < 0 {
		return
	}

	// Canonical underwater: no pending price tx to carry, the liquidation
	// is executable against head state as is.
	msg := &bus.UnderwaterUser{
		TraceID:             event.TraceID,
		User:                event.User,
		HealthFactor:        account.HealthFactor.Clone(),
		TotalCollateralBase: account.TotalCollateralBase.Clone(),
		TxHash:              event.TxHash,
		TargetBlock:         event.Block + 1,
		Snapshot:            up.Reserves,
	}
	if err := e.emitter.Send(msg); err != nil {
		traceLog.Error().Err(err).Str("user", event.User.Hex()).Msg("Failed to emit underwater user")
		return
	}
	metrics.UnderwaterEmitted.Inc()
	metrics.TracesStarted.WithLabelValues("position_event").Inc()
	traceLog.Info().
		Str("user", event.User.Hex()).
		Str("event", bus.EventName(event.Kind)).
		Str("health_factor", utils.FormatHealthFactor(account.HealthFactor)).
		Msg("Canonically underwater user emitted")
}
