/*

This file contains the price-update hot path: candidate selection from the
reverse index, fork replay of the pending oracle transaction, bucketed
parallel health factor recomputation, and emission of underwater candidates.
Traces are isolated: each one runs on its own fork against its own immutable
snapshot, and traces for the same forwarder serialize so a newer update never
races the fork of an older one.

*/

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
	"github.com/hernan-erasmo/overlord/internal/oracle"
	"github.com/hernan-erasmo/overlord/internal/types"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

var engineLogger = logger.GetForComponent("vega_engine")

// Emitter is the outbound side of the engine. *bus.Pusher satisfies it.
type Emitter interface {
	Send(msg any) error
}

// TraceStats is the per-trace record handed to the stats sink.
type TraceStats struct {
	TraceID      string
	Origin       string
	Candidates   int
	Buckets      int
	Underwater   int
	Elapsed      time.Duration
	OverDeadline bool
}

// StatsSink receives per-trace timing and sizing records. Optional.
type StatsSink interface {
	RecordTrace(stats TraceStats)
}

// Engine owns the cache, the fork pool and the recompute pipeline.
type Engine struct {
	cache   *PositionCache
	feeds   *oracle.FeedTable
	configs map[common.Address]types.ReserveConfig
	forks   *ForkPool
	node    *chain.Provider
	emitter Emitter
	buckets int
	stats   StatsSink

	mu          sync.Mutex
	perFeedGate map[common.Address]*sync.Mutex
}

// New assembles the engine. stats may be nil.
func New(
	cache *PositionCache,
	feeds *oracle.FeedTable,
	configs map[common.Address]types.ReserveConfig,
	forks *ForkPool,
	node *chain.Provider,
	emitter Emitter,
	buckets int,
	stats StatsSink,
) *Engine {
	if buckets <= 0 {
		buckets = config.DefaultBuckets
	}
	return &Engine{
		cache:       cache,
		feeds:       feeds,
		configs:     configs,
		forks:       forks,
		node:        node,
		emitter:     emitter,
		buckets:     buckets,
		stats:       stats,
		perFeedGate: make(map[common.Address]*sync.Mutex),
	}
}

// Cache exposes the position cache for the warm path and bootstrap.
func (e *Engine) Cache() *PositionCache {
	return e.cache
}

// HandlePriceUpdate runs one full speculative trace. Safe to call from many
// goroutines; traces for distinct forwarders run concurrently.
func (e *Engine) HandlePriceUpdate(ctx context.Context, update *bus.PriceUpdate) {
	traceLog := logger.WithTrace(engineLogger, update.TraceID)
	start := time.Now()

	feeds := e.feeds.ReservesForForwarder(update.Forwarder)
	if len(feeds) == 0 {
		traceLog.Warn().Str("forwarder", update.Forwarder.Hex()).Msg("Update for untracked forwarder")
		return
	}
	affected := make([]common.Address, 0, len(feeds))
	for _, feed := range feeds {
		affected = append(affected, feed.Reserve)
	}

	candidates := e.cache.CandidatesForReserves(affected)
	if len(candidates) == 0 {
		traceLog.Debug().Msg("No candidates for affected reserves")
		return
	}
	snapshot := e.cache.Snapshot(candidates)

	// One trace per forwarder at a time; a newer update waits for the older
	// fork to terminate before superseding it.
	gate := e.gateFor(update.Forwarder)
	gate.Lock()
	defer gate.Unlock()

	ctx, cancel := context.WithTimeout(ctx, config.TraceDeadline)
	defer cancel()

	fork, err := e.forks.Acquire(ctx)
	if err != nil {
		traceLog.Warn().Err(err).Msg("Trace abandoned, no fork")
		return
	}
	defer fork.Release()

	if len(update.RawTx) > 0 {
		err = fork.ReplayRawTx(ctx, update.RawTx)
	} else {
		// Hint-fed update: no raw bytes, write the answer slot directly.
		err = fork.OverrideAggregatorAnswer(ctx, update.Recipient, update.NewPrice)
	}
	if err != nil {
		traceLog.Warn().Err(err).Msg("Trace abandoned, fork preparation failed")
		return
	}

	accounts, overDeadline := e.recomputeBuckets(ctx, fork, candidates)
	stats := TraceStats{
		TraceID:      update.TraceID,
		Origin:       "price_update",
		Candidates:   len(candidates),
		Buckets:      e.buckets,
		OverDeadline: overDeadline,
	}
	if overDeadline {
		metrics.TracesOverDeadline.Inc()
		stats.Elapsed = time.Since(start)
		e.recordStats(stats)
		traceLog.Warn().Int("candidates", len(candidates)).Msg("Trace over deadline, partial results discarded")
		return
	}

	speculative, err := e.speculativePrices(ctx, fork, snapshot)
	if err != nil {
		traceLog.Warn().Err(err).Msg("Trace abandoned, speculative price read failed")
		return
	}

	for user, account := range accounts {
		if account.HealthFactor.Cmp(aave.Wad) >= 0 {
			continue
		}
		if account.TotalCollateralBase.Cmp(config.MinReportableCollateralBase) < 0 {
			continue
		}
		e.emitUnderwater(traceLog, update, snapshot[user], user, account, speculative)
		stats.Underwater++
	}

	stats.Elapsed = time.Since(start)
	e.recordStats(stats)
	traceLog.Info().
		Int("candidates", len(candidates)).
		Int("underwater", stats.Underwater).
		Dur("elapsed", stats.Elapsed).
		Msg("Price update trace complete")
}

// recomputeBuckets partitions users and reads their account data from the
// fork in parallel multicalls. Returns partial=false results unless the
// deadline passed, in which case everything computed so far is discarded.
func (e *Engine) recomputeBuckets(ctx context.Context, fork *Fork, users []common.Address) (map[common.Address]types.AccountData, bool) {
	buckets := e.buckets
	if buckets > len(users) {
		buckets = len(users)
	}
	chunks := make([][]common.Address, buckets)
	for i, user := range users {
		chunks[i%buckets] = append(chunks[i%buckets], user)
	}

	var (
		mu       sync.Mutex
		combined = make(map[common.Address]types.AccountData, len(users))
		wg       sync.WaitGroup
	)
	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []common.Address) {
			defer wg.Done()
			// Cancel check at the multicall boundary.
			if ctx.Err() != nil {
				return
			}
			accounts, err := aave.FetchAccountData(ctx, fork.provider.Eth, chunk, nil)
			if err != nil {
				if ctx.Err() == nil {
					engineLogger.Warn().Err(err).Int("bucket_size", len(chunk)).Msg("Bucket recompute failed")
				}
				return
			}
			mu.Lock()
			for user, account := range accounts {
				combined[user] = account
			}
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, true
	}
	return combined, false
}

// speculativePrices reads post-update oracle prices from the fork for every
// reserve any candidate touches. The fork already reflects the new answer,
// so one batched read yields the whole speculative table.
func (e *Engine) speculativePrices(ctx context.Context, fork *Fork, snapshot map[common.Address]types.UserPositions) ([]types.AssetPrice, error) {
	assetSet := make(map[common.Address]struct{})
	for _, up := range snapshot {
		for _, r := range up.Reserves {
			assetSet[r.Asset] = struct{}{}
		}
	}
	assets := make([]common.Address, 0, len(assetSet))
	for asset := range assetSet {
		assets = append(assets, asset)
	}
	prices, err := aave.FetchPrices(ctx, fork.provider.Eth, assets)
	if err != nil {
		return nil, err
	}
	out := make([]types.AssetPrice, 0, len(assets))
	for _, asset := range assets {
		out = append(out, types.AssetPrice{Asset: asset, Price: prices[asset]})
	}
	return out, nil
}

func (e *Engine) emitUnderwater(
	traceLog zerolog.Logger,
	update *bus.PriceUpdate,
	snapshot types.UserPositions,
	user common.Address,
	account types.AccountData,
	speculative []types.AssetPrice,
) {
	msg := &bus.UnderwaterUser{
		TraceID:             update.TraceID,
		User:                user,
		HealthFactor:        account.HealthFactor.Clone(),
		TotalCollateralBase: account.TotalCollateralBase.Clone(),
		TxHash:              update.TxHash,
		RawTx:               update.RawTx,
		TargetBlock:         update.TargetBlock,
		Snapshot:            snapshot.Reserves,
		SpeculativePrices:   speculative,
	}
	if err := e.emitter.Send(msg); err != nil {
		traceLog.Error().Err(err).Str("user", user.Hex()).Msg("Failed to emit underwater user")
		return
	}
	metrics.UnderwaterEmitted.Inc()
	traceLog.Info().
		Str("user", user.Hex()).
		Str("health_factor", utils.FormatHealthFactor(account.HealthFactor)).
		Str("total_collateral", utils.FormatBaseAmount(account.TotalCollateralBase)).
		Msg("Underwater user emitted")
}

func (e *Engine) gateFor(forwarder common.Address) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	gate, ok := e.perFeedGate[forwarder]
	if !ok {
		gate = &sync.Mutex{}
		e.perFeedGate[forwarder] = gate
	}
	return gate
}

func (e *Engine) recordStats(stats TraceStats) {
	metrics.TracesStarted.WithLabelValues(stats.Origin).Inc()
	if e.stats != nil {
		e.stats.RecordTrace(stats)
	}
}
