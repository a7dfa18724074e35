/*

This file contains the simulation fork pool. Each endpoint is a long-running
anvil-style fork of mainnet with auto-impersonation enabled. A trace acquires
one fork exclusively, takes an EVM snapshot, replays or overrides, reads, and
reverts on release, so forks hand pristine head state to the next trace.

*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

var forkLogger = logger.GetForComponent("fork_pool")

var (
	// ErrOverloadedFork is returned when no fork frees up within the
	// acquisition deadline. The trace is abandoned, not queued.
	ErrOverloadedFork = errors.New("no simulation fork available before deadline")
	// ErrReplayReverted marks a raw transaction whose fork receipt carries a
	// failure status.
	ErrReplayReverted = errors.New("replayed transaction reverted on fork")
	// ErrReplayTimeout marks a replay whose receipt never appeared.
	ErrReplayTimeout = errors.New("replay receipt not found on fork")
)

// transmissionsBaseSlot is the OCR2Aggregator storage slot of the
// s_transmissions mapping; the latest answer lives at
// keccak(latestRoundId, slot) packed as {transmissionTs, observationsTs, answer}.
const transmissionsBaseSlot = 44

// Fork is one exclusive simulation endpoint.
type Fork struct {
	provider *chain.Provider
	busy     atomic.Bool
	snapshot string
}

// ForkPool hands out forks round-robin without blocking the hot path.
type ForkPool struct {
	forks []*Fork
	next  atomic.Uint32
}

// NewForkPool wraps the already-dialed fork endpoints.
func NewForkPool(ring *chain.Ring) *ForkPool {
	pool := &ForkPool{forks: make([]*Fork, ring.Size())}
	for i := range pool.forks {
		pool.forks[i] = &Fork{provider: ring.At(i)}
	}
	return pool
}

// Acquire claims an idle fork, snapshotting its state. If every fork is busy
// it polls until the deadline, then fails with ErrOverloadedFork.
func (p *ForkPool) Acquire(ctx context.Context) (*Fork, error) {
	deadline := time.Now().Add(config.ForkAcquireDeadline)
	for {
		for range p.forks {
			i := int(p.next.Add(1)-1) % len(p.forks)
			fork := p.forks[i]
			if fork.busy.CompareAndSwap(false, true) {
				if err := fork.takeSnapshot(ctx); err != nil {
					fork.busy.Store(false)
					return nil, err
				}
				return fork, nil
			}
		}
		if time.Now().After(deadline) {
			metrics.ForkAcquireFailures.Inc()
			return nil, ErrOverloadedFork
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release reverts the fork to its pre-trace snapshot and frees it.
func (f *Fork) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if f.snapshot != "" {
		var reverted bool
		if err := f.provider.RPC.CallContext(ctx, &reverted, "evm_revert", f.snapshot); err != nil || !reverted {
			forkLogger.Warn().Err(err).Str("endpoint", f.provider.Endpoint).Msg("Snapshot revert failed")
		}
		f.snapshot = ""
	}
	f.busy.Store(false)
}

func (f *Fork) takeSnapshot(ctx context.Context) error {
	return f.provider.RPC.CallContext(ctx, &f.snapshot, "evm_snapshot")
}

// ReplayRawTx injects the pending price transaction into the fork and waits
// for its receipt. The fork runs with auto-impersonation, so the original
// signature carries through unchanged.
func (f *Fork) ReplayRawTx(ctx context.Context, rawTx []byte) error {
	var txHash common.Hash
	if err := f.provider.RPC.CallContext(ctx, &txHash, "eth_sendRawTransaction", hexutil.Encode(rawTx)); err != nil {
		return fmt.Errorf("fork replay send: %w", err)
	}
	for {
		// A pending transaction yields a null receipt with a nil error, so
		// the pointer distinguishes "not mined yet" from an actual status.
		var receipt *struct {
			Status hexutil.Uint64 `json:"status"`
		}
		err := f.provider.RPC.CallContext(ctx, &receipt, "eth_getTransactionReceipt", txHash)
		if err == nil && receipt != nil {
			if receipt.Status != 1 {
				return ErrReplayReverted
			}
			return nil
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return errors.Join(ErrReplayTimeout, ctx.Err())
		}
	}
}

// OverrideAggregatorAnswer writes the speculative price straight into the
// aggregator's latest transmission slot, for hint-fed traces that carry no
// raw transaction. Mining a block is unnecessary for eth_call reads.
func (f *Fork) OverrideAggregatorAnswer(ctx context.Context, aggregator common.Address, price *uint256.Int) error {
	var latestRound hexutil.Big
	if err := f.provider.RPC.CallContext(ctx, &latestRound, "eth_call", map[string]any{
		"to":   aggregator.Hex(),
		"data": "0x668a0f02", // latestRound()
	}, "latest"); err != nil {
		return fmt.Errorf("latestRound: %w", err)
	}

	roundWord := common.BigToHash(latestRound.ToInt())
	baseWord := common.BigToHash(new(uint256.Int).SetUint64(transmissionsBaseSlot).ToBig())
	slot := common.BytesToHash(crypto.Keccak256(roundWord.Bytes(), baseWord.Bytes()))

	// Transmission packs {transmissionTs u32, observationsTs u32, answer i192}.
	now := uint64(time.Now().Unix())
	packed := new(uint256.Int).Lsh(uint256.NewInt(now), 224)
	packed.Or(packed, new(uint256.Int).Lsh(uint256.NewInt(now), 192))
	packed.Or(packed, price)

	if err := f.provider.RPC.CallContext(ctx, nil, "anvil_setStorageAt",
		aggregator.Hex(), slot.Hex(), common.BytesToHash(packed.Bytes()).Hex()); err != nil {
		return fmt.Errorf("anvil_setStorageAt: %w", err)
	}
	return nil
}
