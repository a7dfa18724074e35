/*

This file contains the Uniswap v3 fee tier probe for the executor's unwind
path. Seized collateral always routes through WETH, so each leg needs the
deepest of the standard fee tiers; a missing pool on every tier fails the
plan rather than guessing.

*/

package liquidator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/types"
)

// ErrNoSwapRoute means no fee tier has a pool for a required swap leg.
var ErrNoSwapRoute = errors.New("no uniswap v3 pool for swap leg")

// feeTiers are the standard deployed tiers, probed in one multicall.
var feeTiers = []uint32{500, 3_000, 10_000}

// ResolveSwapFees fills the plan's two fee tiers. A leg whose tokens match
// needs no swap and gets tier zero.
func ResolveSwapFees(ctx context.Context, caller chain.ContractCaller, plan *types.LiquidationPlan) error {
	var err error
	plan.CollateralToWethFee = 0
	if plan.CollateralAsset != aave.WETHAddress {
		plan.CollateralToWethFee, err = deepestFeeTier(ctx, caller, plan.CollateralAsset, aave.WETHAddress)
		if err != nil {
			return fmt.Errorf("collateral leg: %w", err)
		}
	}
	plan.WethToDebtFee = 0
	if plan.DebtAsset != aave.WETHAddress {
		plan.WethToDebtFee, err = deepestFeeTier(ctx, caller, aave.WETHAddress, plan.DebtAsset)
		if err != nil {
			return fmt.Errorf("debt leg: %w", err)
		}
	}
	return nil
}

// deepestFeeTier resolves every tier's pool address, then compares in-range
// liquidity across the pools that exist.
func deepestFeeTier(ctx context.Context, caller chain.ContractCaller, tokenA, tokenB common.Address) (uint32, error) {
	calls := make([]chain.Call, 0, len(feeTiers))
	for _, tier := range feeTiers {
		data, err := aave.UniswapV3FactoryABI.Pack("getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(tier)))
		if err != nil {
			return 0, fmt.Errorf("failed to pack getPool: %w", err)
		}
		calls = append(calls, chain.Call{Target: aave.UniswapV3FactoryAddress, AllowFailure: true, CallData: data})
	}
	results, err := chain.Aggregate3(ctx, caller, calls, nil)
	if err != nil {
		return 0, err
	}

	pools := make([]common.Address, len(feeTiers))
	liquidityCalls := make([]chain.Call, 0, len(feeTiers))
	liquidityTiers := make([]int, 0, len(feeTiers))
	liquidityData, err := aave.UniswapV3PoolABI.Pack("liquidity")
	if err != nil {
		return 0, fmt.Errorf("failed to pack liquidity: %w", err)
	}
	for i, res := range results {
		if !res.Success || len(res.ReturnData) < 32 {
			continue
		}
		pools[i] = common.BytesToAddress(res.ReturnData[12:32])
		if pools[i] == (common.Address{}) {
			continue
		}
		liquidityCalls = append(liquidityCalls, chain.Call{Target: pools[i], AllowFailure: true, CallData: liquidityData})
		liquidityTiers = append(liquidityTiers, i)
	}
	if len(liquidityCalls) == 0 {
		return 0, ErrNoSwapRoute
	}

	liquidityResults, err := chain.Aggregate3(ctx, caller, liquidityCalls, nil)
	if err != nil {
		return 0, err
	}
	bestTier := uint32(0)
	bestLiquidity := new(uint256.Int)
	for i, res := range liquidityResults {
		if !res.Success || len(res.ReturnData) < 32 {
			continue
		}
		liquidity := new(uint256.Int).SetBytes(res.ReturnData[:32])
		if liquidity.Cmp(bestLiquidity) > 0 {
			bestLiquidity = liquidity
			bestTier = feeTiers[liquidityTiers[i]]
		}
	}
	if bestLiquidity.IsZero() {
		return 0, ErrNoSwapRoute
	}
	return bestTier, nil
}
