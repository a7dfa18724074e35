/*

This file contains flash loan source selection. Morpho lends for free, so it
is probed first; the Aave Pool itself backs it up at the flashLoanSimple
premium; with neither deep enough the opportunity is discarded rather than
split across sources.

*/

package liquidator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/types"
)

// ErrNoFlashLiquidity means neither source can lend the debt amount.
var ErrNoFlashLiquidity = errors.New("no flash loan source with enough liquidity")

// BalanceReader reads ERC20 balances, batched through multicall.
type BalanceReader interface {
	BalancesOf(ctx context.Context, asset common.Address, holders []common.Address) ([]*uint256.Int, error)
}

type multicallBalanceReader struct {
	caller chain.ContractCaller
}

// NewBalanceReader builds the default multicall-backed reader.
func NewBalanceReader(caller chain.ContractCaller) BalanceReader {
	return &multicallBalanceReader{caller: caller}
}

func (r *multicallBalanceReader) BalancesOf(ctx context.Context, asset common.Address, holders []common.Address) ([]*uint256.Int, error) {
	calls := make([]chain.Call, 0, len(holders))
	for _, holder := range holders {
		data, err := aave.ERC20ABI.Pack("balanceOf", holder)
		if err != nil {
			return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
		}
		calls = append(calls, chain.Call{Target: asset, CallData: data})
	}
	results, err := chain.Aggregate3(ctx, r.caller, calls, nil)
	if err != nil {
		return nil, err
	}
	out := make([]*uint256.Int, len(holders))
	for i, res := range results {
		if !res.Success || len(res.ReturnData) < 32 {
			return nil, fmt.Errorf("balanceOf reverted for holder %s", holders[i].Hex())
		}
		out[i] = new(uint256.Int).SetBytes(res.ReturnData[:32])
	}
	return out, nil
}

// SelectFlashSource fills the plan's flash loan fields, or fails the plan
// when no source can cover the debt.
func SelectFlashSource(ctx context.Context, reader BalanceReader, plan *types.LiquidationPlan, aTokenAddress common.Address) error {
	balances, err := reader.BalancesOf(ctx, plan.DebtAsset, []common.Address{aave.MorphoAddress, aTokenAddress})
	if err != nil {
		return err
	}

	if balances[0].Cmp(plan.DebtToCover) >= 0 {
		plan.FlashSource = types.FlashLoanMorpho
		plan.FlashPremium = uint256.NewInt(0)
		return nil
	}
	if balances[1].Cmp(plan.DebtToCover) >= 0 {
		premium, err := aave.PercentMul(plan.DebtToCover, uint256.NewInt(config.AaveFlashPremiumBps))
		if err != nil {
			return err
		}
		plan.FlashSource = types.FlashLoanAaveV3
		plan.FlashPremium = premium
		return nil
	}
	return ErrNoFlashLiquidity
}
