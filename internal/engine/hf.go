/*

This file contains the local health factor replica. It exists for two
reasons: verifying emitted candidates against their carried snapshot without
another RPC, and unit-testing the pipeline against exact protocol math. The
authoritative value on hot paths still comes from the Pool on a fork.

*/

package engine

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/types"
)

var (
	// ErrMissingReserveData marks a position referencing a reserve with no
	// config, index or price available.
	ErrMissingReserveData = errors.New("reserve data missing for health factor computation")
)

// HealthReport is a locally computed account summary.
type HealthReport struct {
	TotalCollateralBase *uint256.Int
	TotalDebtBase       *uint256.Int
	HealthFactor        *uint256.Int
}

// ComputeHealth replicates the protocol's account math:
// collateral and debt are scaled balances grown by their accrual indices,
// converted to base currency, with collateral weighted by each reserve's
// liquidation threshold. Zero debt yields the max sentinel.
func ComputeHealth(
	up types.UserPositions,
	configs map[common.Address]types.ReserveConfig,
	indices map[common.Address]aave.ReserveIndices,
	prices map[common.Address]*uint256.Int,
) (HealthReport, error) {
	totalCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)
	weightedThreshold := new(uint256.Int)

	for _, r := range up.Reserves {
		cfg, okCfg := configs[r.Asset]
		idx, okIdx := indices[r.Asset]
		price, okPrice := prices[r.Asset]
		if !okCfg || !okIdx || !okPrice {
			return HealthReport{}, ErrMissingReserveData
		}

		if r.UsageAsCollateralEnabled && r.ScaledATokenBalance != nil && !r.ScaledATokenBalance.IsZero() {
			balance, err := aave.RayMul(r.ScaledATokenBalance, idx.LiquidityIndex)
			if err != nil {
				return HealthReport{}, err
			}
			contribution, err := aave.BaseValue(balance, price, cfg.Decimals)
			if err != nil {
				return HealthReport{}, err
			}
			totalCollateral.Add(totalCollateral, contribution)
			weighted, err := aave.PercentMul(contribution, uint256.NewInt(cfg.LiquidationThresholdBps))
			if err != nil {
				return HealthReport{}, err
			}
			weightedThreshold.Add(weightedThreshold, weighted)
		}

		if r.ScaledVariableDebt != nil && !r.ScaledVariableDebt.IsZero() {
			balance, err := aave.RayMul(r.ScaledVariableDebt, idx.VariableBorrowIndex)
			if err != nil {
				return HealthReport{}, err
			}
			contribution, err := aave.BaseValue(balance, price, cfg.Decimals)
			if err != nil {
				return HealthReport{}, err
			}
			totalDebt.Add(totalDebt, contribution)
		}
	}

	report := HealthReport{
		TotalCollateralBase: totalCollateral,
		TotalDebtBase:       totalDebt,
	}
	if totalDebt.IsZero() {
		report.HealthFactor = new(uint256.Int).Set(aave.MaxHealthFactor)
		return report, nil
	}
	hf, err := aave.MulDiv(weightedThreshold, aave.Wad, totalDebt)
	if err != nil {
		return HealthReport{}, err
	}
	report.HealthFactor = hf
	return report, nil
}
