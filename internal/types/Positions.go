/*

This file contains the types for user positions which hold all the state needed
for health factor recomputation.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReservePosition is one user's footprint in one reserve, in scaled units
// exactly as UiPoolDataProviderV3 reports them.
type ReservePosition struct {
	Asset                    common.Address `json:"asset"`
	ScaledATokenBalance      *uint256.Int   `json:"scaled_a_token_balance"`
	UsageAsCollateralEnabled bool           `json:"usage_as_collateral_enabled"`
	ScaledVariableDebt       *uint256.Int   `json:"scaled_variable_debt"`
}

// UserPositions is the cached view of everything one user holds and owes.
type UserPositions struct {
	User     common.Address    `json:"user"`
	Reserves []ReservePosition `json:"reserves"`
}

// AccountData mirrors Pool.getUserAccountData. Base currency amounts carry
// 8 decimals, the health factor carries 18.
type AccountData struct {
	TotalCollateralBase         *uint256.Int `json:"total_collateral_base"`
	TotalDebtBase               *uint256.Int `json:"total_debt_base"`
	AvailableBorrowsBase        *uint256.Int `json:"available_borrows_base"`
	CurrentLiquidationThreshold *uint256.Int `json:"current_liquidation_threshold"`
	LTV                         *uint256.Int `json:"ltv"`
	HealthFactor                *uint256.Int `json:"health_factor"`
}

// HasCollateral reports whether any reserve is enabled as collateral with a
// nonzero balance.
func (u *UserPositions) HasCollateral() bool {
	for _, r := range u.Reserves {
		if r.UsageAsCollateralEnabled && r.ScaledATokenBalance != nil && !r.ScaledATokenBalance.IsZero() {
			return true
		}
	}
	return false
}

// HasDebt reports whether any reserve carries nonzero variable debt.
func (u *UserPositions) HasDebt() bool {
	for _, r := range u.Reserves {
		if r.ScaledVariableDebt != nil && !r.ScaledVariableDebt.IsZero() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshot readers never alias cache memory.
func (u *UserPositions) Clone() UserPositions {
	out := UserPositions{User: u.User, Reserves: make([]ReservePosition, len(u.Reserves))}
	for i, r := range u.Reserves {
		cp := ReservePosition{Asset: r.Asset, UsageAsCollateralEnabled: r.UsageAsCollateralEnabled}
		if r.ScaledATokenBalance != nil {
			cp.ScaledATokenBalance = new(uint256.Int).Set(r.ScaledATokenBalance)
		}
		if r.ScaledVariableDebt != nil {
			cp.ScaledVariableDebt = new(uint256.Int).Set(r.ScaledVariableDebt)
		}
		out.Reserves[i] = cp
	}
	return out
}
