/*

This file contains the types describing a planned liquidation, from the best
debt/collateral pair through to the executable bundle.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FlashLoanSource identifies where the debt-repayment capital is borrowed from.
// The values match the executor contract's enum.
type FlashLoanSource uint8

const (
	FlashLoanNone     FlashLoanSource = 0
	FlashLoanMorpho   FlashLoanSource = 1
	FlashLoanAaveV3   FlashLoanSource = 2
	FlashLoanBalancer FlashLoanSource = 3
)

func (s FlashLoanSource) String() string {
	switch s {
	case FlashLoanMorpho:
		return "morpho"
	case FlashLoanAaveV3:
		return "aave_v3"
	case FlashLoanBalancer:
		return "balancer"
	default:
		return "none"
	}
}

// LiquidationPlan is the planner's chosen debt/collateral pair for one user,
// with every amount the executor call needs. Base currency amounts carry 8
// decimals, token amounts carry the asset's own decimals.
type LiquidationPlan struct {
	TraceID         string          `json:"trace_id"`
	User            common.Address  `json:"user"`
	DebtAsset       common.Address  `json:"debt_asset"`
	CollateralAsset common.Address  `json:"collateral_asset"`
	DebtToCover     *uint256.Int    `json:"debt_to_cover"`
	SeizedAmount    *uint256.Int    `json:"seized_amount"`
	GrossProfitBase *uint256.Int    `json:"gross_profit_base"`
	NetProfitBase   *uint256.Int    `json:"net_profit_base"`
	FlashSource     FlashLoanSource `json:"flash_source"`
	FlashPremium    *uint256.Int    `json:"flash_premium"`
	// Uniswap v3 fee tiers for the executor's collateral->WETH->debt unwind.
	CollateralToWethFee uint32 `json:"collateral_to_weth_fee"`
	WethToDebtFee       uint32 `json:"weth_to_debt_fee"`
}
