package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReserveConfig is the slow-moving configuration of one Aave v3 reserve.
// Refreshed at startup and on ReserveDataUpdated, never on the hot path.
type ReserveConfig struct {
	Asset                     common.Address `json:"asset"`
	Symbol                    string         `json:"symbol"`
	Decimals                  uint8          `json:"decimals"`
	LiquidationThresholdBps   uint64         `json:"liquidation_threshold_bps"`
	LiquidationBonusBps       uint64         `json:"liquidation_bonus_bps"`
	LiquidationProtocolFeeBps uint64         `json:"liquidation_protocol_fee_bps"`
	ATokenAddress             common.Address `json:"a_token_address"`
	VariableDebtTokenAddress  common.Address `json:"variable_debt_token_address"`
	UsageAsCollateralEnabled  bool           `json:"usage_as_collateral_enabled"`
	BorrowingEnabled          bool           `json:"borrowing_enabled"`
	IsActive                  bool           `json:"is_active"`
	IsFrozen                  bool           `json:"is_frozen"`
}

// AssetPrice pairs a reserve with an oracle price in base currency units
// (8 decimals on mainnet).
type AssetPrice struct {
	Asset common.Address `json:"asset"`
	Price *uint256.Int   `json:"price"`
}

// CollateralUsable reports whether the reserve can back debt at all.
func (r *ReserveConfig) CollateralUsable() bool {
	return r.IsActive && !r.IsFrozen && r.UsageAsCollateralEnabled && r.LiquidationThresholdBps > 0
}
