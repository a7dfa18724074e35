/*

This file contains the liquidation planner. Given a user's index-grown
balances and a price view it mirrors the Pool's own liquidation math
(close factor, bonus, protocol fee on the bonus portion) to pick the single
most profitable debt/collateral pair. Every amount is integer base-currency
or token units; no floating point anywhere in the profit path.

*/

package liquidator

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/types"
)

var (
	// ErrNoViablePair means no debt/collateral combination survives the
	// math, usually because collateral is disabled or prices are missing.
	ErrNoViablePair = errors.New("no viable liquidation pair")
)

// Holding is one reserve of a candidate with its balance already grown by
// the accrual index, in the asset's own token units.
type Holding struct {
	Config  types.ReserveConfig
	Balance *uint256.Int
	Price   *uint256.Int
}

// PlanInput is everything the planner needs about one candidate.
type PlanInput struct {
	TraceID      string
	User         common.Address
	HealthFactor *uint256.Int
	Collateral   []Holding
	Debt         []Holding
}

// SlippagePolicy estimates the base-currency cost of unwinding seized
// collateral back into the debt asset.
type SlippagePolicy interface {
	SwapCostBase(collateral, debt common.Address, seizedValueBase *uint256.Int) (*uint256.Int, error)
}

// FlatSlippage charges a fixed share of the seized collateral value.
type FlatSlippage struct {
	Bps uint64
}

func (s FlatSlippage) SwapCostBase(_, _ common.Address, seizedValueBase *uint256.Int) (*uint256.Int, error) {
	return aave.PercentMul(seizedValueBase, uint256.NewInt(s.Bps))
}

// CloseFactorBps returns the share of a single reserve's debt the Pool
// allows covering: the full position below the deep-underwater threshold,
// half otherwise.
func CloseFactorBps(healthFactor *uint256.Int) uint64 {
	if healthFactor.Cmp(config.HFFullCloseThreshold) <= 0 {
		return config.FullCloseFactorBps
	}
	return config.DefaultCloseFactorBps
}

// BuildPlan evaluates every debt/collateral pair and returns the best one.
// Ties break on smaller debt to cover, then on ascending addresses, so equal
// inputs always yield the same plan.
func (p *Planner) BuildPlan(in PlanInput) (*types.LiquidationPlan, error) {
	closeFactor := uint256.NewInt(CloseFactorBps(in.HealthFactor))

	var best *types.LiquidationPlan
	for _, debt := range in.Debt {
		if debt.Balance == nil || debt.Balance.IsZero() || debt.Price == nil {
			continue
		}
		for _, coll := range in.Collateral {
			if coll.Balance == nil || coll.Balance.IsZero() || coll.Price == nil {
				continue
			}
			if !coll.Config.CollateralUsable() || coll.Config.LiquidationBonusBps == 0 {
				continue
			}
			plan, err := p.evaluatePair(in, debt, coll, closeFactor)
			if err != nil {
				continue
			}
			if betterPlan(plan, best) {
				best = plan
			}
		}
	}
	if best == nil {
		return nil, ErrNoViablePair
	}
	return best, nil
}

// evaluatePair mirrors LiquidationLogic: cap the covered debt by the close
// factor, convert to collateral terms, apply the bonus, clamp at the user's
// balance and back out the debt actually needed, then charge the protocol
// fee on the bonus portion only.
func (p *Planner) evaluatePair(in PlanInput, debt, coll Holding, closeFactor *uint256.Int) (*types.LiquidationPlan, error) {
	debtToCover, err := aave.PercentMul(debt.Balance, closeFactor)
	if err != nil {
		return nil, err
	}
	if debtToCover.IsZero() {
		return nil, ErrNoViablePair
	}

	bonus := uint256.NewInt(coll.Config.LiquidationBonusBps)

	debtValueBase, err := aave.BaseValue(debtToCover, debt.Price, debt.Config.Decimals)
	if err != nil {
		return nil, err
	}
	baseCollateral, err := aave.TokenAmount(debtValueBase, coll.Price, coll.Config.Decimals)
	if err != nil {
		return nil, err
	}
	seized, err := aave.PercentMul(baseCollateral, bonus)
	if err != nil {
		return nil, err
	}

	if seized.Cmp(coll.Balance) > 0 {
		// Not enough collateral for the full bonus: seize it all and back
		// out how much debt that actually covers.
		seized = coll.Balance.Clone()
		collValueBase, err := aave.BaseValue(seized, coll.Price, coll.Config.Decimals)
		if err != nil {
			return nil, err
		}
		discounted, err := aave.PercentDiv(collValueBase, bonus)
		if err != nil {
			return nil, err
		}
		debtToCover, err = aave.TokenAmount(discounted, debt.Price, debt.Config.Decimals)
		if err != nil {
			return nil, err
		}
		if debtToCover.IsZero() {
			return nil, ErrNoViablePair
		}
	}

	undiscounted, err := aave.PercentDiv(seized, bonus)
	if err != nil {
		return nil, err
	}
	bonusPortion := new(uint256.Int).Sub(seized, undiscounted)
	fee := uint256.NewInt(0)
	if coll.Config.LiquidationProtocolFeeBps > 0 {
		fee, err = aave.PercentMul(bonusPortion, uint256.NewInt(coll.Config.LiquidationProtocolFeeBps))
		if err != nil {
			return nil, err
		}
	}
	received := new(uint256.Int).Sub(seized, fee)

	receivedValueBase, err := aave.BaseValue(received, coll.Price, coll.Config.Decimals)
	if err != nil {
		return nil, err
	}
	coveredValueBase, err := aave.BaseValue(debtToCover, debt.Price, debt.Config.Decimals)
	if err != nil {
		return nil, err
	}
	if receivedValueBase.Cmp(coveredValueBase) <= 0 {
		return nil, ErrNoViablePair
	}
	gross := new(uint256.Int).Sub(receivedValueBase, coveredValueBase)

	swapCost, err := p.slippage.SwapCostBase(coll.Config.Asset, debt.Config.Asset, receivedValueBase)
	if err != nil {
		return nil, err
	}
	net := new(uint256.Int)
	if gross.Cmp(swapCost) > 0 {
		net.Sub(gross, swapCost)
	}

	return &types.LiquidationPlan{
		TraceID:         in.TraceID,
		User:            in.User,
		DebtAsset:       debt.Config.Asset,
		CollateralAsset: coll.Config.Asset,
		DebtToCover:     debtToCover,
		SeizedAmount:    seized,
		GrossProfitBase: gross,
		NetProfitBase:   net,
	}, nil
}

// betterPlan orders candidate plans: higher net profit wins, then the
// smaller debt to cover, then the lexically lower pair.
func betterPlan(candidate, incumbent *types.LiquidationPlan) bool {
	if incumbent == nil {
		return true
	}
	if c := candidate.NetProfitBase.Cmp(incumbent.NetProfitBase); c != 0 {
		return c > 0
	}
	if c := candidate.DebtToCover.Cmp(incumbent.DebtToCover); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(candidate.CollateralAsset.Bytes(), incumbent.CollateralAsset.Bytes()); c != 0 {
		return c < 0
	}
	return bytes.Compare(candidate.DebtAsset.Bytes(), incumbent.DebtAsset.Bytes()) < 0
}

// Planner holds the pluggable pieces of plan construction.
type Planner struct {
	slippage SlippagePolicy
}

// NewPlanner builds a planner. A nil policy falls back to flat slippage.
func NewPlanner(slippage SlippagePolicy) *Planner {
	if slippage == nil {
		slippage = FlatSlippage{Bps: config.DefaultSlippageBps}
	}
	return &Planner{slippage: slippage}
}
