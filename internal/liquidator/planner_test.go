package liquidator

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/types"
)

var (
	testWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testDAI  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	testUser = common.HexToAddress("0x00000000000000000000000000000000000000AA")
)

// noSlippage keeps planner assertions exact.
type noSlippage struct{}

func (noSlippage) SwapCostBase(_, _ common.Address, _ *uint256.Int) (*uint256.Int, error) {
	return uint256.NewInt(0), nil
}

func wethCollateral(balanceWei string) Holding {
	return Holding{
		Config: types.ReserveConfig{
			Asset:                     testWETH,
			Symbol:                    "WETH",
			Decimals:                  18,
			LiquidationThresholdBps:   8300,
			LiquidationBonusBps:       10_500,
			LiquidationProtocolFeeBps: 1_000,
			UsageAsCollateralEnabled:  true,
			IsActive:                  true,
		},
		Balance: uint256.MustFromDecimal(balanceWei),
		Price:   uint256.NewInt(200_000_000_000), // $2000
	}
}

func usdcDebt(balanceUnits uint64) Holding {
	return Holding{
		Config: types.ReserveConfig{
			Asset:    testUSDC,
			Symbol:   "USDC",
			Decimals: 6,
		},
		Balance: uint256.NewInt(balanceUnits),
		Price:   uint256.NewInt(100_000_000), // $1.00
	}
}

func TestCloseFactorBoundary(t *testing.T) {
	assert.Equal(t, uint64(config.DefaultCloseFactorBps),
		CloseFactorBps(uint256.MustFromDecimal("960000000000000000")))
	assert.Equal(t, uint64(config.FullCloseFactorBps),
		CloseFactorBps(uint256.MustFromDecimal("950000000000000000")),
		"the deep-underwater threshold is inclusive")
	assert.Equal(t, uint64(config.FullCloseFactorBps),
		CloseFactorBps(uint256.MustFromDecimal("900000000000000000")))
}

func TestBuildPlanHalfClose(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	plan, err := planner.BuildPlan(PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("960000000000000000"),
		Collateral:   []Holding{wethCollateral("2000000000000000000")},
		Debt:         []Holding{usdcDebt(1_800_000_000)}, // 1800 USDC
	})
	require.NoError(t, err)

	// Half of 1800 USDC covered, 5% bonus on $900 of WETH, 10% protocol fee
	// on the bonus portion.
	assert.Equal(t, "900000000", plan.DebtToCover.Dec())
	assert.Equal(t, "472500000000000000", plan.SeizedAmount.Dec())
	assert.Equal(t, "4050000000", plan.GrossProfitBase.Dec()) // $40.50
	assert.Equal(t, "4050000000", plan.NetProfitBase.Dec())
	assert.Equal(t, testUSDC, plan.DebtAsset)
	assert.Equal(t, testWETH, plan.CollateralAsset)
}

func TestBuildPlanFullClose(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	plan, err := planner.BuildPlan(PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("900000000000000000"),
		Collateral:   []Holding{wethCollateral("2000000000000000000")},
		Debt:         []Holding{usdcDebt(1_800_000_000)},
	})
	require.NoError(t, err)

	assert.Equal(t, "1800000000", plan.DebtToCover.Dec())
	assert.Equal(t, "945000000000000000", plan.SeizedAmount.Dec())
	assert.Equal(t, "8100000000", plan.GrossProfitBase.Dec()) // $81.00
}

func TestBuildPlanClampsAtCollateralBalance(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	plan, err := planner.BuildPlan(PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("960000000000000000"),
		Collateral:   []Holding{wethCollateral("400000000000000000")}, // 0.4 WETH
		Debt:         []Holding{usdcDebt(1_800_000_000)},
	})
	require.NoError(t, err)

	// The wanted 0.4725 WETH exceeds the balance; everything is seized and
	// the covered debt is backed out through the bonus discount.
	assert.Equal(t, "400000000000000000", plan.SeizedAmount.Dec())
	assert.Equal(t, "761904761", plan.DebtToCover.Dec())
}

func TestBuildPlanSeizeRule(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	for _, hf := range []string{"960000000000000000", "900000000000000000"} {
		plan, err := planner.BuildPlan(PlanInput{
			TraceID:      "a1b2c3d4",
			User:         testUser,
			HealthFactor: uint256.MustFromDecimal(hf),
			Collateral:   []Holding{wethCollateral("2000000000000000000")},
			Debt:         []Holding{usdcDebt(1_800_000_000)},
		})
		require.NoError(t, err)

		// Seized collateral value never exceeds covered debt grown by the
		// bonus: seized/bonus == covered value by construction.
		debtValue := new(uint256.Int).Div(
			new(uint256.Int).Mul(plan.DebtToCover, uint256.NewInt(100_000_000)),
			uint256.NewInt(1_000_000),
		)
		seizedValue := new(uint256.Int).Div(
			new(uint256.Int).Mul(plan.SeizedAmount, uint256.NewInt(200_000_000_000)),
			uint256.MustFromDecimal("1000000000000000000"),
		)
		bound := new(uint256.Int).Div(
			new(uint256.Int).Mul(debtValue, uint256.NewInt(10_500)),
			uint256.NewInt(10_000),
		)
		bound.AddUint64(bound, 1)
		assert.True(t, seizedValue.Cmp(bound) <= 0,
			"seized value must stay within debt value times the bonus")
	}
}

func TestBuildPlanDeterministicTieBreak(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	// Two identical collaterals differing only in address must always
	// resolve to the lower one.
	other := wethCollateral("2000000000000000000")
	other.Config.Asset = testDAI // lower address than WETH
	in := PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("960000000000000000"),
		Collateral:   []Holding{wethCollateral("2000000000000000000"), other},
		Debt:         []Holding{usdcDebt(1_800_000_000)},
	}

	first, err := planner.BuildPlan(in)
	require.NoError(t, err)
	in.Collateral[0], in.Collateral[1] = in.Collateral[1], in.Collateral[0]
	second, err := planner.BuildPlan(in)
	require.NoError(t, err)

	assert.Equal(t, testDAI, first.CollateralAsset)
	assert.Equal(t, first.CollateralAsset, second.CollateralAsset)
	assert.Equal(t, first.DebtToCover, second.DebtToCover)
}

func TestBuildPlanSkipsUnusableCollateral(t *testing.T) {
	planner := NewPlanner(noSlippage{})
	frozen := wethCollateral("2000000000000000000")
	frozen.Config.IsFrozen = true

	_, err := planner.BuildPlan(PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("960000000000000000"),
		Collateral:   []Holding{frozen},
		Debt:         []Holding{usdcDebt(1_800_000_000)},
	})
	assert.ErrorIs(t, err, ErrNoViablePair)
}

func TestBuildPlanSlippageReducesNet(t *testing.T) {
	planner := NewPlanner(FlatSlippage{Bps: 100}) // 1% of seized value
	plan, err := planner.BuildPlan(PlanInput{
		TraceID:      "a1b2c3d4",
		User:         testUser,
		HealthFactor: uint256.MustFromDecimal("960000000000000000"),
		Collateral:   []Holding{wethCollateral("2000000000000000000")},
		Debt:         []Holding{usdcDebt(1_800_000_000)},
	})
	require.NoError(t, err)

	assert.Equal(t, "4050000000", plan.GrossProfitBase.Dec())
	assert.True(t, plan.NetProfitBase.Cmp(plan.GrossProfitBase) < 0)
}
