package liquidator

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/types"
)

// fakeBalances returns fixed balances in holder order: Morpho first, the
// reserve's aToken second.
type fakeBalances struct {
	morpho uint64
	aToken uint64
}

func (f fakeBalances) BalancesOf(_ context.Context, _ common.Address, holders []common.Address) ([]*uint256.Int, error) {
	return []*uint256.Int{uint256.NewInt(f.morpho), uint256.NewInt(f.aToken)}, nil
}

func flashPlan(debtToCover uint64) *types.LiquidationPlan {
	return &types.LiquidationPlan{
		TraceID:     "a1b2c3d4",
		User:        testUser,
		DebtAsset:   testUSDC,
		DebtToCover: uint256.NewInt(debtToCover),
	}
}

func TestSelectFlashSourcePrefersMorpho(t *testing.T) {
	plan := flashPlan(1_000_000_000)
	err := SelectFlashSource(context.Background(), fakeBalances{morpho: 2_000_000_000, aToken: 2_000_000_000}, plan, testWETH)
	require.NoError(t, err)

	assert.Equal(t, types.FlashLoanMorpho, plan.FlashSource)
	assert.True(t, plan.FlashPremium.IsZero())
}

func TestSelectFlashSourceFallsBackToPool(t *testing.T) {
	plan := flashPlan(1_000_000_000)
	err := SelectFlashSource(context.Background(), fakeBalances{morpho: 500, aToken: 2_000_000_000}, plan, testWETH)
	require.NoError(t, err)

	assert.Equal(t, types.FlashLoanAaveV3, plan.FlashSource)
	// 0.05% of the covered debt, half-up.
	assert.Equal(t, "500000", plan.FlashPremium.Dec())
}

func TestSelectFlashSourceDiscardsWhenDry(t *testing.T) {
	plan := flashPlan(1_000_000_000)
	err := SelectFlashSource(context.Background(), fakeBalances{morpho: 500, aToken: 999_999_999}, plan, testWETH)
	assert.ErrorIs(t, err, ErrNoFlashLiquidity)
}
