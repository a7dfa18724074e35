package engine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/types"
)

var (
	testWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testWSTETH = common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0")
	testUSDC   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	testDAI    = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
)

func position(user common.Address, reserves ...types.ReservePosition) types.UserPositions {
	return types.UserPositions{User: user, Reserves: reserves}
}

func collateralIn(asset common.Address, amount uint64) types.ReservePosition {
	return types.ReservePosition{
		Asset:                    asset,
		ScaledATokenBalance:      uint256.NewInt(amount),
		UsageAsCollateralEnabled: true,
		ScaledVariableDebt:       uint256.NewInt(0),
	}
}

func debtIn(asset common.Address, amount uint64) types.ReservePosition {
	return types.ReservePosition{
		Asset:               asset,
		ScaledATokenBalance: uint256.NewInt(0),
		ScaledVariableDebt:  uint256.NewInt(amount),
	}
}

// userAddr derives a deterministic test address from a tag byte.
func userAddr(tag byte) common.Address {
	var a common.Address
	a[19] = tag
	return a
}

func TestReplaceKeepsIndexConsistent(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)

	cache.Replace(position(alice, collateralIn(testWETH, 100), debtIn(testUSDC, 50)))
	assert.Contains(t, cache.CandidatesForReserves([]common.Address{testWETH}), alice)
	assert.Contains(t, cache.CandidatesForReserves([]common.Address{testUSDC}), alice)

	// Debt repaid and collateral migrated: every stale entry must vanish.
	cache.Replace(position(alice, collateralIn(testWSTETH, 100)))
	assert.Empty(t, cache.CandidatesForReserves([]common.Address{testWETH}))
	assert.Empty(t, cache.CandidatesForReserves([]common.Address{testUSDC}))
	assert.Contains(t, cache.CandidatesForReserves([]common.Address{testWSTETH}), alice)
}

func TestIndexSkipsDisabledCollateral(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)

	pos := position(alice, collateralIn(testWETH, 100), debtIn(testUSDC, 50))
	pos.Reserves[0].UsageAsCollateralEnabled = false
	cache.Replace(pos)

	assert.Empty(t, cache.CandidatesForReserves([]common.Address{testWETH}),
		"disabled collateral must not appear in the collateral index")
	assert.Contains(t, cache.CandidatesForReserves([]common.Address{testUSDC}), alice)
}

func TestCandidatesUnionAcrossReserves(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1) // wstETH collateral, USDC debt
	bob := userAddr(2)   // WETH collateral, DAI debt
	carol := userAddr(3) // USDC collateral, WETH debt
	dave := userAddr(4)  // DAI only, untouched by an ETH-family move

	cache.Replace(position(alice, collateralIn(testWSTETH, 10), debtIn(testUSDC, 5)))
	cache.Replace(position(bob, collateralIn(testWETH, 10), debtIn(testDAI, 5)))
	cache.Replace(position(carol, collateralIn(testUSDC, 10), debtIn(testWETH, 5)))
	cache.Replace(position(dave, collateralIn(testDAI, 10), debtIn(testDAI, 5)))

	// One forwarder feeding the ETH family touches WETH and wstETH at once.
	got := cache.CandidatesForReserves([]common.Address{testWETH, testWSTETH})
	assert.ElementsMatch(t, []common.Address{alice, bob, carol}, got)
}

func TestCandidatesExcludeDormant(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)
	bob := userAddr(2)

	cache.Replace(position(alice, collateralIn(testWETH, 10), debtIn(testUSDC, 5)))
	cache.Replace(position(bob, collateralIn(testWETH, 10)))
	cache.SetDormant(bob, true)

	got := cache.CandidatesForReserves([]common.Address{testWETH})
	assert.ElementsMatch(t, []common.Address{alice}, got)

	cache.SetDormant(bob, false)
	got = cache.CandidatesForReserves([]common.Address{testWETH})
	assert.ElementsMatch(t, []common.Address{alice, bob}, got)
}

func TestRemoveDropsEverything(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)

	cache.Replace(position(alice, collateralIn(testWETH, 10), debtIn(testUSDC, 5)))
	cache.SetDormant(alice, true)
	cache.Remove(alice)

	_, ok := cache.Get(alice)
	assert.False(t, ok)
	assert.False(t, cache.IsDormant(alice))
	assert.Empty(t, cache.CandidatesForReserves([]common.Address{testWETH, testUSDC}))
	assert.Zero(t, cache.Size())
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)
	cache.Replace(position(alice, collateralIn(testWETH, 10)))

	snap := cache.Snapshot([]common.Address{alice})
	require.Contains(t, snap, alice)

	// Mutating the snapshot must not leak back into the cache.
	snap[alice].Reserves[0].ScaledATokenBalance.SetUint64(999)
	fresh, ok := cache.Get(alice)
	require.True(t, ok)
	assert.Equal(t, uint64(10), fresh.Reserves[0].ScaledATokenBalance.Uint64())
}

func TestGetReturnsCopy(t *testing.T) {
	cache := NewPositionCache()
	alice := userAddr(1)
	cache.Replace(position(alice, debtIn(testUSDC, 42)))

	got, ok := cache.Get(alice)
	require.True(t, ok)
	got.Reserves[0].ScaledVariableDebt.SetUint64(1)

	again, _ := cache.Get(alice)
	assert.Equal(t, uint64(42), again.Reserves[0].ScaledVariableDebt.Uint64())
}
