package liquidator

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/types"
)

func overlayFor(asset common.Address, price uint64) []types.AssetPrice {
	return []types.AssetPrice{{Asset: asset, Price: uint256.NewInt(price)}}
}

func TestPriceCacheOverlayShadowsCanonical(t *testing.T) {
	cache := NewPriceCache()
	cache.SetCanonical(100, map[common.Address]*uint256.Int{
		testWETH: uint256.NewInt(200_000_000_000),
	})
	cache.AddOverlay("a1b2c3d4", overlayFor(testWETH, 190_000_000_000))

	price, ok := cache.PriceFor("a1b2c3d4", testWETH)
	require.True(t, ok)
	assert.Equal(t, "190000000000", price.Dec())

	// Other traces keep the canonical view.
	price, ok = cache.PriceFor("ffffffff", testWETH)
	require.True(t, ok)
	assert.Equal(t, "200000000000", price.Dec())

	cache.DropOverlay("a1b2c3d4")
	price, ok = cache.PriceFor("a1b2c3d4", testWETH)
	require.True(t, ok)
	assert.Equal(t, "200000000000", price.Dec())
}

func TestPriceCacheOverlayFallsThroughToCanonical(t *testing.T) {
	cache := NewPriceCache()
	cache.SetCanonical(100, map[common.Address]*uint256.Int{
		testWETH: uint256.NewInt(200_000_000_000),
		testUSDC: uint256.NewInt(100_000_000),
	})
	cache.AddOverlay("a1b2c3d4", overlayFor(testWETH, 190_000_000_000))

	// The overlay only carries WETH; USDC resolves canonically.
	price, ok := cache.PriceFor("a1b2c3d4", testUSDC)
	require.True(t, ok)
	assert.Equal(t, "100000000", price.Dec())
}

func TestPriceCacheEvictsOldestOverlay(t *testing.T) {
	cache := NewPriceCache()
	cache.AddOverlay("trace-01", overlayFor(testWETH, 1))
	cache.AddOverlay("trace-02", overlayFor(testWETH, 2))
	cache.AddOverlay("trace-03", overlayFor(testWETH, 3))
	cache.AddOverlay("trace-04", overlayFor(testWETH, 4))

	_, ok := cache.PriceFor("trace-01", testWETH)
	assert.False(t, ok, "the oldest overlay must be evicted")
	price, ok := cache.PriceFor("trace-04", testWETH)
	require.True(t, ok)
	assert.Equal(t, uint64(4), price.Uint64())
}

func TestPriceCacheFreshness(t *testing.T) {
	cache := NewPriceCache()
	assert.False(t, cache.CanonicalFresh(100), "empty table is never fresh")

	cache.SetCanonical(100, map[common.Address]*uint256.Int{
		testWETH: uint256.NewInt(1),
	})
	assert.True(t, cache.CanonicalFresh(100))
	assert.False(t, cache.CanonicalFresh(101), "one block of staleness invalidates")
}
