/*

This file contains the liquidator's price view. Canonical oracle prices are
good for exactly one block; speculative overlays carried on incoming
candidates shadow them per trace, capped at a handful of in-flight traces
with the oldest overlay dropped first.

*/

package liquidator

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/types"
)

type priceOverlay struct {
	traceID string
	prices  map[common.Address]*uint256.Int
}

// PriceCache layers speculative per-trace prices over a one-block canonical
// table.
type PriceCache struct {
	mu        sync.RWMutex
	canonical map[common.Address]*uint256.Int
	block     uint64
	overlays  []priceOverlay
	maxTraces int
}

// NewPriceCache builds an empty cache with the default overlay cap.
func NewPriceCache() *PriceCache {
	return &PriceCache{
		canonical: make(map[common.Address]*uint256.Int),
		maxTraces: config.MaxSpeculativePriceTraces,
	}
}

// SetCanonical replaces the canonical table and stamps it with the block it
// was read at.
func (c *PriceCache) SetCanonical(block uint64, prices map[common.Address]*uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canonical = make(map[common.Address]*uint256.Int, len(prices))
	for asset, price := range prices {
		c.canonical[asset] = price.Clone()
	}
	c.block = block
}

// CanonicalFresh reports whether the canonical table was read at the given
// head block. One block of staleness invalidates it.
func (c *PriceCache) CanonicalFresh(head uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.canonical) > 0 && c.block == head
}

// AddOverlay installs a trace's speculative prices. A fourth in-flight trace
// evicts the oldest overlay.
func (c *PriceCache) AddOverlay(traceID string, prices []types.AssetPrice) {
	if len(prices) == 0 {
		return
	}
	table := make(map[common.Address]*uint256.Int, len(prices))
	for _, p := range prices {
		if p.Price != nil {
			table[p.Asset] = p.Price.Clone()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, overlay := range c.overlays {
		if overlay.traceID == traceID {
			c.overlays[i].prices = table
			return
		}
	}
	if len(c.overlays) >= c.maxTraces {
		c.overlays = c.overlays[1:]
	}
	c.overlays = append(c.overlays, priceOverlay{traceID: traceID, prices: table})
}

// DropOverlay removes a trace's overlay once its bundle has been submitted
// or discarded.
func (c *PriceCache) DropOverlay(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, overlay := range c.overlays {
		if overlay.traceID == traceID {
			c.overlays = append(c.overlays[:i], c.overlays[i+1:]...)
			return
		}
	}
}

// PriceFor resolves an asset price for a trace: the trace's overlay wins,
// the canonical table backs it up.
func (c *PriceCache) PriceFor(traceID string, asset common.Address) (*uint256.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, overlay := range c.overlays {
		if overlay.traceID == traceID {
			if price, ok := overlay.prices[asset]; ok {
				return price.Clone(), true
			}
			break
		}
	}
	if price, ok := c.canonical[asset]; ok {
		return price.Clone(), true
	}
	return nil, false
}
