package listener

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/types"
)

// DustFilter suppresses Supply/Borrow/Repay events whose base value is too
// small to move any health factor meaningfully. LiquidationCall always passes:
// it signals another liquidator beat us and the cache must catch up.
type DustFilter struct {
	mu        sync.RWMutex
	threshold *uint256.Int
	configs   map[common.Address]types.ReserveConfig
	prices    map[common.Address]*uint256.Int
}

// NewDustFilter builds a filter with the given base-unit threshold.
func NewDustFilter(threshold *uint256.Int, configs map[common.Address]types.ReserveConfig) *DustFilter {
	return &DustFilter{
		threshold: new(uint256.Int).Set(threshold),
		configs:   configs,
		prices:    make(map[common.Address]*uint256.Int),
	}
}

// UpdatePrices swaps in a fresh price view. Called from the refresh ticker,
// never from the decode path.
func (f *DustFilter) UpdatePrices(prices map[common.Address]*uint256.Int) {
	f.mu.Lock()
	f.prices = prices
	f.mu.Unlock()
}

// IsDust reports whether the amount of the reserve's token is worth less than
// the threshold. Unknown reserves and missing prices are never dust; passing
// a spurious event through costs one cache refresh, dropping a real one costs
// cache correctness.
func (f *DustFilter) IsDust(reserve common.Address, amount *uint256.Int) bool {
	if amount == nil {
		return false
	}
	cfg, ok := f.configs[reserve]
	if !ok {
		return false
	}
	f.mu.RLock()
	price, ok := f.prices[reserve]
	f.mu.RUnlock()
	if !ok || price == nil {
		return false
	}
	baseValue, err := aave.BaseValue(amount, price, cfg.Decimals)
	if err != nil {
		return false
	}
	return baseValue.Cmp(f.threshold) < 0
}
