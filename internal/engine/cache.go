/*

This file contains the user-position cache and its reverse index. Writes come
from exactly one goroutine (the bus dispatch lane), so mutations are naturally
serialized; the RWMutex exists so concurrent simulation traces can take
consistent snapshots while a write waits. Both index sides are updated under
one lock acquisition, which keeps the index/position consistency invariant by
construction.

*/

package engine

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hernan-erasmo/overlord/internal/types"
)

// PositionCache owns every tracked user's scaled positions plus the
// reserve → users reverse index.
type PositionCache struct {
	mu        sync.RWMutex
	positions map[common.Address]types.UserPositions
	// collateral[R] holds users with collateral-enabled nonzero balance in R;
	// debt[R] holds users with nonzero variable debt in R.
	collateral map[common.Address]map[common.Address]struct{}
	debt       map[common.Address]map[common.Address]struct{}
	dormant    map[common.Address]struct{}
}

// NewPositionCache builds an empty cache.
func NewPositionCache() *PositionCache {
	return &PositionCache{
		positions:  make(map[common.Address]types.UserPositions),
		collateral: make(map[common.Address]map[common.Address]struct{}),
		debt:       make(map[common.Address]map[common.Address]struct{}),
		dormant:    make(map[common.Address]struct{}),
	}
}

// Replace installs a user's freshly read positions, dropping every stale
// index entry first and re-adding from the new data. Single-writer only.
func (c *PositionCache) Replace(up types.UserPositions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropIndexEntriesLocked(up.User)
	c.positions[up.User] = up.Clone()
	for _, r := range up.Reserves {
		if r.UsageAsCollateralEnabled && r.ScaledATokenBalance != nil && !r.ScaledATokenBalance.IsZero() {
			c.addLocked(c.collateral, r.Asset, up.User)
		}
		if r.ScaledVariableDebt != nil && !r.ScaledVariableDebt.IsZero() {
			c.addLocked(c.debt, r.Asset, up.User)
		}
	}
}

// Remove drops a user entirely, index entries included.
func (c *PositionCache) Remove(user common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropIndexEntriesLocked(user)
	delete(c.positions, user)
	delete(c.dormant, user)
}

// Get returns a deep copy of one user's positions.
func (c *PositionCache) Get(user common.Address) (types.UserPositions, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	up, ok := c.positions[user]
	if !ok {
		return types.UserPositions{}, false
	}
	return up.Clone(), true
}

// CandidatesForReserves returns the deduplicated union of collateral users
// and debt users across the affected reserves, dormant users excluded.
func (c *PositionCache) CandidatesForReserves(reserves []common.Address) []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[common.Address]struct{})
	out := make([]common.Address, 0, 64)
	for _, reserve := range reserves {
		for user := range c.collateral[reserve] {
			if _, dup := seen[user]; dup {
				continue
			}
			if _, asleep := c.dormant[user]; asleep {
				continue
			}
			seen[user] = struct{}{}
			out = append(out, user)
		}
		for user := range c.debt[reserve] {
			if _, dup := seen[user]; dup {
				continue
			}
			if _, asleep := c.dormant[user]; asleep {
				continue
			}
			seen[user] = struct{}{}
			out = append(out, user)
		}
	}
	return out
}

// Snapshot deep-copies the given users' positions for a trace. The copy is
// taken under one read lock, so it is consistent with a single cache state.
func (c *PositionCache) Snapshot(users []common.Address) map[common.Address]types.UserPositions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[common.Address]types.UserPositions, len(users))
	for _, user := range users {
		if up, ok := c.positions[user]; ok {
			out[user] = up.Clone()
		}
	}
	return out
}

// SetDormant moves a user in or out of the dormant set. Dormant users stay
// cached but are skipped on hot paths until an event wakes them.
func (c *PositionCache) SetDormant(user common.Address, dormant bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dormant {
		c.dormant[user] = struct{}{}
	} else {
		delete(c.dormant, user)
	}
}

// IsDormant reports whether a user is in the dormant set.
func (c *PositionCache) IsDormant(user common.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.dormant[user]
	return ok
}

// Size returns the number of tracked users.
func (c *PositionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.positions)
}

// Users returns every tracked user address.
func (c *PositionCache) Users() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]common.Address, 0, len(c.positions))
	for user := range c.positions {
		out = append(out, user)
	}
	return out
}

func (c *PositionCache) addLocked(index map[common.Address]map[common.Address]struct{}, reserve, user common.Address) {
	set, ok := index[reserve]
	if !ok {
		set = make(map[common.Address]struct{})
		index[reserve] = set
	}
	set[user] = struct{}{}
}

func (c *PositionCache) dropIndexEntriesLocked(user common.Address) {
	old, ok := c.positions[user]
	if !ok {
		return
	}
	for _, r := range old.Reserves {
		if set, ok := c.collateral[r.Asset]; ok {
			delete(set, user)
			if len(set) == 0 {
				delete(c.collateral, r.Asset)
			}
		}
		if set, ok := c.debt[r.Asset]; ok {
			delete(set, user)
			if len(set) == 0 {
				delete(c.debt, r.Asset)
			}
		}
	}
}
