package scout

import (
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

// dedupKey identifies a price update by content. Block number is deliberately
// not part of the key: oracles resend identical reports across consecutive
// blocks and those must collapse to one emission.
type dedupKey struct {
	forwarder common.Address
	price     [32]byte
}

// Dedup is a fixed-size LRU over (forwarder, decoded price) tuples.
type Dedup struct {
	cache *lru.Cache[dedupKey, struct{}]
}

// NewDedup builds a dedup window of the given capacity.
func NewDedup(capacity int) (*Dedup, error) {
	cache, err := lru.New[dedupKey, struct{}](capacity)
	if err != nil {
		return nil, err
	}
	return &Dedup{cache: cache}, nil
}

// Seen records the tuple and reports whether it was already in the window.
func (d *Dedup) Seen(forwarder common.Address, price *uint256.Int) bool {
	key := dedupKey{forwarder: forwarder, price: price.Bytes32()}
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
