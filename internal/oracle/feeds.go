/*

This file contains the tracked-feed table: which Chainlink forwarder feeds
which aggregator, and which reserves price off it. Loaded from the CSV pointed
at by VEGA_CHAINLINK_ADDRESSES_FILE and reloadable on SIGHUP without a restart.

*/

package oracle

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hernan-erasmo/overlord/internal/logger"
)

var feedLogger = logger.GetForComponent("oracle_feeds")

// ErrEmptyFeedTable is returned when the CSV yields no usable rows.
var ErrEmptyFeedTable = errors.New("feed table has no forwarder rows")

// Feed is one row of the table. Reserves with a fixed-price source (GHO) have
// no forwarder and never appear in the forwarder lookup.
type Feed struct {
	Symbol     string
	Reserve    common.Address
	Aggregator common.Address
	Forwarder  common.Address
	HasMempool bool
}

// FeedTable resolves forwarders to the reserves they price. A single
// forwarder can serve a whole denominated family (the ETH feeds), so lookups
// return slices.
type FeedTable struct {
	mu          sync.RWMutex
	path        string
	byForwarder map[common.Address][]Feed
	byReserve   map[common.Address]Feed
}

// LoadFeedTable reads and parses the CSV at path.
func LoadFeedTable(path string) (*FeedTable, error) {
	t := &FeedTable{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the backing file. On parse failure the previous table stays
// in place.
func (t *FeedTable) Reload() error {
	file, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("parsing %s: %w", t.path, err)
	}

	byForwarder := make(map[common.Address][]Feed)
	byReserve := make(map[common.Address]Feed)
	for i, record := range records {
		if i == 0 {
			// Header line: symbol,reserve_address,chainlink_address,forwarder_address
			continue
		}
		if len(record) < 3 {
			return fmt.Errorf("row %d of %s has %d fields, want at least 3", i+1, t.path, len(record))
		}
		feed := Feed{
			Symbol:     strings.TrimSpace(record[0]),
			Reserve:    common.HexToAddress(strings.TrimSpace(record[1])),
			Aggregator: common.HexToAddress(strings.TrimSpace(record[2])),
		}
		if len(record) > 3 && strings.TrimSpace(record[3]) != "" {
			feed.Forwarder = common.HexToAddress(strings.TrimSpace(record[3]))
			feed.HasMempool = true
			byForwarder[feed.Forwarder] = append(byForwarder[feed.Forwarder], feed)
		}
		byReserve[feed.Reserve] = feed
	}
	if len(byForwarder) == 0 {
		return ErrEmptyFeedTable
	}

	t.mu.Lock()
	t.byForwarder = byForwarder
	t.byReserve = byReserve
	t.mu.Unlock()

	feedLogger.Info().
		Int("forwarders", len(byForwarder)).
		Int("reserves", len(byReserve)).
		Msg("Feed table loaded")
	return nil
}

// WatchSIGHUP reloads the table every time the process receives SIGHUP, so
// operators can swap the CSV without a restart. Blocks until ctx is done;
// run it on its own goroutine. A failed reload keeps the previous table.
func (t *FeedTable) WatchSIGHUP(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-hup:
			if err := t.Reload(); err != nil {
				feedLogger.Error().Err(err).Str("path", t.path).Msg("Feed table reload failed, keeping previous table")
			}
		case <-ctx.Done():
			return
		}
	}
}

// IsTrackedForwarder reports whether the address is a known forwarder.
func (t *FeedTable) IsTrackedForwarder(addr common.Address) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.byForwarder[addr]
	return ok
}

// ReservesForForwarder returns every reserve priced off the forwarder's feed.
func (t *FeedTable) ReservesForForwarder(addr common.Address) []Feed {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byForwarder[addr]
}

// FeedForReserve returns the feed row for a reserve.
func (t *FeedTable) FeedForReserve(reserve common.Address) (Feed, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	feed, ok := t.byReserve[reserve]
	return feed, ok
}

// Forwarders returns the current forwarder set, for logging and startup checks.
func (t *FeedTable) Forwarders() []common.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]common.Address, 0, len(t.byForwarder))
	for addr := range t.byForwarder {
		out = append(out, addr)
	}
	return out
}
