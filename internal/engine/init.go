/*

This file contains the cold start sequence: read the tracked user universe
from disk, discover reserve configuration, batch-load every position, run one
full local health sweep, and park users who cannot go underwater as dormant.
The sweep result is dumped to the temp output dir for operator inspection.

*/

package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

// BootstrapReport summarizes the cold start for the caller.
type BootstrapReport struct {
	Users      int
	Reserves   int
	Dormant    int
	Underwater int
	Elapsed    time.Duration
	SweepDump  string
}

// LoadUserFile reads a newline-separated list of hex addresses. Blank lines
// and #-comments are skipped. Malformed addresses fail the whole load so a
// truncated file never silently shrinks the universe.
func LoadUserFile(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open user file: %w", err)
	}
	defer f.Close()

	var users []common.Address
	seen := make(map[common.Address]struct{})
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if !common.IsHexAddress(text) {
			return nil, fmt.Errorf("user file line %d is not a hex address: %q", line, text)
		}
		addr := common.HexToAddress(text)
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		users = append(users, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user file: %w", err)
	}
	return users, nil
}

// Bootstrap fills the cache from canonical state and marks dormant users.
// Must complete before the bus starts delivering messages.
func (e *Engine) Bootstrap(ctx context.Context, userFile string) (BootstrapReport, error) {
	start := time.Now()

	// The sweep has no originating transaction, so its trace ID is minted.
	traceID := utils.NewTraceID()
	sweepLog := logger.WithTrace(engineLogger, traceID)

	users, err := LoadUserFile(userFile)
	if err != nil {
		return BootstrapReport{}, err
	}
	sweepLog.Info().Int("users", len(users)).Str("file", userFile).Msg("User universe loaded")

	positions, err := aave.FetchUserPositions(ctx, e.node.Eth, users)
	if err != nil {
		return BootstrapReport{}, fmt.Errorf("failed to load user positions: %w", err)
	}

	assets := make([]common.Address, 0, len(e.configs))
	for asset := range e.configs {
		assets = append(assets, asset)
	}
	indices, err := aave.FetchReserveIndices(ctx, e.node.Eth, assets)
	if err != nil {
		return BootstrapReport{}, fmt.Errorf("failed to load reserve indices: %w", err)
	}
	prices, err := aave.FetchPrices(ctx, e.node.Eth, assets)
	if err != nil {
		return BootstrapReport{}, fmt.Errorf("failed to load reserve prices: %w", err)
	}

	report := BootstrapReport{Users: len(users), Reserves: len(assets)}
	sweep := make([]sweepRow, 0, len(positions))
	for _, up := range positions {
		if !up.HasCollateral() && !up.HasDebt() {
			continue
		}
		e.cache.Replace(up)

		// A user with collateral but no debt, or debt but no usable
		// collateral, cannot trip the liquidation threshold on a price move
		// alone. Park them until a position event changes the footprint.
		if !up.HasCollateral() || !up.HasDebt() {
			e.cache.SetDormant(up.User, true)
			report.Dormant++
			continue
		}

		health, err := ComputeHealth(up, e.configs, indices, prices)
		if err != nil {
			sweepLog.Warn().Err(err).Str("user", up.User.Hex()).Msg("Sweep skipped user")
			continue
		}
		sweep = append(sweep, sweepRow{user: up.User, health: health})

		// Positions too small to ever clear the reportable threshold are
		// parked too; liquidating them would not cover gas.
		if health.TotalCollateralBase.Cmp(config.MinReportableCollateralBase) < 0 {
			e.cache.SetDormant(up.User, true)
			report.Dormant++
			continue
		}
		if health.HealthFactor.Cmp(aave.Wad) < 0 {
			report.Underwater++
		}
	}

	report.SweepDump, err = dumpSweep(sweep)
	if err != nil {
		sweepLog.Warn().Err(err).Msg("Failed to write sweep dump")
	}

	report.Elapsed = time.Since(start)
	e.recordStats(TraceStats{
		TraceID:    traceID,
		Origin:     "bootstrap",
		Candidates: len(users),
		Underwater: report.Underwater,
		Elapsed:    report.Elapsed,
	})
	sweepLog.Info().
		Int("cached", e.cache.Size()).
		Int("dormant", report.Dormant).
		Int("underwater", report.Underwater).
		Dur("elapsed", report.Elapsed).
		Msg("Bootstrap complete")
	return report, nil
}

type sweepRow struct {
	user   common.Address
	health HealthReport
}

// dumpSweep writes one line per swept user so an operator can eyeball the
// distribution after a restart.
func dumpSweep(rows []sweepRow) (string, error) {
	if err := os.MkdirAll(config.TempOutputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(config.TempOutputDir, fmt.Sprintf("hf_sweep_%d.txt", time.Now().Unix()))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		fmt.Fprintf(w, "%s hf=%s collateral=%s debt=%s\n",
			row.user.Hex(),
			utils.FormatHealthFactor(row.health.HealthFactor),
			utils.FormatBaseAmount(row.health.TotalCollateralBase),
			utils.FormatBaseAmount(row.health.TotalDebtBase),
		)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return path, nil
}
