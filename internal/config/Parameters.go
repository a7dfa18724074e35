/*

This file contains the default operating parameters for overlord.

These values mirror the on-chain Aave v3 mainnet deployment where they encode
protocol behavior (thresholds, close factors) and were tuned against mainnet
latency where they encode pipeline behavior (deadlines, queue depths).

*/

package config

import (
	"time"

	"github.com/holiman/uint256"
)

// Health factor scale and thresholds. All HF math is 1e18 fixed point.
var (
	// HealthFactorScale is 1e18, the wad scale every health factor is expressed in.
	HealthFactorScale = uint256.NewInt(1_000_000_000_000_000_000)

	// HFLiquidationThreshold marks a position liquidatable when HF drops below it.
	HFLiquidationThreshold = uint256.NewInt(1_000_000_000_000_000_000)

	// HFFullCloseThreshold is 0.95e18. At or below it the full close factor applies.
	HFFullCloseThreshold = uint256.NewInt(950_000_000_000_000_000)

	// MinReportableCollateralBase is $10 in 8-decimal base currency units.
	// Users under it stay in the dormant set and are never emitted downstream.
	MinReportableCollateralBase = uint256.NewInt(1_000_000_000)

	// MinProfitThresholdBase is $10 in 8-decimal base currency units.
	// Opportunities netting less are discarded by the planner.
	MinProfitThresholdBase = uint256.NewInt(1_000_000_000)

	// DustEventThresholdBase is $6 in 8-decimal base currency units.
	// Supply/Repay/Borrow events under it are filtered by the listener.
	DustEventThresholdBase = uint256.NewInt(600_000_000)
)

// Percentage math operates in basis points over a 1e4 scale.
const (
	// PercentageFactor is the bps denominator used by percentMul and percentDiv.
	PercentageFactor = 10_000

	// HalfPercentageFactor is the rounding term for half-up percent math.
	HalfPercentageFactor = 5_000

	// FullCloseFactorBps allows repaying 100% of a debt when HF <= 0.95.
	FullCloseFactorBps = 10_000

	// DefaultCloseFactorBps allows repaying 50% of a debt otherwise.
	DefaultCloseFactorBps = 5_000

	// BribePercentBps is the share of net profit paid to the block producer.
	BribePercentBps = 9_500

	// DefaultSlippageBps is the flat unwind-cost estimate charged against
	// seized collateral when no richer policy is configured.
	DefaultSlippageBps = 30

	// AaveFlashPremiumBps is the Pool's flashLoanSimple premium (0.05%).
	// Morpho charges none, which is why it is probed first.
	AaveFlashPremiumBps = 5
)

// Pipeline parameters.
const (
	// DefaultBuckets is how many parallel lanes the HF recompute is split into.
	DefaultBuckets = 64

	// ScoutDedupCacheSize bounds the (forwarder, price) dedup LRU.
	ScoutDedupCacheSize = 16

	// BusHighWaterMark bounds the per-pusher outbound queue.
	BusHighWaterMark = 1024

	// PendingTxBuffer bounds the feeder-to-decoder channel in the scout.
	PendingTxBuffer = 1024

	// ReconnectDelay is the fixed backoff for node and bus reconnects.
	ReconnectDelay = 2 * time.Second

	// ForkAcquireDeadline bounds how long a trace waits for a free fork.
	ForkAcquireDeadline = 200 * time.Millisecond

	// TraceDeadline bounds a full price-update recompute end to end.
	TraceDeadline = 2 * time.Second

	// MaxSpeculativePriceTraces bounds the liquidator's per-trace price overlays.
	MaxSpeculativePriceTraces = 3

	// BundleInclusionWindow is how many blocks past target a bundle stays valid.
	BundleInclusionWindow = 3

	// RelaySubmitTimeout bounds a single mev_sendBundle round trip.
	RelaySubmitTimeout = 5 * time.Second
)
