/*

This file contains the liquidator service loop: every underwater candidate
coming off the bus is priced, planned, funded, routed and turned into a
relay bundle. Each stage can discard the candidate; the discard reason is
counted so a dry spell is diagnosable from metrics alone.

*/

package liquidator

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
	"github.com/hernan-erasmo/overlord/internal/types"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

var liquidatorLogger = logger.GetForComponent("profito")

// planDeadline bounds one candidate end to end; a bundle that misses its
// target block is worthless anyway.
const planDeadline = 10 * time.Second

// BundleSubmitter ships a signed bundle to the relay for a target block.
type BundleSubmitter interface {
	SubmitBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64) error
}

// PlanSink records executed plans for later analysis. Optional.
type PlanSink interface {
	RecordPlan(plan *types.LiquidationPlan, submitted bool)
}

// Service wires the planner to chain state and the relay.
type Service struct {
	node     *chain.Provider
	heads    *chain.HeadTracker
	configs  map[common.Address]types.ReserveConfig
	planner  *Planner
	prices   *PriceCache
	balances BalanceReader
	bundler  *Bundler
	relay    BundleSubmitter
	sink     PlanSink
}

// NewService assembles the liquidator. sink may be nil.
func NewService(
	node *chain.Provider,
	heads *chain.HeadTracker,
	configs map[common.Address]types.ReserveConfig,
	planner *Planner,
	bundler *Bundler,
	relay BundleSubmitter,
	sink PlanSink,
) *Service {
	return &Service{
		node:     node,
		heads:    heads,
		configs:  configs,
		planner:  planner,
		prices:   NewPriceCache(),
		balances: NewBalanceReader(node.Eth),
		bundler:  bundler,
		relay:    relay,
		sink:     sink,
	}
}

// HandleUnderwaterUser runs one candidate through the full pipeline.
func (s *Service) HandleUnderwaterUser(ctx context.Context, msg *bus.UnderwaterUser) {
	traceLog := logger.WithTrace(liquidatorLogger, msg.TraceID)
	ctx, cancel := context.WithTimeout(ctx, planDeadline)
	defer cancel()

	s.prices.AddOverlay(msg.TraceID, msg.SpeculativePrices)
	defer s.prices.DropOverlay(msg.TraceID)

	if err := s.refreshCanonicalPrices(ctx); err != nil {
		traceLog.Error().Err(err).Msg("Canonical price refresh failed")
		metrics.PlansDiscarded.WithLabelValues("price_refresh").Inc()
		return
	}

	input, err := s.resolveHoldings(ctx, msg)
	if err != nil {
		traceLog.Warn().Err(err).Str("user", msg.User.Hex()).Msg("Candidate holdings unresolvable")
		metrics.PlansDiscarded.WithLabelValues("holdings").Inc()
		return
	}

	plan, err := s.planner.BuildPlan(input)
	if err != nil {
		traceLog.Info().Err(err).Str("user", msg.User.Hex()).Msg("No viable plan")
		metrics.PlansDiscarded.WithLabelValues("no_pair").Inc()
		return
	}

	if err := s.fundAndPrice(ctx, plan); err != nil {
		if errors.Is(err, ErrNoFlashLiquidity) {
			traceLog.Info().Str("user", msg.User.Hex()).Msg("No flash loan source deep enough")
			metrics.PlansDiscarded.WithLabelValues("no_flash_liquidity").Inc()
		} else {
			traceLog.Warn().Err(err).Msg("Flash loan selection failed")
			metrics.PlansDiscarded.WithLabelValues("flash_source").Inc()
		}
		s.record(plan, false)
		return
	}

	if plan.NetProfitBase.Cmp(config.MinProfitThresholdBase) < 0 {
		traceLog.Info().
			Str("user", msg.User.Hex()).
			Str("net_profit", utils.FormatBaseAmount(plan.NetProfitBase)).
			Msg("Plan below the minimum profit threshold")
		metrics.PlansDiscarded.WithLabelValues("below_min_profit").Inc()
		s.record(plan, false)
		return
	}

	if err := ResolveSwapFees(ctx, s.node.Eth, plan); err != nil {
		traceLog.Warn().Err(err).Msg("No unwind route for the chosen pair")
		metrics.PlansDiscarded.WithLabelValues("no_swap_route").Inc()
		s.record(plan, false)
		return
	}

	bundle, err := s.bundler.BuildBundle(ctx, plan, msg.RawTx)
	if err != nil {
		traceLog.Error().Err(err).Msg("Bundle construction failed")
		metrics.PlansDiscarded.WithLabelValues("bundle_build").Inc()
		s.record(plan, false)
		return
	}

	targetBlock := msg.TargetBlock
	if head := s.heads.Latest(); targetBlock <= head {
		targetBlock = head + 1
	}
	if err := s.relay.SubmitBundle(ctx, bundle, targetBlock); err != nil {
		traceLog.Error().Err(err).Uint64("target_block", targetBlock).Msg("Bundle submission failed")
		metrics.BundlesSubmitted.WithLabelValues("error").Inc()
		s.record(plan, false)
		return
	}

	metrics.BundlesSubmitted.WithLabelValues("ok").Inc()
	s.record(plan, true)
	traceLog.Info().
		Str("user", plan.User.Hex()).
		Str("debt_asset", plan.DebtAsset.Hex()).
		Str("collateral_asset", plan.CollateralAsset.Hex()).
		Str("net_profit", utils.FormatBaseAmount(plan.NetProfitBase)).
		Str("flash_source", plan.FlashSource.String()).
		Uint64("target_block", targetBlock).
		Msg("Bundle submitted")
}

// refreshCanonicalPrices re-reads the oracle once per block at most.
func (s *Service) refreshCanonicalPrices(ctx context.Context) error {
	head := s.heads.Latest()
	if s.prices.CanonicalFresh(head) {
		return nil
	}
	assets := make([]common.Address, 0, len(s.configs))
	for asset := range s.configs {
		assets = append(assets, asset)
	}
	prices, err := aave.FetchPrices(ctx, s.node.Eth, assets)
	if err != nil {
		return err
	}
	s.prices.SetCanonical(head, prices)
	return nil
}

// resolveHoldings grows the carried scaled snapshot by current indices and
// attaches the trace's price view.
func (s *Service) resolveHoldings(ctx context.Context, msg *bus.UnderwaterUser) (PlanInput, error) {
	assets := make([]common.Address, 0, len(msg.Snapshot))
	for _, r := range msg.Snapshot {
		assets = append(assets, r.Asset)
	}
	indices, err := aave.FetchReserveIndices(ctx, s.node.Eth, assets)
	if err != nil {
		return PlanInput{}, err
	}

	in := PlanInput{
		TraceID:      msg.TraceID,
		User:         msg.User,
		HealthFactor: msg.HealthFactor,
	}
	for _, r := range msg.Snapshot {
		cfg, ok := s.configs[r.Asset]
		if !ok {
			continue
		}
		idx, ok := indices[r.Asset]
		if !ok {
			continue
		}
		price, ok := s.prices.PriceFor(msg.TraceID, r.Asset)
		if !ok {
			continue
		}

		if r.UsageAsCollateralEnabled && r.ScaledATokenBalance != nil && !r.ScaledATokenBalance.IsZero() {
			balance, err := aave.RayMul(r.ScaledATokenBalance, idx.LiquidityIndex)
			if err != nil {
				return PlanInput{}, err
			}
			in.Collateral = append(in.Collateral, Holding{Config: cfg, Balance: balance, Price: price})
		}
		if r.ScaledVariableDebt != nil && !r.ScaledVariableDebt.IsZero() {
			balance, err := aave.RayMul(r.ScaledVariableDebt, idx.VariableBorrowIndex)
			if err != nil {
				return PlanInput{}, err
			}
			in.Debt = append(in.Debt, Holding{Config: cfg, Balance: balance, Price: price})
		}
	}
	return in, nil
}

// fundAndPrice selects the flash loan source and charges its premium
// against the plan's net profit.
func (s *Service) fundAndPrice(ctx context.Context, plan *types.LiquidationPlan) error {
	cfg, ok := s.configs[plan.DebtAsset]
	if !ok {
		return ErrNoFlashLiquidity
	}
	if err := SelectFlashSource(ctx, s.balances, plan, cfg.ATokenAddress); err != nil {
		return err
	}
	if plan.FlashPremium.IsZero() {
		return nil
	}
	price, ok := s.prices.PriceFor(plan.TraceID, plan.DebtAsset)
	if !ok {
		return ErrNoFlashLiquidity
	}
	premiumBase, err := aave.BaseValue(plan.FlashPremium, price, cfg.Decimals)
	if err != nil {
		return err
	}
	if plan.NetProfitBase.Cmp(premiumBase) <= 0 {
		plan.NetProfitBase = uint256.NewInt(0)
		return nil
	}
	plan.NetProfitBase = new(uint256.Int).Sub(plan.NetProfitBase, premiumBase)
	return nil
}

func (s *Service) record(plan *types.LiquidationPlan, submitted bool) {
	if s.sink != nil {
		s.sink.RecordPlan(plan, submitted)
	}
}
