package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/liquidator"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/mevshare"
	"github.com/hernan-erasmo/overlord/internal/state"
	"github.com/hernan-erasmo/overlord/internal/web"
)

// main is the entry point for the liquidation planner and executor.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadLiquidatorConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Msg("Profito (liquidator) starting...")

	if err := config.WritePIDFile("profito"); err != nil {
		log.Warn().Err(err).Msg("Failed to write PID file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Node Connection ---
	provider, err := chain.Dial(ctx, config.NodeIPCPath)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.NodeIPCPath).Msg("Failed to connect to the node")
		os.Exit(2)
	}
	defer provider.Close()

	heads := chain.NewHeadTracker(provider)
	go heads.Run(ctx)

	// --- 3. Reserve Discovery ---
	assets, err := aave.FetchReserveList(ctx, provider.Eth)
	if err != nil {
		log.Error().Err(err).Msg("Failed to discover reserves")
		os.Exit(2)
	}
	configs, err := aave.FetchReserveConfigs(ctx, provider.Eth, assets)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load reserve configuration")
		os.Exit(2)
	}
	log.Info().Int("reserves", len(assets)).Msg("Reserve configuration loaded")

	// --- 4. Execution Dependencies ---
	bundler, err := liquidator.NewBundler(provider, heads)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build the bundler")
		os.Exit(1)
	}
	log.Info().Str("sender", bundler.Sender().Hex()).Msg("Executor owner key loaded")

	relay, err := mevshare.NewClient(config.MEVRelayURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build the relay client")
		os.Exit(2)
	}

	// --- 5. Plan Sink (optional) ---
	var sink liquidator.PlanSink
	if config.DatabaseURL != "" {
		if err := state.InitDB(config.DatabaseURL); err != nil {
			log.Error().Err(err).Msg("Failed to initialize database")
			os.Exit(2)
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Error().Err(err).Msg("Failed to ensure database schema")
			os.Exit(2)
		}
		sink = state.NewPlanStore()
	}

	// --- 6. Ops Surface ---
	webServer := web.NewWebServer(config.WebPort, "profito")
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 7. Inbound Bus Loop ---
	service := liquidator.NewService(provider, heads, configs, liquidator.NewPlanner(nil), bundler, relay, sink)
	puller, err := bus.NewPuller(config.ProfitoInboundEndpoint, func(kind uint8, msg any) {
		candidate, ok := msg.(*bus.UnderwaterUser)
		if !ok {
			log.Warn().Uint8("kind", kind).Msg("Unexpected message kind on the inbound bus")
			return
		}
		go service.HandleUnderwaterUser(ctx, candidate)
	})
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.ProfitoInboundEndpoint).Msg("Failed to bind the inbound bus")
		os.Exit(2)
	}

	if err := puller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Liquidator terminated with an error")
		os.Exit(2)
	}
	log.Info().Msg("Profito shut down cleanly")
}
