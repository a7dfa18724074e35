package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/engine"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/oracle"
	"github.com/hernan-erasmo/overlord/internal/state"
	"github.com/hernan-erasmo/overlord/internal/web"
)

// main is the entry point for the position engine.
func main() {
	buckets := flag.Int("buckets", config.DefaultBuckets, "parallel lanes for the health factor recompute")
	flag.Parse()

	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadBrainConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Int("buckets", *buckets).Msg("Vega (position engine) starting...")

	if err := config.WritePIDFile("vega"); err != nil {
		log.Warn().Err(err).Msg("Failed to write PID file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Node and Fork Connections ---
	provider, err := chain.Dial(ctx, config.NodeIPCPath)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.NodeIPCPath).Msg("Failed to connect to the node")
		os.Exit(2)
	}
	defer provider.Close()

	ring, err := chain.DialRing(ctx, config.ForkEndpoints)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to the fork endpoints")
		os.Exit(2)
	}
	defer ring.Close()

	// --- 3. Protocol State ---
	feeds, err := oracle.LoadFeedTable(config.ChainlinkAddressesFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load the chainlink feed table")
		os.Exit(1)
	}
	go feeds.WatchSIGHUP(ctx)

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

	// --- 4. Trace Stats Sink (optional) ---
	var stats engine.StatsSink
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
		stats = state.NewTraceStore()
	}

	// --- 5. Downstream Bus ---
	pusher, err := bus.NewPusher(config.ProfitoInboundEndpoint)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.ProfitoInboundEndpoint).Msg("Failed to open the downstream bus")
		os.Exit(2)
	}
	defer pusher.Close()

	// --- 6. Engine Bootstrap ---
	eng := engine.New(engine.NewPositionCache(), feeds, configs, engine.NewForkPool(ring), provider, pusher, *buckets, stats)
	report, err := eng.Bootstrap(ctx, config.AddressesFile)
	if err != nil {
		log.Error().Err(err).Msg("Bootstrap failed")
		os.Exit(2)
	}
	log.Info().
		Int("users", report.Users).
		Int("dormant", report.Dormant).
		Int("underwater", report.Underwater).
		Str("sweep_dump", report.SweepDump).
		Msg("Engine bootstrapped")

	// --- 7. Ops Surface ---
	webServer := web.NewWebServer(config.WebPort, "vega")
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 8. Inbound Bus Loop ---
	// Price updates fan out, one goroutine per trace; position events stay
	// on the dispatch goroutine so cache writes have a single writer.
	puller, err := bus.NewPuller(config.VegaInboundEndpoint, func(kind uint8, msg any) {
		switch m := msg.(type) {
		case *bus.PriceUpdate:
			go eng.HandlePriceUpdate(ctx, m)
		case *bus.PositionEvent:
			eng.HandlePositionEvent(ctx, m)
		default:
			log.Warn().Uint8("kind", kind).Msg("Unexpected message kind on the inbound bus")
		}
	})
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.VegaInboundEndpoint).Msg("Failed to bind the inbound bus")
		os.Exit(2)
	}

	if err := puller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Engine terminated with an error")
		os.Exit(2)
	}
	log.Info().Msg("Vega shut down cleanly")
}
