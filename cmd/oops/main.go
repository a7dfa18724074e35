package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/oracle"
	"github.com/hernan-erasmo/overlord/internal/scout"
	"github.com/hernan-erasmo/overlord/internal/web"
)

// main is the entry point for the mempool scout.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadScoutConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Msg("Oops (mempool scout) starting...")

	if err := config.WritePIDFile("oops"); err != nil {
		log.Warn().Err(err).Msg("Failed to write PID file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Oracle Feed Table ---
	feeds, err := oracle.LoadFeedTable(config.ChainlinkAddressesFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load the chainlink feed table")
		os.Exit(1)
	}
	go feeds.WatchSIGHUP(ctx)

	// --- 3. Node Connection ---
	provider, err := chain.Dial(ctx, config.NodeIPCPath)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.NodeIPCPath).Msg("Failed to connect to the node")
		os.Exit(2)
	}
	defer provider.Close()

	heads := chain.NewHeadTracker(provider)
	go heads.Run(ctx)

	// --- 4. Bus Connection ---
	pusher, err := bus.NewPusher(config.VegaInboundEndpoint)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.VegaInboundEndpoint).Msg("Failed to open the bus")
		os.Exit(2)
	}
	defer pusher.Close()

	// --- 5. Ops Surface ---
	webServer := web.NewWebServer(config.WebPort, "oops")
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Scout Loop ---
	s, err := scout.New(feeds, heads, pusher)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build the scout")
		os.Exit(2)
	}

	if err := s.Run(ctx, provider); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Scout terminated with an error")
		os.Exit(2)
	}
	log.Info().Msg("Oops shut down cleanly")
}
