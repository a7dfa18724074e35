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
	"github.com/hernan-erasmo/overlord/internal/listener"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/web"
)

// main is the entry point for the confirmed-event listener.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadListenerConfig(); err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger.Initialize(config.LogLevel, config.LogFile)
	log.Info().Msg("Whistleblower (event listener) starting...")

	if err := config.WritePIDFile("whistleblower"); err != nil {
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

	// --- 4. Bus Connection ---
	pusher, err := bus.NewPusher(config.VegaInboundEndpoint)
	if err != nil {
		log.Error().Err(err).Str("endpoint", config.VegaInboundEndpoint).Msg("Failed to open the bus")
		os.Exit(2)
	}
	defer pusher.Close()

	// --- 5. Ops Surface ---
	webServer := web.NewWebServer(config.WebPort, "whistleblower")
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Listener Loop ---
	filter := listener.NewDustFilter(config.DustEventThresholdBase, configs)
	l := listener.New(pusher, filter, assets)

	if err := l.Run(ctx, provider); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Listener terminated with an error")
		os.Exit(2)
	}
	log.Info().Msg("Whistleblower shut down cleanly")
}
