package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the per-process Load functions.
var (
	// NodeIPCPath is the IPC socket of the local execution node.
	NodeIPCPath string
	// VegaInboundEndpoint is the bus address the brain pulls from.
	VegaInboundEndpoint string
	// ProfitoInboundEndpoint is the bus address the liquidator pulls from.
	ProfitoInboundEndpoint string
	// ForkEndpoints are the simulation fork RPC endpoints the brain rotates over.
	ForkEndpoints []string
	// MEVRelayURL is the bundle relay the liquidator submits to.
	MEVRelayURL string
	// MEVShareSSEURL is the mev-share hint stream the scout listens to.
	MEVShareSSEURL string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by loadCommonConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	NodeIPCPath = getEnvWithDefault("NODE_IPC_PATH", "/tmp/reth.ipc")
	VegaInboundEndpoint = getEnvWithDefault("VEGA_INBOUND_ENDPOINT", "ipc:///tmp/vega_inbound")
	ProfitoInboundEndpoint = getEnvWithDefault("PROFITO_INBOUND_ENDPOINT", "ipc:///tmp/profito_inbound")
	MEVRelayURL = getEnvWithDefault("MEV_RELAY_URL", "https://relay.flashbots.net")
	MEVShareSSEURL = getEnvWithDefault("MEV_SHARE_SSE_URL", "https://mev-share.flashbots.net")

	ForkEndpoints = nil
	if raw := getEnvWithDefault("VEGA_FORK_ENDPOINTS", ""); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				ForkEndpoints = append(ForkEndpoints, trimmed)
			}
		}
	}

	log.Debug().
		Str("NodeIPCPath", NodeIPCPath).
		Str("VegaInboundEndpoint", VegaInboundEndpoint).
		Str("ProfitoInboundEndpoint", ProfitoInboundEndpoint).
		Str("MEVRelayURL", MEVRelayURL).
		Int("ForkEndpoints", len(ForkEndpoints)).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
