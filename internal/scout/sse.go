/*

This file contains the relay hint feeder. The privacy-preserving stream only
exposes what the searcher opted to reveal; a hint is usable when it reveals
both the forwarder destination and the full calldata. Hints never carry raw
transaction bytes, so the brain simulates them via state overrides instead of
replay.

*/

package scout

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

// hintEvent is the subset of a relay SSE event the scout cares about.
type hintEvent struct {
	Hash common.Hash `json:"hash"`
	Txs  []struct {
		To               *common.Address `json:"to"`
		CallData         hexutil.Bytes   `json:"callData"`
		FunctionSelector hexutil.Bytes   `json:"functionSelector"`
	} `json:"txs"`
}

// feedRelayHints follows the SSE hint stream with the same reconnect policy
// as the pending stream.
func (s *Scout) feedRelayHints(ctx context.Context) {
	if config.MEVShareSSEURL == "" {
		scoutLogger.Info().Msg("Relay hint stream disabled")
		return
	}
	for ctx.Err() == nil {
		if err := s.followHints(ctx); err != nil && ctx.Err() == nil {
			metrics.Reconnects.WithLabelValues("relay_hints").Inc()
			scoutLogger.Warn().Err(err).Msg("Hint stream lost, reconnecting")
			select {
			case <-time.After(config.ReconnectDelay):
			case <-ctx.Done():
			}
		}
	}
}

func (s *Scout) followHints(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.MEVShareSSEURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == ":ping" {
			continue
		}
		var event hintEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			metrics.DecodeFailures.WithLabelValues("hint_json").Inc()
			continue
		}
		s.handleHint(event)
	}
	return scanner.Err()
}

func (s *Scout) handleHint(event hintEvent) {
	for _, tx := range event.Txs {
		if tx.To == nil || len(tx.CallData) == 0 {
			continue
		}
		if !s.feeds.IsTrackedForwarder(*tx.To) {
			continue
		}
		s.enqueue(candidate{
			txHash:   event.Hash,
			to:       *tx.To,
			calldata: tx.CallData,
		})
	}
}
