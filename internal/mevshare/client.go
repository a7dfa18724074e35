/*

This file contains the mev_sendBundle relay client. Bundles are signed with
an ephemeral identity key (the relay only uses it for reputation), target a
short inclusion window past the trigger block, and restrict what the relay
may share with builders to the hints the searcher economy expects.

*/

package mevshare

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

var relayLogger = logger.GetForComponent("mev_relay")

// maxInFlight bounds concurrent submissions to one relay endpoint.
const maxInFlight = 4

// defaultHints is what the relay may reveal about bundle transactions.
var defaultHints = []string{"calldata", "contract_address", "function_selector", "logs"}

type bundleTx struct {
	Tx        hexutil.Bytes `json:"tx"`
	CanRevert bool          `json:"canRevert"`
}

type bundleInclusion struct {
	Block    hexutil.Uint64 `json:"block"`
	MaxBlock hexutil.Uint64 `json:"maxBlock"`
}

type bundlePrivacy struct {
	Hints    []string `json:"hints"`
	Builders []string `json:"builders,omitempty"`
}

type sendBundleParams struct {
	Version   string          `json:"version"`
	Inclusion bundleInclusion `json:"inclusion"`
	Body      []bundleTx      `json:"body"`
	Privacy   bundlePrivacy   `json:"privacy"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Error  *rpcError `json:"error"`
	Result struct {
		BundleHash string `json:"bundleHash"`
	} `json:"result"`
}

// Client submits bundles to one mev-share relay.
type Client struct {
	endpoint string
	signer   *ecdsa.PrivateKey
	builders []string
	http     *http.Client
	inflight chan struct{}
}

// NewClient generates the ephemeral signing identity and loads the builder
// registration list if one is configured.
func NewClient(endpoint string) (*Client, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate relay identity key: %w", err)
	}
	builders, err := loadBuilders(config.BuilderRegistrationFile)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: endpoint,
		signer:   key,
		builders: builders,
		http:     &http.Client{Timeout: config.RelaySubmitTimeout},
		inflight: make(chan struct{}, maxInFlight),
	}, nil
}

// loadBuilders reads one builder name per line. No file means the relay's
// default builder set.
func loadBuilders(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open builder registration file: %w", err)
	}
	defer f.Close()

	var builders []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		builders = append(builders, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read builder registration file: %w", err)
	}
	return builders, nil
}

// SubmitBundle sends the transactions for inclusion at targetBlock, staying
// valid for the configured window past it.
func (c *Client) SubmitBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64) error {
	select {
	case c.inflight <- struct{}{}:
		defer func() { <-c.inflight }()
	case <-ctx.Done():
		return ctx.Err()
	}

	body := make([]bundleTx, 0, len(txs))
	for _, tx := range txs {
		body = append(body, bundleTx{Tx: tx})
	}
	params := sendBundleParams{
		Version: "v0.1",
		Inclusion: bundleInclusion{
			Block:    hexutil.Uint64(targetBlock),
			MaxBlock: hexutil.Uint64(targetBlock + config.BundleInclusionWindow),
		},
		Body: body,
		Privacy: bundlePrivacy{
			Hints:    defaultHints,
			Builders: c.builders,
		},
	}
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "mev_sendBundle",
		Params:  []any{params},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal bundle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	signature, err := c.signPayload(payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.BundlesSubmitted.WithLabelValues("http_error").Inc()
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	if decoded.Error != nil {
		metrics.BundlesSubmitted.WithLabelValues("rpc_error").Inc()
		return fmt.Errorf("relay rejected bundle: %d %s", decoded.Error.Code, decoded.Error.Message)
	}

	relayLogger.Info().
		Str("bundle_hash", decoded.Result.BundleHash).
		Uint64("target_block", targetBlock).
		Int("txs", len(txs)).
		Msg("Bundle accepted by relay")
	return nil
}

// signPayload produces the flashbots identity header: the EIP-191 personal
// signature of the hex form of the body's keccak hash.
func (c *Client) signPayload(payload []byte) (string, error) {
	hashed := crypto.Keccak256Hash(payload).Hex()
	signature, err := crypto.Sign(accounts.TextHash([]byte(hashed)), c.signer)
	if err != nil {
		return "", fmt.Errorf("failed to sign bundle payload: %w", err)
	}
	address := crypto.PubkeyToAddress(c.signer.PublicKey)
	return fmt.Sprintf("%s:%s", address.Hex(), hexutil.Encode(signature)), nil
}
