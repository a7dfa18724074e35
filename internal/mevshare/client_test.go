package mevshare

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	client, err := NewClient(endpoint)
	require.NoError(t, err)
	return client
}

func TestSubmitBundleRequestShape(t *testing.T) {
	var captured struct {
		body      []byte
		signature string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.body, _ = io.ReadAll(r.Body)
		captured.signature = r.Header.Get("X-Flashbots-Signature")
		w.Write([]byte(`{"result":{"bundleHash":"0xabc"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	txs := []hexutil.Bytes{{0x02, 0x01}, {0x02, 0x02}}
	require.NoError(t, client.SubmitBundle(context.Background(), txs, 19_000_001))

	var req struct {
		Method string `json:"method"`
		Params []struct {
			Version   string `json:"version"`
			Inclusion struct {
				Block    string `json:"block"`
				MaxBlock string `json:"maxBlock"`
			} `json:"inclusion"`
			Body []struct {
				Tx string `json:"tx"`
			} `json:"body"`
			Privacy struct {
				Hints []string `json:"hints"`
			} `json:"privacy"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(captured.body, &req))
	require.Len(t, req.Params, 1)

	assert.Equal(t, "mev_sendBundle", req.Method)
	assert.Equal(t, "v0.1", req.Params[0].Version)
	assert.Equal(t, "0x121eac1", req.Params[0].Inclusion.Block)
	assert.Equal(t, "0x121eac4", req.Params[0].Inclusion.MaxBlock, "window extends three blocks past target")
	require.Len(t, req.Params[0].Body, 2)
	assert.Equal(t, "0x0201", req.Params[0].Body[0].Tx, "transaction order is preserved")
	assert.ElementsMatch(t,
		[]string{"calldata", "contract_address", "function_selector", "logs"},
		req.Params[0].Privacy.Hints)
	assert.NotEmpty(t, captured.signature)
}

func TestSubmitBundleSignatureRecovers(t *testing.T) {
	var captured struct {
		body      []byte
		signature string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.body, _ = io.ReadAll(r.Body)
		captured.signature = r.Header.Get("X-Flashbots-Signature")
		w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	require.NoError(t, client.SubmitBundle(context.Background(), []hexutil.Bytes{{0x01}}, 100))

	parts := strings.SplitN(captured.signature, ":", 2)
	require.Len(t, parts, 2)
	signature, err := hexutil.Decode(parts[1])
	require.NoError(t, err)

	hashed := crypto.Keccak256Hash(captured.body).Hex()
	pubkey, err := crypto.SigToPub(accounts.TextHash([]byte(hashed)), signature)
	require.NoError(t, err)
	assert.Equal(t, parts[0], crypto.PubkeyToAddress(*pubkey).Hex(),
		"header address must match the key that signed the body")
}

func TestSubmitBundleRelayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":-32600,"message":"invalid inclusion"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.SubmitBundle(context.Background(), []hexutil.Bytes{{0x01}}, 100)
	assert.ErrorContains(t, err, "invalid inclusion")
}

func TestSubmitBundleHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.SubmitBundle(context.Background(), []hexutil.Bytes{{0x01}}, 100)
	assert.ErrorContains(t, err, "403")
}

func TestLoadBuilders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "builders.txt")
	require.NoError(t, os.WriteFile(path, []byte("flashbots\n# disabled\n\nbeaverbuild\n"), 0o644))

	builders, err := loadBuilders(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"flashbots", "beaverbuild"}, builders)
}
