package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/types"
)

func writeUserFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUserFile(t *testing.T) {
	path := writeUserFile(t, `# tracked users
0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2

0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48
0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2
`)

	users, err := LoadUserFile(path)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{
		common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
	}, users, "duplicates collapse, comments and blanks are skipped")
}

func TestLoadUserFileRejectsGarbage(t *testing.T) {
	path := writeUserFile(t, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2\nnot-an-address\n")

	_, err := LoadUserFile(path)
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadUserFileMissing(t *testing.T) {
	_, err := LoadUserFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

type captureSink struct {
	stats []TraceStats
}

func (c *captureSink) RecordTrace(s TraceStats) {
	c.stats = append(c.stats, s)
}

func TestBootstrapRecordsSweepStats(t *testing.T) {
	// Empty uint256[] for getAssetsPrices: offset word then zero length.
	emptyArray := "0x" + strings.Repeat("0", 62) + "20" + strings.Repeat("0", 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"%s"}`, req.ID, emptyArray)
	}))
	t.Cleanup(srv.Close)

	provider, err := chain.Dial(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(provider.Close)

	sink := &captureSink{}
	eng := New(NewPositionCache(), nil, map[common.Address]types.ReserveConfig{}, nil, provider, nil, 1, sink)

	report, err := eng.Bootstrap(context.Background(), writeUserFile(t, "# nobody tracked yet\n"))
	require.NoError(t, err)
	assert.Zero(t, report.Users)

	require.Len(t, sink.stats, 1)
	assert.Equal(t, "bootstrap", sink.stats[0].Origin)
	assert.Len(t, sink.stats[0].TraceID, 8)
}
