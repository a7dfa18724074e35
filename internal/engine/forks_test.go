package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/chain"
)

// replayServer answers eth_sendRawTransaction with a fixed hash and serves
// the given receipt bodies in order on successive eth_getTransactionReceipt
// polls, repeating the last one once exhausted.
func replayServer(t *testing.T, receipts []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	polls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result string
		switch req.Method {
		case "eth_sendRawTransaction":
			result = `"0x1111111111111111111111111111111111111111111111111111111111111111"`
		case "eth_getTransactionReceipt":
			n := int(polls.Add(1))
			if n > len(receipts) {
				n = len(receipts)
			}
			result = receipts[n-1]
		default:
			result = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv, polls
}

func forkFor(t *testing.T, endpoint string) *Fork {
	t.Helper()
	provider, err := chain.Dial(context.Background(), endpoint)
	require.NoError(t, err)
	t.Cleanup(provider.Close)
	return &Fork{provider: provider}
}

func TestReplayRawTxPollsThroughPendingReceipt(t *testing.T) {
	srv, polls := replayServer(t, []string{"null", "null", `{"status":"0x1"}`})
	fork := forkFor(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := fork.ReplayRawTx(ctx, []byte{0x02, 0xf8})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestReplayRawTxRevertedStatus(t *testing.T) {
	srv, _ := replayServer(t, []string{`{"status":"0x0"}`})
	fork := forkFor(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := fork.ReplayRawTx(ctx, []byte{0x02, 0xf8})
	assert.ErrorIs(t, err, ErrReplayReverted)
}

func TestReplayRawTxTimesOutOnMissingReceipt(t *testing.T) {
	srv, _ := replayServer(t, []string{"null"})
	fork := forkFor(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := fork.ReplayRawTx(ctx, []byte{0x02, 0xf8})
	assert.ErrorIs(t, err, ErrReplayTimeout)
}
