package oracle

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedCSV = `symbol,reserve_address,chainlink_address,forwarder_address
WETH,0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2,0xE62B71cf983019BFf55bC83B48601ce8419650CC,0xCa3367E37Dcb0CC7C677e1402E1079a33dB12E10
wstETH,0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0,0xE62B71cf983019BFf55bC83B48601ce8419650CC,0xCa3367E37Dcb0CC7C677e1402E1079a33dB12E10
USDC,0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48,0x789190466E21a8b78b8027866CBBDc151542A26C,0x2500BcE43f5e626CbF33dD3c573b24B50Fb35A4D
GHO,0x40D16FC0246aD3160Ccc09B8D0D3A2cD28aE6C2f,0xD110cac5d8682A3b045D5524a9903E031d70FCCd,
`

func writeFeedCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chainlink.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFeedTable(t *testing.T) {
	table, err := LoadFeedTable(writeFeedCSV(t, feedCSV))
	require.NoError(t, err)

	ethForwarder := common.HexToAddress("0xCa3367E37Dcb0CC7C677e1402E1079a33dB12E10")
	assert.True(t, table.IsTrackedForwarder(ethForwarder))
	assert.False(t, table.IsTrackedForwarder(common.HexToAddress("0x01")))

	// One forwarder serves the whole ETH-denominated family.
	feeds := table.ReservesForForwarder(ethForwarder)
	require.Len(t, feeds, 2)
	assert.Equal(t, "WETH", feeds[0].Symbol)
	assert.Equal(t, "wstETH", feeds[1].Symbol)

	// GHO has no forwarder but is still priced by reserve.
	gho, ok := table.FeedForReserve(common.HexToAddress("0x40D16FC0246aD3160Ccc09B8D0D3A2cD28aE6C2f"))
	require.True(t, ok)
	assert.False(t, gho.HasMempool)
	assert.Len(t, table.Forwarders(), 2)
}

func TestLoadFeedTableEmpty(t *testing.T) {
	_, err := LoadFeedTable(writeFeedCSV(t, "symbol,reserve_address,chainlink_address,forwarder_address\n"))
	assert.ErrorIs(t, err, ErrEmptyFeedTable)
}

func TestReloadKeepsOldTableOnFailure(t *testing.T) {
	path := writeFeedCSV(t, feedCSV)
	table, err := LoadFeedTable(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("symbol\nonly-one-field\n"), 0644))
	assert.Error(t, table.Reload())

	// Previous rows survive a bad reload.
	assert.True(t, table.IsTrackedForwarder(common.HexToAddress("0xCa3367E37Dcb0CC7C677e1402E1079a33dB12E10")))
}

func TestWatchSIGHUPReloadsTable(t *testing.T) {
	path := writeFeedCSV(t, feedCSV)
	table, err := LoadFeedTable(path)
	require.NoError(t, err)

	// Own handler first, so the signal can never hit the default action
	// while the watcher goroutine is still registering.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, syscall.SIGHUP)
	defer signal.Stop(guard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go table.WatchSIGHUP(ctx)

	linkForwarder := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	assert.False(t, table.IsTrackedForwarder(linkForwarder))

	updated := feedCSV + "LINK,0x514910771AF9Ca656af840dff83E8264EcF986CA,0xDfd03BfC3465107Ce570a0397b247F546a42D0fA,0x00000000000000000000000000000000000000A1\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	// Resend until observed; the watcher may register after the first one.
	require.Eventually(t, func() bool {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
		return table.IsTrackedForwarder(linkForwarder)
	}, 2*time.Second, 20*time.Millisecond)
}
