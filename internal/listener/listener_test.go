package listener

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/types"
)

var (
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	borrower   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	onBehalfOf = common.HexToAddress("0x1000000000000000000000000000000000000002")
	txHash     = common.HexToHash("0xa1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90")
)

func packEventData(t *testing.T, name string, args ...any) []byte {
	t.Helper()
	data, err := aave.PoolABI.Events[name].Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return data
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestDecodeBorrowLog(t *testing.T) {
	log := &gethtypes.Log{
		Topics: []common.Hash{
			aave.BorrowTopic,
			addressTopic(usdc),
			addressTopic(onBehalfOf),
			{}, // referralCode
		},
		Data:        packEventData(t, "Borrow", borrower, big.NewInt(1_000_000_000), uint8(2), big.NewInt(0)),
		BlockNumber: 19_000_000,
		TxHash:      txHash,
	}

	event, err := DecodePoolLog(log)
	require.NoError(t, err)
	assert.Equal(t, bus.EventBorrow, event.Kind)
	// onBehalfOf owns the debt, not the msg.sender.
	assert.Equal(t, onBehalfOf, event.User)
	assert.Equal(t, usdc, event.Reserve)
	assert.Equal(t, uint256.NewInt(1_000_000_000), event.Amount)
	assert.Equal(t, "a1b2c3d4", event.TraceID)
	assert.Equal(t, uint64(19_000_000), event.Block)
}

func TestDecodeSupplyLog(t *testing.T) {
	log := &gethtypes.Log{
		Topics: []common.Hash{
			aave.SupplyTopic,
			addressTopic(weth),
			addressTopic(onBehalfOf),
			{},
		},
		Data:   packEventData(t, "Supply", borrower, big.NewInt(5_000_000_000_000_000_000)),
		TxHash: txHash,
	}

	event, err := DecodePoolLog(log)
	require.NoError(t, err)
	assert.Equal(t, bus.EventSupply, event.Kind)
	assert.Equal(t, onBehalfOf, event.User)
	assert.Equal(t, weth, event.Reserve)
}

func TestDecodeRepayLog(t *testing.T) {
	log := &gethtypes.Log{
		Topics: []common.Hash{
			aave.RepayTopic,
			addressTopic(usdc),
			addressTopic(borrower),
		},
		Data:   packEventData(t, "Repay", onBehalfOf, big.NewInt(250_000_000), true),
		TxHash: txHash,
	}

	event, err := DecodePoolLog(log)
	require.NoError(t, err)
	assert.Equal(t, bus.EventRepay, event.Kind)
	assert.Equal(t, borrower, event.User)
	assert.Equal(t, uint256.NewInt(250_000_000), event.Amount)
}

func TestDecodeLiquidationCallLog(t *testing.T) {
	liquidator := common.HexToAddress("0x2000000000000000000000000000000000000001")
	log := &gethtypes.Log{
		Topics: []common.Hash{
			aave.LiquidationCallTopic,
			addressTopic(weth),
			addressTopic(usdc),
			addressTopic(borrower),
		},
		Data:   packEventData(t, "LiquidationCall", big.NewInt(500_000_000), big.NewInt(170_000_000_000_000_000), liquidator, false),
		TxHash: txHash,
	}

	event, err := DecodePoolLog(log)
	require.NoError(t, err)
	assert.Equal(t, bus.EventLiquidationCall, event.Kind)
	assert.Equal(t, borrower, event.User)
	assert.Equal(t, usdc, event.Reserve)
	assert.Equal(t, uint256.NewInt(500_000_000), event.Amount)
}

func TestDecodeUnknownTopic(t *testing.T) {
	log := &gethtypes.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
	_, err := DecodePoolLog(log)
	assert.ErrorIs(t, err, ErrUnknownTopic)
}

func TestDecodeWrongTopicCount(t *testing.T) {
	log := &gethtypes.Log{Topics: []common.Hash{aave.BorrowTopic, addressTopic(usdc)}}
	_, err := DecodePoolLog(log)
	assert.ErrorIs(t, err, ErrMalformedLog)
}

func TestDustFilter(t *testing.T) {
	configs := map[common.Address]types.ReserveConfig{
		usdc: {Asset: usdc, Decimals: 6},
		weth: {Asset: weth, Decimals: 18},
	}
	// $6 threshold in 8-decimal base units.
	filter := NewDustFilter(uint256.NewInt(600_000_000), configs)
	filter.UpdatePrices(map[common.Address]*uint256.Int{
		usdc: uint256.NewInt(100_000_000),     // $1.00
		weth: uint256.NewInt(334_411_000_000), // $3344.11
	})

	// $5 of USDC is dust, $7 is not.
	assert.True(t, filter.IsDust(usdc, uint256.NewInt(5_000_000)))
	assert.False(t, filter.IsDust(usdc, uint256.NewInt(7_000_000)))

	// 0.001 WETH is about $3.34, dust.
	assert.True(t, filter.IsDust(weth, uint256.NewInt(1_000_000_000_000_000)))

	// Unknown reserve passes through.
	unknown := common.HexToAddress("0x09")
	assert.False(t, filter.IsDust(unknown, uint256.NewInt(1)))

	// Missing price passes through.
	filter.UpdatePrices(map[common.Address]*uint256.Int{})
	assert.False(t, filter.IsDust(usdc, uint256.NewInt(1)))
}
