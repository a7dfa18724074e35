package bus

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/types"
)

func samplePriceUpdate() *PriceUpdate {
	return &PriceUpdate{
		TraceID:     "a1b2c3d4",
		TxHash:      common.HexToHash("0xa1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"),
		RawTx:       []byte{0x02, 0xf8, 0x72},
		TargetBlock: 19_000_001,
		NewPrice:    uint256.NewInt(334_411_000_000),
		Forwarder:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Sender:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Recipient:   common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Calldata:    []byte{0x6f, 0xad, 0xcf, 0x72},
	}
}

func sampleUnderwaterUser() *UnderwaterUser {
	return &UnderwaterUser{
		TraceID:             "deadbeef",
		User:                common.HexToAddress("0x4444444444444444444444444444444444444444"),
		HealthFactor:        uint256.NewInt(987_000_000_000_000_000),
		TotalCollateralBase: uint256.NewInt(250_000_000_000),
		TxHash:              common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000"),
		RawTx:               []byte{0x02, 0x01},
		TargetBlock:         19_000_002,
		Snapshot: []types.ReservePosition{
			{
				Asset:                    common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
				ScaledATokenBalance:      uint256.NewInt(5_000_000_000_000_000_000),
				UsageAsCollateralEnabled: true,
				ScaledVariableDebt:       uint256.NewInt(0),
			},
		},
		SpeculativePrices: []types.AssetPrice{
			{
				Asset: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
				Price: uint256.NewInt(334_411_000_000),
			},
		},
	}
}

func TestSocketPath(t *testing.T) {
	path, err := SocketPath("ipc:///tmp/vega_inbound")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/vega_inbound", path)

	path, err = SocketPath("/tmp/direct")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/direct", path)

	_, err = SocketPath("tcp://127.0.0.1:5555")
	assert.ErrorIs(t, err, ErrBadEndpoint)

	_, err = SocketPath("ipc://")
	assert.ErrorIs(t, err, ErrBadEndpoint)
}

func TestPriceUpdateRoundTrip(t *testing.T) {
	original := samplePriceUpdate()
	payload, err := EncodePayload(original)
	require.NoError(t, err)

	decoded, err := DecodePayload(KindPriceUpdate, payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded.(*PriceUpdate))

	// Deterministic encoding: same struct, identical bytes.
	payload2, err := EncodePayload(samplePriceUpdate())
	require.NoError(t, err)
	assert.Equal(t, payload, payload2)
}

func TestPositionEventRoundTrip(t *testing.T) {
	original := &PositionEvent{
		TraceID: "0a0b0c0d",
		Kind:    EventBorrow,
		User:    common.HexToAddress("0x5555555555555555555555555555555555555555"),
		Reserve: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
		Amount:  uint256.NewInt(1_500_000_000_000_000_000),
		Block:   19_000_003,
		TxHash:  common.HexToHash("0x0a0b0c0d00000000000000000000000000000000000000000000000000000000"),
	}
	payload, err := EncodePayload(original)
	require.NoError(t, err)

	decoded, err := DecodePayload(KindPositionEvent, payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded.(*PositionEvent))
}

func TestUnderwaterUserRoundTrip(t *testing.T) {
	original := sampleUnderwaterUser()
	payload, err := EncodePayload(original)
	require.NoError(t, err)

	decoded, err := DecodePayload(KindUnderwaterUser, payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded.(*UnderwaterUser))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := DecodePayload(99, []byte{0xc0})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello")
	require.NoError(t, WriteFrame(&buf, KindPriceUpdate, payload))

	kind, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindPriceUpdate, kind)
	assert.Equal(t, payload, got)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindPositionEvent, []byte("abcdef")))
	truncated := buf.Bytes()[:buf.Len()-2]

	_, _, err := ReadFrame(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestReadFrameOversized(t *testing.T) {
	header := []byte{KindPriceUpdate, 0xff, 0xff, 0xff, 0xff}
	_, _, err := ReadFrame(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestPushPullDelivery(t *testing.T) {
	endpoint := "ipc://" + filepath.Join(t.TempDir(), "test_inbound")

	received := make(chan any, 4)
	puller, err := NewPuller(endpoint, func(kind uint8, msg any) {
		received <- msg
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go puller.Run(ctx)

	pusher, err := NewPusher(endpoint)
	require.NoError(t, err)
	defer pusher.Close()

	want := samplePriceUpdate()
	require.NoError(t, pusher.Send(want))

	select {
	case msg := <-received:
		assert.Equal(t, want, msg.(*PriceUpdate))
	case <-time.After(5 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestSendRejectsUnknownType(t *testing.T) {
	endpoint := "ipc://" + filepath.Join(t.TempDir(), "reject_inbound")
	pusher, err := NewPusher(endpoint)
	require.NoError(t, err)
	defer pusher.Close()

	err = pusher.Send(struct{ X int }{X: 1})
	assert.ErrorIs(t, err, ErrUnknownKind)
}
