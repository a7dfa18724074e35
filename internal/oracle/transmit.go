/*

This file contains the pre-inclusion price decoder. A pending forwarder call
wraps transmit(), whose report carries the sorted observation array; the
median element is the price the aggregator will store once the transaction
lands. Every failure here is structural: counted, logged, never fatal.

*/

package oracle

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	// ErrNotForward marks calldata whose selector is not forward(address,bytes).
	ErrNotForward = errors.New("calldata is not a forward call")
	// ErrNotTransmit marks an inner payload that is not an OCR2 transmit.
	ErrNotTransmit = errors.New("inner calldata is not a transmit call")
	// ErrShortCalldata marks calldata too short to carry a selector.
	ErrShortCalldata = errors.New("calldata shorter than a selector")
	// ErrEmptyReport marks a transmit report with no observations.
	ErrEmptyReport = errors.New("report carries no observations")
	// ErrNonPositivePrice marks a decoded median that is zero or negative.
	ErrNonPositivePrice = errors.New("median observation is not positive")
)

var (
	forwardSelector  = crypto.Keccak256([]byte("forward(address,bytes)"))[:4]
	transmitSelector = crypto.Keccak256([]byte("transmit(bytes32[3],bytes,bytes32[],bytes32[],bytes32)"))[:4]

	forwardArgs  abi.Arguments
	transmitArgs abi.Arguments
	reportArgs   abi.Arguments
)

func init() {
	addressT, _ := abi.NewType("address", "", nil)
	bytesT, _ := abi.NewType("bytes", "", nil)
	bytes32x3T, _ := abi.NewType("bytes32[3]", "", nil)
	bytes32SliceT, _ := abi.NewType("bytes32[]", "", nil)
	bytes32T, _ := abi.NewType("bytes32", "", nil)
	uint32T, _ := abi.NewType("uint32", "", nil)
	int192SliceT, _ := abi.NewType("int192[]", "", nil)
	int192T, _ := abi.NewType("int192", "", nil)

	forwardArgs = abi.Arguments{{Type: addressT}, {Type: bytesT}}
	transmitArgs = abi.Arguments{
		{Type: bytes32x3T}, {Type: bytesT}, {Type: bytes32SliceT}, {Type: bytes32SliceT}, {Type: bytes32T},
	}
	reportArgs = abi.Arguments{
		{Type: uint32T}, {Type: bytes32T}, {Type: int192SliceT}, {Type: int192T},
	}
}

// DecodedUpdate is the outcome of peeling a pending forwarder transaction.
type DecodedUpdate struct {
	Aggregator common.Address
	NewPrice   *uint256.Int
}

// DecodeForwardCall extracts the future aggregator price from forwarder
// calldata. The report's observation array is sorted by the reporters, so the
// element at len/2 is the median the aggregator will adopt.
func DecodeForwardCall(calldata []byte) (*DecodedUpdate, error) {
	if len(calldata) < 4 {
		return nil, ErrShortCalldata
	}
	if !selectorMatches(calldata, forwardSelector) {
		return nil, ErrNotForward
	}
	forwardOut, err := forwardArgs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotForward, err)
	}
	aggregator := forwardOut[0].(common.Address)
	inner := forwardOut[1].([]byte)

	if len(inner) < 4 {
		return nil, ErrNotTransmit
	}
	if !selectorMatches(inner, transmitSelector) {
		return nil, ErrNotTransmit
	}
	transmitOut, err := transmitArgs.Unpack(inner[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotTransmit, err)
	}
	report := transmitOut[1].([]byte)

	price, err := medianFromReport(report)
	if err != nil {
		return nil, err
	}
	return &DecodedUpdate{Aggregator: aggregator, NewPrice: price}, nil
}

func medianFromReport(report []byte) (*uint256.Int, error) {
	reportOut, err := reportArgs.Unpack(report)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotTransmit, err)
	}
	observations := reportOut[2].([]*big.Int)
	if len(observations) == 0 {
		return nil, ErrEmptyReport
	}
	median := observations[len(observations)/2]
	if median.Sign() <= 0 {
		return nil, ErrNonPositivePrice
	}
	return uint256.MustFromBig(median), nil
}

func selectorMatches(calldata, selector []byte) bool {
	for i := 0; i < 4; i++ {
		if calldata[i] != selector[i] {
			return false
		}
	}
	return true
}
