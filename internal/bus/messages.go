/*

This file contains the three message kinds that cross process boundaries and
their wire encoding. The envelope is {kind u8, length u32 big-endian, payload};
payloads are RLP so encoding is deterministic and round-trips exactly.

*/

package bus

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/types"
)

// Message kinds on the wire.
const (
	KindPriceUpdate    uint8 = 1
	KindPositionEvent  uint8 = 2
	KindUnderwaterUser uint8 = 3
)

// Position event kinds inside a PositionEvent payload.
const (
	EventLiquidationCall uint8 = 1
	EventBorrow          uint8 = 2
	EventSupply          uint8 = 3
	EventRepay           uint8 = 4
)

var (
	// ErrUnknownKind marks frames whose kind byte is outside the known set.
	ErrUnknownKind = errors.New("unknown message kind")
)

// PriceUpdate is a decoded pending Chainlink transmission, scout to brain.
type PriceUpdate struct {
	TraceID     string
	TxHash      common.Hash
	RawTx       []byte
	TargetBlock uint64
	NewPrice    *uint256.Int
	Forwarder   common.Address
	Sender      common.Address
	Recipient   common.Address
	Calldata    []byte
}

// PositionEvent is a confirmed Pool log that touches one user's position,
// listener to brain.
type PositionEvent struct {
	TraceID string
	Kind    uint8
	User    common.Address
	Reserve common.Address
	Amount  *uint256.Int
	Block   uint64
	TxHash  common.Hash
}

// UnderwaterUser is a liquidation candidate with everything the planner needs
// to act without re-reading the chain, brain to liquidator.
type UnderwaterUser struct {
	TraceID             string
	User                common.Address
	HealthFactor        *uint256.Int
	TotalCollateralBase *uint256.Int
	TxHash              common.Hash
	RawTx               []byte
	TargetBlock         uint64
	Snapshot            []types.ReservePosition
	SpeculativePrices   []types.AssetPrice
}

// KindOf returns the wire kind for a known message type.
func KindOf(msg any) (uint8, error) {
	switch msg.(type) {
	case *PriceUpdate, PriceUpdate:
		return KindPriceUpdate, nil
	case *PositionEvent, PositionEvent:
		return KindPositionEvent, nil
	case *UnderwaterUser, UnderwaterUser:
		return KindUnderwaterUser, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownKind, msg)
	}
}

// KindName is the metrics label for a wire kind.
func KindName(kind uint8) string {
	switch kind {
	case KindPriceUpdate:
		return "price_update"
	case KindPositionEvent:
		return "position_event"
	case KindUnderwaterUser:
		return "underwater_user"
	default:
		return "unknown"
	}
}

// EventName is the log label for a position event kind.
func EventName(kind uint8) string {
	switch kind {
	case EventLiquidationCall:
		return "liquidation_call"
	case EventBorrow:
		return "borrow"
	case EventSupply:
		return "supply"
	case EventRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// EncodePayload serializes a message to its RLP payload.
func EncodePayload(msg any) ([]byte, error) {
	return rlp.EncodeToBytes(msg)
}

// DecodePayload deserializes a payload into the struct for its kind.
func DecodePayload(kind uint8, payload []byte) (any, error) {
	switch kind {
	case KindPriceUpdate:
		var m PriceUpdate
		if err := rlp.DecodeBytes(payload, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case KindPositionEvent:
		var m PositionEvent
		if err := rlp.DecodeBytes(payload, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case KindUnderwaterUser:
		var m UnderwaterUser
		if err := rlp.DecodeBytes(payload, &m); err != nil {
			return nil, err
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}
