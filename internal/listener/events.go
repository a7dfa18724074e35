/*

This file contains the Pool log decoding. Each of the four position-mutating
events names its affected user differently: Borrow and Supply credit
onBehalfOf, Repay names the borrower directly, LiquidationCall names the
liquidated user. The decoder normalizes all four into one PositionEvent shape.

*/

package listener

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/bus"
	"github.com/hernan-erasmo/overlord/internal/utils"
)

var (
	// ErrUnknownTopic marks a log that is none of the four tracked events.
	ErrUnknownTopic = errors.New("log topic is not a tracked pool event")
	// ErrMalformedLog marks a tracked event with the wrong topic count or data.
	ErrMalformedLog = errors.New("malformed pool event log")
)

// DecodePoolLog turns one Pool log into a PositionEvent.
func DecodePoolLog(log *gethtypes.Log) (*bus.PositionEvent, error) {
	if len(log.Topics) == 0 {
		return nil, ErrUnknownTopic
	}

	event := &bus.PositionEvent{
		TraceID: utils.TraceIDFromTxHash(log.TxHash),
		Block:   log.BlockNumber,
		TxHash:  log.TxHash,
	}

	switch log.Topics[0] {
	case aave.LiquidationCallTopic:
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("%w: LiquidationCall with %d topics", ErrMalformedLog, len(log.Topics))
		}
		event.Kind = bus.EventLiquidationCall
		// The debt side shrinks; index the event on the debt asset. The warm
		// path re-reads the user's full position either way.
		event.Reserve = common.BytesToAddress(log.Topics[2].Bytes())
		event.User = common.BytesToAddress(log.Topics[3].Bytes())
		data, err := unpackEventData("LiquidationCall", log.Data)
		if err != nil {
			return nil, err
		}
		event.Amount = uint256.MustFromBig(data[0].(*big.Int))

	case aave.BorrowTopic:
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("%w: Borrow with %d topics", ErrMalformedLog, len(log.Topics))
		}
		event.Kind = bus.EventBorrow
		event.Reserve = common.BytesToAddress(log.Topics[1].Bytes())
		event.User = common.BytesToAddress(log.Topics[2].Bytes())
		data, err := unpackEventData("Borrow", log.Data)
		if err != nil {
			return nil, err
		}
		event.Amount = uint256.MustFromBig(data[1].(*big.Int))

	case aave.SupplyTopic:
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("%w: Supply with %d topics", ErrMalformedLog, len(log.Topics))
		}
		event.Kind = bus.EventSupply
		event.Reserve = common.BytesToAddress(log.Topics[1].Bytes())
		event.User = common.BytesToAddress(log.Topics[2].Bytes())
		data, err := unpackEventData("Supply", log.Data)
		if err != nil {
			return nil, err
		}
		event.Amount = uint256.MustFromBig(data[1].(*big.Int))

	case aave.RepayTopic:
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("%w: Repay with %d topics", ErrMalformedLog, len(log.Topics))
		}
		event.Kind = bus.EventRepay
		event.Reserve = common.BytesToAddress(log.Topics[1].Bytes())
		event.User = common.BytesToAddress(log.Topics[2].Bytes())
		data, err := unpackEventData("Repay", log.Data)
		if err != nil {
			return nil, err
		}
		event.Amount = uint256.MustFromBig(data[1].(*big.Int))

	default:
		return nil, ErrUnknownTopic
	}

	return event, nil
}

func unpackEventData(name string, data []byte) ([]any, error) {
	out, err := aave.PoolABI.Events[name].Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %s", ErrMalformedLog, name, err)
	}
	return out, nil
}
