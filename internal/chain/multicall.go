package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 is deployed at the same address on every major chain.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const multicall3ABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var multicall3ABI = mustParseABI(multicall3ABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Call is one target invocation inside an aggregate3 batch.
type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Result is the per-call outcome of an aggregate3 batch.
type Result struct {
	Success    bool
	ReturnData []byte
}

// ContractCaller is the read-only surface multicall needs. *ethclient.Client
// satisfies it; tests substitute a canned responder.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Aggregate3 executes a batch of calls in one eth_call. Failures of individual
// calls are surfaced per-result when AllowFailure is set; otherwise the whole
// batch reverts.
func Aggregate3(ctx context.Context, caller ContractCaller, calls []Call, blockNumber *big.Int) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	input, err := multicall3ABI.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("packing aggregate3: %w", err)
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{
		To:   &Multicall3Address,
		Data: input,
	}, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("aggregate3 call: %w", err)
	}
	unpacked, err := multicall3ABI.Unpack("aggregate3", output)
	if err != nil {
		return nil, fmt.Errorf("unpacking aggregate3: %w", err)
	}
	results := *abi.ConvertType(unpacked[0], new([]Result)).(*[]Result)
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}
