package liquidator

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/types"
)

const aggregate3ABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

func aggregate3Method(t *testing.T) abi.Method {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(aggregate3ABIJSON))
	require.NoError(t, err)
	return parsed.Methods["aggregate3"]
}

// scriptedCaller unpacks aggregate3 batches and answers each inner call
// through handle, so the multicall wiring runs end to end in-process.
type scriptedCaller struct {
	t      *testing.T
	method abi.Method
	handle func(call chain.Call) (bool, []byte)
}

func newScriptedCaller(t *testing.T, handle func(call chain.Call) (bool, []byte)) *scriptedCaller {
	return &scriptedCaller{t: t, method: aggregate3Method(t), handle: handle}
}

func (c *scriptedCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	require.Equal(c.t, chain.Multicall3Address, *msg.To)
	args, err := c.method.Inputs.Unpack(msg.Data[4:])
	require.NoError(c.t, err)
	calls := *abi.ConvertType(args[0], new([]chain.Call)).(*[]chain.Call)

	results := make([]chain.Result, len(calls))
	for i, call := range calls {
		ok, ret := c.handle(call)
		results[i] = chain.Result{Success: ok, ReturnData: ret}
	}
	out, err := c.method.Outputs.Pack(results)
	require.NoError(c.t, err)
	return out, nil
}

func wordAddress(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func wordUint(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

// poolDirectory answers factory getPool by tier and pool liquidity() by
// address. A tier missing from pools resolves to the zero address.
func poolDirectory(pools map[uint32]common.Address, liquidity map[common.Address]uint64) func(call chain.Call) (bool, []byte) {
	return func(call chain.Call) (bool, []byte) {
		if call.Target == aave.UniswapV3FactoryAddress {
			tier := new(big.Int).SetBytes(call.CallData[len(call.CallData)-32:]).Uint64()
			return true, wordAddress(pools[uint32(tier)])
		}
		return true, wordUint(liquidity[call.Target])
	}
}

func TestResolveSwapFeesPicksDeepestTier(t *testing.T) {
	shallow := common.HexToAddress("0x0000000000000000000000000000000000000501")
	deep := common.HexToAddress("0x0000000000000000000000000000000000000502")
	caller := newScriptedCaller(t, poolDirectory(
		map[uint32]common.Address{500: shallow, 3_000: deep},
		map[common.Address]uint64{shallow: 10, deep: 500_000},
	))

	plan := &types.LiquidationPlan{CollateralAsset: testDAI, DebtAsset: testWETH}
	require.NoError(t, ResolveSwapFees(context.Background(), caller, plan))

	assert.Equal(t, uint32(3_000), plan.CollateralToWethFee)
	// The debt leg already lands in WETH, so it needs no swap.
	assert.Equal(t, uint32(0), plan.WethToDebtFee)
}

func TestResolveSwapFeesProbesBothLegs(t *testing.T) {
	pool := common.HexToAddress("0x0000000000000000000000000000000000000503")
	caller := newScriptedCaller(t, poolDirectory(
		map[uint32]common.Address{10_000: pool},
		map[common.Address]uint64{pool: 42},
	))

	plan := &types.LiquidationPlan{CollateralAsset: testDAI, DebtAsset: testUSDC}
	require.NoError(t, ResolveSwapFees(context.Background(), caller, plan))

	assert.Equal(t, uint32(10_000), plan.CollateralToWethFee)
	assert.Equal(t, uint32(10_000), plan.WethToDebtFee)
}

func TestResolveSwapFeesNoPoolOnAnyTier(t *testing.T) {
	caller := newScriptedCaller(t, poolDirectory(nil, nil))

	plan := &types.LiquidationPlan{CollateralAsset: testDAI, DebtAsset: testWETH}
	err := ResolveSwapFees(context.Background(), caller, plan)
	assert.ErrorIs(t, err, ErrNoSwapRoute)
}

func TestMulticallBalanceReader(t *testing.T) {
	balances := map[common.Address]uint64{
		aave.MorphoAddress: 7_000_000,
		testUser:           123,
	}
	caller := newScriptedCaller(t, func(call chain.Call) (bool, []byte) {
		require.Equal(t, testUSDC, call.Target)
		holder := common.BytesToAddress(call.CallData[len(call.CallData)-32:])
		return true, wordUint(balances[holder])
	})

	reader := NewBalanceReader(caller)
	got, err := reader.BalancesOf(context.Background(), testUSDC, []common.Address{aave.MorphoAddress, testUser})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint256.NewInt(7_000_000), got[0])
	assert.Equal(t, uint256.NewInt(123), got[1])
}
