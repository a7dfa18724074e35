package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/types"
)

var aaveLogger = logger.GetForComponent("aave_fetcher")

// ReserveIndices carries the ray-scaled accrual indices a health factor
// recompute needs to turn scaled balances into current balances.
type ReserveIndices struct {
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
}

// FetchReserveList reads the Pool's registered reserves.
func FetchReserveList(ctx context.Context, caller chain.ContractCaller) ([]common.Address, error) {
	input, err := PoolABI.Pack("getReservesList")
	if err != nil {
		return nil, err
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &PoolAddress, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("getReservesList: %w", err)
	}
	unpacked, err := PoolABI.Unpack("getReservesList", output)
	if err != nil {
		return nil, err
	}
	return unpacked[0].([]common.Address), nil
}

// FetchReserveConfigs loads the full configuration of every reserve in three
// multicall batches (config data, protocol fee, token addresses) plus symbols.
func FetchReserveConfigs(ctx context.Context, caller chain.ContractCaller, assets []common.Address) (map[common.Address]types.ReserveConfig, error) {
	calls := make([]chain.Call, 0, len(assets)*4)
	for _, asset := range assets {
		configInput, err := ProtocolDataProviderABI.Pack("getReserveConfigurationData", asset)
		if err != nil {
			return nil, err
		}
		feeInput, err := ProtocolDataProviderABI.Pack("getLiquidationProtocolFee", asset)
		if err != nil {
			return nil, err
		}
		tokensInput, err := ProtocolDataProviderABI.Pack("getReserveTokensAddresses", asset)
		if err != nil {
			return nil, err
		}
		symbolInput, err := ERC20ABI.Pack("symbol")
		if err != nil {
			return nil, err
		}
		calls = append(calls,
			chain.Call{Target: ProtocolDataProviderAddress, CallData: configInput},
			chain.Call{Target: ProtocolDataProviderAddress, CallData: feeInput},
			chain.Call{Target: ProtocolDataProviderAddress, CallData: tokensInput},
			// Some tokens (MKR) report bytes32 symbols. Allow the failure and
			// fall back to the address hex.
			chain.Call{Target: asset, AllowFailure: true, CallData: symbolInput},
		)
	}

	results, err := chain.Aggregate3(ctx, caller, calls, nil)
	if err != nil {
		return nil, err
	}

	configs := make(map[common.Address]types.ReserveConfig, len(assets))
	for i, asset := range assets {
		base := i * 4
		cfg := types.ReserveConfig{Asset: asset}

		configOut, err := ProtocolDataProviderABI.Unpack("getReserveConfigurationData", results[base].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("reserve config for %s: %w", asset.Hex(), err)
		}
		cfg.Decimals = uint8(configOut[0].(*big.Int).Uint64())
		cfg.LiquidationThresholdBps = configOut[2].(*big.Int).Uint64()
		cfg.LiquidationBonusBps = configOut[3].(*big.Int).Uint64()
		cfg.UsageAsCollateralEnabled = configOut[5].(bool)
		cfg.BorrowingEnabled = configOut[6].(bool)
		cfg.IsActive = configOut[8].(bool)
		cfg.IsFrozen = configOut[9].(bool)

		feeOut, err := ProtocolDataProviderABI.Unpack("getLiquidationProtocolFee", results[base+1].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("protocol fee for %s: %w", asset.Hex(), err)
		}
		cfg.LiquidationProtocolFeeBps = feeOut[0].(*big.Int).Uint64()

		tokensOut, err := ProtocolDataProviderABI.Unpack("getReserveTokensAddresses", results[base+2].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("token addresses for %s: %w", asset.Hex(), err)
		}
		cfg.ATokenAddress = tokensOut[0].(common.Address)
		cfg.VariableDebtTokenAddress = tokensOut[2].(common.Address)

		cfg.Symbol = asset.Hex()
		if results[base+3].Success {
			if symbolOut, err := ERC20ABI.Unpack("symbol", results[base+3].ReturnData); err == nil {
				cfg.Symbol = symbolOut[0].(string)
			}
		}

		configs[asset] = cfg
	}
	aaveLogger.Info().Int("reserves", len(configs)).Msg("Loaded reserve configurations")
	return configs, nil
}

// FetchReserveIndices reads the current accrual indices for the given assets.
func FetchReserveIndices(ctx context.Context, caller chain.ContractCaller, assets []common.Address) (map[common.Address]ReserveIndices, error) {
	calls := make([]chain.Call, 0, len(assets))
	for _, asset := range assets {
		input, err := ProtocolDataProviderABI.Pack("getReserveData", asset)
		if err != nil {
			return nil, err
		}
		calls = append(calls, chain.Call{Target: ProtocolDataProviderAddress, CallData: input})
	}
	results, err := chain.Aggregate3(ctx, caller, calls, nil)
	if err != nil {
		return nil, err
	}
	indices := make(map[common.Address]ReserveIndices, len(assets))
	for i, asset := range assets {
		out, err := ProtocolDataProviderABI.Unpack("getReserveData", results[i].ReturnData)
		if err != nil {
			return nil, fmt.Errorf("reserve data for %s: %w", asset.Hex(), err)
		}
		indices[asset] = ReserveIndices{
			LiquidityIndex:      uint256.MustFromBig(out[9].(*big.Int)),
			VariableBorrowIndex: uint256.MustFromBig(out[10].(*big.Int)),
		}
	}
	return indices, nil
}

// FetchPrices reads oracle prices for the given assets in one call.
func FetchPrices(ctx context.Context, caller chain.ContractCaller, assets []common.Address) (map[common.Address]*uint256.Int, error) {
	input, err := OracleABI.Pack("getAssetsPrices", assets)
	if err != nil {
		return nil, err
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &OracleAddress, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("getAssetsPrices: %w", err)
	}
	unpacked, err := OracleABI.Unpack("getAssetsPrices", output)
	if err != nil {
		return nil, err
	}
	raw := unpacked[0].([]*big.Int)
	if len(raw) != len(assets) {
		return nil, fmt.Errorf("oracle returned %d prices for %d assets", len(raw), len(assets))
	}
	prices := make(map[common.Address]*uint256.Int, len(assets))
	for i, asset := range assets {
		prices[asset] = uint256.MustFromBig(raw[i])
	}
	return prices, nil
}

// FetchAggregatorSource resolves the oracle's price source for one asset.
func FetchAggregatorSource(ctx context.Context, caller chain.ContractCaller, asset common.Address) (common.Address, error) {
	input, err := OracleABI.Pack("getSourceOfAsset", asset)
	if err != nil {
		return common.Address{}, err
	}
	output, err := caller.CallContract(ctx, ethereum.CallMsg{To: &OracleAddress, Data: input}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("getSourceOfAsset: %w", err)
	}
	unpacked, err := OracleABI.Unpack("getSourceOfAsset", output)
	if err != nil {
		return common.Address{}, err
	}
	return unpacked[0].(common.Address), nil
}
