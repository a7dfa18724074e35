/*

This file contains the mainnet deployment addresses the bot is pinned to.
Multi-chain operation is out of scope, so these are compile-time constants
rather than configuration.

*/

package aave

import "github.com/ethereum/go-ethereum/common"

var (
	// PoolAddress is the Aave v3 mainnet Pool proxy.
	PoolAddress = common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")

	// OracleAddress is the AaveOracle aggregating Chainlink feeds.
	OracleAddress = common.HexToAddress("0x54586bE62E3c3580375aE3723C145253060Ca0C2")

	// AddressesProviderAddress is the PoolAddressesProvider handed to the UI data provider.
	AddressesProviderAddress = common.HexToAddress("0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e")

	// UiPoolDataProviderAddress serves scaled per-user reserve data in one call.
	UiPoolDataProviderAddress = common.HexToAddress("0x3F78BBD206e4D3c504Eb854232EdA7e47E9Fd8FC")

	// ProtocolDataProviderAddress serves reserve configuration.
	ProtocolDataProviderAddress = common.HexToAddress("0x41393e5e337606dc3821075Af65AeE84D7688CBD")

	// MorphoAddress is the Morpho Blue singleton, the preferred zero-fee flash loan source.
	MorphoAddress = common.HexToAddress("0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb")

	// WETHAddress is the pivot asset for the executor's swap path.
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	// UniswapV3FactoryAddress resolves fee-tier pools for the unwind path.
	UniswapV3FactoryAddress = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
)

// MainnetChainID is the only chain the bot signs for.
const MainnetChainID = 1
