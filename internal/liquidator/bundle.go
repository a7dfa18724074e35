/*

This file contains bundle construction: the signed executor call, optionally
preceded by the raw oracle transaction the opportunity depends on. The bribe
is paid to the block producer inside the executor contract, sized in bps of
realized profit, so the bundle itself carries at most two transactions.

*/

package liquidator

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/hernan-erasmo/overlord/internal/aave"
	"github.com/hernan-erasmo/overlord/internal/chain"
	"github.com/hernan-erasmo/overlord/internal/config"
	ovtypes "github.com/hernan-erasmo/overlord/internal/types"
)

// executorGasLimit covers flash loan, liquidationCall and a two-leg unwind.
const executorGasLimit = 1_500_000

// ErrMissingSignerKey means the executor owner key is not configured.
var ErrMissingSignerKey = errors.New("executor signer key not configured")

// foxdieParams mirrors the executor's LiquidationParams tuple field order.
type foxdieParams struct {
	DebtAmount          *big.Int
	User                common.Address
	DebtAsset           common.Address
	Collateral          common.Address
	CollateralToWethFee *big.Int
	WethToDebtFee       *big.Int
	BribePercentBps     uint16
	FlashLoanSource     uint8
	AavePremium         *big.Int
}

// Bundler signs executor calls and assembles relay bundles.
type Bundler struct {
	key     *ecdsa.PrivateKey
	sender  common.Address
	foxdie  common.Address
	chainID *big.Int
	node    *chain.Provider
	heads   *chain.HeadTracker
}

// NewBundler parses the configured owner key and wires the fee source.
func NewBundler(node *chain.Provider, heads *chain.HeadTracker) (*Bundler, error) {
	if config.FoxdieOwnerPK == "" {
		return nil, ErrMissingSignerKey
	}
	key, err := crypto.HexToECDSA(config.FoxdieOwnerPK)
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor owner key: %w", err)
	}
	if !common.IsHexAddress(config.FoxdieAddress) {
		return nil, fmt.Errorf("executor address %q is not a hex address", config.FoxdieAddress)
	}
	return &Bundler{
		key:     key,
		sender:  crypto.PubkeyToAddress(key.PublicKey),
		foxdie:  common.HexToAddress(config.FoxdieAddress),
		chainID: big.NewInt(aave.MainnetChainID),
		node:    node,
		heads:   heads,
	}, nil
}

// Sender is the executor owner EOA.
func (b *Bundler) Sender() common.Address {
	return b.sender
}

// BuildBundle signs the executor call and prepends the raw oracle tx when
// the opportunity is speculative on it landing.
func (b *Bundler) BuildBundle(ctx context.Context, plan *ovtypes.LiquidationPlan, rawPriceTx []byte) ([]hexutil.Bytes, error) {
	executorTx, err := b.signExecutorCall(ctx, plan)
	if err != nil {
		return nil, err
	}
	rawExecutor, err := executorTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize executor tx: %w", err)
	}

	bundle := make([]hexutil.Bytes, 0, 2)
	if len(rawPriceTx) > 0 {
		bundle = append(bundle, hexutil.Bytes(rawPriceTx))
	}
	bundle = append(bundle, hexutil.Bytes(rawExecutor))
	return bundle, nil
}

func (b *Bundler) signExecutorCall(ctx context.Context, plan *ovtypes.LiquidationPlan) (*types.Transaction, error) {
	calldata, err := aave.FoxdieABI.Pack("triggerLiquidation", foxdieParams{
		DebtAmount:          plan.DebtToCover.ToBig(),
		User:                plan.User,
		DebtAsset:           plan.DebtAsset,
		Collateral:          plan.CollateralAsset,
		CollateralToWethFee: new(big.Int).SetUint64(uint64(plan.CollateralToWethFee)),
		WethToDebtFee:       new(big.Int).SetUint64(uint64(plan.WethToDebtFee)),
		BribePercentBps:     uint16(config.BribePercentBps),
		FlashLoanSource:     uint8(plan.FlashSource),
		AavePremium:         plan.FlashPremium.ToBig(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack triggerLiquidation: %w", err)
	}

	nonce, err := b.node.Eth.PendingNonceAt(ctx, b.sender)
	if err != nil {
		return nil, fmt.Errorf("failed to read sender nonce: %w", err)
	}

	// Double the observed base fee so the bundle survives the inclusion
	// window; the producer is paid through the in-contract bribe, the tip
	// only has to be nonzero.
	baseFee := new(big.Int).SetUint64(b.heads.BaseFee())
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	tip := big.NewInt(1_000_000_000)
	feeCap.Add(feeCap, tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       executorGasLimit,
		To:        &b.foxdie,
		Data:      calldata,
	})
	return types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
}
