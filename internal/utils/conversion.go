/*
This file contains common utility functions for trace correlation and for
rendering fixed-point base currency amounts in logs without ever routing
money math through floating point.
*/

package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// TraceIDFromTxHash derives the correlation token for a transaction-rooted
// trace: the first 8 hex characters of the hash, no 0x prefix.
func TraceIDFromTxHash(hash common.Hash) string {
	return hash.Hex()[2:10]
}

// NewTraceID mints a correlation token for traces with no originating
// transaction, such as position events applied against canonical prices.
func NewTraceID() string {
	return uuid.NewString()[:8]
}

// FormatBaseAmount renders an 8-decimal base currency amount as a dollar
// string for logs, e.g. 1000000000 -> "$10.00000000". Display only; the
// value itself never leaves integer math.
func FormatBaseAmount(amount *uint256.Int) string {
	if amount == nil {
		return "$?"
	}
	unit := uint256.NewInt(100_000_000)
	whole := new(uint256.Int).Div(amount, unit)
	frac := new(uint256.Int).Mod(amount, unit)
	return fmt.Sprintf("$%s.%08d", whole.Dec(), frac.Uint64())
}

// FormatHealthFactor renders a 1e18-scaled health factor as a decimal string,
// e.g. 987000000000000000 -> "0.987000000000000000".
func FormatHealthFactor(hf *uint256.Int) string {
	if hf == nil {
		return "?"
	}
	wad := uint256.NewInt(1_000_000_000_000_000_000)
	whole := new(uint256.Int).Div(hf, wad)
	frac := new(uint256.Int).Mod(hf, wad)
	return fmt.Sprintf("%s.%018d", whole.Dec(), frac.Uint64())
}
