package starkutils

import (
	"encoding/hex"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/common/errs"
)

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// U256FromFelts reassembles a Cairo u256 from its 128-bit low/high halves.
// Each half must fit in 128 bits.
func U256FromFelts(low, high *felt.Felt) (*uint256.Int, error) {
	lowInt := utils.FeltToBigInt(low)
	highInt := utils.FeltToBigInt(high)
	if lowInt.Cmp(maxUint128) > 0 || highInt.Cmp(maxUint128) > 0 {
		return nil, errors.Wrap(errs.OverflowUint128, "u256 component out of range")
	}

	combined := new(big.Int).Lsh(highInt, 128)
	combined.Or(combined, lowInt)

	value, overflow := uint256.FromBig(combined)
	if overflow {
		return nil, errors.Wrap(errs.OverflowUint256, "u256 out of range")
	}
	return value, nil
}

// U256ToFelts splits a u256 into 128-bit low/high half felts,
// the serialization Cairo expects for u256 arguments. A nil value is
// treated as zero; optional u256 fields arrive unset from clients.
func U256ToFelts(value *uint256.Int) (low, high *felt.Felt) {
	if value == nil {
		return new(felt.Felt), new(felt.Felt)
	}
	b := value.ToBig()
	lowInt := new(big.Int).And(b, maxUint128)
	highInt := new(big.Int).Rsh(b, 128)
	return utils.BigIntToFelt(lowInt), utils.BigIntToFelt(highInt)
}

// U256ToHex formats a u256 as the canonical lowercase 0x-prefixed
// 64-hex-digit string used as inscription ids throughout the system.
// A nil value formats as zero.
func U256ToHex(value *uint256.Int) string {
	if value == nil {
		value = new(uint256.Int)
	}
	b := value.Bytes32()
	return "0x" + hex.EncodeToString(b[:])
}

// HexToU256 parses a 0x-prefixed hex string into a u256.
func HexToU256(s string) (*uint256.Int, error) {
	value, err := uint256.FromHex(s)
	if err != nil {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid u256 hex %q: %v", s, err)
	}
	return value, nil
}

// FeltToUint64 converts a felt to uint64, rejecting values that do not fit.
func FeltToUint64(f *felt.Felt) (uint64, error) {
	b := utils.FeltToBigInt(f)
	if !b.IsUint64() {
		return 0, errors.Wrapf(errs.InvalidArgument, "felt %s exceeds uint64", f.String())
	}
	return b.Uint64(), nil
}

// DecToU256 parses a decimal string into a u256.
func DecToU256(s string) (*uint256.Int, error) {
	value, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, errors.Wrapf(errs.InvalidArgument, "invalid u256 decimal %q: %v", s, err)
	}
	return value, nil
}
