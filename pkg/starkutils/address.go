package starkutils

import (
	"encoding/hex"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/common/errs"
)

// NormalizeAddress formats a felt address as a canonical lowercase
// 0x-prefixed 64-hex-digit string. Canonicalizing on ingress avoids
// padded/unpadded comparisons further down.
func NormalizeAddress(address *felt.Felt) string {
	b := address.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

// NormalizeAddressHex canonicalizes an address already in hex string form.
func NormalizeAddressHex(address string) (string, error) {
	f, err := utils.HexToFelt(strings.TrimSpace(address))
	if err != nil {
		return "", errors.Wrapf(errs.InvalidArgument, "invalid address %q: %v", address, err)
	}
	return NormalizeAddress(f), nil
}

// IsZeroAddress reports whether the felt is the zero address.
func IsZeroAddress(address *felt.Felt) bool {
	return address.IsZero()
}
