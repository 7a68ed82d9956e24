// Package calldata decodes and encodes the felt-serialized structures
// the Stela contract exchanges through account multicalls: the outer
// SNIP-6 call list, the count-prefixed asset arrays and the
// create_inscription argument layout.
package calldata

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/curve"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

const (
	// assetRecordSize is the felt width of one serialized asset:
	// address, type enum, value u256, token id u256.
	assetRecordSize = 6

	// Call-count bounds for a well-formed account multicall. Anything
	// outside this range is treated as a foreign calldata layout.
	minMulticallCalls = 1
	maxMulticallCalls = 20
)

// ExtractCall walks a SNIP-6 multicall [n, (to, selector, args_len,
// args...)*] and returns the argument slice of the first call whose
// entrypoint selector matches. Returns nil when no call matches or the
// structure is malformed; transaction calldata is untrusted input and a
// bad layout is not an error worth surfacing.
func ExtractCall(calldata []*felt.Felt, selector *felt.Felt) []*felt.Felt {
	if len(calldata) == 0 || selector == nil {
		return nil
	}
	callCount, err := starkutils.FeltToUint64(calldata[0])
	if err != nil || callCount < minMulticallCalls || callCount > maxMulticallCalls {
		return nil
	}

	cursor := 1
	for i := uint64(0); i < callCount; i++ {
		// to, selector, args_len
		if cursor+3 > len(calldata) {
			return nil
		}
		callSelector := calldata[cursor+1]
		argsLen, err := starkutils.FeltToUint64(calldata[cursor+2])
		if err != nil {
			return nil
		}
		argsStart := cursor + 3
		argsEnd := argsStart + int(argsLen)
		if argsLen > uint64(len(calldata)) || argsEnd > len(calldata) {
			return nil
		}
		if callSelector.Equal(selector) {
			return calldata[argsStart:argsEnd]
		}
		cursor = argsEnd
	}
	return nil
}

// DecodeAssets reads one count-prefixed asset array starting at offset
// and returns the decoded assets together with the offset of the first
// felt past the array.
func DecodeAssets(args []*felt.Felt, offset int) ([]entity.Asset, int, error) {
	if offset < 0 || offset >= len(args) {
		return nil, 0, errors.Wrap(errs.InvalidArgument, "asset array offset out of range")
	}
	count, err := starkutils.FeltToUint64(args[offset])
	if err != nil {
		return nil, 0, errors.Wrap(err, "invalid asset count")
	}
	cursor := offset + 1
	// Bounding count by the remaining felts keeps count*assetRecordSize
	// from wrapping on adversarial counts.
	if count > uint64(len(args)-cursor)/assetRecordSize {
		return nil, 0, errors.Wrapf(errs.InvalidArgument, "truncated asset array: want %d records from offset %d", count, cursor)
	}

	assets := make([]entity.Asset, 0, count)
	for i := uint64(0); i < count; i++ {
		record := args[cursor : cursor+assetRecordSize]

		typeEnum, err := starkutils.FeltToUint64(record[1])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "asset %d type enum", i)
		}
		value, err := starkutils.U256FromFelts(record[2], record[3])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "asset %d value", i)
		}
		tokenId, err := starkutils.U256FromFelts(record[4], record[5])
		if err != nil {
			return nil, 0, errors.Wrapf(err, "asset %d token id", i)
		}

		assets = append(assets, entity.Asset{
			Address: starkutils.NormalizeAddress(record[0]),
			Type:    entity.AssetType(typeEnum),
			Value:   value,
			TokenId: tokenId,
		})
		cursor += assetRecordSize
	}
	return assets, cursor, nil
}

// EncodeAssets serializes assets as the count-prefixed felt array
// DecodeAssets reads, in the same record order.
func EncodeAssets(assets []entity.Asset) ([]*felt.Felt, error) {
	out := make([]*felt.Felt, 0, 1+len(assets)*assetRecordSize)
	out = append(out, new(felt.Felt).SetUint64(uint64(len(assets))))
	for i, asset := range assets {
		address, err := new(felt.Felt).SetString(asset.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "asset %d address", i)
		}
		valueLow, valueHigh := starkutils.U256ToFelts(asset.Value)
		tokenIdLow, tokenIdHigh := starkutils.U256ToFelts(asset.TokenId)
		out = append(out,
			address,
			new(felt.Felt).SetUint64(uint64(asset.Type)),
			valueLow, valueHigh,
			tokenIdLow, tokenIdHigh,
		)
	}
	return out, nil
}

// HashAssets computes the Poseidon hash over the flattened
// count-prefixed asset serialization. The felt layout matches
// EncodeAssets exactly so the digest agrees with the contract's.
func HashAssets(assets []entity.Asset) (*felt.Felt, error) {
	encoded, err := EncodeAssets(assets)
	if err != nil {
		return nil, err
	}
	return curve.PoseidonArray(encoded...), nil
}

// CreateCall is the decoded argument set of create_inscription.
type CreateCall struct {
	IsBorrow         bool
	DebtAssets       []entity.Asset
	InterestAssets   []entity.Asset
	CollateralAssets []entity.Asset
	Duration         uint64
	Deadline         uint64
	MultiLender      bool
}

// DecodeCreateCall decodes the inner arguments of a create_inscription
// call: is_borrow flag, three asset arrays, duration, deadline and the
// multi_lender flag. Returns nil on any decode failure so callers can
// degrade to an event without asset detail.
func DecodeCreateCall(args []*felt.Felt) *CreateCall {
	if len(args) < 1 {
		return nil
	}
	call := &CreateCall{IsBorrow: !args[0].IsZero()}

	var err error
	offset := 1
	if call.DebtAssets, offset, err = DecodeAssets(args, offset); err != nil {
		return nil
	}
	if call.InterestAssets, offset, err = DecodeAssets(args, offset); err != nil {
		return nil
	}
	if call.CollateralAssets, offset, err = DecodeAssets(args, offset); err != nil {
		return nil
	}

	if offset+3 > len(args) {
		return nil
	}
	if call.Duration, err = starkutils.FeltToUint64(args[offset]); err != nil {
		return nil
	}
	if call.Deadline, err = starkutils.FeltToUint64(args[offset+1]); err != nil {
		return nil
	}
	call.MultiLender = !args[offset+2].IsZero()
	return call
}
