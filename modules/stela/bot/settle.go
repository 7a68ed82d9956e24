package bot

import (
	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/modules/stela/calldata"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

func boolFelt(b bool) *felt.Felt {
	if b {
		return new(felt.Felt).SetUint64(1)
	}
	return new(felt.Felt)
}

func signatureFelts(signature entity.Signature) ([]*felt.Felt, error) {
	felts, err := signature.Felts()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	out := make([]*felt.Felt, 0, 1+len(felts))
	out = append(out, new(felt.Felt).SetUint64(uint64(len(felts))))
	return append(out, felts...), nil
}

// buildSettleCall serializes one settle invocation: the borrower's
// order terms with the three asset arrays, the borrower signature, the
// lender's offer terms and the lender signature, in that order.
func buildSettleCall(contract *felt.Felt, order entity.Order, offer entity.OrderOffer) (rpc.InvokeFunctionCall, error) {
	creator, err := utils.HexToFelt(order.Creator)
	if err != nil {
		return rpc.InvokeFunctionCall{}, errors.Wrap(err, "invalid order creator")
	}
	lender, err := utils.HexToFelt(offer.Lender)
	if err != nil {
		return rpc.InvokeFunctionCall{}, errors.Wrap(err, "invalid offer lender")
	}
	orderNonceLow, orderNonceHigh := starkutils.U256ToFelts(order.Nonce)
	offerNonceLow, offerNonceHigh := starkutils.U256ToFelts(offer.Nonce)

	callData := []*felt.Felt{
		creator,
		boolFelt(order.IsBorrow),
		new(felt.Felt).SetUint64(order.Duration),
		new(felt.Felt).SetUint64(uint64(order.Deadline.Unix())),
		orderNonceLow, orderNonceHigh,
		boolFelt(order.MultiLender),
	}
	for _, assets := range [][]entity.Asset{order.DebtAssets, order.InterestAssets, order.CollateralAssets} {
		encoded, err := calldata.EncodeAssets(assets)
		if err != nil {
			return rpc.InvokeFunctionCall{}, errors.Wrap(err, "failed to encode order assets")
		}
		callData = append(callData, encoded...)
	}

	orderSig, err := signatureFelts(order.Signature)
	if err != nil {
		return rpc.InvokeFunctionCall{}, errors.Wrap(err, "invalid order signature")
	}
	callData = append(callData, orderSig...)

	callData = append(callData,
		lender,
		new(felt.Felt).SetUint64(offer.FillBps),
		offerNonceLow, offerNonceHigh,
	)
	offerSig, err := signatureFelts(offer.Signature)
	if err != nil {
		return rpc.InvokeFunctionCall{}, errors.Wrap(err, "invalid offer signature")
	}
	callData = append(callData, offerSig...)

	return rpc.InvokeFunctionCall{
		ContractAddress: contract,
		FunctionName:    "settle",
		CallData:        callData,
	}, nil
}
