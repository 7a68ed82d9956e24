package verifier

import (
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/curve"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/modules/stela/calldata"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

// SNIP-12 revision 1 typed data hashing. The domain is fixed per
// deployment; only the chain id varies between networks.
const (
	domainName     = "Stela"
	domainVersion  = "1"
	domainRevision = "1"

	messagePrefix = "StarkNet Message"

	domainTypeString = `"StarknetDomain"("name":"shortstring","version":"shortstring","chainId":"shortstring","revision":"shortstring")`
	orderTypeString  = `"Order"("creator":"ContractAddress","is_borrow":"bool","debt_hash":"felt","interest_hash":"felt","collateral_hash":"felt","duration":"u128","deadline":"u128","nonce":"felt","multi_lender":"bool")`
	offerTypeString  = `"Offer"("order_hash":"felt","lender":"ContractAddress","fill_bps":"u128","nonce":"felt")`
)

var (
	domainTypeHash = utils.GetSelectorFromNameFelt(domainTypeString)
	orderTypeHash  = utils.GetSelectorFromNameFelt(orderTypeString)
	offerTypeHash  = utils.GetSelectorFromNameFelt(offerTypeString)
)

// shortString encodes an ASCII string as a felt, big-endian.
func shortString(s string) *felt.Felt {
	return utils.BigIntToFelt(new(big.Int).SetBytes([]byte(s)))
}

func boolFelt(b bool) *felt.Felt {
	if b {
		return new(felt.Felt).SetUint64(1)
	}
	return new(felt.Felt)
}

func domainHash(chainId string) *felt.Felt {
	return curve.PoseidonArray(
		domainTypeHash,
		shortString(domainName),
		shortString(domainVersion),
		shortString(chainId),
		shortString(domainRevision),
	)
}

// messageHash assembles the final SNIP-12 digest the account signs.
func messageHash(chainId string, signer, structHash *felt.Felt) *felt.Felt {
	return curve.PoseidonArray(
		shortString(messagePrefix),
		domainHash(chainId),
		signer,
		structHash,
	)
}

// OrderHash computes the typed-data digest of an order. The three asset
// lists enter through their Poseidon digests so the hash stays a fixed
// width regardless of list length.
func OrderHash(chainId string, order entity.Order) (*felt.Felt, error) {
	creator, err := utils.HexToFelt(order.Creator)
	if err != nil {
		return nil, errors.Wrap(err, "invalid order creator")
	}
	debtHash, err := calldata.HashAssets(order.DebtAssets)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash debt assets")
	}
	interestHash, err := calldata.HashAssets(order.InterestAssets)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash interest assets")
	}
	collateralHash, err := calldata.HashAssets(order.CollateralAssets)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash collateral assets")
	}
	nonceLow, nonceHigh := starkutils.U256ToFelts(order.Nonce)
	if !nonceHigh.IsZero() {
		return nil, errors.New("order nonce exceeds felt range")
	}

	structHash := curve.PoseidonArray(
		orderTypeHash,
		creator,
		boolFelt(order.IsBorrow),
		debtHash,
		interestHash,
		collateralHash,
		new(felt.Felt).SetUint64(order.Duration),
		new(felt.Felt).SetUint64(uint64(order.Deadline.Unix())),
		nonceLow,
		boolFelt(order.MultiLender),
	)
	return messageHash(chainId, creator, structHash), nil
}

// OfferHash computes the typed-data digest of an offer against its
// order's hash.
func OfferHash(chainId string, orderHash *felt.Felt, offer entity.OrderOffer) (*felt.Felt, error) {
	lender, err := utils.HexToFelt(offer.Lender)
	if err != nil {
		return nil, errors.Wrap(err, "invalid offer lender")
	}
	nonceLow, nonceHigh := starkutils.U256ToFelts(offer.Nonce)
	if !nonceHigh.IsZero() {
		return nil, errors.New("offer nonce exceeds felt range")
	}

	structHash := curve.PoseidonArray(
		offerTypeHash,
		orderHash,
		lender,
		new(felt.Felt).SetUint64(offer.FillBps),
		nonceLow,
	)
	return messageHash(chainId, lender, structHash), nil
}
