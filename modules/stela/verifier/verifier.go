// Package verifier validates order and offer submissions: account
// signature checks through is_valid_signature and an advisory on-chain
// nonce pre-check.
package verifier

import (
	"context"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

// validMagic is the SRC-6 is_valid_signature success sentinel, the
// short string "VALID". Older accounts return 1 instead.
var validMagic = new(felt.Felt).SetUint64(0x56414c4944)

type Verifier struct {
	client  starknet.Client
	chainId string
}

func New(client starknet.Client, chainId string) *Verifier {
	return &Verifier{client: client, chainId: chainId}
}

func (v *Verifier) ChainId() string {
	return v.chainId
}

// VerifySignature asks the signer account whether it recognizes the
// signature over messageHash. Any RPC failure counts as invalid; a
// signature that cannot be proven valid must not be accepted.
func (v *Verifier) VerifySignature(ctx context.Context, signer, messageHash *felt.Felt, signature []*felt.Felt) bool {
	result, err := v.client.IsValidSignature(ctx, signer, messageHash, signature)
	if err != nil {
		logger.WarnContext(ctx, "is_valid_signature call failed, rejecting signature",
			slogx.Error(err),
			slogx.String("signer", starkutils.NormalizeAddress(signer)),
		)
		return false
	}
	if len(result) == 0 {
		return false
	}
	return result[0].Equal(validMagic) || result[0].Equal(new(felt.Felt).SetUint64(1))
}

// NonceCheck is the outcome of a nonce pre-check. OnChain is nil when
// the read failed.
type NonceCheck struct {
	Valid     bool
	OnChain   *felt.Felt
	Submitted *felt.Felt
}

// VerifyNonce compares a submitted nonce against the contract's nonces
// mapping. The check is advisory: when the read fails the submission is
// allowed through, because the settlement bot re-checks both nonces
// right before settling.
func (v *Verifier) VerifyNonce(ctx context.Context, address, submitted *felt.Felt) NonceCheck {
	onChain, err := v.client.ContractNonce(ctx, address)
	if err != nil {
		logger.WarnContext(ctx, "nonce read failed, allowing submission through",
			slogx.Error(err),
			slogx.String("address", starkutils.NormalizeAddress(address)),
		)
		return NonceCheck{Valid: true, Submitted: submitted}
	}
	return NonceCheck{
		Valid:     onChain.Equal(submitted),
		OnChain:   onChain,
		Submitted: submitted,
	}
}
