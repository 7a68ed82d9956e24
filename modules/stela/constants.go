package stela

import (
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
)

const Version = "v0.2.0"

// MaxBPS is one hundred percent in basis points.
const MaxBPS = 10_000

const (
	// maxBlockRange caps how many blocks one ingestion round may cover.
	maxBlockRange = 500

	// pollingInterval is the delay between ingestion rounds when the
	// indexer has caught up with the chain head.
	pollingInterval = 15 * time.Second

	// enrichmentTimeout bounds each best-effort contract read during
	// event transformation.
	enrichmentTimeout = 10 * time.Second
)

// Event selectors emitted by the Stela contract. Dispatch in the
// transformer is by keys[0] against this set.
var (
	SelectorInscriptionCreated    = utils.GetSelectorFromNameFelt("InscriptionCreated")
	SelectorInscriptionSigned     = utils.GetSelectorFromNameFelt("InscriptionSigned")
	SelectorInscriptionCancelled  = utils.GetSelectorFromNameFelt("InscriptionCancelled")
	SelectorInscriptionRepaid     = utils.GetSelectorFromNameFelt("InscriptionRepaid")
	SelectorInscriptionLiquidated = utils.GetSelectorFromNameFelt("InscriptionLiquidated")
	SelectorSharesRedeemed        = utils.GetSelectorFromNameFelt("SharesRedeemed")
	SelectorTransferSingle        = utils.GetSelectorFromNameFelt("TransferSingle")
)

// Entrypoint selectors invoked on the Stela contract and user accounts.
var (
	SelectorCreateInscription = utils.GetSelectorFromNameFelt("create_inscription")
	SelectorGetInscription    = utils.GetSelectorFromNameFelt("get_inscription")
	SelectorGetLocker         = utils.GetSelectorFromNameFelt("get_locker")
	SelectorNonces            = utils.GetSelectorFromNameFelt("nonces")
	SelectorIsValidSignature  = utils.GetSelectorFromNameFelt("is_valid_signature")
)

// AllEventSelectors is the key filter used when polling chain events.
func AllEventSelectors() []*felt.Felt {
	return []*felt.Felt{
		SelectorInscriptionCreated,
		SelectorInscriptionSigned,
		SelectorInscriptionCancelled,
		SelectorInscriptionRepaid,
		SelectorInscriptionLiquidated,
		SelectorSharesRedeemed,
		SelectorTransferSingle,
	}
}
