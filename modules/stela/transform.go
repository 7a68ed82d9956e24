package stela

import (
	"context"
	"time"

	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/calldata"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/modules/stela/starknet"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

// Transformer turns raw emitted events into normalized inscription
// events, enriching them with best-effort contract reads.
type Transformer struct {
	client starknet.Client
}

func NewTransformer(client starknet.Client) *Transformer {
	return &Transformer{client: client}
}

// Transform dispatches on keys[0]. Unknown selectors return (nil, nil)
// and are dropped by the caller; structurally broken events of a known
// kind return an error.
func (t *Transformer) Transform(ctx context.Context, raw rpc.EmittedEvent, timestamp time.Time) (*entity.InscriptionEvent, error) {
	if len(raw.Keys) == 0 {
		return nil, errors.Wrap(errs.InvalidArgument, "event has no keys")
	}
	selector := raw.Keys[0]

	switch {
	case selector.Equal(SelectorInscriptionCreated):
		return t.transformCreated(ctx, raw, timestamp)
	case selector.Equal(SelectorInscriptionSigned):
		return t.transformSigned(ctx, raw, timestamp)
	case selector.Equal(SelectorInscriptionCancelled):
		return t.transformActor(raw, timestamp, entity.EventKindCancelled)
	case selector.Equal(SelectorInscriptionRepaid):
		return t.transformActor(raw, timestamp, entity.EventKindRepaid)
	case selector.Equal(SelectorInscriptionLiquidated):
		return t.transformActor(raw, timestamp, entity.EventKindLiquidated)
	case selector.Equal(SelectorSharesRedeemed):
		return t.transformRedeemed(raw, timestamp)
	case selector.Equal(SelectorTransferSingle):
		return t.transformTransferSingle(raw, timestamp)
	default:
		logger.DebugContext(ctx, "dropping event with unknown selector",
			slogx.String("selector", selector.String()),
			slogx.Uint64("block", raw.BlockNumber),
		)
		return nil, nil
	}
}

// header builds the common event fields and the inscription id from
// keys[1] and keys[2].
func header(raw rpc.EmittedEvent, timestamp time.Time, kind entity.EventKind) (*entity.InscriptionEvent, error) {
	if len(raw.Keys) < 3 {
		return nil, errors.Wrapf(errs.InvalidArgument, "%s event has %d keys, want at least 3", kind, len(raw.Keys))
	}
	id, err := starkutils.U256FromFelts(raw.Keys[1], raw.Keys[2])
	if err != nil {
		return nil, errors.Wrapf(err, "%s event inscription id", kind)
	}
	return &entity.InscriptionEvent{
		Kind:          kind,
		InscriptionId: starkutils.U256ToHex(id),
		BlockNumber:   raw.BlockNumber,
		TxHash:        raw.TransactionHash.String(),
		Timestamp:     timestamp,
	}, nil
}

func (t *Transformer) transformCreated(ctx context.Context, raw rpc.EmittedEvent, timestamp time.Time) (*entity.InscriptionEvent, error) {
	event, err := header(raw, timestamp, entity.EventKindCreated)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(raw.Keys) < 4 {
		return nil, errors.Wrap(errs.InvalidArgument, "created event missing creator key")
	}
	event.Creator = starkutils.NormalizeAddress(raw.Keys[3])
	event.Status = entity.InscriptionStatusOpen

	// Term enrichment is best-effort; a failed read leaves the fields
	// unset rather than dropping the event.
	readCtx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()
	view, err := t.client.GetInscription(readCtx, raw.Keys[1], raw.Keys[2])
	if err != nil {
		logger.WarnContext(ctx, "failed to enrich created event from get_inscription",
			slogx.Error(err),
			slogx.String("inscription_id", event.InscriptionId),
		)
	} else {
		event.MultiLender = &view.MultiLender
		event.Duration = &view.Duration
		event.Deadline = &view.Deadline
		event.DebtAssetCount = &view.DebtCount
		event.InterestAssetCount = &view.InterestCount
		event.CollateralAssetCount = &view.CollateralCount
	}

	t.attachCreateAssets(ctx, raw, event)
	return event, nil
}

// attachCreateAssets pulls the full asset breakdown out of the
// transaction calldata. Any failure degrades to empty lists.
func (t *Transformer) attachCreateAssets(ctx context.Context, raw rpc.EmittedEvent, event *entity.InscriptionEvent) {
	event.DebtAssets = []entity.Asset{}
	event.InterestAssets = []entity.Asset{}
	event.CollateralAssets = []entity.Asset{}

	readCtx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()
	txCalldata, err := t.client.TransactionCalldata(readCtx, raw.TransactionHash)
	if err != nil {
		logger.WarnContext(ctx, "failed to fetch transaction calldata for created event",
			slogx.Error(err),
			slogx.String("tx_hash", event.TxHash),
		)
		return
	}

	args := calldata.ExtractCall(txCalldata, SelectorCreateInscription)
	if args == nil {
		logger.WarnContext(ctx, "created event transaction has no create_inscription call",
			slogx.String("tx_hash", event.TxHash),
		)
		return
	}
	call := calldata.DecodeCreateCall(args)
	if call == nil {
		logger.WarnContext(ctx, "failed to decode create_inscription calldata",
			slogx.String("tx_hash", event.TxHash),
		)
		return
	}
	event.DebtAssets = call.DebtAssets
	event.InterestAssets = call.InterestAssets
	event.CollateralAssets = call.CollateralAssets
}

func (t *Transformer) transformSigned(ctx context.Context, raw rpc.EmittedEvent, timestamp time.Time) (*entity.InscriptionEvent, error) {
	event, err := header(raw, timestamp, entity.EventKindSigned)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(raw.Keys) < 5 {
		return nil, errors.Wrap(errs.InvalidArgument, "signed event missing borrower/lender keys")
	}
	if len(raw.Data) < 4 {
		return nil, errors.Wrapf(errs.InvalidArgument, "signed event has %d data felts, want 4", len(raw.Data))
	}
	event.Borrower = starkutils.NormalizeAddress(raw.Keys[3])
	event.Lender = starkutils.NormalizeAddress(raw.Keys[4])

	pct, err := starkutils.U256FromFelts(raw.Data[0], raw.Data[1])
	if err != nil {
		return nil, errors.Wrap(err, "signed event issued debt percentage")
	}
	shares, err := starkutils.U256FromFelts(raw.Data[2], raw.Data[3])
	if err != nil {
		return nil, errors.Wrap(err, "signed event shares")
	}
	event.IssuedDebtPercentage = pct
	event.Shares = shares
	if pct.CmpUint64(MaxBPS) >= 0 {
		event.Status = entity.InscriptionStatusFilled
	} else {
		event.Status = entity.InscriptionStatusPartial
	}

	readCtx, cancel := context.WithTimeout(ctx, enrichmentTimeout)
	defer cancel()
	locker, err := t.client.GetLocker(readCtx, raw.Keys[1], raw.Keys[2])
	if err != nil {
		logger.WarnContext(ctx, "failed to enrich signed event from get_locker",
			slogx.Error(err),
			slogx.String("inscription_id", event.InscriptionId),
		)
	} else if !starkutils.IsZeroAddress(locker) {
		addr := starkutils.NormalizeAddress(locker)
		event.Locker = &addr
	}
	return event, nil
}

func (t *Transformer) transformActor(raw rpc.EmittedEvent, timestamp time.Time, kind entity.EventKind) (*entity.InscriptionEvent, error) {
	event, err := header(raw, timestamp, kind)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(raw.Data) < 1 {
		return nil, errors.Wrapf(errs.InvalidArgument, "%s event missing actor", kind)
	}
	event.Actor = starkutils.NormalizeAddress(raw.Data[0])
	return event, nil
}

func (t *Transformer) transformRedeemed(raw rpc.EmittedEvent, timestamp time.Time) (*entity.InscriptionEvent, error) {
	event, err := header(raw, timestamp, entity.EventKindRedeemed)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(raw.Keys) < 4 {
		return nil, errors.Wrap(errs.InvalidArgument, "redeemed event missing redeemer key")
	}
	if len(raw.Data) < 2 {
		return nil, errors.Wrap(errs.InvalidArgument, "redeemed event missing shares")
	}
	event.Redeemer = starkutils.NormalizeAddress(raw.Keys[3])
	shares, err := starkutils.U256FromFelts(raw.Data[0], raw.Data[1])
	if err != nil {
		return nil, errors.Wrap(err, "redeemed event shares")
	}
	event.Shares = shares
	return event, nil
}

func (t *Transformer) transformTransferSingle(raw rpc.EmittedEvent, timestamp time.Time) (*entity.InscriptionEvent, error) {
	if len(raw.Keys) < 4 {
		return nil, errors.Wrapf(errs.InvalidArgument, "transfer_single event has %d keys, want 4", len(raw.Keys))
	}
	if len(raw.Data) < 4 {
		return nil, errors.Wrapf(errs.InvalidArgument, "transfer_single event has %d data felts, want 4", len(raw.Data))
	}
	id, err := starkutils.U256FromFelts(raw.Data[0], raw.Data[1])
	if err != nil {
		return nil, errors.Wrap(err, "transfer_single token id")
	}
	value, err := starkutils.U256FromFelts(raw.Data[2], raw.Data[3])
	if err != nil {
		return nil, errors.Wrap(err, "transfer_single value")
	}
	return &entity.InscriptionEvent{
		Kind:          entity.EventKindTransferSingle,
		InscriptionId: starkutils.U256ToHex(id),
		BlockNumber:   raw.BlockNumber,
		TxHash:        raw.TransactionHash.String(),
		Timestamp:     timestamp,
		From:          starkutils.NormalizeAddress(raw.Keys[2]),
		To:            starkutils.NormalizeAddress(raw.Keys[3]),
		Value:         value,
	}, nil
}
