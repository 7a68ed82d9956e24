package stela

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

// Processor applies normalized event batches to storage. It backs the
// webhook receiver endpoint.
type Processor struct {
	dg datagateway.StelaDataGateway
}

func NewProcessor(dg datagateway.StelaDataGateway) *Processor {
	return &Processor{dg: dg}
}

// ApplyBlock applies one batch. Batches at or below the stored cursor
// are skipped wholesale; otherwise each event is applied in its own
// transaction so one bad event cannot poison the rest. The cursor only
// advances when every event applied cleanly, which makes redelivery of
// a partially failed batch safe: already applied events deduplicate on
// insert.
func (p *Processor) ApplyBlock(ctx context.Context, payload entity.WebhookPayload) (entity.ApplyResult, error) {
	cursor, err := p.dg.GetCursor(ctx)
	if err != nil {
		return entity.ApplyResult{}, errors.Wrap(err, "failed to read cursor")
	}
	if payload.BlockNumber <= cursor && cursor > 0 {
		logger.DebugContext(ctx, "skipping already processed block",
			slogx.Uint64("block_number", payload.BlockNumber),
			slogx.Uint64("cursor", cursor),
		)
		return entity.ApplyResult{Skipped: true}, nil
	}

	result := entity.ApplyResult{}
	for i := range payload.Events {
		if err := p.applyEvent(ctx, payload.Events[i]); err != nil {
			logger.ErrorContext(ctx, "failed to apply event",
				slogx.Error(err),
				slogx.String("kind", string(payload.Events[i].Kind)),
				slogx.String("inscription_id", payload.Events[i].InscriptionId),
				slogx.String("tx_hash", payload.Events[i].TxHash),
			)
			result.Failed++
			continue
		}
		result.Processed++
	}

	if result.Failed > 0 {
		return result, nil
	}
	if err := p.dg.SetCursor(ctx, payload.BlockNumber); err != nil {
		return result, errors.Wrap(err, "failed to advance cursor")
	}
	return result, nil
}

func (p *Processor) applyEvent(ctx context.Context, event entity.InscriptionEvent) error {
	dg, err := p.dg.BeginStelaTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err := dg.Rollback(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to rollback transaction", slogx.Error(err))
		}
	}()

	inserted, err := dg.CreateInscriptionEvent(ctx, event)
	if err != nil {
		return errors.Wrap(err, "failed to insert event")
	}
	// A duplicate means this event's side effects already ran.
	if inserted {
		if err := p.applySideEffects(ctx, dg, event); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.Wrap(dg.Commit(ctx), "failed to commit transaction")
}

func (p *Processor) applySideEffects(ctx context.Context, dg datagateway.StelaDataGateway, event entity.InscriptionEvent) error {
	id, err := starkutils.HexToU256(event.InscriptionId)
	if err != nil {
		return errors.Wrap(err, "invalid inscription id")
	}

	switch event.Kind {
	case entity.EventKindCreated:
		inscription := entity.Inscription{
			Id:           id,
			Creator:      event.Creator,
			Status:       entity.InscriptionStatusOpen,
			CreatedBlock: event.BlockNumber,
		}
		if event.MultiLender != nil {
			inscription.MultiLender = *event.MultiLender
		}
		if event.Duration != nil {
			inscription.Duration = *event.Duration
		}
		if event.Deadline != nil {
			inscription.Deadline = time.Unix(int64(*event.Deadline), 0).UTC()
		}
		if event.DebtAssetCount != nil {
			inscription.DebtAssetCount = *event.DebtAssetCount
		}
		if event.InterestAssetCount != nil {
			inscription.InterestAssetCount = *event.InterestAssetCount
		}
		if event.CollateralAssetCount != nil {
			inscription.CollateralAssetCount = *event.CollateralAssetCount
		}
		if err := dg.CreateInscription(ctx, inscription); err != nil {
			return errors.Wrap(err, "failed to create inscription")
		}
		for role, assets := range map[entity.AssetRole][]entity.Asset{
			entity.AssetRoleDebt:       event.DebtAssets,
			entity.AssetRoleInterest:   event.InterestAssets,
			entity.AssetRoleCollateral: event.CollateralAssets,
		} {
			if len(assets) == 0 {
				continue
			}
			if err := dg.CreateAssets(ctx, id, role, assets); err != nil {
				return errors.Wrapf(err, "failed to create %s assets", role)
			}
		}
		return nil

	case entity.EventKindSigned:
		return errors.Wrap(dg.MarkInscriptionSigned(ctx, datagateway.MarkInscriptionSignedParams{
			Id:                   id,
			Borrower:             event.Borrower,
			Lender:               event.Lender,
			IssuedDebtPercentage: event.IssuedDebtPercentage,
			Shares:               event.Shares,
			Status:               event.Status,
			Locker:               event.Locker,
			SignedAt:             event.Timestamp,
		}), "failed to mark inscription signed")

	case entity.EventKindCancelled:
		return errors.Wrap(dg.SetInscriptionStatus(ctx, id, entity.InscriptionStatusCancelled), "failed to set status")

	case entity.EventKindRepaid:
		return errors.Wrap(dg.SetInscriptionStatus(ctx, id, entity.InscriptionStatusRepaid), "failed to set status")

	case entity.EventKindLiquidated:
		return errors.Wrap(dg.SetInscriptionStatus(ctx, id, entity.InscriptionStatusLiquidated), "failed to set status")

	case entity.EventKindRedeemed:
		if event.Shares == nil {
			return errors.New("redeemed event has no shares")
		}
		return errors.Wrap(dg.DecrementShareBalance(ctx, id, event.Redeemer, event.Shares), "failed to decrement share balance")

	case entity.EventKindTransferSingle:
		if event.Value == nil {
			return errors.New("transfer_single event has no value")
		}
		if !isZeroHexAddress(event.From) {
			if err := dg.DecrementShareBalance(ctx, id, event.From, event.Value); err != nil {
				return errors.Wrap(err, "failed to decrement sender balance")
			}
		}
		if !isZeroHexAddress(event.To) {
			if err := dg.IncrementShareBalance(ctx, id, event.To, event.Value); err != nil {
				return errors.Wrap(err, "failed to increment recipient balance")
			}
		}
		return nil

	default:
		return errors.Errorf("unsupported event kind %q", event.Kind)
	}
}

func isZeroHexAddress(address string) bool {
	normalized, err := starkutils.NormalizeAddressHex(address)
	if err != nil {
		return false
	}
	zero, _ := starkutils.NormalizeAddressHex("0x0")
	return normalized == zero
}
