package postgres

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

const offerColumns = `id, order_id, order_hash, lender, fill_bps, nonce, signature, status, created_at, updated_at`

func scanOffer(row pgx.Row) (offerModel, error) {
	var m offerModel
	err := row.Scan(
		&m.Id, &m.OrderId, &m.OrderHash, &m.Lender, &m.FillBps, &m.Nonce,
		&m.Signature, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (r *Repository) CreateOffer(ctx context.Context, offer entity.OrderOffer) (int64, error) {
	signature, err := json.Marshal(offer.Signature)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal offer signature")
	}

	var id int64
	err = r.queryable().QueryRow(ctx, `
		INSERT INTO stela_order_offers (order_id, order_hash, lender, fill_bps, nonce, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		offer.OrderId, offer.OrderHash, offer.Lender, int64(offer.FillBps),
		starkutils.U256ToHex(offer.Nonce), signature, string(entity.OfferStatusPending),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Wrap(errs.Conflict, "order already has a pending offer")
		}
		return 0, errors.Wrap(err, "error during exec")
	}
	return id, nil
}

func (r *Repository) GetPendingOfferByOrder(ctx context.Context, orderId int64) (*entity.OrderOffer, error) {
	row := r.queryable().QueryRow(ctx,
		`SELECT `+offerColumns+` FROM stela_order_offers WHERE order_id = $1 AND status = 'pending'`,
		orderId,
	)
	m, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "error during query")
	}
	offer, err := mapOfferModelToType(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse offer model")
	}
	return &offer, nil
}

func (r *Repository) ListOffersByOrder(ctx context.Context, orderId int64) ([]entity.OrderOffer, error) {
	rows, err := r.queryable().Query(ctx,
		`SELECT `+offerColumns+` FROM stela_order_offers WHERE order_id = $1 ORDER BY created_at ASC, id ASC`,
		orderId,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.OrderOffer, 0)
	for rows.Next() {
		m, err := scanOffer(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		offer, err := mapOfferModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse offer model")
		}
		out = append(out, offer)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) UpdateOfferStatus(ctx context.Context, id int64, to entity.OfferStatus) error {
	_, err := r.queryable().Exec(ctx,
		`UPDATE stela_order_offers SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(to),
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}
