package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

const orderColumns = `id, order_hash, creator, is_borrow, assets, duration, deadline, multi_lender, nonce, signature, status, inscription_id, created_at, updated_at`

func scanOrder(row pgx.Row) (orderModel, error) {
	var m orderModel
	err := row.Scan(
		&m.Id, &m.OrderHash, &m.Creator, &m.IsBorrow, &m.Assets, &m.Duration,
		&m.Deadline, &m.MultiLender, &m.Nonce, &m.Signature, &m.Status,
		&m.InscriptionId, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateOrder(ctx context.Context, order entity.Order) (int64, error) {
	assets, err := json.Marshal(orderAssetsDoc{
		Debt:       order.DebtAssets,
		Interest:   order.InterestAssets,
		Collateral: order.CollateralAssets,
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal order assets")
	}
	signature, err := json.Marshal(order.Signature)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal order signature")
	}

	var id int64
	err = r.queryable().QueryRow(ctx, `
		INSERT INTO stela_orders (order_hash, creator, is_borrow, assets, duration, deadline, multi_lender, nonce, signature, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		order.OrderHash, order.Creator, order.IsBorrow, assets,
		int64(order.Duration), order.Deadline, order.MultiLender,
		starkutils.U256ToHex(order.Nonce), signature, string(entity.OrderStatusPending),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Wrap(errs.Conflict, "order hash already exists")
		}
		return 0, errors.Wrap(err, "error during exec")
	}
	return id, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*entity.Order, error) {
	row := r.queryable().QueryRow(ctx, `SELECT `+orderColumns+` FROM stela_orders WHERE id = $1`, id)
	return r.mapOrderRow(row)
}

func (r *Repository) GetOrderByHash(ctx context.Context, orderHash string) (*entity.Order, error) {
	row := r.queryable().QueryRow(ctx, `SELECT `+orderColumns+` FROM stela_orders WHERE order_hash = $1`, orderHash)
	return r.mapOrderRow(row)
}

func (r *Repository) mapOrderRow(row pgx.Row) (*entity.Order, error) {
	m, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "error during query")
	}
	order, err := mapOrderModelToType(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse order model")
	}
	return &order, nil
}

func (r *Repository) ListOrders(ctx context.Context, params datagateway.ListOrdersParams) ([]entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM stela_orders WHERE true`
	args := make([]any, 0, 4)

	if params.Status != nil {
		args = append(args, string(*params.Status))
		query += ` AND status = $` + itoa(len(args))
	}
	if params.Creator != nil {
		args = append(args, *params.Creator)
		query += ` AND creator = $` + itoa(len(args))
	}

	limit := params.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args))
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := r.queryable().Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.Order, 0)
	for rows.Next() {
		m, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		order, err := mapOrderModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse order model")
		}
		out = append(out, order)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus) (bool, error) {
	if !from.ValidTransition(to) {
		return false, errors.Wrapf(errs.InvalidArgument, "order status cannot move from %s to %s", from, to)
	}
	tag, err := r.queryable().Exec(ctx, `
		UPDATE stela_orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return false, errors.Wrap(err, "error during exec")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ExpirePendingOrders(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.queryable().Exec(ctx, `
		UPDATE stela_orders SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND deadline < $1`,
		now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "error during exec")
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ListMatchedOrders(ctx context.Context, limit int32) ([]entity.Order, error) {
	rows, err := r.queryable().Query(ctx, `
		SELECT `+orderColumns+` FROM stela_orders o
		WHERE o.status = 'matched'
			AND EXISTS (SELECT 1 FROM stela_order_offers f WHERE f.order_id = o.id AND f.status = 'pending')
		ORDER BY o.updated_at ASC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.Order, 0, limit)
	for rows.Next() {
		m, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		order, err := mapOrderModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse order model")
		}
		out = append(out, order)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}
