package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/stela-network/stela-indexer/common/errs"
	"github.com/stela-network/stela-indexer/modules/stela/datagateway"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

var _ datagateway.StelaDataGateway = (*Repository)(nil)

const inscriptionColumns = `id, creator, borrower, lender, locker, multi_lender, duration, deadline, status, issued_debt_percentage, shares, debt_asset_count, interest_asset_count, collateral_asset_count, created_block, signed_at, updated_at`

func scanInscription(row pgx.Row) (inscriptionModel, error) {
	var m inscriptionModel
	err := row.Scan(
		&m.Id, &m.Creator, &m.Borrower, &m.Lender, &m.Locker, &m.MultiLender,
		&m.Duration, &m.Deadline, &m.Status, &m.IssuedDebtPercentage, &m.Shares,
		&m.DebtAssetCount, &m.InterestAssetCount, &m.CollateralAssetCount,
		&m.CreatedBlock, &m.SignedAt, &m.UpdatedAt,
	)
	return m, err
}

func (r *Repository) CreateInscription(ctx context.Context, inscription entity.Inscription) error {
	var deadline *time.Time
	if !inscription.Deadline.IsZero() {
		deadline = &inscription.Deadline
	}
	_, err := r.queryable().Exec(ctx, `
		INSERT INTO stela_inscriptions (id, creator, borrower, lender, locker, multi_lender, duration, deadline, status, issued_debt_percentage, shares, debt_asset_count, interest_asset_count, collateral_asset_count, created_block, signed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (id) DO NOTHING`,
		starkutils.U256ToHex(inscription.Id), inscription.Creator, inscription.Borrower,
		inscription.Lender, inscription.Locker, inscription.MultiLender,
		int64(inscription.Duration), deadline, string(inscription.Status),
		u256ToDB(inscription.IssuedDebtPercentage), u256ToDB(inscription.Shares),
		int64(inscription.DebtAssetCount), int64(inscription.InterestAssetCount),
		int64(inscription.CollateralAssetCount),
		int64(inscription.CreatedBlock), inscription.SignedAt,
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}

func (r *Repository) GetInscription(ctx context.Context, id *uint256.Int) (*entity.Inscription, error) {
	row := r.queryable().QueryRow(ctx,
		`SELECT `+inscriptionColumns+` FROM stela_inscriptions WHERE id = $1`,
		starkutils.U256ToHex(id),
	)
	m, err := scanInscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "error during query")
	}
	inscription, err := mapInscriptionModelToType(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse inscription model")
	}

	for _, role := range []entity.AssetRole{entity.AssetRoleDebt, entity.AssetRoleInterest, entity.AssetRoleCollateral} {
		assets, err := r.getAssets(ctx, m.Id, role)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		switch role {
		case entity.AssetRoleDebt:
			inscription.DebtAssets = assets
		case entity.AssetRoleInterest:
			inscription.InterestAssets = assets
		case entity.AssetRoleCollateral:
			inscription.CollateralAssets = assets
		}
	}
	return &inscription, nil
}

func (r *Repository) ListInscriptions(ctx context.Context, params datagateway.ListInscriptionsParams) ([]entity.Inscription, error) {
	query := `SELECT ` + inscriptionColumns + ` FROM stela_inscriptions WHERE true`
	args := make([]any, 0, 4)

	if params.Status != nil {
		// "expired" is not a stored status for open inscriptions; it is
		// computed from the deadline.
		switch *params.Status {
		case entity.InscriptionStatusExpired:
			query += ` AND (status = 'expired' OR (status = 'open' AND deadline IS NOT NULL AND deadline < now()))`
		case entity.InscriptionStatusOpen:
			query += ` AND status = 'open' AND (deadline IS NULL OR deadline >= now())`
		default:
			args = append(args, string(*params.Status))
			query += ` AND status = $` + itoa(len(args))
		}
	}
	if params.Address != nil {
		args = append(args, *params.Address)
		p := itoa(len(args))
		query += ` AND (creator = $` + p + ` OR borrower = $` + p + ` OR lender = $` + p + `)`
	}

	limit := params.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY created_block DESC, id DESC LIMIT $` + itoa(len(args))
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += ` OFFSET $` + itoa(len(args))
	}

	rows, err := r.queryable().Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.Inscription, 0)
	for rows.Next() {
		m, err := scanInscription(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		inscription, err := mapInscriptionModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse inscription model")
		}
		out = append(out, inscription)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) MarkInscriptionSigned(ctx context.Context, params datagateway.MarkInscriptionSignedParams) error {
	_, err := r.queryable().Exec(ctx, `
		UPDATE stela_inscriptions
		SET borrower = $2, lender = $3, issued_debt_percentage = $4, shares = $5,
			status = $6, locker = COALESCE($7, locker), signed_at = $8, updated_at = now()
		WHERE id = $1 AND status IN ('open', 'partial')`,
		starkutils.U256ToHex(params.Id), params.Borrower, params.Lender,
		u256ToDB(params.IssuedDebtPercentage), u256ToDB(params.Shares),
		string(params.Status), params.Locker, params.SignedAt,
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}

func (r *Repository) SetInscriptionStatus(ctx context.Context, id *uint256.Int, status entity.InscriptionStatus) error {
	_, err := r.queryable().Exec(ctx,
		`UPDATE stela_inscriptions SET status = $2, updated_at = now() WHERE id = $1`,
		starkutils.U256ToHex(id), string(status),
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}

func (r *Repository) ExpireOpenInscriptions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.queryable().Exec(ctx, `
		UPDATE stela_inscriptions SET status = 'expired', updated_at = now()
		WHERE status = 'open' AND deadline IS NOT NULL AND deadline < $1`,
		now,
	)
	if err != nil {
		return 0, errors.Wrap(err, "error during exec")
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) GetLiquidatableInscriptions(ctx context.Context, now time.Time, limit int32) ([]entity.Inscription, error) {
	rows, err := r.queryable().Query(ctx, `
		SELECT `+inscriptionColumns+` FROM stela_inscriptions
		WHERE status = 'filled' AND signed_at IS NOT NULL
			AND signed_at + make_interval(secs => duration) < $1
		ORDER BY signed_at + make_interval(secs => duration) ASC
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.Inscription, 0, limit)
	for rows.Next() {
		m, err := scanInscription(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		inscription, err := mapInscriptionModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse inscription model")
		}
		out = append(out, inscription)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) getAssets(ctx context.Context, inscriptionId string, role entity.AssetRole) ([]entity.Asset, error) {
	rows, err := r.queryable().Query(ctx, `
		SELECT address, asset_type, value, token_id FROM stela_inscription_assets
		WHERE inscription_id = $1 AND role = $2 ORDER BY idx ASC`,
		inscriptionId, string(role),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.Asset, 0)
	for rows.Next() {
		var m assetModel
		if err := rows.Scan(&m.Address, &m.AssetType, &m.Value, &m.TokenId); err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		asset, err := mapAssetModelToType(m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse asset model")
		}
		out = append(out, asset)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) CreateAssets(ctx context.Context, inscriptionId *uint256.Int, role entity.AssetRole, assets []entity.Asset) error {
	id := starkutils.U256ToHex(inscriptionId)
	for idx, asset := range assets {
		_, err := r.queryable().Exec(ctx, `
			INSERT INTO stela_inscription_assets (inscription_id, role, idx, address, asset_type, value, token_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (inscription_id, role, idx) DO NOTHING`,
			id, string(role), idx, asset.Address, asset.Type.String(),
			starkutils.U256ToHex(asset.Value), starkutils.U256ToHex(asset.TokenId),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to insert asset %d", idx)
		}
	}
	return nil
}
