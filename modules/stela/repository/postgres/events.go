package postgres

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/holiman/uint256"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/starkutils"
)

func (r *Repository) CreateInscriptionEvent(ctx context.Context, event entity.InscriptionEvent) (bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal event payload")
	}
	tag, err := r.queryable().Exec(ctx, `
		INSERT INTO stela_inscription_events (inscription_id, event_type, tx_hash, block_number, block_timestamp, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (inscription_id, event_type, tx_hash) DO NOTHING`,
		event.InscriptionId, string(event.Kind), event.TxHash,
		int64(event.BlockNumber), event.Timestamp, payload,
	)
	if err != nil {
		return false, errors.Wrap(err, "error during exec")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ListInscriptionEvents(ctx context.Context, inscriptionId *uint256.Int) ([]entity.InscriptionEvent, error) {
	rows, err := r.queryable().Query(ctx, `
		SELECT payload FROM stela_inscription_events
		WHERE inscription_id = $1
		ORDER BY block_number ASC, id ASC`,
		starkutils.U256ToHex(inscriptionId),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error during query")
	}
	defer rows.Close()

	out := make([]entity.InscriptionEvent, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(err, "error during scan")
		}
		var event entity.InscriptionEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrap(err, "failed to parse event payload")
		}
		out = append(out, event)
	}
	return out, errors.Wrap(rows.Err(), "error during iteration")
}

func (r *Repository) IncrementShareBalance(ctx context.Context, inscriptionId *uint256.Int, holder string, amount *uint256.Int) error {
	return r.adjustShareBalance(ctx, inscriptionId, holder, amount, false)
}

func (r *Repository) DecrementShareBalance(ctx context.Context, inscriptionId *uint256.Int, holder string, amount *uint256.Int) error {
	return r.adjustShareBalance(ctx, inscriptionId, holder, amount, true)
}

// adjustShareBalance is a read-modify-write upsert. Balances are hex
// strings so the arithmetic happens here; callers run inside the event
// transaction, which serializes concurrent adjustments per row.
func (r *Repository) adjustShareBalance(ctx context.Context, inscriptionId *uint256.Int, holder string, amount *uint256.Int, negate bool) error {
	id := starkutils.U256ToHex(inscriptionId)

	var stored *string
	err := r.queryable().QueryRow(ctx, `
		SELECT balance FROM stela_share_balances
		WHERE inscription_id = $1 AND holder = $2 FOR UPDATE`,
		id, holder,
	).Scan(&stored)
	if err != nil && !isNoRows(err) {
		return errors.Wrap(err, "error during query")
	}

	balance := uint256.NewInt(0)
	if stored != nil {
		balance, err = starkutils.HexToU256(*stored)
		if err != nil {
			return errors.Wrap(err, "invalid stored share balance")
		}
	}

	if negate {
		// Clamp at zero; the chain is the source of truth and a transfer
		// observed out of order must not make the balance wrap.
		if balance.Lt(amount) {
			balance = uint256.NewInt(0)
		} else {
			balance = new(uint256.Int).Sub(balance, amount)
		}
	} else {
		balance = new(uint256.Int).Add(balance, amount)
	}

	_, err = r.queryable().Exec(ctx, `
		INSERT INTO stela_share_balances (inscription_id, holder, balance, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (inscription_id, holder) DO UPDATE SET balance = $3, updated_at = now()`,
		id, holder, starkutils.U256ToHex(balance),
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}
