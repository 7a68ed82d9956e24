package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// Meta keys, single-row overwrites in stela_meta.
const (
	metaKeyCursor  = "webhook_cursor"
	metaKeyBotLock = "bot_lock"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *Repository) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.queryable().QueryRow(ctx, `SELECT value FROM stela_meta WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "error during query")
	}
	return value, true, nil
}

func (r *Repository) setMeta(ctx context.Context, key, value string) error {
	_, err := r.queryable().Exec(ctx, `
		INSERT INTO stela_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2`,
		key, value,
	)
	if err != nil {
		return errors.Wrap(err, "error during exec")
	}
	return nil
}

func (r *Repository) GetCursor(ctx context.Context) (uint64, error) {
	value, ok, err := r.getMeta(ctx, metaKeyCursor)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if !ok {
		return 0, nil
	}
	cursor, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid stored cursor")
	}
	return cursor, nil
}

func (r *Repository) SetCursor(ctx context.Context, blockNumber uint64) error {
	return errors.WithStack(r.setMeta(ctx, metaKeyCursor, strconv.FormatUint(blockNumber, 10)))
}

// botLockTimeFormat is fixed-width UTC so that string comparison in SQL
// matches chronological order.
const botLockTimeFormat = "2006-01-02T15:04:05.000000000Z"

// TryAcquireBotLock claims the bot lock in one conditional upsert: the
// update only applies when the stored value is empty or older than the
// TTL cutoff, so concurrent callers race on the row and exactly one
// sees an affected row.
func (r *Repository) TryAcquireBotLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	acquiredAt := now.UTC().Format(botLockTimeFormat)
	staleCutoff := now.UTC().Add(-ttl).Format(botLockTimeFormat)
	tag, err := r.queryable().Exec(ctx, `
		INSERT INTO stela_meta (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2
		WHERE stela_meta.value = '' OR stela_meta.value < $3`,
		metaKeyBotLock, acquiredAt, staleCutoff,
	)
	if err != nil {
		return false, errors.Wrap(err, "error during exec")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) ClearBotLock(ctx context.Context) error {
	return errors.WithStack(r.setMeta(ctx, metaKeyBotLock, ""))
}
