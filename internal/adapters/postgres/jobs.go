package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"sitewarden/internal/domain"
)

// ClaimNext locks the oldest pending scan with SKIP LOCKED and marks it
// running, so concurrent workers never claim the same record.
func (db *DB) ClaimNext(ctx context.Context) (rec domain.ScanRecord, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return rec, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM scan_records
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}

	rec, err = scanRecord(tx.QueryRow(ctx, `
		UPDATE scan_records SET status = 'running'
		WHERE id = $1
		RETURNING `+scanColumns, id))
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}
