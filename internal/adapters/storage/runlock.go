package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/domain/run"
)

// LockRun takes the write lock on a run row for the rest of tx by touching
// updated_at. Every operation that checks and then changes a run's bookings
// or LIRF slots calls this first, so those operations on the same run are
// serialized on both SQLite and Postgres.
// PRE: tx is open
// POST: Row is locked until tx ends, or run.ErrNotFound
func LockRun(ctx context.Context, tx *sqlx.Tx, runID string, now time.Time) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE run SET updated_at = ? WHERE id = ?`), FormatTime(now), runID)
	if err != nil {
		return fmt.Errorf("lock run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lock run: %w", err)
	}
	if n == 0 {
		return run.ErrNotFound
	}
	return nil
}
