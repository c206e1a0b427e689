package attendance

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/attendance"
)

const attendanceColumns = `id, run_id, member_id, present, marked_by, manual_addition, marked_at`

// row mirrors the attendance table for sqlx scanning.
type row struct {
	ID             string         `db:"id"`
	RunID          string         `db:"run_id"`
	MemberID       string         `db:"member_id"`
	Present        int            `db:"present"`
	MarkedBy       string         `db:"marked_by"`
	ManualAddition int            `db:"manual_addition"`
	MarkedAt       sql.NullString `db:"marked_at"`
}

func (r row) toDomain() domain.Record {
	return domain.Record{
		ID:             r.ID,
		RunID:          r.RunID,
		MemberID:       r.MemberID,
		Present:        r.Present != 0,
		MarkedBy:       r.MarkedBy,
		ManualAddition: r.ManualAddition != 0,
		MarkedAt:       storage.ParseTime(r.MarkedAt),
	}
}

// SQLStore implements the attendance Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new attendance store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// Upsert writes every record in one transaction.
// PRE: every record has been validated and has an ID
// POST: All records persisted or none is; an existing row keeps its ID
// INVARIANT: at most one row per (run_id, member_id)
func (s *SQLStore) Upsert(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		stmt := tx.Rebind(`INSERT INTO attendance (` + attendanceColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, member_id) DO UPDATE SET
				present = excluded.present,
				marked_by = excluded.marked_by,
				manual_addition = excluded.manual_addition,
				marked_at = excluded.marked_at`)
		for _, r := range recs {
			_, err := tx.ExecContext(ctx, stmt,
				r.ID, r.RunID, r.MemberID, storage.Bool(r.Present), r.MarkedBy,
				storage.Bool(r.ManualAddition), storage.FormatTime(r.MarkedAt))
			if err != nil {
				return fmt.Errorf("upsert attendance for member %s: %w", r.MemberID, err)
			}
		}
		return nil
	})
}

// ListByRun returns the records for runID ordered by marked_at.
func (s *SQLStore) ListByRun(ctx context.Context, runID string) ([]domain.Record, error) {
	var rows []row
	err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(`SELECT `+attendanceColumns+` FROM attendance
		WHERE run_id = ? ORDER BY marked_at, member_id`), runID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	out := make([]domain.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// CountPresentByMember returns how many runs memberID has been marked present on.
func (s *SQLStore) CountPresentByMember(ctx context.Context, memberID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n, s.db.Rebind(`SELECT COUNT(*) FROM attendance
		WHERE member_id = ? AND present = 1`), memberID)
	if err != nil {
		return 0, fmt.Errorf("count attendance: %w", err)
	}
	return n, nil
}
