package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/booking"
	"runclub/internal/domain/run"
)

const bookingColumns = `id, run_id, member_id, booked_at, cancelled_at, cancellation_reason`

// row mirrors the booking table for sqlx scanning.
type row struct {
	ID                 string         `db:"id"`
	RunID              string         `db:"run_id"`
	MemberID           string         `db:"member_id"`
	BookedAt           sql.NullString `db:"booked_at"`
	CancelledAt        sql.NullString `db:"cancelled_at"`
	CancellationReason string         `db:"cancellation_reason"`
}

func (r row) toDomain() domain.Booking {
	return domain.Booking{
		ID:                 r.ID,
		RunID:              r.RunID,
		MemberID:           r.MemberID,
		BookedAt:           storage.ParseTime(r.BookedAt),
		CancelledAt:        storage.ParseTime(r.CancelledAt),
		CancellationReason: r.CancellationReason,
	}
}

// capacityRow is the slice of the run row the admission check reads.
type capacityRow struct {
	Title           string         `db:"title"`
	Status          string         `db:"status"`
	MaxParticipants int            `db:"max_participants"`
	Lirf1           sql.NullString `db:"assigned_lirf_1"`
	Lirf2           sql.NullString `db:"assigned_lirf_2"`
	Lirf3           sql.NullString `db:"assigned_lirf_3"`
}

// SQLStore implements the booking Store interface over SQLite or Postgres.
type SQLStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLStore creates a new booking store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Admit runs the admission check and inserts b under the run lock.
// PRE: b has an ID, RunID, MemberID and BookedAt
// POST: b is persisted as an active booking, or a *domain.Error explains why not
// INVARIANT: active bookings for the run never exceed max_participants
func (s *SQLStore) Admit(ctx context.Context, b domain.Booking) error {
	err := storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := storage.LockRun(ctx, tx, b.RunID, s.now()); err != nil {
			if errors.Is(err, run.ErrNotFound) {
				return domain.General("This run no longer exists.", err)
			}
			return err
		}

		var c capacityRow
		err := tx.GetContext(ctx, &c, tx.Rebind(`SELECT title, status, max_participants,
			assigned_lirf_1, assigned_lirf_2, assigned_lirf_3 FROM run WHERE id = ?`), b.RunID)
		if err != nil {
			return fmt.Errorf("read run capacity: %w", err)
		}
		if c.Status != run.StatusScheduled {
			return domain.General(fmt.Sprintf("%s is not open for booking.", c.Title), nil)
		}

		var mine int
		err = tx.GetContext(ctx, &mine, tx.Rebind(`SELECT COUNT(*) FROM booking
			WHERE run_id = ? AND member_id = ? AND cancelled_at IS NULL`), b.RunID, b.MemberID)
		if err != nil {
			return fmt.Errorf("check existing booking: %w", err)
		}
		if mine > 0 {
			return domain.ErrAlreadyBooked
		}

		for _, slot := range []sql.NullString{c.Lirf1, c.Lirf2, c.Lirf3} {
			if slot.Valid && slot.String == b.MemberID {
				return domain.ErrLirfConflict
			}
		}

		var active int
		err = tx.GetContext(ctx, &active, tx.Rebind(`SELECT COUNT(*) FROM booking
			WHERE run_id = ? AND cancelled_at IS NULL`), b.RunID)
		if err != nil {
			return fmt.Errorf("count active bookings: %w", err)
		}
		if active >= c.MaxParticipants {
			return domain.ErrRunFull
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO booking (`+bookingColumns+`)
			VALUES (?, ?, ?, ?, NULL, '')`),
			b.ID, b.RunID, b.MemberID, storage.FormatTime(b.BookedAt))
		if storage.IsUniqueViolation(err) {
			return domain.ErrAlreadyBooked
		}
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	return err
}

// GetByID retrieves a booking by its ID.
// PRE: id is non-empty
// POST: Returns the booking or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Booking, error) {
	return s.getOne(ctx, `SELECT `+bookingColumns+` FROM booking WHERE id = ?`, id)
}

// GetActive returns memberID's active booking on runID.
// POST: Returns the booking or domain.ErrNotFound
func (s *SQLStore) GetActive(ctx context.Context, runID, memberID string) (domain.Booking, error) {
	return s.getOne(ctx, `SELECT `+bookingColumns+` FROM booking
		WHERE run_id = ? AND member_id = ? AND cancelled_at IS NULL`, runID, memberID)
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...any) (domain.Booking, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return r.toDomain(), nil
}

// Cancel persists a cancellation made with domain.Booking.Cancel.
// PRE: b.CancelledAt is set
// POST: Row updated, or domain.ErrAlreadyCancelled if it was already cancelled
func (s *SQLStore) Cancel(ctx context.Context, b domain.Booking) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE booking SET cancelled_at = ?, cancellation_reason = ?
		WHERE id = ? AND cancelled_at IS NULL`),
		storage.FormatTime(b.CancelledAt), b.CancellationReason, b.ID)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyCancelled
	}
	return nil
}

// CountActive returns the number of active bookings on runID.
func (s *SQLStore) CountActive(ctx context.Context, runID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, s.db, &n, s.db.Rebind(`SELECT COUNT(*) FROM booking
		WHERE run_id = ? AND cancelled_at IS NULL`), runID)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}

// CountActiveByRuns returns active booking counts keyed by run ID.
func (s *SQLStore) CountActiveByRuns(ctx context.Context, runIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(runIDs))
	if len(runIDs) == 0 {
		return counts, nil
	}
	query, args, err := sqlx.In(`SELECT run_id, COUNT(*) AS active FROM booking
		WHERE run_id IN (?) AND cancelled_at IS NULL GROUP BY run_id`, runIDs)
	if err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	var rows []struct {
		RunID  string `db:"run_id"`
		Active int    `db:"active"`
	}
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("count active bookings: %w", err)
	}
	for _, r := range rows {
		counts[r.RunID] = r.Active
	}
	return counts, nil
}

// ListActiveByRun returns the active bookings on runID, oldest first.
func (s *SQLStore) ListActiveByRun(ctx context.Context, runID string) ([]domain.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM booking
		WHERE run_id = ? AND cancelled_at IS NULL ORDER BY booked_at`, runID)
}

// ListByMember returns every booking memberID has made, newest first.
func (s *SQLStore) ListByMember(ctx context.Context, memberID string) ([]domain.Booking, error) {
	return s.list(ctx, `SELECT `+bookingColumns+` FROM booking
		WHERE member_id = ? ORDER BY booked_at DESC`, memberID)
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]domain.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
