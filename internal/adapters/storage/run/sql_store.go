package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	"runclub/internal/domain/booking"
	domain "runclub/internal/domain/run"
)

const runColumns = `id, title, description, run_date, start_time, meeting_point, distance_km,
	max_participants, lirfs_required, status, assigned_lirf_1, assigned_lirf_2, assigned_lirf_3,
	created_by, recurrence_group_id, recurrence_rule, started_at, completed_at, cancelled_at,
	cancellation_reason, created_at, updated_at`

// row mirrors the run table for sqlx scanning.
type row struct {
	ID                 string         `db:"id"`
	Title              string         `db:"title"`
	Description        string         `db:"description"`
	RunDate            string         `db:"run_date"`
	StartTime          string         `db:"start_time"`
	MeetingPoint       string         `db:"meeting_point"`
	DistanceKm         float64        `db:"distance_km"`
	MaxParticipants    int            `db:"max_participants"`
	LirfsRequired      int            `db:"lirfs_required"`
	Status             string         `db:"status"`
	Lirf1              sql.NullString `db:"assigned_lirf_1"`
	Lirf2              sql.NullString `db:"assigned_lirf_2"`
	Lirf3              sql.NullString `db:"assigned_lirf_3"`
	CreatedBy          string         `db:"created_by"`
	RecurrenceGroupID  sql.NullString `db:"recurrence_group_id"`
	RecurrenceRule     string         `db:"recurrence_rule"`
	StartedAt          sql.NullString `db:"started_at"`
	CompletedAt        sql.NullString `db:"completed_at"`
	CancelledAt        sql.NullString `db:"cancelled_at"`
	CancellationReason string         `db:"cancellation_reason"`
	CreatedAt          sql.NullString `db:"created_at"`
	UpdatedAt          sql.NullString `db:"updated_at"`
}

func (r row) toDomain() domain.Run {
	return domain.Run{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		RunDate:            r.RunDate,
		StartTime:          r.StartTime,
		MeetingPoint:       r.MeetingPoint,
		DistanceKm:         r.DistanceKm,
		MaxParticipants:    r.MaxParticipants,
		LirfsRequired:      r.LirfsRequired,
		Status:             r.Status,
		Lirfs:              [domain.SlotCount]string{r.Lirf1.String, r.Lirf2.String, r.Lirf3.String},
		CreatedBy:          r.CreatedBy,
		RecurrenceGroupID:  r.RecurrenceGroupID.String,
		RecurrenceRule:     r.RecurrenceRule,
		StartedAt:          storage.ParseTime(r.StartedAt),
		CompletedAt:        storage.ParseTime(r.CompletedAt),
		CancelledAt:        storage.ParseTime(r.CancelledAt),
		CancellationReason: r.CancellationReason,
		CreatedAt:          storage.ParseTime(r.CreatedAt),
		UpdatedAt:          storage.ParseTime(r.UpdatedAt),
	}
}

// SQLStore implements the run Store interface over SQLite or Postgres.
type SQLStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLStore creates a new run store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// GetByID retrieves a run by its ID.
// PRE: id is non-empty
// POST: Returns the run or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Run, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q sqlx.QueryerContext, id string) (domain.Run, error) {
	var r row
	err := sqlx.GetContext(ctx, q, &r, rebind(q, `SELECT `+runColumns+` FROM run WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("get run: %w", err)
	}
	return r.toDomain(), nil
}

// rebind converts placeholders for whichever handle the query runs on.
func rebind(q sqlx.QueryerContext, query string) string {
	if b, ok := q.(interface{ Rebind(string) string }); ok {
		return b.Rebind(query)
	}
	return query
}

// Create inserts one or more runs in a single transaction.
// PRE: every run has been validated and has an ID
// POST: All runs are persisted or none is
func (s *SQLStore) Create(ctx context.Context, runs ...domain.Run) error {
	now := s.now()
	return storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, r := range runs {
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO run (`+runColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				r.ID, r.Title, r.Description, r.RunDate, r.StartTime, r.MeetingPoint, r.DistanceKm,
				r.MaxParticipants, r.LirfsRequired, r.Status,
				storage.NullString(r.Lirfs[0]), storage.NullString(r.Lirfs[1]), storage.NullString(r.Lirfs[2]),
				r.CreatedBy, storage.NullString(r.RecurrenceGroupID), r.RecurrenceRule,
				storage.FormatTime(r.StartedAt), storage.FormatTime(r.CompletedAt), storage.FormatTime(r.CancelledAt),
				r.CancellationReason, storage.FormatTime(r.CreatedAt), storage.FormatTime(now))
			if err != nil {
				return fmt.Errorf("insert run %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ListBetween returns runs with fromDate <= run_date <= toDate.
// PRE: dates are YYYY-MM-DD
// POST: Ordered by run_date, start_time
func (s *SQLStore) ListBetween(ctx context.Context, fromDate, toDate string) ([]domain.Run, error) {
	var rows []row
	err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(`SELECT `+runColumns+` FROM run
		WHERE run_date >= ? AND run_date <= ? ORDER BY run_date, start_time, title`), fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return toDomainList(rows), nil
}

// ListByIDs returns the runs with the given IDs, in any order.
func (s *SQLStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Run, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+runColumns+` FROM run WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list runs by id: %w", err)
	}
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list runs by id: %w", err)
	}
	return toDomainList(rows), nil
}

func toDomainList(rows []row) []domain.Run {
	runs := make([]domain.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toDomain())
	}
	return runs
}

// Edit applies e under the run lock.
// PRE: id is non-empty
// POST: Returns the updated run, or an error with no change
func (s *SQLStore) Edit(ctx context.Context, id string, e domain.Edit) (domain.Run, error) {
	var out domain.Run
	now := s.now()
	err := storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := storage.LockRun(ctx, tx, id, now); err != nil {
			return err
		}
		r, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		active, err := countActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := r.ApplyEdit(e, active); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE run SET title = ?, description = ?, start_time = ?,
			meeting_point = ?, distance_km = ?, max_participants = ?, lirfs_required = ?, updated_at = ?
			WHERE id = ?`),
			r.Title, r.Description, r.StartTime, r.MeetingPoint, r.DistanceKm, r.MaxParticipants,
			r.LirfsRequired, storage.FormatTime(now), id)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		r.UpdatedAt = now
		out = r
		return nil
	})
	return out, err
}

// Delete removes a run under the run lock.
// PRE: id is non-empty
// POST: Run removed, or an error with no change
func (s *SQLStore) Delete(ctx context.Context, id string, allow func(domain.Run) error) error {
	return storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := storage.LockRun(ctx, tx, id, s.now()); err != nil {
			return err
		}
		r, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if allow != nil {
			if err := allow(r); err != nil {
				return err
			}
		}
		active, err := countActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrHasBookings
		}
		for _, stmt := range []string{
			`DELETE FROM attendance WHERE run_id = ?`,
			`DELETE FROM booking WHERE run_id = ?`,
			`DELETE FROM run WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), id); err != nil {
				return fmt.Errorf("delete run: %w", err)
			}
		}
		return nil
	})
}

// AssignLirf puts memberID into the first open slot under the run lock.
// A full run reports ErrPositionsFilled even when memberID holds a booking.
// PRE: memberID may lead runs
// POST: Returns the run and 1-based slot, or an error with no slot changed
func (s *SQLStore) AssignLirf(ctx context.Context, runID, memberID string) (domain.Run, int, error) {
	var out domain.Run
	var slot int
	now := s.now()
	err := storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := storage.LockRun(ctx, tx, runID, now); err != nil {
			return err
		}
		r, err := get(ctx, tx, runID)
		if err != nil {
			return err
		}
		// Slot availability is decided before the booking conflict.
		slot, err = r.AssignLirf(memberID)
		if err != nil {
			return err
		}
		var booked int
		err = tx.GetContext(ctx, &booked, tx.Rebind(`SELECT COUNT(*) FROM booking
			WHERE run_id = ? AND member_id = ? AND cancelled_at IS NULL`), runID, memberID)
		if err != nil {
			return fmt.Errorf("check booking: %w", err)
		}
		if booked > 0 {
			return booking.LirfConflictOn(r.Title)
		}
		if err := writeSlots(ctx, tx, r, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, slot, err
}

// UnassignLirf clears memberID's slot under the run lock and compacts
// the remaining slots.
// POST: Returns the run and the cleared slot, or domain.ErrNotAssigned
func (s *SQLStore) UnassignLirf(ctx context.Context, runID, memberID string) (domain.Run, int, error) {
	var out domain.Run
	var slot int
	now := s.now()
	err := storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := storage.LockRun(ctx, tx, runID, now); err != nil {
			return err
		}
		r, err := get(ctx, tx, runID)
		if err != nil {
			return err
		}
		slot, err = r.UnassignLirf(memberID)
		if err != nil {
			return err
		}
		if err := writeSlots(ctx, tx, r, now); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, slot, err
}

func writeSlots(ctx context.Context, tx *sqlx.Tx, r domain.Run, now time.Time) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE run SET assigned_lirf_1 = ?, assigned_lirf_2 = ?,
		assigned_lirf_3 = ?, updated_at = ? WHERE id = ?`),
		storage.NullString(r.Lirfs[0]), storage.NullString(r.Lirfs[1]), storage.NullString(r.Lirfs[2]),
		storage.FormatTime(now), r.ID)
	if err != nil {
		return fmt.Errorf("update lirf slots: %w", err)
	}
	return nil
}

// UpdateStatus writes r's lifecycle fields only if the stored status is
// still fromStatus.
// PRE: r has been transitioned in memory
// POST: Persisted, or domain.ErrStatusChanged when another writer won
func (s *SQLStore) UpdateStatus(ctx context.Context, r domain.Run, fromStatus string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE run SET status = ?, started_at = ?, completed_at = ?,
		cancelled_at = ?, cancellation_reason = ?, updated_at = ? WHERE id = ? AND status = ?`),
		r.Status, storage.FormatTime(r.StartedAt), storage.FormatTime(r.CompletedAt),
		storage.FormatTime(r.CancelledAt), r.CancellationReason, storage.FormatTime(s.now()), r.ID, fromStatus)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n == 0 {
		if _, err := s.GetByID(ctx, r.ID); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrStatusChanged
	}
	return nil
}

func countActive(ctx context.Context, tx *sqlx.Tx, runID string) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM booking WHERE run_id = ? AND cancelled_at IS NULL`), runID)
	if err != nil {
		return 0, fmt.Errorf("count active bookings: %w", err)
	}
	return n, nil
}
