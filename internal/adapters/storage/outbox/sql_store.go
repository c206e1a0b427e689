package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/outbox"
)

const outboxColumns = `id, action_type, payload, status, attempts, max_attempts,
	last_attempted_at, created_at, external_id, error_message`

// row mirrors the outbox table for sqlx scanning.
type row struct {
	ID              string         `db:"id"`
	ActionType      string         `db:"action_type"`
	Payload         string         `db:"payload"`
	Status          string         `db:"status"`
	Attempts        int            `db:"attempts"`
	MaxAttempts     int            `db:"max_attempts"`
	LastAttemptedAt sql.NullString `db:"last_attempted_at"`
	CreatedAt       sql.NullString `db:"created_at"`
	ExternalID      string         `db:"external_id"`
	ErrorMessage    string         `db:"error_message"`
}

func (r row) toDomain() domain.Entry {
	return domain.Entry{
		ID:              r.ID,
		ActionType:      r.ActionType,
		Payload:         r.Payload,
		Status:          r.Status,
		Attempts:        r.Attempts,
		MaxAttempts:     r.MaxAttempts,
		LastAttemptedAt: storage.ParseTime(r.LastAttemptedAt),
		CreatedAt:       storage.ParseTime(r.CreatedAt),
		ExternalID:      r.ExternalID,
		ErrorMessage:    r.ErrorMessage,
	}
}

// SQLStore implements the outbox Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new outbox store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// GetByID retrieves an outbox entry by its ID.
// PRE: id is non-empty
// POST: Returns the entry or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(`SELECT `+outboxColumns+` FROM outbox WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get outbox entry: %w", err)
	}
	return r.toDomain(), nil
}

// Save persists an outbox entry to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLStore) Save(ctx context.Context, e domain.Entry) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO outbox (`+outboxColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			max_attempts = excluded.max_attempts,
			last_attempted_at = excluded.last_attempted_at,
			external_id = excluded.external_id,
			error_message = excluded.error_message`),
		e.ID, e.ActionType, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		storage.FormatTime(e.LastAttemptedAt), storage.FormatTime(e.CreatedAt), e.ExternalID, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("save outbox entry: %w", err)
	}
	return nil
}

// ListPending returns entries that need to be processed (pending or retrying).
// PRE: limit > 0
// POST: Returns up to limit entries ordered by created_at
func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx, `SELECT `+outboxColumns+` FROM outbox
		WHERE status IN (?, ?) ORDER BY created_at LIMIT ?`,
		domain.StatusPending, domain.StatusRetrying, limit)
}

// ListFailed returns entries that have permanently failed.
// PRE: limit > 0
// POST: Returns up to limit failed entries ordered by last_attempted_at desc
func (s *SQLStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx, `SELECT `+outboxColumns+` FROM outbox
		WHERE status = ? ORDER BY last_attempted_at DESC LIMIT ?`,
		domain.StatusFailed, limit)
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list outbox entries: %w", err)
	}
	out := make([]domain.Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// PurgeFinished deletes delivered and abandoned entries created before cutoff.
// POST: Returns the number of rows removed; pending, retrying and failed entries are kept
func (s *SQLStore) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM outbox
		WHERE status IN (?, ?) AND created_at < ?`),
		domain.StatusDone, domain.StatusAbandoned, storage.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge outbox entries: %w", err)
	}
	return res.RowsAffected()
}
