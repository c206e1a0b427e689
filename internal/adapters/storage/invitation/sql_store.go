package invitation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/invitation"
)

const invitationColumns = `id, email, token, invited_by, access_level, expires_at, accepted_at, created_at`

// row mirrors the invitation table for sqlx scanning.
type row struct {
	ID          string         `db:"id"`
	Email       string         `db:"email"`
	Token       string         `db:"token"`
	InvitedBy   string         `db:"invited_by"`
	AccessLevel string         `db:"access_level"`
	ExpiresAt   sql.NullString `db:"expires_at"`
	AcceptedAt  sql.NullString `db:"accepted_at"`
	CreatedAt   sql.NullString `db:"created_at"`
}

func (r row) toDomain() domain.Invitation {
	return domain.Invitation{
		ID:          r.ID,
		Email:       r.Email,
		Token:       r.Token,
		InvitedBy:   r.InvitedBy,
		AccessLevel: r.AccessLevel,
		ExpiresAt:   storage.ParseTime(r.ExpiresAt),
		AcceptedAt:  storage.ParseTime(r.AcceptedAt),
		CreatedAt:   storage.ParseTime(r.CreatedAt),
	}
}

// SQLStore implements the invitation Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new invitation store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts an invitation.
// PRE: inv has been validated
// POST: Invitation is persisted
func (s *SQLStore) Save(ctx context.Context, inv domain.Invitation) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO invitation (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		inv.ID, inv.Email, inv.Token, inv.InvitedBy, inv.AccessLevel,
		storage.FormatTime(inv.ExpiresAt), storage.FormatTime(inv.AcceptedAt), storage.FormatTime(inv.CreatedAt))
	if err != nil {
		return fmt.Errorf("save invitation: %w", err)
	}
	return nil
}

// GetByID retrieves an invitation by its ID.
// POST: Returns the invitation or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Invitation, error) {
	return s.getOne(ctx, `SELECT `+invitationColumns+` FROM invitation WHERE id = ?`, id)
}

// GetByToken retrieves an invitation by its token.
// POST: Returns the invitation or domain.ErrNotFound
func (s *SQLStore) GetByToken(ctx context.Context, token string) (domain.Invitation, error) {
	return s.getOne(ctx, `SELECT `+invitationColumns+` FROM invitation WHERE token = ?`, token)
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...any) (domain.Invitation, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invitation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return r.toDomain(), nil
}

// MarkAccepted stamps accepted_at if the invitation is still unused.
// POST: Updated, or domain.ErrAlreadyAccepted
func (s *SQLStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE invitation SET accepted_at = ? WHERE id = ? AND accepted_at IS NULL`), storage.FormatTime(at), id)
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept invitation: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyAccepted
	}
	return nil
}

// ListOpen returns unused invitations that have not expired at now.
func (s *SQLStore) ListOpen(ctx context.Context, now time.Time) ([]domain.Invitation, error) {
	var rows []row
	err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(`SELECT `+invitationColumns+` FROM invitation
		WHERE accepted_at IS NULL AND expires_at > ? ORDER BY created_at DESC`), storage.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	out := make([]domain.Invitation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
