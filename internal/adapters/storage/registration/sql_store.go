package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/registration"
)

const pendingColumns = `id, email, password_hash, full_name, phone, emergency_contact_name,
	emergency_contact_phone, health_notes, access_level, invitation_id, token, expires_at, created_at`

// row mirrors the pending_registration table for sqlx scanning.
type row struct {
	ID                    string         `db:"id"`
	Email                 string         `db:"email"`
	PasswordHash          string         `db:"password_hash"`
	FullName              string         `db:"full_name"`
	Phone                 string         `db:"phone"`
	EmergencyContactName  string         `db:"emergency_contact_name"`
	EmergencyContactPhone string         `db:"emergency_contact_phone"`
	HealthNotes           string         `db:"health_notes"`
	AccessLevel           string         `db:"access_level"`
	InvitationID          sql.NullString `db:"invitation_id"`
	Token                 string         `db:"token"`
	ExpiresAt             sql.NullString `db:"expires_at"`
	CreatedAt             sql.NullString `db:"created_at"`
}

func (r row) toDomain() domain.Pending {
	return domain.Pending{
		ID:                    r.ID,
		Email:                 r.Email,
		PasswordHash:          r.PasswordHash,
		FullName:              r.FullName,
		Phone:                 r.Phone,
		EmergencyContactName:  r.EmergencyContactName,
		EmergencyContactPhone: r.EmergencyContactPhone,
		HealthNotes:           r.HealthNotes,
		AccessLevel:           r.AccessLevel,
		InvitationID:          r.InvitationID.String,
		Token:                 r.Token,
		ExpiresAt:             storage.ParseTime(r.ExpiresAt),
		CreatedAt:             storage.ParseTime(r.CreatedAt),
	}
}

// SQLStore implements the registration Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new registration store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts p, replacing any earlier pending registration for the same email.
// PRE: p has been validated
// POST: Exactly one pending row exists for p.Email
func (s *SQLStore) Save(ctx context.Context, p domain.Pending) error {
	return storage.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM pending_registration WHERE email = ?`), p.Email); err != nil {
			return fmt.Errorf("replace pending registration: %w", err)
		}
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO pending_registration (`+pendingColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.ID, p.Email, p.PasswordHash, p.FullName, p.Phone, p.EmergencyContactName,
			p.EmergencyContactPhone, p.HealthNotes, p.AccessLevel, storage.NullString(p.InvitationID),
			p.Token, storage.FormatTime(p.ExpiresAt), storage.FormatTime(p.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert pending registration: %w", err)
		}
		return nil
	})
}

// GetByToken returns the pending registration for a verification token.
// POST: Returns the registration or domain.ErrTokenInvalid
func (s *SQLStore) GetByToken(ctx context.Context, token string) (domain.Pending, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(`SELECT `+pendingColumns+` FROM pending_registration WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pending{}, domain.ErrTokenInvalid
	}
	if err != nil {
		return domain.Pending{}, fmt.Errorf("get pending registration: %w", err)
	}
	return r.toDomain(), nil
}

// Delete removes a pending registration once it has been promoted.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM pending_registration WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete pending registration: %w", err)
	}
	return nil
}

// DeleteExpired removes registrations whose link expired before cutoff.
// POST: Returns the number removed
func (s *SQLStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM pending_registration WHERE expires_at < ?`), storage.FormatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete expired registrations: %w", err)
	}
	return res.RowsAffected()
}
