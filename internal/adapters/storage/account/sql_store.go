package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/account"
)

const accountColumns = `id, email, password_hash, status, created_at, failed_logins, locked_until`

// row mirrors the account table for sqlx scanning.
type row struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Status       string         `db:"status"`
	CreatedAt    sql.NullString `db:"created_at"`
	FailedLogins int            `db:"failed_logins"`
	LockedUntil  sql.NullString `db:"locked_until"`
}

func (r row) toDomain() domain.Account {
	return domain.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Status:       r.Status,
		CreatedAt:    storage.ParseTime(r.CreatedAt),
		FailedLogins: r.FailedLogins,
		LockedUntil:  storage.ParseTime(r.LockedUntil),
	}
}

// SQLStore implements the account Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new account store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the account or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM account WHERE id = ?`, id)
}

// GetByEmail retrieves an Account by normalised email.
// PRE: email is non-empty
// POST: Returns the account or domain.ErrNotFound
func (s *SQLStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.getOne(ctx, `SELECT `+accountColumns+` FROM account WHERE email = ?`, domain.NormalizeEmail(email))
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...any) (domain.Account, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return r.toDomain(), nil
}

// Save persists an Account (insert or update).
// PRE: entity has been validated
// POST: Entity is persisted; a second account with the same email fails
// with domain.ErrEmailTaken
func (s *SQLStore) Save(ctx context.Context, entity domain.Account) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO account (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email, password_hash = excluded.password_hash, status = excluded.status,
			failed_logins = excluded.failed_logins, locked_until = excluded.locked_until`),
		entity.ID, domain.NormalizeEmail(entity.Email), entity.PasswordHash, entity.Status,
		storage.FormatTime(entity.CreatedAt), entity.FailedLogins, storage.FormatTime(entity.LockedUntil))
	if storage.IsUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// Count returns the number of accounts.
// POST: Returns count >= 0
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, s.db, &n, `SELECT COUNT(*) FROM account`); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
