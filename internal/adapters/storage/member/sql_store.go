package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
	domain "runclub/internal/domain/member"
)

const memberColumns = `id, account_id, full_name, email, phone, emergency_contact_name,
	emergency_contact_phone, health_notes, access_level, membership_status, created_at`

// row mirrors the member table for sqlx scanning.
type row struct {
	ID                    string         `db:"id"`
	AccountID             sql.NullString `db:"account_id"`
	FullName              string         `db:"full_name"`
	Email                 string         `db:"email"`
	Phone                 string         `db:"phone"`
	EmergencyContactName  string         `db:"emergency_contact_name"`
	EmergencyContactPhone string         `db:"emergency_contact_phone"`
	HealthNotes           string         `db:"health_notes"`
	AccessLevel           string         `db:"access_level"`
	MembershipStatus      string         `db:"membership_status"`
	CreatedAt             sql.NullString `db:"created_at"`
}

func (r row) toDomain() domain.Member {
	return domain.Member{
		ID:                    r.ID,
		AccountID:             r.AccountID.String,
		FullName:              r.FullName,
		Email:                 r.Email,
		Phone:                 r.Phone,
		EmergencyContactName:  r.EmergencyContactName,
		EmergencyContactPhone: r.EmergencyContactPhone,
		HealthNotes:           r.HealthNotes,
		AccessLevel:           r.AccessLevel,
		MembershipStatus:      r.MembershipStatus,
		CreatedAt:             storage.ParseTime(r.CreatedAt),
	}
}

// SQLStore implements the member Store interface over SQLite or Postgres.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new member store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// GetByID retrieves a Member by its ID.
// PRE: id is non-empty
// POST: Returns the member or domain.ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	return s.getOne(ctx, `SELECT `+memberColumns+` FROM member WHERE id = ?`, id)
}

// GetByEmail retrieves a Member by email, ignoring case.
// PRE: email is non-empty
// POST: Returns the member or domain.ErrNotFound
func (s *SQLStore) GetByEmail(ctx context.Context, email string) (domain.Member, error) {
	return s.getOne(ctx, `SELECT `+memberColumns+` FROM member WHERE LOWER(email) = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// GetByAccountID retrieves the Member linked to an account.
// PRE: accountID is non-empty
// POST: Returns the member or domain.ErrNotFound
func (s *SQLStore) GetByAccountID(ctx context.Context, accountID string) (domain.Member, error) {
	return s.getOne(ctx, `SELECT `+memberColumns+` FROM member WHERE account_id = ?`, accountID)
}

func (s *SQLStore) getOne(ctx context.Context, query string, args ...any) (domain.Member, error) {
	var r row
	err := sqlx.GetContext(ctx, s.db, &r, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member: %w", err)
	}
	return r.toDomain(), nil
}

// Save persists a Member (insert or update).
// PRE: entity has been validated
// POST: Entity is persisted
func (s *SQLStore) Save(ctx context.Context, entity domain.Member) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO member (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			account_id = excluded.account_id, full_name = excluded.full_name, email = excluded.email,
			phone = excluded.phone, emergency_contact_name = excluded.emergency_contact_name,
			emergency_contact_phone = excluded.emergency_contact_phone, health_notes = excluded.health_notes,
			access_level = excluded.access_level, membership_status = excluded.membership_status`),
		entity.ID, storage.NullString(entity.AccountID), entity.FullName, entity.Email, entity.Phone,
		entity.EmergencyContactName, entity.EmergencyContactPhone, entity.HealthNotes,
		entity.AccessLevel, entity.MembershipStatus, storage.FormatTime(entity.CreatedAt))
	if err != nil {
		return fmt.Errorf("save member: %w", err)
	}
	return nil
}

// UpdateAccessLevel sets a member's access level.
// PRE: level is a valid access level
// POST: Updated, or domain.ErrNotFound
func (s *SQLStore) UpdateAccessLevel(ctx context.Context, id, level string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE member SET access_level = ? WHERE id = ?`), level, id)
	if err != nil {
		return fmt.Errorf("update access level: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update access level: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByIDs returns the members with the given IDs, in any order.
func (s *SQLStore) ListByIDs(ctx context.Context, ids []string) ([]domain.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+memberColumns+` FROM member WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list members by id: %w", err)
	}
	return s.list(ctx, query, args...)
}

// listWhereClause builds the WHERE clause and args for List/Count queries.
func listWhereClause(filter ListFilter) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	if filter.AccessLevel != "" {
		where += " AND access_level = ?"
		args = append(args, filter.AccessLevel)
	}
	if filter.Status != "" {
		where += " AND membership_status = ?"
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		where += " AND (LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?)"
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term)
	}
	return where, args
}

// sortClause returns a safe ORDER BY clause. Only allowed columns are accepted.
func sortClause(filter ListFilter) string {
	allowed := map[string]string{
		"name": "full_name", "email": "email",
		"access_level": "access_level", "status": "membership_status",
	}
	col, ok := allowed[filter.Sort]
	if !ok {
		return " ORDER BY full_name ASC"
	}
	dir := "ASC"
	if filter.Dir == "desc" {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir
}

// Count returns the total number of members matching the filter.
// PRE: filter has valid parameters
// POST: Returns count >= 0
func (s *SQLStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := listWhereClause(filter)
	var count int
	err := sqlx.GetContext(ctx, s.db, &count, s.db.Rebind("SELECT COUNT(*) FROM member"+where), args...)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

// List retrieves a list of Members based on the filter.
// PRE: filter has valid parameters
// POST: Returns matching entities
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]domain.Member, error) {
	where, args := listWhereClause(filter)
	query := "SELECT " + memberColumns + " FROM member" + where + sortClause(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)
	return s.list(ctx, query, args...)
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]domain.Member, error) {
	var rows []row
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]domain.Member, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
