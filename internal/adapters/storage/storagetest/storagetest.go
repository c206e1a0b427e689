// Package storagetest opens migrated databases and inserts fixtures for
// store and orchestrator tests.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/storage"
)

// OpenDB returns a migrated in-memory SQLite database limited to one
// connection, closed when the test ends.
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// OpenFileDB returns a migrated file-backed SQLite database in a temp
// directory. Unlike OpenDB it allows several connections, so concurrent
// writers contend for real.
func OpenFileDB(t testing.TB) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runclub.db")
	db, err := storage.Open(context.Background(), storage.DriverSQLite, path)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// InsertMember adds a member with the given access level and no account.
func InsertMember(t testing.TB, db storage.SQLDB, id, name, accessLevel string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), db.Rebind(`INSERT INTO member
		(id, full_name, email, access_level, membership_status, created_at)
		VALUES (?, ?, ?, ?, 'active', ?)`),
		id, name, id+"@club.test", accessLevel, storage.FormatTime(time.Now()))
	if err != nil {
		t.Fatalf("insert member %s: %v", id, err)
	}
}

// RunFixture describes a run row for InsertRun. Zero fields take defaults.
type RunFixture struct {
	ID              string
	Title           string
	RunDate         string
	StartTime       string
	MaxParticipants int
	LirfsRequired   int
	Status          string
	CreatedBy       string
}

// InsertRun adds a run row directly, bypassing domain validation.
func InsertRun(t testing.TB, db storage.SQLDB, f RunFixture) {
	t.Helper()
	if f.Title == "" {
		f.Title = "Tuesday 5K"
	}
	if f.RunDate == "" {
		f.RunDate = "2026-03-10"
	}
	if f.StartTime == "" {
		f.StartTime = "18:30"
	}
	if f.MaxParticipants == 0 {
		f.MaxParticipants = 10
	}
	if f.LirfsRequired == 0 {
		f.LirfsRequired = 1
	}
	if f.Status == "" {
		f.Status = "scheduled"
	}
	if f.CreatedBy == "" {
		f.CreatedBy = "admin"
	}
	now := storage.FormatTime(time.Now())
	_, err := db.ExecContext(context.Background(), db.Rebind(`INSERT INTO run
		(id, title, run_date, start_time, meeting_point, distance_km, max_participants,
		lirfs_required, status, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Clubhouse', 5, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.Title, f.RunDate, f.StartTime, f.MaxParticipants, f.LirfsRequired,
		f.Status, f.CreatedBy, now, now)
	if err != nil {
		t.Fatalf("insert run %s: %v", f.ID, err)
	}
}

// InsertBooking adds an active booking row.
func InsertBooking(t testing.TB, db storage.SQLDB, id, runID, memberID string) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), db.Rebind(`INSERT INTO booking
		(id, run_id, member_id, booked_at) VALUES (?, ?, ?, ?)`),
		id, runID, memberID, storage.FormatTime(time.Now()))
	if err != nil {
		t.Fatalf("insert booking %s: %v", id, err)
	}
}
