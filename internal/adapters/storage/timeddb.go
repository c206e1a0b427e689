package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/http/perf"
)

// DefaultSlowQuery is the default threshold for slow query warnings.
const DefaultSlowQuery = 50 * time.Millisecond

// TimedDB wraps a *sqlx.DB to log slow queries and optionally record to a collector.
// Satisfies the SQLDB interface so it can be passed to any store constructor.
// Statements run inside a transaction are timed as one BeginTxx..Commit span
// by the caller, not per statement.
type TimedDB struct {
	db        *sqlx.DB
	collector *perf.Collector
	threshold time.Duration
}

// Compile-time check that *TimedDB satisfies SQLDB.
var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps a *sqlx.DB with timing instrumentation.
// PRE: db is a valid database connection
// POST: Returns a TimedDB that logs queries slower than threshold and records to collector
func NewTimedDB(db *sqlx.DB, collector *perf.Collector, threshold time.Duration) *TimedDB {
	if threshold <= 0 {
		threshold = DefaultSlowQuery
	}
	return &TimedDB{
		db:        db,
		collector: collector,
		threshold: threshold,
	}
}

// RawDB returns the underlying *sqlx.DB (needed for pool config and shutdown).
// PRE: none
// POST: returns the unwrapped *sqlx.DB
func (t *TimedDB) RawDB() *sqlx.DB {
	return t.db
}

// queryLabel reduces a statement to its verb and first table for grouping.
func queryLabel(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "empty"
	}
	verb := strings.ToUpper(fields[0])
	for i, f := range fields {
		switch strings.ToUpper(f) {
		case "FROM", "INTO", "UPDATE", "TABLE":
			if i+1 < len(fields) {
				return verb + " " + strings.Trim(fields[i+1], "(")
			}
		}
	}
	return verb
}

// logQuery logs and optionally records a query timing.
func (t *TimedDB) logQuery(op, query string, start time.Time) {
	elapsed := time.Since(start)
	durationMs := float64(elapsed.Microseconds()) / 1000.0
	label := queryLabel(query)

	if elapsed >= t.threshold {
		slog.Warn("slow_query", "op", op, "query", label, "duration_ms", durationMs)
	} else {
		slog.Debug("query", "op", op, "query", label, "duration_ms", durationMs)
	}

	if t.collector != nil {
		t.collector.Record(perf.Entry{
			Kind:       perf.KindQuery,
			Path:       label,
			DurationMs: durationMs,
			Timestamp:  start,
		})
	}
}

// DriverName returns the driver name used to open the pool.
func (t *TimedDB) DriverName() string { return t.db.DriverName() }

// Rebind converts ? placeholders to the driver's bindvar style.
func (t *TimedDB) Rebind(query string) string { return t.db.Rebind(query) }

// BindNamed binds a named query for the driver.
func (t *TimedDB) BindNamed(query string, arg any) (string, []any, error) {
	return t.db.BindNamed(query, arg)
}

// ExecContext wraps sqlx.DB.ExecContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.logQuery("ExecContext", query, start)
	return result, err
}

// QueryContext wraps sqlx.DB.QueryContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.logQuery("QueryContext", query, start)
	return rows, err
}

// QueryxContext wraps sqlx.DB.QueryxContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryxContext(ctx, query, args...)
	t.logQuery("QueryxContext", query, start)
	return rows, err
}

// QueryRowxContext wraps sqlx.DB.QueryRowxContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	start := time.Now()
	row := t.db.QueryRowxContext(ctx, query, args...)
	t.logQuery("QueryRowxContext", query, start)
	return row
}

// BeginTxx wraps sqlx.DB.BeginTxx with timing.
// PRE: ctx is valid
// POST: transaction started, timing recorded to collector
func (t *TimedDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	start := time.Now()
	tx, err := t.db.BeginTxx(ctx, opts)
	t.logQuery("BeginTxx", "BEGIN", start)
	return tx, err
}

// Close closes the underlying database connection.
// PRE: none
// POST: database connection closed
func (t *TimedDB) Close() error {
	return t.db.Close()
}

// PingContext verifies the database connection.
// PRE: none
// POST: returns nil if connection is alive
func (t *TimedDB) PingContext(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

// SetMaxOpenConns sets the maximum number of open connections.
// PRE: n >= 0
// POST: pool limit updated
// INVARIANT: db is not nil
func (t *TimedDB) SetMaxOpenConns(n int) {
	t.db.SetMaxOpenConns(n)
}
