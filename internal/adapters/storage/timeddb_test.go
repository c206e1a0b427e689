package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"runclub/internal/adapters/http/perf"
)

func openTimedTestDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTimedDB_RecordsEachCall(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	var val string
	if err := sqlx.GetContext(ctx, tdb, &val, "SELECT val FROM test WHERE id = ?", "1"); err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if val != "hello" {
		t.Errorf("val = %q, want hello", val)
	}
	var ids []string
	if err := sqlx.SelectContext(ctx, tdb, &ids, "SELECT id FROM test"); err != nil {
		t.Fatalf("SelectContext: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("ids = %v, want one", ids)
	}
	if collector.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3", collector.TotalRecorded())
	}
}

func TestTimedDB_QueryLabelsGroupByTable(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		var n int
		if err := sqlx.GetContext(ctx, tdb, &n, "SELECT COUNT(*) FROM test WHERE val = ?", "x"); err != nil {
			t.Fatalf("GetContext: %v", err)
		}
	}
	snap := collector.Snapshot(time.Time{}, 5)
	if len(snap.SlowestQueries) != 1 {
		t.Fatalf("SlowestQueries = %+v, want one group", snap.SlowestQueries)
	}
	if got := snap.SlowestQueries[0]; got.Path != "SELECT test" || got.Count != 3 {
		t.Errorf("group = %+v, want SELECT test x3", got)
	}
}

func TestQueryLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT id FROM run WHERE id = ?", "SELECT run"},
		{"INSERT INTO booking (id) VALUES (?)", "INSERT booking"},
		{"UPDATE run SET updated_at = ?", "UPDATE run"},
		{"DELETE FROM outbox WHERE id = ?", "DELETE outbox"},
		{"  ", "empty"},
		{"BEGIN", "BEGIN"},
	}
	for _, tt := range tests {
		if got := queryLabel(tt.query); got != tt.want {
			t.Errorf("queryLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestTimedDB_BeginTxx(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()

	err := WithTx(ctx, tdb, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1 for the BEGIN span", collector.TotalRecorded())
	}
}

func TestTimedDB_NilCollector(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), nil, 0)
	_, err := tdb.ExecContext(context.Background(), "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello")
	if err != nil {
		t.Fatalf("ExecContext with nil collector: %v", err)
	}
}

// Errors must come back unchanged and the call must still be timed.
func TestTimedDB_ErrorPassthrough(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO nonexistent_table VALUES (?)", 1); err == nil {
		t.Fatal("expected error from invalid SQL, got nil")
	}
	var val string
	err := sqlx.GetContext(ctx, tdb, &val, "SELECT val FROM test WHERE id = ?", "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
	if collector.TotalRecorded() != 2 {
		t.Errorf("TotalRecorded = %d, want 2", collector.TotalRecorded())
	}
}

func TestTimedDB_CancelledContext(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1", collector.TotalRecorded())
	}
}

func TestTimedDB_RawDB(t *testing.T) {
	db := openTimedTestDB(t)
	tdb := NewTimedDB(db, nil, 0)
	if tdb.RawDB() != db {
		t.Error("RawDB() should return the wrapped *sqlx.DB")
	}
	if tdb.DriverName() != DriverSQLite {
		t.Errorf("DriverName = %q", tdb.DriverName())
	}
}

func TestTimedDB_ConcurrentMixedOps(t *testing.T) {
	collector := perf.NewCollector(1000)
	tdb := NewTimedDB(openTimedTestDB(t), collector, 0)
	ctx := context.Background()
	tdb.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "seed", "data")

	done := make(chan struct{})
	var wg sync.WaitGroup
	worker := func(op func()) {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				op()
			}
		}
	}
	wg.Add(2)
	go worker(func() {
		tdb.ExecContext(ctx, "INSERT OR REPLACE INTO test (id, val) VALUES (?, ?)", "w", "v")
	})
	go worker(func() {
		var v string
		sqlx.GetContext(ctx, tdb, &v, "SELECT val FROM test WHERE id = ?", "seed")
	})

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()

	if collector.TotalRecorded() < 3 {
		t.Errorf("TotalRecorded = %d, want >= 3", collector.TotalRecorded())
	}
}

func BenchmarkTimedDB_OverheadIsolation(b *testing.B) {
	db := openTimedTestDB(b)
	db.Exec("INSERT INTO test VALUES ('1', 'x')")
	ctx := context.Background()

	b.Run("RawDB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var v string
			db.QueryRowxContext(ctx, "SELECT val FROM test WHERE id = '1'").Scan(&v)
		}
	})

	tdb := NewTimedDB(db, perf.NewCollector(perf.DefaultRingSize), 0)
	b.Run("TimedDB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			var v string
			tdb.QueryRowxContext(ctx, "SELECT val FROM test WHERE id = '1'").Scan(&v)
		}
	})
}
