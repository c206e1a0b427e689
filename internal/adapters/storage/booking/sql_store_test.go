package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/adapters/storage/storagetest"
	domain "runclub/internal/domain/booking"
	"runclub/internal/domain/run"
)

func newBooking(id, runID, memberID string) domain.Booking {
	return domain.Booking{ID: id, RunID: runID, MemberID: memberID, BookedAt: time.Now()}
}

func TestAdmit_TuesdayFiveK(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()

	for _, m := range []string{"alice", "bob", "carol", "lena"} {
		storagetest.InsertMember(t, db, m, m, "member")
	}
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r1", MaxParticipants: 2})
	_, err := db.Exec(`UPDATE run SET assigned_lirf_1 = 'lena' WHERE id = 'r1'`)
	require.NoError(t, err)

	require.NoError(t, store.Admit(ctx, newBooking("b1", "r1", "alice")))

	err = store.Admit(ctx, newBooking("b2", "r1", "alice"))
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)

	err = store.Admit(ctx, newBooking("b3", "r1", "lena"))
	assert.ErrorIs(t, err, domain.ErrLirfConflict)

	require.NoError(t, store.Admit(ctx, newBooking("b4", "r1", "bob")))

	err = store.Admit(ctx, newBooking("b5", "r1", "carol"))
	assert.ErrorIs(t, err, domain.ErrRunFull)

	n, err := store.CountActive(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAdmit_RunNotOpen(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()
	storagetest.InsertMember(t, db, "alice", "Alice", "member")
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r1", Title: "Hill Reps", Status: run.StatusCancelled})

	err := store.Admit(ctx, newBooking("b1", "r1", "alice"))
	var be *domain.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, domain.KindGeneral, be.Kind)
	assert.Contains(t, be.Message, "Hill Reps")

	err = store.Admit(ctx, newBooking("b2", "missing", "alice"))
	require.True(t, errors.As(err, &be))
	assert.Equal(t, domain.KindGeneral, be.Kind)
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestAdmit_CancelThenRebook(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()
	storagetest.InsertMember(t, db, "alice", "Alice", "member")
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r1", MaxParticipants: 1})

	require.NoError(t, store.Admit(ctx, newBooking("b1", "r1", "alice")))
	b, err := store.GetActive(ctx, "r1", "alice")
	require.NoError(t, err)
	require.NoError(t, b.Cancel(time.Now(), "  injured  "))
	require.NoError(t, store.Cancel(ctx, b))
	assert.ErrorIs(t, store.Cancel(ctx, b), domain.ErrAlreadyCancelled)

	got, err := store.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, got.IsActive())
	assert.Equal(t, "injured", got.CancellationReason)

	_, err = store.GetActive(ctx, "r1", "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Admit(ctx, newBooking("b2", "r1", "alice")))
	history, err := store.ListByMember(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAdmit_ConcurrentRespectsCapacity(t *testing.T) {
	db := storagetest.OpenFileDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()

	const capacity = 3
	const runners = 12
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r1", MaxParticipants: capacity})
	for i := 0; i < runners; i++ {
		storagetest.InsertMember(t, db, fmt.Sprintf("m%02d", i), fmt.Sprintf("Runner %d", i), "member")
	}

	var wg sync.WaitGroup
	errs := make([]error, runners)
	for i := 0; i < runners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Admit(ctx, newBooking(fmt.Sprintf("b%02d", i), "r1", fmt.Sprintf("m%02d", i)))
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrRunFull):
		default:
			t.Errorf("unexpected admission error: %v", err)
		}
	}
	assert.Equal(t, capacity, admitted)

	n, err := store.CountActive(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, capacity, n)
}

func TestCountActiveByRuns(t *testing.T) {
	db := storagetest.OpenDB(t)
	store := NewSQLStore(db)
	ctx := context.Background()
	storagetest.InsertMember(t, db, "alice", "Alice", "member")
	storagetest.InsertMember(t, db, "bob", "Bob", "member")
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r1"})
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r2"})
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "r3"})
	storagetest.InsertBooking(t, db, "b1", "r1", "alice")
	storagetest.InsertBooking(t, db, "b2", "r1", "bob")
	storagetest.InsertBooking(t, db, "b3", "r2", "alice")

	counts, err := store.CountActiveByRuns(ctx, []string{"r1", "r2", "r3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"r1": 2, "r2": 1}, counts)

	empty, err := store.CountActiveByRuns(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	active, err := store.ListActiveByRun(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
