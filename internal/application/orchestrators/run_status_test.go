package orchestrators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
	"runclub/internal/domain/run"
)

func statusDeps(runs *fakeRuns) RunStatusDeps {
	return RunStatusDeps{RunStore: runs, GenerateID: seqIDs(), Now: fixedNow, Location: time.UTC}
}

func ledRun() run.Run {
	r := tuesday5K()
	r.Lirfs[0] = "lena"
	return r
}

func TestExecuteStartRun(t *testing.T) {
	tomorrow := ledRun()
	tomorrow.RunDate = "2026-03-11"

	tests := []struct {
		name    string
		who     identity.Identity
		run     run.Run
		wantErr error
	}{
		{name: "assigned lirf on the day", who: lirfID, run: ledRun()},
		{name: "admin", who: adminID, run: ledRun()},
		{name: "unassigned member", who: runnerID, run: ledRun(), wantErr: run.ErrForbidden},
		{name: "anonymous", who: identity.Anonymous, run: ledRun(), wantErr: booking.ErrAuthRequired},
		{name: "not the run day", who: lirfID, run: tomorrow, wantErr: run.ErrNotRunDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := newFakeRuns(tt.run)
			got, err := ExecuteStartRun(context.Background(), RunStatusInput{Identity: tt.who, RunID: tt.run.ID}, statusDeps(runs))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, run.StatusScheduled, runs.byID[tt.run.ID].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, run.StatusInProgress, got.Status)
			assert.Equal(t, fixedTime, got.StartedAt)
			assert.Equal(t, run.StatusInProgress, runs.byID[tt.run.ID].Status)
		})
	}
}

func TestExecuteStartRun_ClubTimezone(t *testing.T) {
	// 09:00 UTC on the 10th is still the 9th in Honolulu.
	runs := newFakeRuns(ledRun())
	deps := statusDeps(runs)
	deps.Location = time.FixedZone("HST", -10*60*60)

	_, err := ExecuteStartRun(context.Background(), RunStatusInput{Identity: lirfID, RunID: "run-1"}, deps)
	assert.ErrorIs(t, err, run.ErrNotRunDay)
}

func TestExecuteCompleteRun_Lifecycle(t *testing.T) {
	runs := newFakeRuns(ledRun())
	deps := statusDeps(runs)
	in := RunStatusInput{Identity: lirfID, RunID: "run-1"}

	_, err := ExecuteCompleteRun(context.Background(), in, deps)
	assert.ErrorIs(t, err, run.ErrInvalidTransition, "cannot complete before starting")

	_, err = ExecuteStartRun(context.Background(), in, deps)
	require.NoError(t, err)
	got, err := ExecuteCompleteRun(context.Background(), in, deps)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, got.Status)

	_, err = ExecuteCancelRun(context.Background(), in, deps)
	assert.ErrorIs(t, err, run.ErrInvalidTransition, "completed is terminal")
}

func TestExecuteCancelRun_EmailsBookedMembers(t *testing.T) {
	runs := newFakeRuns(tuesday5K())
	bookings := newFakeBookings(
		booking.Booking{ID: "b-1", RunID: "run-1", MemberID: "ravi", BookedAt: fixedTime},
		booking.Booking{ID: "b-2", RunID: "run-1", MemberID: "sam", BookedAt: fixedTime},
		booking.Booking{ID: "b-3", RunID: "run-1", MemberID: "ana", BookedAt: fixedTime, CancelledAt: fixedTime},
	)
	members := newFakeMembers(
		testMember("ravi", member.AccessMember),
		testMember("sam", member.AccessMember),
		testMember("ana", member.AccessMember),
	)
	ob := &fakeOutbox{}
	deps := statusDeps(runs)
	deps.BookingStore = bookings
	deps.MemberStore = members
	deps.Outbox = ob

	got, err := ExecuteCancelRun(context.Background(), RunStatusInput{Identity: adminID, RunID: "run-1", Reason: "Flooded path"}, deps)
	require.NoError(t, err)
	assert.Equal(t, run.StatusCancelled, got.Status)
	assert.Equal(t, "Flooded path", got.CancellationReason)

	msgs := ob.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, email.TemplateRunCancelled, msgs[0].Template)
	assert.ElementsMatch(t, []string{"ravi@club.test", "sam@club.test"}, msgs[0].To)
	assert.Contains(t, msgs[0].Markdown, "Flooded path")
	assert.True(t, bookings.isActive("b-1"), "bookings are kept as history")
}

func TestExecuteCancelRun_Creator(t *testing.T) {
	r := tuesday5K()
	r.CreatedBy = "ravi"
	runs := newFakeRuns(r)

	_, err := ExecuteCancelRun(context.Background(), RunStatusInput{Identity: runnerID, RunID: "run-1"}, statusDeps(runs))
	require.NoError(t, err)
	_, err = ExecuteCancelRun(context.Background(), RunStatusInput{Identity: lirfID, RunID: "run-1"}, statusDeps(newFakeRuns(tuesday5K())))
	assert.ErrorIs(t, err, run.ErrForbidden)
}

func TestExecuteStartRun_LostRace(t *testing.T) {
	runs := newFakeRuns(ledRun())
	deps := statusDeps(runs)
	stale := &staleRuns{fakeRuns: runs}
	deps.RunStore = stale

	_, err := ExecuteStartRun(context.Background(), RunStatusInput{Identity: lirfID, RunID: "run-1"}, deps)
	assert.ErrorIs(t, err, run.ErrStatusChanged)
}

// staleRuns returns the run as it was, while the stored copy has moved on.
type staleRuns struct {
	*fakeRuns
}

func (s *staleRuns) GetByID(ctx context.Context, id string) (run.Run, error) {
	r, err := s.fakeRuns.GetByID(ctx, id)
	moved := r
	moved.Status = run.StatusCancelled
	s.byID[id] = moved
	return r, err
}
