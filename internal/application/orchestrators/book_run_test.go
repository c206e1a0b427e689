package orchestrators

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
)

func bookRunDeps(bookings *fakeBookings, ob *fakeOutbox) BookRunDeps {
	return BookRunDeps{
		BookingStore: bookings,
		RunStore:     newFakeRuns(tuesday5K()),
		MemberStore:  newFakeMembers(testMember("ravi", member.AccessMember)),
		Outbox:       ob,
		GenerateID:   seqIDs(),
		Now:          fixedNow,
	}
}

func TestExecuteBookRun_Success(t *testing.T) {
	ob := &fakeOutbox{}
	bookings := newFakeBookings()
	b, err := ExecuteBookRun(context.Background(), BookRunInput{Identity: runnerID, RunID: "run-1"}, bookRunDeps(bookings, ob))
	require.NoError(t, err)

	assert.Equal(t, "id-1", b.ID)
	assert.Equal(t, "ravi", b.MemberID)
	assert.Equal(t, fixedTime, b.BookedAt)
	assert.Contains(t, bookings.byID, "id-1")

	msgs := ob.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, email.TemplateBookingConfirmed, msgs[0].Template)
	assert.Equal(t, []string{"ravi@club.test"}, msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "Tuesday 5K")
}

func TestExecuteBookRun_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		who      identity.Identity
		runID    string
		admitErr error
		wantKind booking.Kind
	}{
		{name: "anonymous", who: identity.Anonymous, runID: "run-1", wantKind: booking.KindAuthRequired},
		{name: "no run", who: runnerID, runID: "", wantKind: booking.KindGeneral},
		{name: "already booked", who: runnerID, runID: "run-1", admitErr: booking.ErrAlreadyBooked, wantKind: booking.KindAlreadyBooked},
		{name: "full", who: runnerID, runID: "run-1", admitErr: booking.ErrRunFull, wantKind: booking.KindRunFull},
		{name: "leading", who: runnerID, runID: "run-1", admitErr: booking.ErrLirfConflict, wantKind: booking.KindLirfConflict},
		{name: "storage failure", who: runnerID, runID: "run-1", admitErr: errors.New("disk I/O error"), wantKind: booking.KindGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := &fakeOutbox{}
			bookings := newFakeBookings()
			bookings.admitErr = tt.admitErr

			_, err := ExecuteBookRun(context.Background(), BookRunInput{Identity: tt.who, RunID: tt.runID}, bookRunDeps(bookings, ob))

			var be *booking.Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantKind, be.Kind)
			assert.NotEmpty(t, be.Title)
			assert.NotEmpty(t, be.Message)
			assert.Empty(t, bookings.byID)
			assert.Empty(t, ob.entries, "no email for a failed booking")
		})
	}
}

func TestExecuteBookRun_StorageFailureKeepsCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	bookings := newFakeBookings()
	bookings.admitErr = cause

	_, err := ExecuteBookRun(context.Background(), BookRunInput{Identity: runnerID, RunID: "run-1"}, bookRunDeps(bookings, nil))
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.(*booking.Error).Message, "disk")
}

func TestExecuteBookRun_OutboxFailureDoesNotUndoBooking(t *testing.T) {
	ob := &fakeOutbox{err: errors.New("outbox unavailable")}
	bookings := newFakeBookings()
	b, err := ExecuteBookRun(context.Background(), BookRunInput{Identity: runnerID, RunID: "run-1"}, bookRunDeps(bookings, ob))
	require.NoError(t, err)
	assert.Contains(t, bookings.byID, b.ID)
}

func TestExecuteCancelBooking(t *testing.T) {
	active := booking.Booking{ID: "b-1", RunID: "run-1", MemberID: "ravi", BookedAt: fixedTime}
	tests := []struct {
		name    string
		who     identity.Identity
		id      string
		wantErr error
	}{
		{name: "owner", who: runnerID, id: "b-1"},
		{name: "admin", who: adminID, id: "b-1"},
		{name: "someone else", who: lirfID, id: "b-1", wantErr: booking.ErrNotOwner},
		{name: "anonymous", who: identity.Anonymous, id: "b-1", wantErr: booking.ErrAuthRequired},
		{name: "missing", who: runnerID, id: "b-9", wantErr: booking.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings := newFakeBookings(active)
			ob := &fakeOutbox{}
			got, err := ExecuteCancelBooking(context.Background(), CancelBookingInput{
				Identity: tt.who, BookingID: tt.id, Reason: "  injured  ",
			}, CancelBookingDeps{
				BookingStore: bookings,
				RunStore:     newFakeRuns(tuesday5K()),
				MemberStore:  newFakeMembers(testMember("ravi", member.AccessMember)),
				Outbox:       ob,
				GenerateID:   seqIDs(),
				Now:          fixedNow,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, bookings.isActive("b-1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixedTime, got.CancelledAt)
			assert.Equal(t, "injured", got.CancellationReason)
			assert.False(t, bookings.isActive("b-1"), "row kept, marked cancelled")
			msgs := ob.messages(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, email.TemplateBookingCancelled, msgs[0].Template)
		})
	}
}

func TestExecuteCancelBooking_Twice(t *testing.T) {
	bookings := newFakeBookings(booking.Booking{ID: "b-1", RunID: "run-1", MemberID: "ravi", BookedAt: fixedTime})
	deps := CancelBookingDeps{
		BookingStore: bookings,
		RunStore:     newFakeRuns(tuesday5K()),
		MemberStore:  newFakeMembers(),
		GenerateID:   seqIDs(),
		Now:          fixedNow,
	}
	in := CancelBookingInput{Identity: runnerID, BookingID: "b-1"}
	_, err := ExecuteCancelBooking(context.Background(), in, deps)
	require.NoError(t, err)
	_, err = ExecuteCancelBooking(context.Background(), in, deps)
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
}
