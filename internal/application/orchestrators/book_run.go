package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
)

// BookingAdmitter runs the atomic admission check.
type BookingAdmitter interface {
	Admit(ctx context.Context, b booking.Booking) error
}

// BookRunInput carries input for the booking orchestrator.
type BookRunInput struct {
	Identity identity.Identity
	RunID    string
}

// BookRunDeps holds dependencies for BookRun.
type BookRunDeps struct {
	BookingStore BookingAdmitter
	RunStore     RunReader
	MemberStore  MemberReader
	Outbox       OutboxWriter // optional
	GenerateID   func() string
	Now          func() time.Time
}

// ExecuteBookRun reserves a participant place for the caller.
// PRE: RunID names a run
// POST: Returns the new active booking, or a *booking.Error describing why not
// INVARIANT: Every failure is a *booking.Error; none is retried
func ExecuteBookRun(ctx context.Context, input BookRunInput, deps BookRunDeps) (booking.Booking, error) {
	if !input.Identity.IsAuthenticated() {
		return booking.Booking{}, booking.ErrAuthRequired
	}
	if input.RunID == "" {
		return booking.Booking{}, booking.General("Choose a run to book.", nil)
	}

	now := deps.Now()
	b := booking.Booking{
		ID:       deps.GenerateID(),
		RunID:    input.RunID,
		MemberID: input.Identity.MemberID,
		BookedAt: now,
	}

	if err := deps.BookingStore.Admit(ctx, b); err != nil {
		var be *booking.Error
		if !errors.As(err, &be) {
			be = booking.General("We couldn't complete your booking. Please try again.", err)
		}
		if be.Kind == booking.KindGeneral {
			slog.Error("booking_event", "event", "booking_failed", "run_id", input.RunID, "member_id", b.MemberID, "error", err.Error())
		} else {
			slog.Info("booking_event", "event", "booking_rejected", "run_id", input.RunID, "member_id", b.MemberID, "kind", string(be.Kind))
		}
		return booking.Booking{}, be
	}

	slog.Info("booking_event", "event", "run_booked", "booking_id", b.ID, "run_id", b.RunID, "member_id", b.MemberID)

	r, err := deps.RunStore.GetByID(ctx, b.RunID)
	if err != nil {
		slog.Warn("booking_event", "event", "confirmation_skipped", "booking_id", b.ID, "error", err.Error())
		return b, nil
	}
	m, err := deps.MemberStore.GetByID(ctx, b.MemberID)
	if err != nil {
		slog.Warn("booking_event", "event", "confirmation_skipped", "booking_id", b.ID, "error", err.Error())
		return b, nil
	}
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, now, email.BookingConfirmed(m.Email, m.FullName, summarize(r)))
	return b, nil
}
