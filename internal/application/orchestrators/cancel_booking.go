package orchestrators

import (
	"context"
	"log/slog"
	"time"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
)

// BookingCanceller loads and cancels bookings.
type BookingCanceller interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	Cancel(ctx context.Context, b booking.Booking) error
}

// CancelBookingInput carries input for the cancellation orchestrator.
type CancelBookingInput struct {
	Identity  identity.Identity
	BookingID string
	Reason    string
}

// CancelBookingDeps holds dependencies for CancelBooking.
type CancelBookingDeps struct {
	BookingStore BookingCanceller
	RunStore     RunReader
	MemberStore  MemberReader
	Outbox       OutboxWriter // optional
	GenerateID   func() string
	Now          func() time.Time
}

// ExecuteCancelBooking soft-deletes one of the caller's bookings. Admins
// may cancel any booking.
// PRE: BookingID names an active booking
// POST: CancelledAt and the reason are stored; the row is kept
func ExecuteCancelBooking(ctx context.Context, input CancelBookingInput, deps CancelBookingDeps) (booking.Booking, error) {
	if !input.Identity.IsAuthenticated() {
		return booking.Booking{}, booking.ErrAuthRequired
	}

	b, err := deps.BookingStore.GetByID(ctx, input.BookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	if b.MemberID != input.Identity.MemberID && !input.Identity.IsAdmin() {
		return booking.Booking{}, booking.ErrNotOwner
	}

	now := deps.Now()
	if err := b.Cancel(now, input.Reason); err != nil {
		return booking.Booking{}, invalid(err)
	}
	if err := deps.BookingStore.Cancel(ctx, b); err != nil {
		return booking.Booking{}, err
	}

	slog.Info("booking_event", "event", "booking_cancelled", "booking_id", b.ID, "run_id", b.RunID,
		"member_id", b.MemberID, "cancelled_by", input.Identity.MemberID)

	r, err := deps.RunStore.GetByID(ctx, b.RunID)
	if err != nil {
		return b, nil
	}
	m, err := deps.MemberStore.GetByID(ctx, b.MemberID)
	if err != nil {
		return b, nil
	}
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, now, email.BookingCancelled(m.Email, m.FullName, summarize(r)))
	return b, nil
}
