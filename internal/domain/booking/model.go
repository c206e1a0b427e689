package booking

import (
	"errors"
	"strings"
	"time"
)

// MaxReasonLength bounds the free-text cancellation reason.
const MaxReasonLength = 500

// Domain errors
var (
	ErrNotFound         = errors.New("booking not found")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrNotOwner         = errors.New("only the member who made the booking or an admin can cancel it")
)

// Booking is a member's reservation of a participant place on a run.
// A booking with a zero CancelledAt is active.
type Booking struct {
	ID                 string
	RunID              string
	MemberID           string
	BookedAt           time.Time
	CancelledAt        time.Time
	CancellationReason string
}

// Validate checks if the Booking has valid data.
// PRE: Booking struct is populated
// POST: Returns nil if valid, error otherwise
func (b *Booking) Validate() error {
	if b.RunID == "" {
		return errors.New("booking must reference a run")
	}
	if b.MemberID == "" {
		return errors.New("booking must reference a member")
	}
	if b.BookedAt.IsZero() {
		return errors.New("booked-at time must be set")
	}
	if len(b.CancellationReason) > MaxReasonLength {
		return errors.New("cancellation reason cannot exceed 500 characters")
	}
	return nil
}

// IsActive returns true if the booking has not been cancelled.
func (b *Booking) IsActive() bool {
	return b.CancelledAt.IsZero()
}

// Cancel soft-deletes the booking. The row is kept; only CancelledAt and
// the reason change.
// PRE: Booking is active
// POST: CancelledAt = now, CancellationReason = trimmed reason
func (b *Booking) Cancel(now time.Time, reason string) error {
	if !b.IsActive() {
		return ErrAlreadyCancelled
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxReasonLength {
		return errors.New("cancellation reason cannot exceed 500 characters")
	}
	b.CancelledAt = now
	b.CancellationReason = reason
	return nil
}
