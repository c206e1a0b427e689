package booking

import (
	"context"

	domain "runclub/internal/domain/booking"
)

// Store defines the interface for Booking persistence.
type Store interface {
	// Admit runs the admission check and inserts b under the run lock.
	// PRE: b has an ID, RunID, MemberID and BookedAt
	// POST: b is persisted as an active booking, or a *domain.Error explains
	// why not: ErrAlreadyBooked, ErrLirfConflict, ErrRunFull, or General when
	// the run is missing or not open for booking
	// INVARIANT: active bookings for the run never exceed max_participants
	Admit(ctx context.Context, b domain.Booking) error

	// GetByID retrieves a booking by its ID.
	// PRE: id is non-empty
	// POST: Returns the booking or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Booking, error)

	// GetActive returns memberID's active booking on runID.
	// POST: Returns the booking or domain.ErrNotFound
	GetActive(ctx context.Context, runID, memberID string) (domain.Booking, error)

	// Cancel persists a cancellation made with domain.Booking.Cancel.
	// PRE: b.CancelledAt is set
	// POST: Row updated, or domain.ErrAlreadyCancelled if it was already cancelled
	Cancel(ctx context.Context, b domain.Booking) error

	// CountActive returns the number of active bookings on runID.
	CountActive(ctx context.Context, runID string) (int, error)

	// CountActiveByRuns returns active booking counts keyed by run ID.
	// Runs with no active bookings are absent from the map.
	CountActiveByRuns(ctx context.Context, runIDs []string) (map[string]int, error)

	// ListActiveByRun returns the active bookings on runID, oldest first.
	ListActiveByRun(ctx context.Context, runID string) ([]domain.Booking, error)

	// ListByMember returns every booking memberID has made, newest first.
	ListByMember(ctx context.Context, memberID string) ([]domain.Booking, error)
}
