package run

import (
	"context"

	domain "runclub/internal/domain/run"
)

// Store defines the interface for Run persistence.
type Store interface {
	// GetByID retrieves a run by its ID.
	// PRE: id is non-empty
	// POST: Returns the run or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Run, error)

	// Create inserts one or more runs in a single transaction.
	// PRE: every run has been validated and has an ID
	// POST: All runs are persisted or none is
	Create(ctx context.Context, runs ...domain.Run) error

	// ListBetween returns runs with fromDate <= run_date <= toDate.
	// PRE: dates are YYYY-MM-DD
	// POST: Ordered by run_date, start_time
	ListBetween(ctx context.Context, fromDate, toDate string) ([]domain.Run, error)

	// ListByIDs returns the runs with the given IDs, in any order.
	ListByIDs(ctx context.Context, ids []string) ([]domain.Run, error)

	// Edit applies e under the run lock, checking it against the current
	// active booking count and filled slots.
	// PRE: id is non-empty
	// POST: Returns the updated run, or an error with no change
	Edit(ctx context.Context, id string, e domain.Edit) (domain.Run, error)

	// Delete removes a run under the run lock. allow is called with the
	// locked row and may veto the delete.
	// PRE: id is non-empty
	// POST: Run removed, or domain.ErrHasBookings / allow's error with no change
	Delete(ctx context.Context, id string, allow func(domain.Run) error) error

	// AssignLirf puts memberID into the first open slot under the run lock.
	// PRE: memberID may lead runs
	// POST: Returns the run and 1-based slot, or an error with no slot changed.
	// Errors: domain.ErrPositionsFilled, domain.ErrAlreadyAssigned,
	// booking.ErrLirfConflict when memberID holds an active booking.
	AssignLirf(ctx context.Context, runID, memberID string) (domain.Run, int, error)

	// UnassignLirf clears memberID's slot under the run lock and compacts
	// the remaining slots.
	// POST: Returns the run and the cleared slot, or domain.ErrNotAssigned
	UnassignLirf(ctx context.Context, runID, memberID string) (domain.Run, int, error)

	// UpdateStatus writes r's lifecycle fields only if the stored status is
	// still fromStatus.
	// PRE: r has been transitioned in memory
	// POST: Persisted, or domain.ErrStatusChanged when another writer won
	UpdateStatus(ctx context.Context, r domain.Run, fromStatus string) error
}
