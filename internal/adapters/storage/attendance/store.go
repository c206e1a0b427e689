package attendance

import (
	"context"

	domain "runclub/internal/domain/attendance"
)

// Store persists attendance records.
type Store interface {
	// Upsert writes every record in one transaction, replacing any earlier
	// mark for the same (run, member).
	// PRE: every record has been validated and has an ID
	// POST: All records persisted or none is
	Upsert(ctx context.Context, recs []domain.Record) error

	// ListByRun returns the records for runID ordered by marked_at.
	ListByRun(ctx context.Context, runID string) ([]domain.Record, error)

	// CountPresentByMember returns how many runs memberID has been marked
	// present on.
	CountPresentByMember(ctx context.Context, memberID string) (int, error)
}
