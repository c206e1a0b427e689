package outbox

import (
	"context"
	"time"

	domain "runclub/internal/domain/outbox"
)

// Store persists queued notifications.
type Store interface {
	// GetByID returns the entry or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save inserts or updates an entry.
	// PRE: entry has been validated
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns up to limit pending or retrying entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns up to limit entries that exhausted their attempts,
	// most recently attempted first.
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// PurgeFinished deletes done and abandoned entries created before cutoff.
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}
