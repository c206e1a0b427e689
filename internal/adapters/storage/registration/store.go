package registration

import (
	"context"
	"time"

	domain "runclub/internal/domain/registration"
)

// Store persists pending registrations until they are verified.
type Store interface {
	// Save inserts p, replacing any earlier pending registration for the
	// same email.
	// PRE: p has been validated
	Save(ctx context.Context, p domain.Pending) error

	// GetByToken returns the pending registration for a verification token.
	// POST: Returns the registration or domain.ErrTokenInvalid
	GetByToken(ctx context.Context, token string) (domain.Pending, error)

	// Delete removes a pending registration once it has been promoted.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes registrations whose link expired before cutoff.
	// POST: Returns the number removed
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
