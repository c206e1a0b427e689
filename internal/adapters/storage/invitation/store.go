package invitation

import (
	"context"
	"time"

	domain "runclub/internal/domain/invitation"
)

// Store persists invitations.
type Store interface {
	Save(ctx context.Context, inv domain.Invitation) error
	GetByID(ctx context.Context, id string) (domain.Invitation, error)
	GetByToken(ctx context.Context, token string) (domain.Invitation, error)
	// MarkAccepted stamps accepted_at if the invitation is still unused.
	// POST: Updated, or domain.ErrAlreadyAccepted
	MarkAccepted(ctx context.Context, id string, at time.Time) error
	ListOpen(ctx context.Context, now time.Time) ([]domain.Invitation, error)
}
