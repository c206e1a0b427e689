package member

import (
	"context"

	domain "runclub/internal/domain/member"
)

// Store persists Member state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Member, error)
	GetByEmail(ctx context.Context, email string) (domain.Member, error)
	GetByAccountID(ctx context.Context, accountID string) (domain.Member, error)
	Save(ctx context.Context, value domain.Member) error
	UpdateAccessLevel(ctx context.Context, id, level string) error
	ListByIDs(ctx context.Context, ids []string) ([]domain.Member, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Member, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit       int
	Offset      int
	AccessLevel string
	Status      string
	Search      string
	Sort        string
	Dir         string
}
