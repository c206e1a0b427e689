package orchestrators

import (
	"context"
	"errors"
	"log/slog"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
)

// Access level errors.
var (
	ErrAdminOnly       = errors.New("only an admin can do this")
	ErrChangeOwnAccess = errors.New("admins cannot change their own access level")
)

// AccessLevelStore updates a member's access level.
type AccessLevelStore interface {
	UpdateAccessLevel(ctx context.Context, id, level string) error
}

// ChangeAccessLevelInput carries input for the access level orchestrator.
type ChangeAccessLevelInput struct {
	Identity    identity.Identity
	MemberID    string
	AccessLevel string
}

// ChangeAccessLevelDeps holds dependencies for ChangeAccessLevel.
type ChangeAccessLevelDeps struct {
	MemberStore AccessLevelStore
}

// ExecuteChangeAccessLevel sets a member to member, lirf or admin.
// PRE: Caller is an admin and not the target
// POST: Target's access level updated; takes effect on their next request
func ExecuteChangeAccessLevel(ctx context.Context, input ChangeAccessLevelInput, deps ChangeAccessLevelDeps) error {
	if !input.Identity.IsAuthenticated() {
		return booking.ErrAuthRequired
	}
	if !input.Identity.IsAdmin() {
		return ErrAdminOnly
	}
	if input.MemberID == input.Identity.MemberID {
		return ErrChangeOwnAccess
	}
	if !member.IsValidAccessLevel(input.AccessLevel) {
		return member.ErrInvalidAccessLevel
	}
	if err := deps.MemberStore.UpdateAccessLevel(ctx, input.MemberID, input.AccessLevel); err != nil {
		return err
	}
	slog.Info("member_event", "event", "access_level_changed", "member_id", input.MemberID,
		"access_level", input.AccessLevel, "by", input.Identity.MemberID)
	return nil
}
