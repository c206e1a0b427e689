package invitation

import (
	"errors"
	"strings"
	"time"

	"runclub/internal/domain/member"
)

// TTL is how long an invitation stays valid.
const TTL = 14 * 24 * time.Hour

// Domain errors
var (
	ErrNotFound        = errors.New("invitation not found")
	ErrExpired         = errors.New("invitation has expired")
	ErrAlreadyAccepted = errors.New("invitation has already been used")
	ErrAlreadyMember   = errors.New("this email address already belongs to a member")
	ErrEmailMismatch   = errors.New("invitation was sent to a different email address")
)

// Invitation lets an admin invite someone to register, optionally at a
// raised access level.
type Invitation struct {
	ID          string
	Email       string
	Token       string
	InvitedBy   string // member ID
	AccessLevel string
	ExpiresAt   time.Time
	AcceptedAt  time.Time
	CreatedAt   time.Time
}

// Validate checks if the Invitation has valid data.
// PRE: Invitation struct is populated
// POST: Returns nil if valid, error otherwise
func (i *Invitation) Validate() error {
	if !strings.Contains(i.Email, "@") {
		return errors.New("invitation email must be valid")
	}
	if i.Token == "" {
		return errors.New("invitation token must be set")
	}
	if i.InvitedBy == "" {
		return errors.New("invitation must record who sent it")
	}
	if !member.IsValidAccessLevel(i.AccessLevel) {
		return member.ErrInvalidAccessLevel
	}
	if i.ExpiresAt.IsZero() {
		return errors.New("invitation expiry must be set")
	}
	return nil
}

// CheckUsable returns nil if the invitation can be redeemed by email at now.
// INVARIANT: Invitation fields are not mutated
func (i *Invitation) CheckUsable(email string, now time.Time) error {
	if !i.AcceptedAt.IsZero() {
		return ErrAlreadyAccepted
	}
	if now.After(i.ExpiresAt) {
		return ErrExpired
	}
	if !strings.EqualFold(strings.TrimSpace(email), i.Email) {
		return ErrEmailMismatch
	}
	return nil
}

// Accept marks the invitation used.
// PRE: CheckUsable returned nil
// POST: AcceptedAt = now
func (i *Invitation) Accept(now time.Time) {
	i.AcceptedAt = now
}
