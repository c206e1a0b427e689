package registration

import (
	"errors"
	"strings"
	"time"

	"runclub/internal/domain/member"
)

// VerificationTTL is how long a verification link stays valid.
const VerificationTTL = 48 * time.Hour

// Domain errors
var (
	ErrTokenInvalid    = errors.New("verification link is invalid")
	ErrTokenExpired    = errors.New("verification link has expired")
	ErrProfileCreation = errors.New("your account was verified but we could not create your member profile; please contact the club")
)

// Pending is a registration awaiting email verification. It is promoted to
// an account and member profile once verified, then removed.
type Pending struct {
	ID                    string
	Email                 string
	PasswordHash          string
	FullName              string
	Phone                 string
	EmergencyContactName  string
	EmergencyContactPhone string
	HealthNotes           string
	AccessLevel           string
	InvitationID          string
	Token                 string
	ExpiresAt             time.Time
	CreatedAt             time.Time
}

// Validate checks if the Pending registration has valid data.
// PRE: Pending struct is populated
// POST: Returns nil if valid, error otherwise
func (p *Pending) Validate() error {
	if strings.TrimSpace(p.FullName) == "" {
		return errors.New("name cannot be empty")
	}
	if len(p.FullName) > member.MaxNameLength {
		return errors.New("name cannot exceed 100 characters")
	}
	if !strings.Contains(p.Email, "@") {
		return errors.New("email must be valid")
	}
	if p.PasswordHash == "" {
		return errors.New("password hash must be set")
	}
	if strings.TrimSpace(p.EmergencyContactName) == "" || strings.TrimSpace(p.EmergencyContactPhone) == "" {
		return errors.New("an emergency contact name and phone number are required")
	}
	if len(p.HealthNotes) > member.MaxHealthNotesLength {
		return errors.New("health notes cannot exceed 2000 characters")
	}
	if !member.IsValidAccessLevel(p.AccessLevel) {
		return member.ErrInvalidAccessLevel
	}
	if p.Token == "" {
		return errors.New("verification token must be set")
	}
	return nil
}

// IsExpired returns true if the verification link has expired.
// INVARIANT: Pending fields are not mutated
func (p *Pending) IsExpired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ToMember builds the member profile created on verification.
// PRE: Pending is valid
// POST: Returns an active member linked to accountID
func (p *Pending) ToMember(id, accountID string, now time.Time) member.Member {
	return member.Member{
		ID:                    id,
		AccountID:             accountID,
		FullName:              p.FullName,
		Email:                 p.Email,
		Phone:                 p.Phone,
		EmergencyContactName:  p.EmergencyContactName,
		EmergencyContactPhone: p.EmergencyContactPhone,
		HealthNotes:           p.HealthNotes,
		AccessLevel:           p.AccessLevel,
		MembershipStatus:      member.StatusActive,
		CreatedAt:             now,
	}
}
