package member

import (
	"errors"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength        = 100
	MaxHealthNotesLength = 2000
)

// Access levels. A LIRF may lead runs; an admin may do everything.
const (
	AccessMember = "member"
	AccessLirf   = "lirf"
	AccessAdmin  = "admin"
)

// Membership status constants
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// ValidAccessLevels contains all valid access level values.
var ValidAccessLevels = []string{AccessMember, AccessLirf, AccessAdmin}

// Domain errors
var (
	ErrInvalidAccessLevel = errors.New("access level must be one of: member, lirf, admin")
	ErrNotFound           = errors.New("member not found")
	ErrSuspended          = errors.New("membership is suspended")
)

// Member is a club member's profile.
type Member struct {
	ID                    string
	AccountID             string
	FullName              string
	Email                 string
	Phone                 string
	EmergencyContactName  string
	EmergencyContactPhone string
	HealthNotes           string
	AccessLevel           string
	MembershipStatus      string
	CreatedAt             time.Time
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: Email must contain '@', FullName must not be empty
func (m *Member) Validate() error {
	if strings.TrimSpace(m.FullName) == "" {
		return errors.New("member name cannot be empty")
	}
	if len(m.FullName) > MaxNameLength {
		return errors.New("member name cannot exceed 100 characters")
	}
	if !strings.Contains(m.Email, "@") {
		return errors.New("member email must be valid")
	}
	if len(m.HealthNotes) > MaxHealthNotesLength {
		return errors.New("health notes cannot exceed 2000 characters")
	}
	if !IsValidAccessLevel(m.AccessLevel) {
		return ErrInvalidAccessLevel
	}
	switch m.MembershipStatus {
	case StatusActive, StatusInactive, StatusSuspended:
	default:
		return errors.New("membership status must be 'active', 'inactive', or 'suspended'")
	}
	return nil
}

// IsActive returns true if the membership is currently active.
func (m *Member) IsActive() bool {
	return m.MembershipStatus == StatusActive
}

// CanLead returns true if the member may take a LIRF slot on a run.
func (m *Member) CanLead() bool {
	return m.AccessLevel == AccessLirf || m.AccessLevel == AccessAdmin
}

// IsValidAccessLevel reports whether level is a known access level.
func IsValidAccessLevel(level string) bool {
	for _, l := range ValidAccessLevels {
		if l == level {
			return true
		}
	}
	return false
}
