// Package identity describes who is making a request.
//
// An Identity is resolved once per request by the HTTP layer and handed to
// every orchestrator as a plain value. Nothing in the application reads a
// process-wide "current user".
package identity

import "runclub/internal/domain/member"

// Identity is the immutable caller of an operation.
type Identity struct {
	AccountID   string
	MemberID    string
	Email       string
	AccessLevel string
}

// Anonymous is the zero identity.
var Anonymous = Identity{}

// IsAuthenticated returns true if the identity maps to a member.
func (i Identity) IsAuthenticated() bool {
	return i.MemberID != ""
}

// IsAdmin returns true for administrators.
func (i Identity) IsAdmin() bool {
	return i.AccessLevel == member.AccessAdmin
}

// CanLead returns true if the caller may volunteer as a LIRF or manage runs.
func (i Identity) CanLead() bool {
	return i.AccessLevel == member.AccessLirf || i.AccessLevel == member.AccessAdmin
}
