package identity_test

import (
	"testing"

	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name          string
		id            identity.Identity
		authenticated bool
		admin         bool
		lead          bool
	}{
		{"anonymous", identity.Anonymous, false, false, false},
		{"member", identity.Identity{MemberID: "m", AccessLevel: member.AccessMember}, true, false, false},
		{"lirf", identity.Identity{MemberID: "m", AccessLevel: member.AccessLirf}, true, false, true},
		{"admin", identity.Identity{MemberID: "m", AccessLevel: member.AccessAdmin}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.IsAuthenticated(); got != tt.authenticated {
				t.Errorf("IsAuthenticated() = %v", got)
			}
			if got := tt.id.IsAdmin(); got != tt.admin {
				t.Errorf("IsAdmin() = %v", got)
			}
			if got := tt.id.CanLead(); got != tt.lead {
				t.Errorf("CanLead() = %v", got)
			}
		})
	}
}
