package orchestrators

import (
	"context"

	"runclub/internal/domain/account"
	"runclub/internal/domain/identity"
)

// AccountByID loads an account by its ID.
type AccountByID interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// ResolveIdentityDeps holds dependencies for ResolveIdentity.
type ResolveIdentityDeps struct {
	AccountStore AccountByID
	MemberStore  MemberStoreForLogin
}

// ResolveIdentity rebuilds the caller's identity from an account ID carried
// by a session or bearer token. It reads the member row every time, so
// access level changes and suspensions apply on the next request.
// PRE: accountID came from a session or a verified token
// POST: Returns the identity, or identity.Anonymous with an error
func ResolveIdentity(ctx context.Context, accountID string, deps ResolveIdentityDeps) (identity.Identity, error) {
	if accountID == "" {
		return identity.Anonymous, ErrInvalidCredentials
	}
	acct, err := deps.AccountStore.GetByID(ctx, accountID)
	if err != nil {
		return identity.Anonymous, err
	}
	if acct.IsPendingActivation() {
		return identity.Anonymous, ErrPendingActivation
	}
	m, err := deps.MemberStore.GetByAccountID(ctx, acct.ID)
	if err != nil {
		return identity.Anonymous, ErrNoProfile
	}
	if !m.IsActive() {
		return identity.Anonymous, ErrMembershipInactive
	}
	return IdentityOf(acct, m), nil
}
