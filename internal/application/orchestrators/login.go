package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"runclub/internal/domain/account"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
)

// AccountStoreForLogin defines the store interface needed by Login.
type AccountStoreForLogin interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// MemberStoreForLogin resolves the profile behind an account.
type MemberStoreForLogin interface {
	GetByAccountID(ctx context.Context, accountID string) (member.Member, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	AccountStore AccountStoreForLogin
	MemberStore  MemberStoreForLogin
	Now          func() time.Time
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is locked due to too many failed attempts")
	ErrPendingActivation  = errors.New("account is pending activation; check your email for the verification link")
	ErrNoProfile          = errors.New("this account has no member profile; please contact the club")
	ErrMembershipInactive = errors.New("your membership is not active; please contact the club")
)

// ExecuteLogin validates credentials and resolves the caller's identity.
// PRE: Valid email and password provided
// POST: Returns the identity on success, records failed login on failure
// INVARIANT: Account must not be locked
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (identity.Identity, error) {
	if input.Email == "" || input.Password == "" {
		return identity.Anonymous, ErrInvalidCredentials
	}
	now := deps.Now()

	acct, err := deps.AccountStore.GetByEmail(ctx, input.Email)
	if err != nil {
		slog.Info("auth_event", "event", "login_failed", "email", input.Email, "reason", "not_found")
		return identity.Anonymous, ErrInvalidCredentials
	}

	if acct.IsPendingActivation() {
		slog.Info("auth_event", "event", "login_blocked", "email", input.Email, "reason", "pending_activation")
		return identity.Anonymous, ErrPendingActivation
	}

	if acct.IsLocked(now) {
		slog.Info("auth_event", "event", "login_blocked", "email", input.Email, "reason", "locked")
		return identity.Anonymous, ErrAccountLocked
	}

	if err := acct.CheckPassword(input.Password); err != nil {
		acct.RecordFailedLogin(now)
		_ = deps.AccountStore.Save(ctx, acct)
		slog.Info("auth_event", "event", "login_failed", "email", input.Email, "reason", "wrong_password", "failed_logins", acct.FailedLogins)
		return identity.Anonymous, ErrInvalidCredentials
	}

	if acct.FailedLogins > 0 || !acct.LockedUntil.IsZero() {
		acct.ResetFailedLogins()
		_ = deps.AccountStore.Save(ctx, acct)
	}

	m, err := deps.MemberStore.GetByAccountID(ctx, acct.ID)
	if err != nil {
		slog.Warn("auth_event", "event", "login_blocked", "email", input.Email, "reason", "no_profile", "error", err.Error())
		return identity.Anonymous, ErrNoProfile
	}
	if !m.IsActive() {
		slog.Info("auth_event", "event", "login_blocked", "email", input.Email, "reason", "membership_"+m.MembershipStatus)
		return identity.Anonymous, ErrMembershipInactive
	}

	slog.Info("auth_event", "event", "login_success", "email", acct.Email, "access_level", m.AccessLevel)
	return IdentityOf(acct, m), nil
}

// IdentityOf builds the request identity for an account and its profile.
func IdentityOf(acct account.Account, m member.Member) identity.Identity {
	return identity.Identity{
		AccountID:   acct.ID,
		MemberID:    m.ID,
		Email:       acct.Email,
		AccessLevel: m.AccessLevel,
	}
}
