package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"runclub/internal/domain/account"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/member"
	"runclub/internal/domain/registration"
)

// Defaults for profile creation after verification.
const (
	DefaultProfileRetryAttempts = 3
	DefaultProfileRetryDelay    = 500 * time.Millisecond
)

// PendingStore persists registrations awaiting verification.
type PendingStore interface {
	Save(ctx context.Context, p registration.Pending) error
	GetByToken(ctx context.Context, token string) (registration.Pending, error)
	Delete(ctx context.Context, id string) error
}

// AccountLookup finds accounts by email.
type AccountLookup interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
}

// InvitationRedeemer reads and redeems invitations.
type InvitationRedeemer interface {
	GetByToken(ctx context.Context, token string) (invitation.Invitation, error)
	MarkAccepted(ctx context.Context, id string, at time.Time) error
}

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	Email                 string
	Password              string
	FullName              string
	Phone                 string
	EmergencyContactName  string
	EmergencyContactPhone string
	HealthNotes           string
	InvitationToken       string // optional
}

// RegisterDeps holds dependencies for Register.
type RegisterDeps struct {
	AccountStore    AccountLookup
	PendingStore    PendingStore
	InvitationStore InvitationRedeemer // optional unless InvitationToken is set
	Outbox          OutboxWriter
	GenerateID      func() string
	GenerateToken   func() string
	Now             func() time.Time
	BaseURL         string // public site root for the verification link
}

// ExecuteRegister records a pending registration and emails a verification
// link. No account exists until the link is followed.
// PRE: Password meets the account policy; emergency contact supplied
// POST: One pending registration for the email, replacing any earlier one
func ExecuteRegister(ctx context.Context, input RegisterInput, deps RegisterDeps) (registration.Pending, error) {
	addr := account.NormalizeEmail(input.Email)
	if addr == "" {
		return registration.Pending{}, account.ErrEmptyEmail
	}
	if !strings.Contains(addr, "@") || len(addr) > account.MaxEmailLength {
		return registration.Pending{}, account.ErrInvalidEmail
	}

	if _, err := deps.AccountStore.GetByEmail(ctx, addr); err == nil {
		return registration.Pending{}, account.ErrEmailTaken
	} else if !errors.Is(err, account.ErrNotFound) {
		return registration.Pending{}, err
	}

	now := deps.Now()
	level := member.AccessMember
	var invitationID string
	if input.InvitationToken != "" {
		if deps.InvitationStore == nil {
			return registration.Pending{}, invitation.ErrNotFound
		}
		inv, err := deps.InvitationStore.GetByToken(ctx, input.InvitationToken)
		if err != nil {
			return registration.Pending{}, err
		}
		if err := inv.CheckUsable(addr, now); err != nil {
			return registration.Pending{}, err
		}
		level = inv.AccessLevel
		invitationID = inv.ID
	}

	hash, err := account.HashPassword(input.Password)
	if err != nil {
		return registration.Pending{}, invalid(err)
	}

	p := registration.Pending{
		ID:                    deps.GenerateID(),
		Email:                 addr,
		PasswordHash:          hash,
		FullName:              strings.TrimSpace(input.FullName),
		Phone:                 strings.TrimSpace(input.Phone),
		EmergencyContactName:  strings.TrimSpace(input.EmergencyContactName),
		EmergencyContactPhone: strings.TrimSpace(input.EmergencyContactPhone),
		HealthNotes:           input.HealthNotes,
		AccessLevel:           level,
		InvitationID:          invitationID,
		Token:                 deps.GenerateToken(),
		ExpiresAt:             now.Add(registration.VerificationTTL),
		CreatedAt:             now,
	}
	if err := p.Validate(); err != nil {
		return registration.Pending{}, invalid(err)
	}
	if err := deps.PendingStore.Save(ctx, p); err != nil {
		return registration.Pending{}, err
	}

	slog.Info("auth_event", "event", "registration_pending", "email", addr, "access_level", level, "invited", invitationID != "")
	link := linkWithToken(deps.BaseURL, "/register/verify", p.Token)
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, now, email.VerifyRegistration(addr, p.FullName, link))
	return p, nil
}

// linkWithToken joins base and path and appends token as a query parameter.
func linkWithToken(base, path, token string) string {
	return strings.TrimRight(base, "/") + path + "?token=" + url.QueryEscape(token)
}

// AccountStoreForVerify finds and saves accounts during verification.
type AccountStoreForVerify interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// MemberWriter saves member profiles.
type MemberWriter interface {
	Save(ctx context.Context, m member.Member) error
}

// VerifyRegistrationInput carries the token from the verification link.
type VerifyRegistrationInput struct {
	Token string
}

// VerifyRegistrationDeps holds dependencies for VerifyRegistration.
type VerifyRegistrationDeps struct {
	PendingStore         PendingStore
	AccountStore         AccountStoreForVerify
	MemberStore          MemberWriter
	InvitationStore      InvitationRedeemer // optional
	Outbox               OutboxWriter       // optional
	GenerateID           func() string
	Now                  func() time.Time
	ProfileRetryAttempts int
	ProfileRetryDelay    time.Duration
}

// ExecuteVerifyRegistration promotes a pending registration to an account
// and member profile. Profile creation is retried a fixed number of times;
// after that the caller gets registration.ErrProfileCreation and the cause
// is only logged.
// PRE: Token came from a verification email
// POST: Account and member exist and the pending row is gone, or an error
func ExecuteVerifyRegistration(ctx context.Context, input VerifyRegistrationInput, deps VerifyRegistrationDeps) (identity.Identity, error) {
	if input.Token == "" {
		return identity.Anonymous, registration.ErrTokenInvalid
	}
	p, err := deps.PendingStore.GetByToken(ctx, input.Token)
	if err != nil {
		return identity.Anonymous, err
	}
	now := deps.Now()
	if p.IsExpired(now) {
		slog.Info("auth_event", "event", "verification_expired", "email", p.Email)
		return identity.Anonymous, registration.ErrTokenExpired
	}

	acct, err := accountFor(ctx, p, deps, now)
	if err != nil {
		return identity.Anonymous, err
	}

	m := p.ToMember(deps.GenerateID(), acct.ID, now)
	if err := saveProfileWithRetry(ctx, deps, m); err != nil {
		slog.Error("auth_event", "event", "profile_creation_failed", "email", p.Email, "account_id", acct.ID, "error", err.Error())
		return identity.Anonymous, registration.ErrProfileCreation
	}

	if p.InvitationID != "" && deps.InvitationStore != nil {
		if err := deps.InvitationStore.MarkAccepted(ctx, p.InvitationID, now); err != nil {
			slog.Warn("auth_event", "event", "invitation_accept_failed", "invitation_id", p.InvitationID, "error", err.Error())
		}
	}
	if err := deps.PendingStore.Delete(ctx, p.ID); err != nil {
		slog.Warn("auth_event", "event", "pending_cleanup_failed", "pending_id", p.ID, "error", err.Error())
	}

	slog.Info("auth_event", "event", "registration_verified", "email", p.Email, "member_id", m.ID, "access_level", m.AccessLevel)
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, now, email.Welcome(m.Email, m.FullName))
	return IdentityOf(acct, m), nil
}

// accountFor creates the account for p. An account left behind by an
// earlier verification of the same registration, whose profile step
// failed, is reused.
func accountFor(ctx context.Context, p registration.Pending, deps VerifyRegistrationDeps, now time.Time) (account.Account, error) {
	existing, err := deps.AccountStore.GetByEmail(ctx, p.Email)
	switch {
	case err == nil && existing.PasswordHash == p.PasswordHash:
		return existing, nil
	case err == nil:
		return account.Account{}, account.ErrEmailTaken
	case !errors.Is(err, account.ErrNotFound):
		return account.Account{}, err
	}

	acct := account.Account{
		ID:           deps.GenerateID(),
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		Status:       account.StatusActive,
		CreatedAt:    now,
	}
	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// saveProfileWithRetry saves m, retrying on failure with a fixed delay.
func saveProfileWithRetry(ctx context.Context, deps VerifyRegistrationDeps, m member.Member) error {
	attempts := deps.ProfileRetryAttempts
	if attempts <= 0 {
		attempts = DefaultProfileRetryAttempts
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = deps.MemberStore.Save(ctx, m)
		if lastErr == nil {
			return nil
		}
		slog.Warn("auth_event", "event", "profile_creation_retry", "member_id", m.ID, "attempt", i, "error", lastErr.Error())
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(deps.ProfileRetryDelay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
