package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"runclub/internal/domain/account"
	"runclub/internal/domain/member"
)

// ErrAlreadySeeded is returned when accounts already exist.
var ErrAlreadySeeded = errors.New("accounts already exist; the first admin has been created")

// AccountCounter counts and saves accounts.
type AccountCounter interface {
	Count(ctx context.Context) (int, error)
	Save(ctx context.Context, a account.Account) error
}

// SeedAdminInput carries the first administrator's details.
type SeedAdminInput struct {
	Email    string
	Password string
	FullName string
}

// SeedAdminDeps holds dependencies for SeedAdmin.
type SeedAdminDeps struct {
	AccountStore AccountCounter
	MemberStore  MemberWriter
	GenerateID   func() string
	Now          func() time.Time
}

// ExecuteSeedAdmin creates an admin account and profile if no accounts exist.
// PRE: Database is migrated
// POST: Admin account and member created, or ErrAlreadySeeded with no change
func ExecuteSeedAdmin(ctx context.Context, input SeedAdminInput, deps SeedAdminDeps) (member.Member, error) {
	count, err := deps.AccountStore.Count(ctx)
	if err != nil {
		return member.Member{}, err
	}
	if count > 0 {
		return member.Member{}, ErrAlreadySeeded
	}

	now := deps.Now()
	acct := account.Account{
		ID:        deps.GenerateID(),
		Email:     account.NormalizeEmail(input.Email),
		Status:    account.StatusActive,
		CreatedAt: now,
	}
	if err := acct.SetPassword(input.Password); err != nil {
		return member.Member{}, err
	}
	if err := acct.Validate(); err != nil {
		return member.Member{}, err
	}

	name := strings.TrimSpace(input.FullName)
	if name == "" {
		name = "Club Admin"
	}
	m := member.Member{
		ID:               deps.GenerateID(),
		AccountID:        acct.ID,
		FullName:         name,
		Email:            acct.Email,
		AccessLevel:      member.AccessAdmin,
		MembershipStatus: member.StatusActive,
		CreatedAt:        now,
	}
	if err := m.Validate(); err != nil {
		return member.Member{}, err
	}

	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Save(ctx, m); err != nil {
		return member.Member{}, err
	}

	slog.Info("auth_event", "event", "admin_seeded", "email", acct.Email, "member_id", m.ID)
	return m, nil
}
