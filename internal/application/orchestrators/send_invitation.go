package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"runclub/internal/domain/account"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/member"
)

// InvitationWriter saves invitations.
type InvitationWriter interface {
	Save(ctx context.Context, inv invitation.Invitation) error
}

// MemberByEmail finds a member by email.
type MemberByEmail interface {
	GetByEmail(ctx context.Context, email string) (member.Member, error)
	GetByID(ctx context.Context, id string) (member.Member, error)
}

// SendInvitationInput carries input for the invitation orchestrator.
type SendInvitationInput struct {
	Identity    identity.Identity
	Email       string
	AccessLevel string // defaults to member
}

// SendInvitationDeps holds dependencies for SendInvitation.
type SendInvitationDeps struct {
	InvitationStore InvitationWriter
	MemberStore     MemberByEmail
	Outbox          OutboxWriter
	GenerateID      func() string
	GenerateToken   func() string
	Now             func() time.Time
	BaseURL         string
}

// ExecuteSendInvitation invites someone to register, optionally at a
// raised access level, and emails them a registration link.
// PRE: Caller is an admin; Email does not belong to a member
// POST: Invitation stored with a 14-day expiry and an email enqueued
func ExecuteSendInvitation(ctx context.Context, input SendInvitationInput, deps SendInvitationDeps) (invitation.Invitation, error) {
	if !input.Identity.IsAuthenticated() {
		return invitation.Invitation{}, booking.ErrAuthRequired
	}
	if !input.Identity.IsAdmin() {
		return invitation.Invitation{}, ErrAdminOnly
	}

	addr := account.NormalizeEmail(input.Email)
	if _, err := deps.MemberStore.GetByEmail(ctx, addr); err == nil {
		return invitation.Invitation{}, invitation.ErrAlreadyMember
	} else if !errors.Is(err, member.ErrNotFound) {
		return invitation.Invitation{}, err
	}

	level := input.AccessLevel
	if level == "" {
		level = member.AccessMember
	}
	now := deps.Now()
	inv := invitation.Invitation{
		ID:          deps.GenerateID(),
		Email:       addr,
		Token:       deps.GenerateToken(),
		InvitedBy:   input.Identity.MemberID,
		AccessLevel: level,
		ExpiresAt:   now.Add(invitation.TTL),
		CreatedAt:   now,
	}
	if err := inv.Validate(); err != nil {
		return invitation.Invitation{}, invalid(err)
	}
	if err := deps.InvitationStore.Save(ctx, inv); err != nil {
		return invitation.Invitation{}, err
	}

	slog.Info("member_event", "event", "invitation_sent", "invitation_id", inv.ID, "email", addr,
		"access_level", level, "by", input.Identity.MemberID)

	inviter := "The club"
	if m, err := deps.MemberStore.GetByID(ctx, input.Identity.MemberID); err == nil {
		inviter = m.FullName
	}
	link := linkWithToken(deps.BaseURL, "/register", inv.Token)
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, now, email.Invitation(addr, inviter, link))
	return inv, nil
}
