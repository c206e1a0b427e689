package orchestrators

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runclub/internal/domain/account"
	"runclub/internal/domain/email"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/member"
	"runclub/internal/domain/registration"
)

const goodPassword = "correct-horse-battery"

func registerInput() RegisterInput {
	return RegisterInput{
		Email:                 "  Mia@Club.Test ",
		Password:              goodPassword,
		FullName:              "Mia Rowe",
		EmergencyContactName:  "Tom Rowe",
		EmergencyContactPhone: "021 555 0100",
	}
}

type registerFixture struct {
	accounts    *fakeAccounts
	pending     *fakePending
	members     *fakeMembers
	invitations *fakeInvitations
	outbox      *fakeOutbox
}

func newRegisterFixture() *registerFixture {
	return &registerFixture{
		accounts:    newFakeAccounts(),
		pending:     newFakePending(),
		members:     newFakeMembers(),
		invitations: newFakeInvitations(),
		outbox:      &fakeOutbox{},
	}
}

func (f *registerFixture) registerDeps() RegisterDeps {
	return RegisterDeps{
		AccountStore:    f.accounts,
		PendingStore:    f.pending,
		InvitationStore: f.invitations,
		Outbox:          f.outbox,
		GenerateID:      seqIDs(),
		GenerateToken:   func() string { return "tok-verify" },
		Now:             fixedNow,
		BaseURL:         "https://club.test/",
	}
}

func (f *registerFixture) verifyDeps(now time.Time) VerifyRegistrationDeps {
	return VerifyRegistrationDeps{
		PendingStore:      f.pending,
		AccountStore:      f.accounts,
		MemberStore:       f.members,
		InvitationStore:   f.invitations,
		Outbox:            f.outbox,
		GenerateID:        seqIDs(),
		Now:               func() time.Time { return now },
		ProfileRetryDelay: time.Millisecond,
	}
}

func TestExecuteRegister_ThenVerify(t *testing.T) {
	f := newRegisterFixture()
	p, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)

	assert.Equal(t, "mia@club.test", p.Email)
	assert.Equal(t, member.AccessMember, p.AccessLevel)
	assert.Equal(t, fixedTime.Add(registration.VerificationTTL), p.ExpiresAt)
	assert.NotEqual(t, goodPassword, p.PasswordHash)
	assert.Empty(t, f.accounts.byID, "no account before verification")

	msgs := f.outbox.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, email.TemplateVerifyRegistration, msgs[0].Template)
	assert.Contains(t, msgs[0].Markdown, "https://club.test/register/verify?token=tok-verify")

	who, err := ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "tok-verify"}, f.verifyDeps(fixedTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, who.IsAuthenticated())
	assert.Equal(t, member.AccessMember, who.AccessLevel)

	acct, err := f.accounts.GetByEmail(context.Background(), "mia@club.test")
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, acct.Status)
	require.NoError(t, acct.CheckPassword(goodPassword))

	m, err := f.members.GetByID(context.Background(), who.MemberID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, m.AccountID)
	assert.Equal(t, "Tom Rowe", m.EmergencyContactName)
	assert.Empty(t, f.pending.byID, "pending row removed")

	msgs = f.outbox.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, email.TemplateWelcome, msgs[1].Template)
}

func TestExecuteRegister_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RegisterInput)
		wantErr error
	}{
		{name: "empty email", mutate: func(in *RegisterInput) { in.Email = " " }, wantErr: account.ErrEmptyEmail},
		{name: "bad email", mutate: func(in *RegisterInput) { in.Email = "mia.club.test" }, wantErr: account.ErrInvalidEmail},
		{name: "short password", mutate: func(in *RegisterInput) { in.Password = "short" }, wantErr: account.ErrPasswordTooShort},
		{name: "email taken", mutate: func(in *RegisterInput) { in.Email = "taken@club.test" }, wantErr: account.ErrEmailTaken},
		{name: "unknown invitation", mutate: func(in *RegisterInput) { in.InvitationToken = "nope" }, wantErr: invitation.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegisterFixture()
			f.accounts.byID["acc-1"] = account.Account{ID: "acc-1", Email: "taken@club.test", Status: account.StatusActive}
			in := registerInput()
			tt.mutate(&in)
			_, err := ExecuteRegister(context.Background(), in, f.registerDeps())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.pending.byID)
			assert.Empty(t, f.outbox.entries)
		})
	}
}

func TestExecuteRegister_MissingEmergencyContact(t *testing.T) {
	f := newRegisterFixture()
	in := registerInput()
	in.EmergencyContactPhone = ""
	_, err := ExecuteRegister(context.Background(), in, f.registerDeps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emergency contact")
}

func TestExecuteRegister_ReplacesEarlierAttempt(t *testing.T) {
	f := newRegisterFixture()
	_, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)
	_, err = ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)
	assert.Len(t, f.pending.byID, 1)
}

func TestExecuteRegister_InvitationRaisesAccess(t *testing.T) {
	f := newRegisterFixture()
	f.invitations.byID["inv-1"] = invitation.Invitation{
		ID: "inv-1", Email: "mia@club.test", Token: "tok-invite", InvitedBy: "admin",
		AccessLevel: member.AccessLirf, ExpiresAt: fixedTime.Add(invitation.TTL), CreatedAt: fixedTime,
	}
	in := registerInput()
	in.InvitationToken = "tok-invite"

	p, err := ExecuteRegister(context.Background(), in, f.registerDeps())
	require.NoError(t, err)
	assert.Equal(t, member.AccessLirf, p.AccessLevel)
	assert.Equal(t, "inv-1", p.InvitationID)

	who, err := ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: p.Token}, f.verifyDeps(fixedTime))
	require.NoError(t, err)
	assert.True(t, who.CanLead())
	assert.Equal(t, fixedTime, f.invitations.byID["inv-1"].AcceptedAt)
}

func TestExecuteRegister_InvitationForSomeoneElse(t *testing.T) {
	f := newRegisterFixture()
	f.invitations.byID["inv-1"] = invitation.Invitation{
		ID: "inv-1", Email: "zoe@club.test", Token: "tok-invite", InvitedBy: "admin",
		AccessLevel: member.AccessLirf, ExpiresAt: fixedTime.Add(invitation.TTL),
	}
	in := registerInput()
	in.InvitationToken = "tok-invite"
	_, err := ExecuteRegister(context.Background(), in, f.registerDeps())
	assert.ErrorIs(t, err, invitation.ErrEmailMismatch)
}

func TestExecuteVerifyRegistration_Rejections(t *testing.T) {
	f := newRegisterFixture()
	_, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)

	_, err = ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{}, f.verifyDeps(fixedTime))
	assert.ErrorIs(t, err, registration.ErrTokenInvalid)

	_, err = ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "wrong"}, f.verifyDeps(fixedTime))
	assert.ErrorIs(t, err, registration.ErrTokenInvalid)

	late := fixedTime.Add(registration.VerificationTTL + time.Minute)
	_, err = ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "tok-verify"}, f.verifyDeps(late))
	assert.ErrorIs(t, err, registration.ErrTokenExpired)
	assert.Empty(t, f.accounts.byID)
}

func TestExecuteVerifyRegistration_ProfileRetry(t *testing.T) {
	tests := []struct {
		name      string
		saveFails int
		wantErr   error
		wantSaves int
	}{
		{name: "succeeds on retry", saveFails: 2, wantSaves: 3},
		{name: "gives up", saveFails: 5, wantErr: registration.ErrProfileCreation, wantSaves: DefaultProfileRetryAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegisterFixture()
			_, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
			require.NoError(t, err)
			f.members.saveFails = tt.saveFails

			_, err = ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "tok-verify"}, f.verifyDeps(fixedTime))
			assert.Equal(t, tt.wantSaves, f.members.saves)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotContains(t, err.Error(), "locked", "cause is logged, not shown")
				assert.Len(t, f.pending.byID, 1, "pending row kept for support")
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.members.byID, 1)
		})
	}
}

func TestExecuteVerifyRegistration_SecondAttemptAfterProfileFailure(t *testing.T) {
	f := newRegisterFixture()
	_, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)
	f.members.saveFails = DefaultProfileRetryAttempts

	_, err = ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "tok-verify"}, f.verifyDeps(fixedTime))
	require.ErrorIs(t, err, registration.ErrProfileCreation)

	who, err := ExecuteVerifyRegistration(context.Background(), VerifyRegistrationInput{Token: "tok-verify"}, f.verifyDeps(fixedTime))
	require.NoError(t, err)
	assert.Len(t, f.accounts.byID, 1, "account from the first attempt reused")
	assert.Equal(t, who.AccountID, f.members.byID[who.MemberID].AccountID)
}

func TestExecuteVerifyRegistration_RetryHonoursCancel(t *testing.T) {
	f := newRegisterFixture()
	_, err := ExecuteRegister(context.Background(), registerInput(), f.registerDeps())
	require.NoError(t, err)
	f.members.saveFails = 5

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	deps := f.verifyDeps(fixedTime)
	deps.ProfileRetryDelay = time.Hour

	_, err = ExecuteVerifyRegistration(ctx, VerifyRegistrationInput{Token: "tok-verify"}, deps)
	assert.ErrorIs(t, err, registration.ErrProfileCreation)
	assert.Equal(t, 1, f.members.saves)
}

func TestLinkWithToken(t *testing.T) {
	got := linkWithToken("https://club.test/", "/register", "a b&c")
	assert.Equal(t, "https://club.test/register?token=a+b%26c", got)
	assert.True(t, strings.HasPrefix(linkWithToken("", "/register", "x"), "/register"))
}
