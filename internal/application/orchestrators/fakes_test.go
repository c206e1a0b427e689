package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"runclub/internal/domain/account"
	"runclub/internal/domain/attendance"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/member"
	"runclub/internal/domain/outbox"
	"runclub/internal/domain/registration"
	"runclub/internal/domain/run"
)

var fixedTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

// seqIDs returns a generator yielding id-1, id-2, ...
func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

var (
	adminID  = identity.Identity{AccountID: "acc-admin", MemberID: "admin", Email: "admin@club.test", AccessLevel: member.AccessAdmin}
	lirfID   = identity.Identity{AccountID: "acc-lena", MemberID: "lena", Email: "lena@club.test", AccessLevel: member.AccessLirf}
	runnerID = identity.Identity{AccountID: "acc-ravi", MemberID: "ravi", Email: "ravi@club.test", AccessLevel: member.AccessMember}
)

func tuesday5K() run.Run {
	return run.Run{
		ID:              "run-1",
		Title:           "Tuesday 5K",
		RunDate:         "2026-03-10",
		StartTime:       "18:30",
		MeetingPoint:    "Boathouse",
		DistanceKm:      5,
		MaxParticipants: 10,
		LirfsRequired:   1,
		Status:          run.StatusScheduled,
		CreatedBy:       "admin",
	}
}

// --- outbox ---

type fakeOutbox struct {
	entries []outbox.Entry
	err     error
}

func (f *fakeOutbox) Save(_ context.Context, e outbox.Entry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

// messages decodes every queued email.
func (f *fakeOutbox) messages(t *testing.T) []email.Message {
	t.Helper()
	out := make([]email.Message, 0, len(f.entries))
	for _, e := range f.entries {
		var m email.Message
		if err := json.Unmarshal([]byte(e.Payload), &m); err != nil {
			t.Fatalf("decode outbox payload: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// --- members ---

type fakeMembers struct {
	byID      map[string]member.Member
	saveFails int // Save fails this many times before succeeding
	saves     int
}

func newFakeMembers(ms ...member.Member) *fakeMembers {
	f := &fakeMembers{byID: make(map[string]member.Member)}
	for _, m := range ms {
		f.byID[m.ID] = m
	}
	return f
}

func testMember(id, level string) member.Member {
	return member.Member{
		ID:               id,
		AccountID:        "acc-" + id,
		FullName:         strings.ToUpper(id[:1]) + id[1:],
		Email:            id + "@club.test",
		AccessLevel:      level,
		MembershipStatus: member.StatusActive,
		CreatedAt:        fixedTime,
	}
}

func (f *fakeMembers) GetByID(_ context.Context, id string) (member.Member, error) {
	m, ok := f.byID[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (f *fakeMembers) GetByEmail(_ context.Context, addr string) (member.Member, error) {
	for _, m := range f.byID {
		if strings.EqualFold(m.Email, addr) {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (f *fakeMembers) GetByAccountID(_ context.Context, accountID string) (member.Member, error) {
	for _, m := range f.byID {
		if m.AccountID == accountID {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (f *fakeMembers) ListByIDs(_ context.Context, ids []string) ([]member.Member, error) {
	var out []member.Member
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMembers) Save(_ context.Context, m member.Member) error {
	f.saves++
	if f.saveFails > 0 {
		f.saveFails--
		return fmt.Errorf("database is locked")
	}
	f.byID[m.ID] = m
	return nil
}

func (f *fakeMembers) UpdateAccessLevel(_ context.Context, id, level string) error {
	m, ok := f.byID[id]
	if !ok {
		return member.ErrNotFound
	}
	m.AccessLevel = level
	f.byID[id] = m
	return nil
}

// --- runs ---

type fakeRuns struct {
	byID      map[string]run.Run
	created   []run.Run
	createErr error
	active    map[string]int // active booking counts for Edit/Delete
}

func newFakeRuns(rs ...run.Run) *fakeRuns {
	f := &fakeRuns{byID: make(map[string]run.Run), active: make(map[string]int)}
	for _, r := range rs {
		f.byID[r.ID] = r
	}
	return f
}

func (f *fakeRuns) GetByID(_ context.Context, id string) (run.Run, error) {
	r, ok := f.byID[id]
	if !ok {
		return run.Run{}, run.ErrNotFound
	}
	return r, nil
}

func (f *fakeRuns) Create(_ context.Context, runs ...run.Run) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, r := range runs {
		f.byID[r.ID] = r
	}
	f.created = append(f.created, runs...)
	return nil
}

func (f *fakeRuns) UpdateStatus(_ context.Context, r run.Run, fromStatus string) error {
	if f.byID[r.ID].Status != fromStatus {
		return run.ErrStatusChanged
	}
	f.byID[r.ID] = r
	return nil
}

func (f *fakeRuns) Edit(_ context.Context, id string, e run.Edit) (run.Run, error) {
	r, ok := f.byID[id]
	if !ok {
		return run.Run{}, run.ErrNotFound
	}
	if err := r.ApplyEdit(e, f.active[id]); err != nil {
		return run.Run{}, err
	}
	f.byID[id] = r
	return r, nil
}

func (f *fakeRuns) Delete(_ context.Context, id string, allow func(run.Run) error) error {
	r, ok := f.byID[id]
	if !ok {
		return run.ErrNotFound
	}
	if f.active[id] > 0 {
		return run.ErrHasBookings
	}
	if err := allow(r); err != nil {
		return err
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRuns) AssignLirf(_ context.Context, runID, memberID string) (run.Run, int, error) {
	r, ok := f.byID[runID]
	if !ok {
		return run.Run{}, 0, run.ErrNotFound
	}
	slot, err := r.AssignLirf(memberID)
	if err != nil {
		return run.Run{}, 0, err
	}
	f.byID[runID] = r
	return r, slot, nil
}

func (f *fakeRuns) UnassignLirf(_ context.Context, runID, memberID string) (run.Run, int, error) {
	r, ok := f.byID[runID]
	if !ok {
		return run.Run{}, 0, run.ErrNotFound
	}
	slot, err := r.UnassignLirf(memberID)
	if err != nil {
		return run.Run{}, 0, err
	}
	f.byID[runID] = r
	return r, slot, nil
}

// --- bookings ---

type fakeBookings struct {
	byID     map[string]booking.Booking
	admitErr error
}

func newFakeBookings(bs ...booking.Booking) *fakeBookings {
	f := &fakeBookings{byID: make(map[string]booking.Booking)}
	for _, b := range bs {
		f.byID[b.ID] = b
	}
	return f
}

func (f *fakeBookings) Admit(_ context.Context, b booking.Booking) error {
	if f.admitErr != nil {
		return f.admitErr
	}
	f.byID[b.ID] = b
	return nil
}

func (f *fakeBookings) GetByID(_ context.Context, id string) (booking.Booking, error) {
	b, ok := f.byID[id]
	if !ok {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) Cancel(_ context.Context, b booking.Booking) error {
	stored := f.byID[b.ID]
	if !stored.IsActive() {
		return booking.ErrAlreadyCancelled
	}
	f.byID[b.ID] = b
	return nil
}

func (f *fakeBookings) ListActiveByRun(_ context.Context, runID string) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range f.byID {
		if b.RunID == runID && b.IsActive() {
			out = append(out, b)
		}
	}
	return out, nil
}

// --- attendance ---

type fakeAttendance struct {
	upserted []attendance.Record
}

func (f *fakeAttendance) Upsert(_ context.Context, recs []attendance.Record) error {
	f.upserted = append(f.upserted, recs...)
	return nil
}

// --- accounts ---

type fakeAccounts struct {
	byID map[string]account.Account
}

func newFakeAccounts(as ...account.Account) *fakeAccounts {
	f := &fakeAccounts{byID: make(map[string]account.Account)}
	for _, a := range as {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) GetByID(_ context.Context, id string) (account.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, addr string) (account.Account, error) {
	addr = account.NormalizeEmail(addr)
	for _, a := range f.byID {
		if a.Email == addr {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (f *fakeAccounts) Save(_ context.Context, a account.Account) error {
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAccounts) Count(_ context.Context) (int, error) {
	return len(f.byID), nil
}

// --- pending registrations ---

type fakePending struct {
	byID map[string]registration.Pending
}

func newFakePending() *fakePending {
	return &fakePending{byID: make(map[string]registration.Pending)}
}

func (f *fakePending) Save(_ context.Context, p registration.Pending) error {
	for id, old := range f.byID {
		if old.Email == p.Email {
			delete(f.byID, id)
		}
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakePending) GetByToken(_ context.Context, token string) (registration.Pending, error) {
	for _, p := range f.byID {
		if p.Token == token {
			return p, nil
		}
	}
	return registration.Pending{}, registration.ErrTokenInvalid
}

func (f *fakePending) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

// --- invitations ---

type fakeInvitations struct {
	byID map[string]invitation.Invitation
}

func newFakeInvitations(invs ...invitation.Invitation) *fakeInvitations {
	f := &fakeInvitations{byID: make(map[string]invitation.Invitation)}
	for _, inv := range invs {
		f.byID[inv.ID] = inv
	}
	return f
}

func (f *fakeInvitations) Save(_ context.Context, inv invitation.Invitation) error {
	f.byID[inv.ID] = inv
	return nil
}

func (f *fakeInvitations) GetByToken(_ context.Context, token string) (invitation.Invitation, error) {
	for _, inv := range f.byID {
		if inv.Token == token {
			return inv, nil
		}
	}
	return invitation.Invitation{}, invitation.ErrNotFound
}

func (f *fakeInvitations) MarkAccepted(_ context.Context, id string, at time.Time) error {
	inv, ok := f.byID[id]
	if !ok {
		return invitation.ErrNotFound
	}
	if !inv.AcceptedAt.IsZero() {
		return invitation.ErrAlreadyAccepted
	}
	inv.AcceptedAt = at
	f.byID[id] = inv
	return nil
}

// isActive reports whether booking id is stored and active.
func (f *fakeBookings) isActive(id string) bool {
	b, ok := f.byID[id]
	return ok && b.IsActive()
}
