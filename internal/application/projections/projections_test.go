package projections

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attendanceStore "runclub/internal/adapters/storage/attendance"
	bookingStore "runclub/internal/adapters/storage/booking"
	memberStore "runclub/internal/adapters/storage/member"
	runStore "runclub/internal/adapters/storage/run"
	"runclub/internal/adapters/storage/storagetest"
	"runclub/internal/application/listutil"
	"runclub/internal/domain/attendance"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/member"
	"runclub/internal/domain/run"
)

var (
	lena  = identity.Identity{AccountID: "acc-lena", MemberID: "lena", AccessLevel: member.AccessLirf}
	ravi  = identity.Identity{AccountID: "acc-ravi", MemberID: "ravi", AccessLevel: member.AccessMember}
	admin = identity.Identity{AccountID: "acc-admin", MemberID: "admin", AccessLevel: member.AccessAdmin}
)

func clubNow() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

type fixture struct {
	db         *sqlx.DB
	runs       *runStore.SQLStore
	bookings   *bookingStore.SQLStore
	members    *memberStore.SQLStore
	attendance *attendanceStore.SQLStore
}

// newFixture seeds a club with two runs: Tuesday 5K (capacity 2, led by
// lena, booked by ravi) and Thursday Hills a week later.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.OpenDB(t)
	storagetest.InsertMember(t, db, "admin", "Ada Admin", member.AccessAdmin)
	storagetest.InsertMember(t, db, "lena", "Lena Lirf", member.AccessLirf)
	storagetest.InsertMember(t, db, "ravi", "Ravi Runner", member.AccessMember)
	storagetest.InsertMember(t, db, "sam", "Sam Walkup", member.AccessMember)
	storagetest.InsertMember(t, db, "bea", "Bea Walkup", member.AccessMember)
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "run-1", MaxParticipants: 2})
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "run-2", Title: "Thursday Hills", RunDate: "2026-03-19"})
	storagetest.InsertRun(t, db, storagetest.RunFixture{ID: "run-old", Title: "Last Month", RunDate: "2026-02-01"})

	f := &fixture{
		db:         db,
		runs:       runStore.NewSQLStore(db),
		bookings:   bookingStore.NewSQLStore(db),
		members:    memberStore.NewSQLStore(db),
		attendance: attendanceStore.NewSQLStore(db),
	}
	_, _, err := f.runs.AssignLirf(context.Background(), "run-1", "lena")
	require.NoError(t, err)
	storagetest.InsertBooking(t, db, "b-ravi", "run-1", "ravi")
	return f
}

func TestQueryRunList(t *testing.T) {
	f := newFixture(t)
	deps := RunListDeps{RunStore: f.runs, BookingStore: f.bookings, MemberStore: f.members, Now: clubNow, Location: time.UTC}

	res, err := QueryRunList(context.Background(), RunListQuery{Identity: ravi}, deps)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-09", res.From)
	assert.Equal(t, "2026-04-06", res.To)
	require.Len(t, res.Runs, 2, "past runs excluded by default")

	tue := res.Runs[0]
	assert.Equal(t, "run-1", tue.Run.ID)
	assert.Equal(t, 1, tue.ActiveBookings)
	assert.Equal(t, 1, tue.SpacesLeft)
	assert.Equal(t, 0, tue.OpenLirfSlots)
	assert.True(t, tue.BookedByMe)
	assert.False(t, tue.LeadingIt)
	require.Len(t, tue.Lirfs, 1)
	assert.Equal(t, LirfSlot{Slot: 1, MemberID: "lena", Name: "Lena Lirf"}, tue.Lirfs[0])

	hills := res.Runs[1]
	assert.Equal(t, 0, hills.ActiveBookings)
	assert.Equal(t, 10, hills.SpacesLeft)
	assert.Equal(t, 1, hills.OpenLirfSlots)
	assert.False(t, hills.BookedByMe)
}

func TestQueryRunList_ExplicitRangeAndAnonymous(t *testing.T) {
	f := newFixture(t)
	deps := RunListDeps{RunStore: f.runs, BookingStore: f.bookings, Now: clubNow}

	res, err := QueryRunList(context.Background(), RunListQuery{From: "2026-02-01", To: "2026-03-10"}, deps)
	require.NoError(t, err)
	require.Len(t, res.Runs, 2)
	assert.Equal(t, "run-old", res.Runs[0].Run.ID)
	assert.False(t, res.Runs[1].BookedByMe)
	assert.Empty(t, res.Runs[1].Lirfs[0].Name, "names need a member store")

	_, err = QueryRunList(context.Background(), RunListQuery{From: "10/03/2026"}, deps)
	assert.Error(t, err)
}

func TestQueryRunList_CancelledBookingsFreeSpaces(t *testing.T) {
	f := newFixture(t)
	b, err := f.bookings.GetByID(context.Background(), "b-ravi")
	require.NoError(t, err)
	require.NoError(t, b.Cancel(clubNow(), "ill"))
	require.NoError(t, f.bookings.Cancel(context.Background(), b))

	res, err := QueryRunList(context.Background(), RunListQuery{Identity: ravi},
		RunListDeps{RunStore: f.runs, BookingStore: f.bookings, Now: clubNow})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Runs[0].ActiveBookings)
	assert.Equal(t, 2, res.Runs[0].SpacesLeft)
	assert.False(t, res.Runs[0].BookedByMe)
}

func TestQueryRunAvailability(t *testing.T) {
	f := newFixture(t)
	deps := RunAvailabilityDeps{RunStore: f.runs, BookingStore: f.bookings, MemberStore: f.members}

	tests := []struct {
		name        string
		who         identity.Identity
		runID       string
		wantBooking string
		wantSlot    int
		canBook     bool
		canLead     bool
	}{
		{name: "booked runner", who: ravi, runID: "run-1", wantBooking: "b-ravi"},
		{name: "leader", who: lena, runID: "run-1", wantSlot: 1},
		{name: "admin with a space left", who: admin, runID: "run-1", canBook: true},
		{name: "admin on an unled run", who: admin, runID: "run-2", canBook: true, canLead: true},
		{name: "member cannot lead", who: ravi, runID: "run-2", canBook: true},
		{name: "anonymous sees counts only", who: identity.Anonymous, runID: "run-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av, err := QueryRunAvailability(context.Background(), RunAvailabilityQuery{Identity: tt.who, RunID: tt.runID}, deps)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBooking, av.MyBookingID)
			assert.Equal(t, tt.wantSlot, av.MySlot)
			assert.Equal(t, tt.canBook, av.CanBook, "CanBook")
			assert.Equal(t, tt.canLead, av.CanLead, "CanLead")
		})
	}
}

func TestQueryRunAvailability_Full(t *testing.T) {
	f := newFixture(t)
	storagetest.InsertBooking(t, f.db, "b-sam", "run-1", "sam")

	av, err := QueryRunAvailability(context.Background(), RunAvailabilityQuery{Identity: admin, RunID: "run-1"},
		RunAvailabilityDeps{RunStore: f.runs, BookingStore: f.bookings})
	require.NoError(t, err)
	assert.True(t, av.IsFull)
	assert.Equal(t, 0, av.SpacesLeft)
	assert.False(t, av.CanBook)

	_, err = QueryRunAvailability(context.Background(), RunAvailabilityQuery{RunID: "nope"},
		RunAvailabilityDeps{RunStore: f.runs, BookingStore: f.bookings})
	assert.ErrorIs(t, err, run.ErrNotFound)
}

func TestQueryRunParticipants(t *testing.T) {
	f := newFixture(t)
	storagetest.InsertBooking(t, f.db, "b-lenas-friend", "run-1", "admin")
	require.NoError(t, f.attendance.Upsert(context.Background(), []attendance.Record{
		{ID: "a-1", RunID: "run-1", MemberID: "ravi", Present: true, MarkedBy: "lena", MarkedAt: clubNow()},
		{ID: "a-2", RunID: "run-1", MemberID: "sam", Present: true, MarkedBy: "lena", ManualAddition: true, MarkedAt: clubNow()},
		{ID: "a-3", RunID: "run-1", MemberID: "bea", Present: false, MarkedBy: "lena", ManualAddition: true, MarkedAt: clubNow()},
	}))
	deps := RunParticipantsDeps{RunStore: f.runs, BookingStore: f.bookings, MemberStore: f.members, AttendanceStore: f.attendance}

	res, err := QueryRunParticipants(context.Background(), RunParticipantsQuery{Identity: lena, RunID: "run-1"}, deps)
	require.NoError(t, err)

	var names []string
	for _, p := range res.Participants {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Ravi Runner", "Ada Admin", "Bea Walkup", "Sam Walkup"}, names)
	assert.Equal(t, 2, res.PresentCount)
	assert.False(t, res.CanRecord, "run not started")

	ravisRow, admins, bea := res.Participants[0], res.Participants[1], res.Participants[2]
	assert.Equal(t, "b-ravi", ravisRow.BookingID)
	assert.True(t, ravisRow.Marked)
	assert.False(t, admins.Marked)
	assert.True(t, bea.ManualAddition)
	assert.True(t, bea.Marked)
	assert.False(t, bea.Present)
}

func TestQueryRunParticipants_HidesDetailsFromRunners(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Exec(`UPDATE member SET health_notes = 'asthma' WHERE id = 'ravi'`)
	require.NoError(t, err)
	deps := RunParticipantsDeps{RunStore: f.runs, BookingStore: f.bookings, MemberStore: f.members, AttendanceStore: f.attendance}

	asLeader, err := QueryRunParticipants(context.Background(), RunParticipantsQuery{Identity: lena, RunID: "run-1"}, deps)
	require.NoError(t, err)
	assert.Equal(t, "asthma", asLeader.Participants[0].HealthNotes)

	asRunner, err := QueryRunParticipants(context.Background(), RunParticipantsQuery{Identity: ravi, RunID: "run-1"}, deps)
	require.NoError(t, err)
	assert.Empty(t, asRunner.Participants[0].HealthNotes)

	_, err = QueryRunParticipants(context.Background(), RunParticipantsQuery{RunID: "run-1"}, deps)
	assert.ErrorIs(t, err, booking.ErrAuthRequired)
}

func TestQueryMemberBookings(t *testing.T) {
	f := newFixture(t)
	storagetest.InsertBooking(t, f.db, "b-ravi-2", "run-2", "ravi")
	b, err := f.bookings.GetByID(context.Background(), "b-ravi-2")
	require.NoError(t, err)
	require.NoError(t, b.Cancel(clubNow(), ""))
	require.NoError(t, f.bookings.Cancel(context.Background(), b))
	deps := MemberBookingsDeps{RunStore: f.runs, BookingStore: f.bookings, Now: clubNow}

	active, err := QueryMemberBookings(context.Background(), MemberBookingsQuery{Identity: ravi}, deps)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Tuesday 5K", active[0].RunTitle)
	assert.True(t, active[0].Upcoming)

	all, err := QueryMemberBookings(context.Background(), MemberBookingsQuery{Identity: ravi, IncludeCancelled: true}, deps)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = QueryMemberBookings(context.Background(), MemberBookingsQuery{}, deps)
	assert.ErrorIs(t, err, booking.ErrAuthRequired)
}

func TestQueryMemberRoster(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.attendance.Upsert(context.Background(), []attendance.Record{
		{ID: "att-1", RunID: "run-old", MemberID: "ravi", Present: true, MarkedBy: "lena", MarkedAt: clubNow()},
	}))
	deps := MemberRosterDeps{MemberStore: f.members, AttendanceStore: f.attendance}

	q := url.Values{"sort": {"name"}, "per_page": {"10"}}
	res, err := QueryMemberRoster(context.Background(), MemberRosterQuery{
		Params: listutil.ParseListParams(q, RosterSortColumns, RosterFilterKeys),
	}, deps)
	require.NoError(t, err)
	require.Len(t, res.Members, 5)
	assert.Equal(t, 5, res.Page.Total)
	assert.Equal(t, "Ada Admin", res.Members[0].FullName)
	for _, m := range res.Members {
		if m.ID == "ravi" {
			assert.Equal(t, 1, m.RunsAttended)
		}
	}

	q = url.Values{"access_level": {member.AccessLirf}}
	res, err = QueryMemberRoster(context.Background(), MemberRosterQuery{
		Params: listutil.ParseListParams(q, RosterSortColumns, RosterFilterKeys),
	}, deps)
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.Equal(t, "lena", res.Members[0].ID)

	q = url.Values{"q": {"walkup"}, "per_page": {"10"}, "page": {"9"}}
	res, err = QueryMemberRoster(context.Background(), MemberRosterQuery{
		Params: listutil.ParseListParams(q, RosterSortColumns, RosterFilterKeys),
	}, MemberRosterDeps{MemberStore: f.members})
	require.NoError(t, err)
	assert.Len(t, res.Members, 2)
	assert.Equal(t, 1, res.Page.Page, "page clamps to the last page")
}
