package projections

import (
	"context"
	"time"

	"runclub/internal/domain/identity"
	domainRun "runclub/internal/domain/run"
)

// DefaultListWindow is how far ahead the run list looks when no end date is given.
const DefaultListWindow = 28 * 24 * time.Hour

// RunListQuery carries query parameters. Empty dates default to today and
// today plus DefaultListWindow in the club timezone.
type RunListQuery struct {
	Identity identity.Identity
	From     string // YYYY-MM-DD
	To       string // YYYY-MM-DD
}

// RunCard is one run in the list with its derived counts.
type RunCard struct {
	Run            domainRun.Run
	ActiveBookings int
	SpacesLeft     int
	OpenLirfSlots  int
	Lirfs          []LirfSlot
	BookedByMe     bool
	LeadingIt      bool
}

// RunListResult carries the query result.
type RunListResult struct {
	From string
	To   string
	Runs []RunCard
}

// RunListDeps holds dependencies for RunList.
type RunListDeps struct {
	RunStore     RunStore
	BookingStore BookingStore
	MemberStore  MemberStore // optional; fills LIRF names
	Now          func() time.Time
	Location     *time.Location
}

// QueryRunList lists runs in a date range with booking counts and LIRF slots.
// PRE: From <= To when both are given
// POST: Runs ordered by date and start time; counts derived from active bookings
func QueryRunList(ctx context.Context, query RunListQuery, deps RunListDeps) (RunListResult, error) {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	today := deps.Now().In(loc)
	from, to := query.From, query.To
	if from == "" {
		from = today.Format(domainRun.DateLayout)
	}
	if to == "" {
		start, err := time.ParseInLocation(domainRun.DateLayout, from, loc)
		if err != nil {
			return RunListResult{}, err
		}
		to = start.Add(DefaultListWindow).Format(domainRun.DateLayout)
	}

	runs, err := deps.RunStore.ListBetween(ctx, from, to)
	if err != nil {
		return RunListResult{}, err
	}
	ids := make([]string, 0, len(runs))
	var leaders []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		leaders = append(leaders, filled(r)...)
	}
	counts, err := deps.BookingStore.CountActiveByRuns(ctx, ids)
	if err != nil {
		return RunListResult{}, err
	}
	names, err := memberNames(ctx, deps.MemberStore, leaders)
	if err != nil {
		return RunListResult{}, err
	}

	var mine map[string]bool
	if query.Identity.IsAuthenticated() {
		mine = make(map[string]bool)
		bookings, err := deps.BookingStore.ListByMember(ctx, query.Identity.MemberID)
		if err != nil {
			return RunListResult{}, err
		}
		for _, b := range bookings {
			if b.IsActive() {
				mine[b.RunID] = true
			}
		}
	}

	result := RunListResult{From: from, To: to, Runs: make([]RunCard, 0, len(runs))}
	for _, r := range runs {
		active := counts[r.ID]
		result.Runs = append(result.Runs, RunCard{
			Run:            r,
			ActiveBookings: active,
			SpacesLeft:     spacesLeft(r, active),
			OpenLirfSlots:  r.OpenSlots(),
			Lirfs:          slotsOf(r, names),
			BookedByMe:     mine[r.ID],
			LeadingIt:      r.HasLirf(query.Identity.MemberID),
		})
	}
	return result, nil
}
