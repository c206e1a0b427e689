package projections

import (
	"context"

	"runclub/internal/adapters/storage/member"
	"runclub/internal/application/listutil"
	domainMember "runclub/internal/domain/member"
)

// RosterSortColumns are the columns the roster may be sorted by.
var RosterSortColumns = []string{"name", "email", "access_level", "status"}

// RosterFilterKeys are the exact-match filters the roster accepts.
var RosterFilterKeys = []string{"access_level", "status"}

// RosterMemberStore pages through member profiles.
type RosterMemberStore interface {
	List(ctx context.Context, filter member.ListFilter) ([]domainMember.Member, error)
	Count(ctx context.Context, filter member.ListFilter) (int, error)
}

// PresenceCounter counts the runs a member was marked present at.
type PresenceCounter interface {
	CountPresentByMember(ctx context.Context, memberID string) (int, error)
}

// MemberRosterQuery carries query parameters.
type MemberRosterQuery struct {
	Params listutil.ListParams
}

// RosterEntry is one member on the admin roster.
type RosterEntry struct {
	ID               string
	FullName         string
	Email            string
	AccessLevel      string
	MembershipStatus string
	RunsAttended     int
}

// MemberRosterResult carries the query result.
type MemberRosterResult struct {
	Members []RosterEntry
	Page    listutil.PageInfo
}

// MemberRosterDeps holds dependencies for MemberRoster.
type MemberRosterDeps struct {
	MemberStore     RosterMemberStore
	AttendanceStore PresenceCounter // optional; leaves RunsAttended at zero
}

// QueryMemberRoster lists members for admins with paging, sorting and filters.
// PRE: Params came from listutil.ParseListParams
// POST: Returns at most PerPage entries and the page metadata for the full match
func QueryMemberRoster(ctx context.Context, query MemberRosterQuery, deps MemberRosterDeps) (MemberRosterResult, error) {
	p := query.Params
	filter := member.ListFilter{
		AccessLevel: p.Filters["access_level"],
		Status:      p.Filters["status"],
		Search:      p.Search,
		Sort:        p.Sort,
		Dir:         p.Dir,
	}
	total, err := deps.MemberStore.Count(ctx, filter)
	if err != nil {
		return MemberRosterResult{}, err
	}
	page := listutil.NewPageInfo(p.Page, p.PerPage, total)
	filter.Limit = page.PerPage
	filter.Offset = page.Offset()

	members, err := deps.MemberStore.List(ctx, filter)
	if err != nil {
		return MemberRosterResult{}, err
	}

	result := MemberRosterResult{Members: make([]RosterEntry, 0, len(members)), Page: page}
	for _, m := range members {
		e := RosterEntry{
			ID:               m.ID,
			FullName:         m.FullName,
			Email:            m.Email,
			AccessLevel:      m.AccessLevel,
			MembershipStatus: m.MembershipStatus,
		}
		if deps.AttendanceStore != nil {
			n, err := deps.AttendanceStore.CountPresentByMember(ctx, m.ID)
			if err != nil {
				return MemberRosterResult{}, err
			}
			e.RunsAttended = n
		}
		result.Members = append(result.Members, e)
	}
	return result, nil
}
