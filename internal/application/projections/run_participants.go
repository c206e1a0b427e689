package projections

import (
	"context"
	"sort"
	"strings"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	domainRun "runclub/internal/domain/run"
)

// RunParticipantsQuery carries query parameters.
type RunParticipantsQuery struct {
	Identity identity.Identity
	RunID    string
}

// Participant is one row of a run's register.
type Participant struct {
	MemberID       string
	Name           string
	BookingID      string // empty for walk-ups
	ManualAddition bool
	Marked         bool
	Present        bool

	// Contact and health details are only filled for the run's managers.
	Phone                 string
	EmergencyContactName  string
	EmergencyContactPhone string
	HealthNotes           string
}

// RunParticipantsResult carries the query result.
type RunParticipantsResult struct {
	Run          domainRun.Run
	Participants []Participant
	PresentCount int
	CanRecord    bool
}

// RunParticipantsDeps holds dependencies for RunParticipants.
type RunParticipantsDeps struct {
	RunStore        RunStore
	BookingStore    BookingStore
	MemberStore     MemberStore
	AttendanceStore AttendanceStore
}

// QueryRunParticipants returns the run's register: every active booking in
// booking order, then walk-ups rebuilt from their attendance rows and
// member profiles, by name.
// PRE: Caller is signed in
// POST: Each member appears once; attendance marks are merged in
func QueryRunParticipants(ctx context.Context, query RunParticipantsQuery, deps RunParticipantsDeps) (RunParticipantsResult, error) {
	if !query.Identity.IsAuthenticated() {
		return RunParticipantsResult{}, booking.ErrAuthRequired
	}
	r, err := deps.RunStore.GetByID(ctx, query.RunID)
	if err != nil {
		return RunParticipantsResult{}, err
	}
	bookings, err := deps.BookingStore.ListActiveByRun(ctx, r.ID)
	if err != nil {
		return RunParticipantsResult{}, err
	}
	records, err := deps.AttendanceStore.ListByRun(ctx, r.ID)
	if err != nil {
		return RunParticipantsResult{}, err
	}

	order := make([]string, 0, len(bookings)+len(records))
	rows := make(map[string]*Participant, cap(order))
	for _, b := range bookings {
		rows[b.MemberID] = &Participant{MemberID: b.MemberID, BookingID: b.ID}
		order = append(order, b.MemberID)
	}
	var walkUps []string
	for _, rec := range records {
		p, ok := rows[rec.MemberID]
		if !ok {
			// A mark without a current booking is shown as a walk-up,
			// including a runner who cancelled after being marked.
			p = &Participant{MemberID: rec.MemberID, ManualAddition: true}
			rows[rec.MemberID] = p
			walkUps = append(walkUps, rec.MemberID)
		}
		p.Marked = true
		p.Present = rec.Present
	}

	ids := append(append([]string(nil), order...), walkUps...)
	members, err := deps.MemberStore.ListByIDs(ctx, ids)
	if err != nil {
		return RunParticipantsResult{}, err
	}
	managed := r.CanBeManagedBy(query.Identity)
	for _, m := range members {
		p := rows[m.ID]
		p.Name = m.FullName
		if managed {
			p.Phone = m.Phone
			p.EmergencyContactName = m.EmergencyContactName
			p.EmergencyContactPhone = m.EmergencyContactPhone
			p.HealthNotes = m.HealthNotes
		}
	}
	sort.SliceStable(walkUps, func(i, j int) bool {
		return strings.ToLower(rows[walkUps[i]].Name) < strings.ToLower(rows[walkUps[j]].Name)
	})

	result := RunParticipantsResult{Run: r, CanRecord: managed && r.AcceptsAttendance()}
	for _, id := range append(order, walkUps...) {
		p := *rows[id]
		if p.Present {
			result.PresentCount++
		}
		result.Participants = append(result.Participants, p)
	}
	return result, nil
}
