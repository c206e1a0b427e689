package projections

import (
	"context"
	"time"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	domainRun "runclub/internal/domain/run"
)

// MemberBookingsQuery carries query parameters.
type MemberBookingsQuery struct {
	Identity         identity.Identity
	IncludeCancelled bool
}

// MemberBooking is one of the caller's bookings with the run it is for.
type MemberBooking struct {
	Booking      booking.Booking
	RunTitle     string
	RunDate      string
	StartTime    string
	MeetingPoint string
	RunStatus    string
	Upcoming     bool
}

// MemberBookingsDeps holds dependencies for MemberBookings.
type MemberBookingsDeps struct {
	RunStore     RunStore
	BookingStore BookingStore
	Now          func() time.Time
	Location     *time.Location
}

// QueryMemberBookings lists the caller's bookings, newest first.
// PRE: Caller is signed in
// POST: Cancelled bookings are omitted unless IncludeCancelled
func QueryMemberBookings(ctx context.Context, query MemberBookingsQuery, deps MemberBookingsDeps) ([]MemberBooking, error) {
	if !query.Identity.IsAuthenticated() {
		return nil, booking.ErrAuthRequired
	}
	bookings, err := deps.BookingStore.ListByMember(ctx, query.Identity.MemberID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.RunID)
	}
	runs, err := deps.RunStore.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domainRun.Run, len(runs))
	for _, r := range runs {
		byID[r.ID] = r
	}

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now()
	out := make([]MemberBooking, 0, len(bookings))
	for _, b := range bookings {
		if !b.IsActive() && !query.IncludeCancelled {
			continue
		}
		r := byID[b.RunID]
		mb := MemberBooking{
			Booking:      b,
			RunTitle:     r.Title,
			RunDate:      r.RunDate,
			StartTime:    r.StartTime,
			MeetingPoint: r.MeetingPoint,
			RunStatus:    r.Status,
		}
		if starts, err := r.StartsAt(loc); err == nil {
			mb.Upcoming = starts.After(now) && r.Status == domainRun.StatusScheduled
		}
		out = append(out, mb)
	}
	return out, nil
}
