package projections

import (
	"context"
	"errors"

	domainBooking "runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	domainRun "runclub/internal/domain/run"
)

// RunAvailabilityQuery carries query parameters.
type RunAvailabilityQuery struct {
	Identity identity.Identity
	RunID    string
}

// RunAvailability is what the run detail view needs to offer the right action.
type RunAvailability struct {
	Run            domainRun.Run
	ActiveBookings int
	SpacesLeft     int
	IsFull         bool
	MyBookingID    string // empty unless the caller holds an active booking
	MySlot         int    // 0 unless the caller leads the run
	OpenLirfSlots  int
	Lirfs          []LirfSlot
	CanBook        bool
	CanLead        bool
}

// RunAvailabilityDeps holds dependencies for RunAvailability.
type RunAvailabilityDeps struct {
	RunStore     RunStore
	BookingStore BookingStore
	MemberStore  MemberStore // optional; fills LIRF names
}

// QueryRunAvailability reports one run's capacity and the caller's standing.
// CanBook and CanLead mirror the admission checks but are advisory; the
// stores enforce them.
// PRE: RunID is non-empty
// POST: Returns the availability or run.ErrNotFound
func QueryRunAvailability(ctx context.Context, query RunAvailabilityQuery, deps RunAvailabilityDeps) (RunAvailability, error) {
	r, err := deps.RunStore.GetByID(ctx, query.RunID)
	if err != nil {
		return RunAvailability{}, err
	}
	active, err := deps.BookingStore.CountActive(ctx, r.ID)
	if err != nil {
		return RunAvailability{}, err
	}
	names, err := memberNames(ctx, deps.MemberStore, filled(r))
	if err != nil {
		return RunAvailability{}, err
	}

	av := RunAvailability{
		Run:            r,
		ActiveBookings: active,
		SpacesLeft:     spacesLeft(r, active),
		IsFull:         active >= r.MaxParticipants,
		OpenLirfSlots:  r.OpenSlots(),
		Lirfs:          slotsOf(r, names),
	}

	who := query.Identity
	if !who.IsAuthenticated() {
		return av, nil
	}
	b, err := deps.BookingStore.GetActive(ctx, r.ID, who.MemberID)
	switch {
	case err == nil:
		av.MyBookingID = b.ID
	case !errors.Is(err, domainBooking.ErrNotFound):
		return RunAvailability{}, err
	}
	av.MySlot = r.SlotOf(who.MemberID)

	open := r.IsOpenForBooking()
	av.CanBook = open && !av.IsFull && av.MyBookingID == "" && av.MySlot == 0
	av.CanLead = who.CanLead() && av.OpenLirfSlots > 0 && av.MyBookingID == "" && av.MySlot == 0 &&
		(r.Status == domainRun.StatusScheduled || r.Status == domainRun.StatusInProgress)
	return av, nil
}

func filled(r domainRun.Run) []string {
	var ids []string
	for _, id := range r.Lirfs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
