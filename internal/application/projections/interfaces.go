package projections

import (
	"context"

	domainAttendance "runclub/internal/domain/attendance"
	domainBooking "runclub/internal/domain/booking"
	domainMember "runclub/internal/domain/member"
	domainRun "runclub/internal/domain/run"
)

// RunStore interface for run queries.
type RunStore interface {
	GetByID(ctx context.Context, id string) (domainRun.Run, error)
	ListBetween(ctx context.Context, fromDate, toDate string) ([]domainRun.Run, error)
	ListByIDs(ctx context.Context, ids []string) ([]domainRun.Run, error)
}

// BookingStore interface for booking queries.
type BookingStore interface {
	CountActive(ctx context.Context, runID string) (int, error)
	CountActiveByRuns(ctx context.Context, runIDs []string) (map[string]int, error)
	GetActive(ctx context.Context, runID, memberID string) (domainBooking.Booking, error)
	ListActiveByRun(ctx context.Context, runID string) ([]domainBooking.Booking, error)
	ListByMember(ctx context.Context, memberID string) ([]domainBooking.Booking, error)
}

// MemberStore interface for member queries.
type MemberStore interface {
	ListByIDs(ctx context.Context, ids []string) ([]domainMember.Member, error)
}

// AttendanceStore interface for attendance queries.
type AttendanceStore interface {
	ListByRun(ctx context.Context, runID string) ([]domainAttendance.Record, error)
}

// LirfSlot is one filled LIRF position on a run.
type LirfSlot struct {
	Slot     int
	MemberID string
	Name     string
}

// spacesLeft returns the remaining participant places, never negative.
func spacesLeft(r domainRun.Run, active int) int {
	left := r.MaxParticipants - active
	if left < 0 {
		return 0
	}
	return left
}

// slotsOf lists r's filled slots with names from names where known.
func slotsOf(r domainRun.Run, names map[string]string) []LirfSlot {
	var out []LirfSlot
	for i, id := range r.Lirfs {
		if id == "" {
			continue
		}
		out = append(out, LirfSlot{Slot: i + 1, MemberID: id, Name: names[id]})
	}
	return out
}

// memberNames loads display names for ids.
func memberNames(ctx context.Context, store MemberStore, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if store == nil || len(ids) == 0 {
		return names, nil
	}
	members, err := store.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		names[m.ID] = m.FullName
	}
	return names, nil
}
