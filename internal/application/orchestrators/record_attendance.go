package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"runclub/internal/domain/attendance"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/run"
)

// AttendanceWriter upserts attendance records.
type AttendanceWriter interface {
	Upsert(ctx context.Context, recs []attendance.Record) error
}

// RecordAttendanceInput carries input for the attendance orchestrator.
type RecordAttendanceInput struct {
	Identity identity.Identity
	RunID    string
	Marks    []attendance.Mark
}

// RecordAttendanceDeps holds dependencies for RecordAttendance.
type RecordAttendanceDeps struct {
	RunStore        RunReader
	BookingStore    ActiveBookingLister
	MemberStore     MemberLister
	AttendanceStore AttendanceWriter
	GenerateID      func() string
	Now             func() time.Time
}

// RecordAttendanceResult summarises what was written.
type RecordAttendanceResult struct {
	Records      []attendance.Record
	ManualAdded  int
	PresentCount int
	AbsentCount  int
}

// ExecuteRecordAttendance stores present/absent marks for a started run.
// A later mark for the same member replaces the earlier one.
// PRE: Run is in_progress or completed; caller is an assigned LIRF or an admin
// POST: One record per marked member; members without an active booking are manual additions
func ExecuteRecordAttendance(ctx context.Context, input RecordAttendanceInput, deps RecordAttendanceDeps) (RecordAttendanceResult, error) {
	if !input.Identity.IsAuthenticated() {
		return RecordAttendanceResult{}, booking.ErrAuthRequired
	}
	if len(input.Marks) == 0 {
		return RecordAttendanceResult{}, attendance.ErrNoMarks
	}

	r, err := deps.RunStore.GetByID(ctx, input.RunID)
	if err != nil {
		return RecordAttendanceResult{}, err
	}
	if !r.CanBeManagedBy(input.Identity) {
		return RecordAttendanceResult{}, run.ErrForbidden
	}
	if !r.AcceptsAttendance() {
		return RecordAttendanceResult{}, attendance.ErrRunNotStarted
	}

	// Last mark wins when a member appears twice in one submission.
	order := make([]string, 0, len(input.Marks))
	marks := make(map[string]attendance.Mark, len(input.Marks))
	for _, m := range input.Marks {
		if _, seen := marks[m.MemberID]; !seen {
			order = append(order, m.MemberID)
		}
		marks[m.MemberID] = m
	}

	known, err := deps.MemberStore.ListByIDs(ctx, order)
	if err != nil {
		return RecordAttendanceResult{}, err
	}
	if len(known) != len(order) {
		return RecordAttendanceResult{}, attendance.ErrUnknownMember
	}

	active, err := deps.BookingStore.ListActiveByRun(ctx, r.ID)
	if err != nil {
		return RecordAttendanceResult{}, err
	}
	booked := make(map[string]bool, len(active))
	for _, b := range active {
		booked[b.MemberID] = true
	}

	now := deps.Now()
	var res RecordAttendanceResult
	for _, id := range order {
		rec := attendance.FromMark(r.ID, marks[id], input.Identity.MemberID, booked[id], now)
		rec.ID = deps.GenerateID()
		if err := rec.Validate(); err != nil {
			return RecordAttendanceResult{}, invalid(fmt.Errorf("mark for member %s: %w", id, err))
		}
		if rec.ManualAddition {
			res.ManualAdded++
		}
		if rec.Present {
			res.PresentCount++
		} else {
			res.AbsentCount++
		}
		res.Records = append(res.Records, rec)
	}

	if err := deps.AttendanceStore.Upsert(ctx, res.Records); err != nil {
		return RecordAttendanceResult{}, err
	}

	slog.Info("attendance_event", "event", "attendance_recorded", "run_id", r.ID, "by", input.Identity.MemberID,
		"present", res.PresentCount, "absent", res.AbsentCount, "manual", res.ManualAdded)
	return res, nil
}
