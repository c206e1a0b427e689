package run

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"runclub/internal/domain/identity"
)

// Date and time layouts used for run scheduling.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Max length constants for user-editable fields.
const (
	MaxTitleLength        = 120
	MaxMeetingPointLength = 200
	MaxParticipantsLimit  = 500
	SlotCount             = 3
)

// Status constants
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Domain errors
var (
	ErrNotFound              = errors.New("run not found")
	ErrPositionsFilled       = errors.New("all LIRF positions for this run are filled")
	ErrAlreadyAssigned       = errors.New("you are already assigned as a LIRF on this run")
	ErrNotAssigned           = errors.New("you are not assigned as a LIRF on this run")
	ErrNotLeader             = errors.New("only LIRFs and admins can lead runs")
	ErrForbidden             = errors.New("only an assigned LIRF or an admin can manage this run")
	ErrInvalidTransition     = errors.New("run cannot move to that status from its current status")
	ErrNotRunDay             = errors.New("a run can only be started on the day it is scheduled")
	ErrStatusChanged         = errors.New("run status was changed by someone else; reload and try again")
	ErrNotEditable           = errors.New("only scheduled runs can be edited")
	ErrNotDeletable          = errors.New("only scheduled or cancelled runs can be deleted")
	ErrHasBookings           = errors.New("run still has active bookings")
	ErrCapacityBelowBookings = errors.New("max participants cannot be lower than the number of active bookings")
	ErrRequiredBelowAssigned = errors.New("LIRFs required cannot be lower than the number of assigned LIRFs")
)

// Run is a scheduled group running session.
type Run struct {
	ID                 string
	Title              string
	Description        string // markdown
	RunDate            string // YYYY-MM-DD
	StartTime          string // HH:MM
	MeetingPoint       string
	DistanceKm         float64
	MaxParticipants    int
	LirfsRequired      int
	Status             string
	Lirfs              [SlotCount]string // member IDs; filled left to right
	CreatedBy          string
	RecurrenceGroupID  string
	RecurrenceRule     string
	StartedAt          time.Time
	CompletedAt        time.Time
	CancelledAt        time.Time
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks if the Run has valid data.
// PRE: Run struct is populated
// POST: Returns nil if valid, error otherwise
// INVARIANT: LIRF slots are filled left to right with no duplicates
func (r *Run) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("run title cannot be empty")
	}
	if len(r.Title) > MaxTitleLength {
		return fmt.Errorf("run title cannot exceed %d characters", MaxTitleLength)
	}
	if _, err := time.Parse(DateLayout, r.RunDate); err != nil {
		return fmt.Errorf("run date must be YYYY-MM-DD: %w", err)
	}
	if _, err := time.Parse(TimeLayout, r.StartTime); err != nil {
		return fmt.Errorf("start time must be HH:MM: %w", err)
	}
	if strings.TrimSpace(r.MeetingPoint) == "" {
		return errors.New("meeting point cannot be empty")
	}
	if len(r.MeetingPoint) > MaxMeetingPointLength {
		return fmt.Errorf("meeting point cannot exceed %d characters", MaxMeetingPointLength)
	}
	if r.DistanceKm < 0 {
		return errors.New("distance cannot be negative")
	}
	if r.MaxParticipants < 1 || r.MaxParticipants > MaxParticipantsLimit {
		return fmt.Errorf("max participants must be between 1 and %d", MaxParticipantsLimit)
	}
	if r.LirfsRequired < 1 || r.LirfsRequired > SlotCount {
		return fmt.Errorf("LIRFs required must be between 1 and %d", SlotCount)
	}
	switch r.Status {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
	default:
		return errors.New("status must be scheduled, in_progress, completed or cancelled")
	}
	seen := make(map[string]bool)
	gap := false
	for _, id := range r.Lirfs {
		if id == "" {
			gap = true
			continue
		}
		if gap {
			return errors.New("LIRF slots must be filled in order")
		}
		if seen[id] {
			return errors.New("a LIRF can only hold one slot on a run")
		}
		seen[id] = true
	}
	return nil
}

// StartsAt returns the run's start as a point in time in loc.
// PRE: RunDate and StartTime are valid
func (r *Run) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, r.RunDate+" "+r.StartTime, loc)
}

// IsOpenForBooking returns true if members can still book a place.
func (r *Run) IsOpenForBooking() bool {
	return r.Status == StatusScheduled
}

// HasLirf returns true if memberID holds one of the LIRF slots.
func (r *Run) HasLirf(memberID string) bool {
	return r.SlotOf(memberID) != 0
}

// SlotOf returns the 1-based slot memberID holds, or 0.
func (r *Run) SlotOf(memberID string) int {
	if memberID == "" {
		return 0
	}
	for i, id := range r.Lirfs {
		if id == memberID {
			return i + 1
		}
	}
	return 0
}

// FilledSlots returns how many LIRF slots are occupied.
func (r *Run) FilledSlots() int {
	n := 0
	for _, id := range r.Lirfs {
		if id != "" {
			n++
		}
	}
	return n
}

// OpenSlots returns how many more LIRFs the run needs.
func (r *Run) OpenSlots() int {
	open := r.LirfsRequired - r.FilledSlots()
	if open < 0 {
		return 0
	}
	return open
}

// AssignLirf puts memberID into the first open slot.
// Only the first LirfsRequired slots are assignable.
// PRE: caller checks the member holds no active booking before persisting
// POST: Returns the 1-based slot written
func (r *Run) AssignLirf(memberID string) (int, error) {
	if memberID == "" {
		return 0, errors.New("member ID is required")
	}
	if r.Status != StatusScheduled && r.Status != StatusInProgress {
		return 0, ErrInvalidTransition
	}
	limit := r.LirfsRequired
	if limit > SlotCount {
		limit = SlotCount
	}
	for i := 0; i < limit; i++ {
		if r.Lirfs[i] != "" {
			continue
		}
		if r.HasLirf(memberID) {
			return 0, ErrAlreadyAssigned
		}
		r.Lirfs[i] = memberID
		return i + 1, nil
	}
	return 0, ErrPositionsFilled
}

// UnassignLirf clears memberID's slot and shifts later slots left so
// slots stay filled in order.
// POST: Returns the 1-based slot that was cleared
func (r *Run) UnassignLirf(memberID string) (int, error) {
	slot := r.SlotOf(memberID)
	if slot == 0 {
		return 0, ErrNotAssigned
	}
	var packed [SlotCount]string
	n := 0
	for _, id := range r.Lirfs {
		if id != "" && id != memberID {
			packed[n] = id
			n++
		}
	}
	r.Lirfs = packed
	return slot, nil
}

// CanBeManagedBy returns true if who may drive status changes and record
// attendance: an assigned LIRF or an admin.
func (r *Run) CanBeManagedBy(who identity.Identity) bool {
	if who.IsAdmin() {
		return true
	}
	return who.IsAuthenticated() && r.HasLirf(who.MemberID)
}

// CanBeDeletedBy returns true for the run's creator or an admin.
func (r *Run) CanBeDeletedBy(who identity.Identity) bool {
	if who.IsAdmin() {
		return true
	}
	return who.IsAuthenticated() && r.CreatedBy == who.MemberID
}

// Start moves a scheduled run to in_progress.
// PRE: Status is scheduled and today in loc is RunDate
// POST: Status is in_progress, StartedAt = now
func (r *Run) Start(now time.Time, loc *time.Location) error {
	if r.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	if now.In(loc).Format(DateLayout) != r.RunDate {
		return ErrNotRunDay
	}
	r.Status = StatusInProgress
	r.StartedAt = now
	return nil
}

// Complete moves an in-progress run to completed.
// PRE: Status is in_progress
// POST: Status is completed, CompletedAt = now
func (r *Run) Complete(now time.Time) error {
	if r.Status != StatusInProgress {
		return ErrInvalidTransition
	}
	r.Status = StatusCompleted
	r.CompletedAt = now
	return nil
}

// Cancel moves a scheduled run to the cancelled terminal state.
// PRE: Status is scheduled
// POST: Status is cancelled, CancelledAt = now
func (r *Run) Cancel(now time.Time, reason string) error {
	if r.Status != StatusScheduled {
		return ErrInvalidTransition
	}
	r.Status = StatusCancelled
	r.CancelledAt = now
	r.CancellationReason = strings.TrimSpace(reason)
	return nil
}

// AcceptsAttendance returns true once the run has started.
func (r *Run) AcceptsAttendance() bool {
	return r.Status == StatusInProgress || r.Status == StatusCompleted
}

// IsDeletable returns true for runs that never started.
func (r *Run) IsDeletable() bool {
	return r.Status == StatusScheduled || r.Status == StatusCancelled
}

// Edit carries the organiser-editable fields. Nil fields are left unchanged.
type Edit struct {
	Title           *string
	Description     *string
	StartTime       *string
	MeetingPoint    *string
	DistanceKm      *float64
	MaxParticipants *int
	LirfsRequired   *int
}

// ApplyEdit applies e to a scheduled run.
// PRE: activeBookings is the current active booking count
// POST: Fields updated and revalidated, or error with no change
func (r *Run) ApplyEdit(e Edit, activeBookings int) error {
	if r.Status != StatusScheduled {
		return ErrNotEditable
	}
	next := *r
	if e.Title != nil {
		next.Title = strings.TrimSpace(*e.Title)
	}
	if e.Description != nil {
		next.Description = *e.Description
	}
	if e.StartTime != nil {
		next.StartTime = *e.StartTime
	}
	if e.MeetingPoint != nil {
		next.MeetingPoint = strings.TrimSpace(*e.MeetingPoint)
	}
	if e.DistanceKm != nil {
		next.DistanceKm = *e.DistanceKm
	}
	if e.MaxParticipants != nil {
		if *e.MaxParticipants < activeBookings {
			return ErrCapacityBelowBookings
		}
		next.MaxParticipants = *e.MaxParticipants
	}
	if e.LirfsRequired != nil {
		if *e.LirfsRequired < next.FilledSlots() {
			return ErrRequiredBelowAssigned
		}
		next.LirfsRequired = *e.LirfsRequired
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*r = next
	return nil
}
