package attendance

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrRunNotStarted = errors.New("attendance can only be recorded once a run is in progress or completed")
	ErrNoMarks       = errors.New("no attendance marks supplied")
	ErrUnknownMember = errors.New("attendance can only be recorded for club members")
)

// Record is one member's attendance on one run. There is at most one
// record per (RunID, MemberID).
type Record struct {
	ID             string
	RunID          string
	MemberID       string
	Present        bool
	MarkedBy       string
	ManualAddition bool // walk-up runner with no booking
	MarkedAt       time.Time
}

// Mark is a single present/absent decision submitted by a run leader.
type Mark struct {
	MemberID string
	Present  bool
}

// Validate checks if the Record has valid data.
// PRE: Record struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: RunID, MemberID and MarkedBy must not be empty
func (r *Record) Validate() error {
	if r.RunID == "" {
		return errors.New("attendance must be associated with a run")
	}
	if r.MemberID == "" {
		return errors.New("attendance must be associated with a member")
	}
	if r.MarkedBy == "" {
		return errors.New("attendance must record who marked it")
	}
	if r.MarkedAt.IsZero() {
		return errors.New("marked-at time must be set")
	}
	return nil
}

// FromMark builds a record for runID. A member without an active booking
// is stored as a manual addition.
// POST: Returns a record ready for upsert; ID is left for the store
func FromMark(runID string, m Mark, markedBy string, booked bool, now time.Time) Record {
	return Record{
		RunID:          runID,
		MemberID:       m.MemberID,
		Present:        m.Present,
		MarkedBy:       markedBy,
		ManualAddition: !booked,
		MarkedAt:       now,
	}
}
