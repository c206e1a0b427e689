package run

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// Recurrence limits
const (
	MaxOccurrences    = 52
	RecurrenceHorizon = 366 * 24 * time.Hour
)

// ErrInvalidRecurrence is returned for an unusable recurrence request.
var ErrInvalidRecurrence = errors.New("recurrence must be a weekly count between 1 and 52 or a valid RRULE")

// Recurrence describes how a new run repeats. Weeks and RRule are
// mutually exclusive; the zero value means a single run.
type Recurrence struct {
	Weeks int
	RRule string
}

// IsZero returns true if no recurrence was requested.
func (r Recurrence) IsZero() bool {
	return r.Weeks == 0 && r.RRule == ""
}

// Occurrences returns the start times of every run in the series, with the
// first one at start. An RRULE is evaluated from start for at most a year
// and MaxOccurrences entries.
// PRE: start is in the club time zone
// POST: Returns at least one time, sorted ascending
func (r Recurrence) Occurrences(start time.Time) ([]time.Time, error) {
	if r.IsZero() {
		return []time.Time{start}, nil
	}
	if r.Weeks != 0 && r.RRule != "" {
		return nil, ErrInvalidRecurrence
	}

	var rule *rrule.RRule
	var err error
	if r.RRule != "" {
		rule, err = rrule.StrToRRule(r.RRule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
		rule.DTStart(start)
	} else {
		if r.Weeks < 1 || r.Weeks > MaxOccurrences {
			return nil, ErrInvalidRecurrence
		}
		rule, err = rrule.NewRRule(rrule.ROption{
			Freq:    rrule.WEEKLY,
			Count:   r.Weeks,
			Dtstart: start,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
		}
	}

	times := rule.Between(start, start.Add(RecurrenceHorizon), true)
	if len(times) == 0 {
		return nil, ErrInvalidRecurrence
	}
	if len(times) > MaxOccurrences {
		times = times[:MaxOccurrences]
	}
	return times, nil
}

// Expand copies template once per occurrence, setting RunDate and
// StartTime from each time. Each copy keeps the template's other fields;
// the caller assigns IDs.
func Expand(template Run, loc *time.Location, rec Recurrence) ([]Run, error) {
	start, err := template.StartsAt(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid run date or start time: %w", err)
	}
	times, err := rec.Occurrences(start)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(times))
	for _, t := range times {
		r := template
		local := t.In(loc)
		r.RunDate = local.Format(DateLayout)
		r.StartTime = local.Format(TimeLayout)
		runs = append(runs, r)
	}
	return runs, nil
}
