package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/run"
)

// RunCreator inserts runs atomically.
type RunCreator interface {
	Create(ctx context.Context, runs ...run.Run) error
}

// CreateRunInput carries input for the run creation orchestrator.
type CreateRunInput struct {
	Identity        identity.Identity
	Title           string
	Description     string
	RunDate         string
	StartTime       string
	MeetingPoint    string
	DistanceKm      float64
	MaxParticipants int
	LirfsRequired   int
	Recurrence      run.Recurrence
}

// CreateRunDeps holds dependencies for CreateRun.
type CreateRunDeps struct {
	RunStore   RunCreator
	GenerateID func() string
	Now        func() time.Time
	Location   *time.Location
}

// ExecuteCreateRun schedules a run, or a weekly series sharing one
// recurrence group.
// PRE: Caller has access level lirf or admin
// POST: Every occurrence is stored as a scheduled run, or none is
func ExecuteCreateRun(ctx context.Context, input CreateRunInput, deps CreateRunDeps) ([]run.Run, error) {
	if !input.Identity.IsAuthenticated() {
		return nil, booking.ErrAuthRequired
	}
	if !input.Identity.CanLead() {
		return nil, run.ErrNotLeader
	}

	now := deps.Now()
	template := run.Run{
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		RunDate:         input.RunDate,
		StartTime:       input.StartTime,
		MeetingPoint:    strings.TrimSpace(input.MeetingPoint),
		DistanceKm:      input.DistanceKm,
		MaxParticipants: input.MaxParticipants,
		LirfsRequired:   input.LirfsRequired,
		Status:          run.StatusScheduled,
		CreatedBy:       input.Identity.MemberID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if template.LirfsRequired == 0 {
		template.LirfsRequired = 1
	}
	if err := template.Validate(); err != nil {
		return nil, invalid(err)
	}

	runs := []run.Run{template}
	if !input.Recurrence.IsZero() {
		loc := deps.Location
		if loc == nil {
			loc = time.UTC
		}
		expanded, err := run.Expand(template, loc, input.Recurrence)
		if err != nil {
			return nil, invalid(err)
		}
		group := deps.GenerateID()
		rule := input.Recurrence.RRule
		if rule == "" {
			rule = fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", input.Recurrence.Weeks)
		}
		for i := range expanded {
			expanded[i].RecurrenceGroupID = group
			expanded[i].RecurrenceRule = rule
		}
		runs = expanded
	}
	for i := range runs {
		runs[i].ID = deps.GenerateID()
	}

	if err := deps.RunStore.Create(ctx, runs...); err != nil {
		return nil, err
	}

	slog.Info("run_event", "event", "run_created", "run_id", runs[0].ID, "occurrences", len(runs),
		"recurrence_group_id", runs[0].RecurrenceGroupID, "by", input.Identity.MemberID)
	return runs, nil
}

// RunEditor applies edits under the run lock.
type RunEditor interface {
	GetByID(ctx context.Context, id string) (run.Run, error)
	Edit(ctx context.Context, id string, e run.Edit) (run.Run, error)
}

// UpdateRunInput carries input for the run update orchestrator.
type UpdateRunInput struct {
	Identity identity.Identity
	RunID    string
	Edit     run.Edit
}

// UpdateRunDeps holds dependencies for UpdateRun.
type UpdateRunDeps struct {
	RunStore RunEditor
}

// ExecuteUpdateRun edits a scheduled run.
// PRE: Caller is an assigned LIRF, the creator, or an admin
// POST: Run updated; capacity never drops below active bookings and
// lirfs_required never below filled slots
func ExecuteUpdateRun(ctx context.Context, input UpdateRunInput, deps UpdateRunDeps) (run.Run, error) {
	if !input.Identity.IsAuthenticated() {
		return run.Run{}, booking.ErrAuthRequired
	}
	current, err := deps.RunStore.GetByID(ctx, input.RunID)
	if err != nil {
		return run.Run{}, err
	}
	if !current.CanBeManagedBy(input.Identity) && !current.CanBeDeletedBy(input.Identity) {
		return run.Run{}, run.ErrForbidden
	}
	// Check the field values before taking the run lock. The capacity
	// check needs the live booking count and is left to the store.
	probe := current
	if err := probe.ApplyEdit(input.Edit, 0); err != nil {
		return run.Run{}, invalid(err)
	}

	r, err := deps.RunStore.Edit(ctx, input.RunID, input.Edit)
	if err != nil {
		return run.Run{}, err
	}
	slog.Info("run_event", "event", "run_updated", "run_id", r.ID, "by", input.Identity.MemberID)
	return r, nil
}

// RunDeleter removes runs under the run lock.
type RunDeleter interface {
	Delete(ctx context.Context, id string, allow func(run.Run) error) error
}

// DeleteRunInput carries input for the run deletion orchestrator.
type DeleteRunInput struct {
	Identity identity.Identity
	RunID    string
}

// DeleteRunDeps holds dependencies for DeleteRun.
type DeleteRunDeps struct {
	RunStore RunDeleter
}

// ExecuteDeleteRun removes a run that never started and has no active
// bookings, together with its cancelled bookings.
// PRE: Caller is the run's creator or an admin
// POST: Run removed, or run.ErrHasBookings / run.ErrNotDeletable with no change
func ExecuteDeleteRun(ctx context.Context, input DeleteRunInput, deps DeleteRunDeps) error {
	if !input.Identity.IsAuthenticated() {
		return booking.ErrAuthRequired
	}
	err := deps.RunStore.Delete(ctx, input.RunID, func(r run.Run) error {
		if !r.CanBeDeletedBy(input.Identity) {
			return run.ErrForbidden
		}
		if !r.IsDeletable() {
			return run.ErrNotDeletable
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("run_event", "event", "run_deleted", "run_id", input.RunID, "by", input.Identity.MemberID)
	return nil
}
