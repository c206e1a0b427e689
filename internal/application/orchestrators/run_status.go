package orchestrators

import (
	"context"
	"log/slog"
	"time"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/email"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/run"
)

// RunStatusStore reads runs and writes status changes conditionally.
type RunStatusStore interface {
	GetByID(ctx context.Context, id string) (run.Run, error)
	UpdateStatus(ctx context.Context, r run.Run, fromStatus string) error
}

// ActiveBookingLister lists the active bookings on a run.
type ActiveBookingLister interface {
	ListActiveByRun(ctx context.Context, runID string) ([]booking.Booking, error)
}

// RunStatusInput carries input for the status orchestrators.
type RunStatusInput struct {
	Identity identity.Identity
	RunID    string
	Reason   string // cancel only
}

// RunStatusDeps holds dependencies for the status orchestrators.
type RunStatusDeps struct {
	RunStore     RunStatusStore
	BookingStore ActiveBookingLister // cancel only
	MemberStore  MemberLister        // cancel only
	Outbox       OutboxWriter        // optional
	GenerateID   func() string
	Now          func() time.Time
	Location     *time.Location // club timezone for the run-day check
}

// ExecuteStartRun moves a run from scheduled to in_progress.
// PRE: Caller is an assigned LIRF or an admin; today in the club timezone is the run date
// POST: Status is in_progress with StartedAt stamped
func ExecuteStartRun(ctx context.Context, input RunStatusInput, deps RunStatusDeps) (run.Run, error) {
	return transitionRun(ctx, input, deps, "run_started", managedBy(input.Identity), func(r *run.Run, now time.Time) error {
		loc := deps.Location
		if loc == nil {
			loc = time.UTC
		}
		return r.Start(now, loc)
	})
}

// ExecuteCompleteRun moves a run from in_progress to completed.
// PRE: Caller is an assigned LIRF or an admin
// POST: Status is completed with CompletedAt stamped
func ExecuteCompleteRun(ctx context.Context, input RunStatusInput, deps RunStatusDeps) (run.Run, error) {
	return transitionRun(ctx, input, deps, "run_completed", managedBy(input.Identity), func(r *run.Run, now time.Time) error {
		return r.Complete(now)
	})
}

// ExecuteCancelRun moves a scheduled run to cancelled and emails everyone
// holding an active booking. Bookings are left in place as history.
// PRE: Caller is an assigned LIRF, the run's creator, or an admin
// POST: Status is cancelled with CancelledAt and the reason stored
func ExecuteCancelRun(ctx context.Context, input RunStatusInput, deps RunStatusDeps) (run.Run, error) {
	canCancel := func(r *run.Run) bool {
		return r.CanBeManagedBy(input.Identity) || r.CanBeDeletedBy(input.Identity)
	}
	r, err := transitionRun(ctx, input, deps, "run_cancelled", canCancel, func(r *run.Run, now time.Time) error {
		return r.Cancel(now, input.Reason)
	})
	if err != nil {
		return run.Run{}, err
	}
	notifyRunCancelled(ctx, r, deps)
	return r, nil
}

func managedBy(who identity.Identity) func(r *run.Run) bool {
	return func(r *run.Run) bool { return r.CanBeManagedBy(who) }
}

// transitionRun loads the run, checks allowed, applies step and writes the
// result only if no one else changed the status first.
func transitionRun(ctx context.Context, input RunStatusInput, deps RunStatusDeps, event string,
	allowed func(r *run.Run) bool, step func(r *run.Run, now time.Time) error) (run.Run, error) {
	if !input.Identity.IsAuthenticated() {
		return run.Run{}, booking.ErrAuthRequired
	}
	r, err := deps.RunStore.GetByID(ctx, input.RunID)
	if err != nil {
		return run.Run{}, err
	}
	if !allowed(&r) {
		return run.Run{}, run.ErrForbidden
	}

	from := r.Status
	if err := step(&r, deps.Now()); err != nil {
		return run.Run{}, err
	}
	if err := deps.RunStore.UpdateStatus(ctx, r, from); err != nil {
		return run.Run{}, err
	}

	slog.Info("run_event", "event", event, "run_id", r.ID, "from", from, "to", r.Status, "by", input.Identity.MemberID)
	return r, nil
}

func notifyRunCancelled(ctx context.Context, r run.Run, deps RunStatusDeps) {
	if deps.BookingStore == nil || deps.MemberStore == nil || deps.Outbox == nil {
		return
	}
	bookings, err := deps.BookingStore.ListActiveByRun(ctx, r.ID)
	if err != nil {
		slog.Warn("run_event", "event", "cancel_notice_skipped", "run_id", r.ID, "error", err.Error())
		return
	}
	if len(bookings) == 0 {
		return
	}
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.MemberID)
	}
	members, err := deps.MemberStore.ListByIDs(ctx, ids)
	if err != nil {
		slog.Warn("run_event", "event", "cancel_notice_skipped", "run_id", r.ID, "error", err.Error())
		return
	}
	to := make([]string, 0, len(members))
	for _, m := range members {
		to = append(to, m.Email)
	}
	enqueueEmail(ctx, deps.Outbox, deps.GenerateID, deps.Now(), email.RunCancelled(to, summarize(r), r.CancellationReason))
}
