package orchestrators

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"runclub/internal/domain/email"
	"runclub/internal/domain/member"
	"runclub/internal/domain/outbox"
	"runclub/internal/domain/run"
)

// OutboxWriter enqueues side effects for the outbox processor.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// enqueueEmail records msg for delivery. The change that caused the email
// has already been committed, so a failure here is logged and swallowed.
// PRE: msg was built by one of the email constructors
// POST: An outbox entry exists for msg, or a warning was logged
func enqueueEmail(ctx context.Context, w OutboxWriter, genID func() string, now time.Time, msg email.Message) {
	if w == nil {
		return
	}
	if err := msg.Validate(); err != nil {
		slog.Warn("email_event", "event", "email_skipped", "template", msg.Template, "error", err.Error())
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("email_event", "event", "email_skipped", "template", msg.Template, "error", err.Error())
		return
	}
	entry := outbox.New(genID(), outbox.ActionTypeEmail, string(payload), now)
	if err := w.Save(ctx, entry); err != nil {
		slog.Warn("email_event", "event", "email_enqueue_failed", "template", msg.Template, "error", err.Error())
		return
	}
	slog.Info("email_event", "event", "email_enqueued", "template", msg.Template, "entry_id", entry.ID, "recipients", len(msg.To))
}

// summarize reduces a run to the details quoted in emails.
func summarize(r run.Run) email.RunSummary {
	return email.RunSummary{
		Title:        r.Title,
		RunDate:      r.RunDate,
		StartTime:    r.StartTime,
		MeetingPoint: r.MeetingPoint,
	}
}

// MemberReader looks up member profiles.
type MemberReader interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
}

// MemberLister loads several member profiles at once.
type MemberLister interface {
	ListByIDs(ctx context.Context, ids []string) ([]member.Member, error)
}

// RunReader loads a single run.
type RunReader interface {
	GetByID(ctx context.Context, id string) (run.Run, error)
}
