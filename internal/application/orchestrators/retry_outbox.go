package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	emailAdapter "runclub/internal/adapters/email"
	"runclub/internal/domain/email"
	domain "runclub/internal/domain/outbox"
)

// OutboxStore is the slice of outbox persistence the processor needs.
type OutboxStore interface {
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	Save(ctx context.Context, e domain.Entry) error
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the external ID (e.g. the provider's message ID) and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// OutboxOptions tunes the processor. Zero values take the defaults.
type OutboxOptions struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	BatchSize int
	Now       func() time.Time
}

// OutboxProcessor delivers outbox entries and retries failures with
// exponential backoff.
type OutboxProcessor struct {
	store     OutboxStore
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// OutboxRunStats summarises one ProcessPending pass.
type OutboxRunStats struct {
	Delivered int
	Failed    int
	Skipped   int // still backing off
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store OutboxStore, executors map[string]ActionExecutor, opts OutboxOptions) *OutboxProcessor {
	p := &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 10,
		now:       time.Now,
	}
	if opts.BaseDelay > 0 {
		p.baseDelay = opts.BaseDelay
	}
	if opts.MaxDelay > 0 {
		p.maxDelay = opts.MaxDelay
	}
	if opts.BatchSize > 0 {
		p.batchSize = opts.BatchSize
	}
	if opts.Now != nil {
		p.now = opts.Now
	}
	return p
}

// ProcessPending processes one batch of pending outbox entries.
// PRE: Context is valid
// POST: Due entries attempted once; failures recorded for retry
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (OutboxRunStats, error) {
	var stats OutboxRunStats
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list pending outbox entries: %w", err)
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if !entry.IsDue(p.now(), p.baseDelay, p.maxDelay) {
			stats.Skipped++
			continue
		}
		ok, err := p.attempt(ctx, entry)
		if err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
		if ok {
			stats.Delivered++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}

// attempt runs entry's executor once and saves the outcome. The returned
// error is from saving, not from the executor.
func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) (bool, error) {
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.Attempts = entry.MaxAttempts
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		return false, p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(p.now())
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts,
			"max_attempts", entry.MaxAttempts, "error", err.Error())
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return err == nil, p.store.Save(ctx, entry)
}

// ProcessSingle processes one entry immediately, ignoring backoff (admin retry).
// An entry that used up its attempts gets exactly one more.
// PRE: entryID is non-empty
// POST: Entry attempted and saved, or domain.ErrTerminal if done or abandoned
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == domain.StatusDone || entry.Status == domain.StatusAbandoned {
		return domain.ErrTerminal
	}
	if entry.Attempts >= entry.MaxAttempts {
		entry.MaxAttempts = entry.Attempts + 1
	}
	if _, ok := p.executors[entry.ActionType]; !ok {
		return fmt.Errorf("no executor registered for action type: %s", entry.ActionType)
	}
	_, err = p.attempt(ctx, entry)
	return err
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	entry.MarkAbandoned()
	return p.store.Save(ctx, entry)
}

// Run processes pending entries every interval until ctx is cancelled.
// PRE: interval > 0
// POST: Returns when ctx is done
func (p *OutboxProcessor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("outbox_worker_started", "interval", interval.String())

	for {
		select {
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			stats, err := p.ProcessPending(passCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				slog.Error("outbox_background_process_failed", "error", err.Error())
			}
			if stats.Delivered+stats.Failed > 0 {
				slog.Info("outbox_pass", "delivered", stats.Delivered, "failed", stats.Failed, "skipped", stats.Skipped)
			}
		case <-ctx.Done():
			slog.Info("outbox_worker_stopped")
			return
		}
	}
}

// --- Email Executor ---

// EmailExecutor renders queued email.Message payloads and sends them, one
// copy per recipient.
type EmailExecutor struct {
	Sender   emailAdapter.Sender
	Renderer *emailAdapter.Renderer
	From     string
	ReplyTo  string
}

// Execute sends an email from the payload.
// PRE: payload is JSON of an email.Message
// POST: Email accepted by the provider; returns the message IDs joined by commas
// INVARIANT: outbox entry status managed by caller
func (e *EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var msg email.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return "", fmt.Errorf("invalid email payload: %w", err)
	}
	body, err := e.Renderer.Render(msg.Markdown)
	if err != nil {
		return "", err
	}

	reqs := make([]emailAdapter.SendRequest, 0, len(msg.To))
	for _, to := range msg.To {
		reqs = append(reqs, emailAdapter.SendRequest{
			To:       []string{to},
			From:     e.From,
			Subject:  msg.Subject,
			HTML:     body,
			ReplyTo:  e.ReplyTo,
			Template: msg.Template,
		})
	}

	if len(reqs) == 1 {
		res, err := e.Sender.Send(ctx, reqs[0])
		if err != nil {
			return "", err
		}
		return res.MessageID, nil
	}
	results, err := e.Sender.SendBatch(ctx, reqs)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.MessageID)
	}
	return strings.Join(ids, ","), nil
}
