package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// NoopSender logs sends without delivering anything. It keeps the requests
// it was given so the dev server and tests can inspect them.
type NoopSender struct {
	mu   sync.Mutex
	sent []SendRequest
	now  func() time.Time
}

// NewNoopSender creates a new NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{now: time.Now}
}

// Send logs the email but does not deliver it.
// PRE: req is a valid SendRequest
// POST: Returns a noop result without actual delivery
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	now := s.now()
	slog.Info("email_event", "event", "noop_sent", "template", req.Template, "to", req.To, "subject", req.Subject)
	return SendResult{MessageID: fmt.Sprintf("noop-%d", now.UnixNano()), SentAt: now}, nil
}

// SendBatch logs the batch but does not deliver.
// POST: One noop result per request, in order
func (s *NoopSender) SendBatch(_ context.Context, reqs []SendRequest) ([]SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	results := make([]SendResult, 0, len(reqs))
	for i, req := range reqs {
		s.sent = append(s.sent, req)
		slog.Info("email_event", "event", "noop_batch_sent", "index", i, "template", req.Template, "to", req.To)
		results = append(results, SendResult{
			MessageID: fmt.Sprintf("noop-batch-%d-%d", now.UnixNano(), i),
			SentAt:    now,
		})
	}
	return results, nil
}

// Sent returns a copy of every request seen so far.
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRequest(nil), s.sent...)
}
