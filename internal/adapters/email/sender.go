package email

import (
	"context"
	"time"
)

// SendRequest is one outgoing email as handed to a provider.
type SendRequest struct {
	To       []string // one address per member copy
	From     string   // e.g. "Riverside Runners <noreply@riversiderunners.club>"; empty uses the sender default
	Subject  string
	HTML     string
	ReplyTo  string
	Template string // template name, reported to the provider as a tag
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers email. Implementations: ResendSender, NoopSender.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error)
}
