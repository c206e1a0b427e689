package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/resend/resend-go/v2"
)

// resendBatchLimit is the most emails Resend accepts per batch call.
const resendBatchLimit = 100

// ResendSender delivers club notifications through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	now    func() time.Time
}

// NewResendSender creates a sender for apiKey with a default from address.
// PRE: apiKey is a Resend API key; from is a valid sender address
// POST: Returns a ready-to-use sender
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
		now:    time.Now,
	}
}

// request maps a SendRequest onto Resend's parameters.
func (s *ResendSender) request(req SendRequest) *resend.SendEmailRequest {
	p := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: req.ReplyTo,
	}
	if p.From == "" {
		p.From = s.from
	}
	if req.Template != "" {
		p.Tags = []resend.Tag{{Name: "template", Value: req.Template}}
	}
	return p
}

// Send delivers one email.
// PRE: req has at least one recipient and a subject
// POST: Email accepted by Resend; returns its message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.request(req))
	if err != nil {
		slog.Error("email_event", "event", "resend_failed", "template", req.Template, "recipients", len(req.To), "error", err.Error())
		return SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}
	slog.Info("email_event", "event", "resend_sent", "template", req.Template, "message_id", sent.Id)
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

// SendBatch delivers reqs in chunks of resendBatchLimit.
// POST: Results are in request order; on error, results cover the chunks already accepted
func (s *ResendSender) SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error) {
	results := make([]SendResult, 0, len(reqs))
	for start := 0; start < len(reqs); start += resendBatchLimit {
		chunk := reqs[start:min(start+resendBatchLimit, len(reqs))]
		params := make([]*resend.SendEmailRequest, 0, len(chunk))
		for _, req := range chunk {
			params = append(params, s.request(req))
		}

		resp, err := s.client.Batch.SendWithContext(ctx, params)
		if err != nil {
			slog.Error("email_event", "event", "resend_batch_failed", "chunk", len(chunk), "accepted", len(results), "error", err.Error())
			return results, fmt.Errorf("resend batch send failed: %w", err)
		}
		sentAt := s.now()
		for _, item := range resp.Data {
			results = append(results, SendResult{MessageID: item.Id, SentAt: sentAt})
		}
	}
	slog.Info("email_event", "event", "resend_batch_sent", "count", len(results))
	return results, nil
}
