package email

import (
	"errors"
	"fmt"
	"strings"
)

// Template names, recorded in logs and the outbox payload.
const (
	TemplateBookingConfirmed   = "booking_confirmed"
	TemplateBookingCancelled   = "booking_cancelled"
	TemplateRunCancelled       = "run_cancelled"
	TemplateVerifyRegistration = "verify_registration"
	TemplateInvitation         = "invitation"
	TemplateWelcome            = "welcome"
)

// Domain errors
var (
	ErrEmptySubject = errors.New("email subject is required")
	ErrEmptyBody    = errors.New("email body is required")
	ErrNoRecipients = errors.New("at least one recipient is required")
)

// Message is a transactional email with a markdown body. Each recipient
// receives their own copy.
type Message struct {
	Template string   `json:"template"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Markdown string   `json:"markdown"`
}

// Validate checks that the Message has valid data.
// PRE: Message struct is populated
// POST: Returns nil if valid, error otherwise
func (m *Message) Validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid recipient %q", to)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(m.Markdown) == "" {
		return ErrEmptyBody
	}
	return nil
}

// RunSummary is the run detail quoted in notification emails.
type RunSummary struct {
	Title        string
	RunDate      string
	StartTime    string
	MeetingPoint string
}

func (r RunSummary) lines() string {
	return fmt.Sprintf("- **When:** %s at %s\n- **Where:** %s\n", r.RunDate, r.StartTime, r.MeetingPoint)
}

// BookingConfirmed tells a member their place is held.
func BookingConfirmed(to, name string, run RunSummary) Message {
	return Message{
		Template: TemplateBookingConfirmed,
		To:       []string{to},
		Subject:  fmt.Sprintf("You're booked on %s", run.Title),
		Markdown: fmt.Sprintf("Hi %s,\n\nYour place on **%s** is confirmed.\n\n%s\nIf you can no longer make it, please cancel so someone else can take your place.\n",
			name, run.Title, run.lines()),
	}
}

// BookingCancelled confirms a member's cancellation.
func BookingCancelled(to, name string, run RunSummary) Message {
	return Message{
		Template: TemplateBookingCancelled,
		To:       []string{to},
		Subject:  fmt.Sprintf("Booking cancelled: %s", run.Title),
		Markdown: fmt.Sprintf("Hi %s,\n\nYour booking on **%s** has been cancelled.\n\n%s",
			name, run.Title, run.lines()),
	}
}

// RunCancelled tells every booked member a run will not go ahead.
func RunCancelled(to []string, run RunSummary, reason string) Message {
	body := fmt.Sprintf("Unfortunately **%s** has been cancelled.\n\n%s", run.Title, run.lines())
	if reason != "" {
		body += fmt.Sprintf("\n> %s\n", reason)
	}
	return Message{
		Template: TemplateRunCancelled,
		To:       to,
		Subject:  fmt.Sprintf("Cancelled: %s on %s", run.Title, run.RunDate),
		Markdown: body,
	}
}

// VerifyRegistration carries the email verification link.
func VerifyRegistration(to, name, link string) Message {
	return Message{
		Template: TemplateVerifyRegistration,
		To:       []string{to},
		Subject:  "Confirm your running club membership",
		Markdown: fmt.Sprintf("Hi %s,\n\nThanks for registering. [Confirm your email address](%s) to finish setting up your membership.\n\nThe link expires in 48 hours.\n",
			name, link),
	}
}

// Invitation carries a registration link from an admin.
func Invitation(to, inviter, link string) Message {
	return Message{
		Template: TemplateInvitation,
		To:       []string{to},
		Subject:  "You're invited to join the running club",
		Markdown: fmt.Sprintf("%s has invited you to join the club.\n\n[Register here](%s). The invitation expires in 14 days.\n",
			inviter, link),
	}
}

// Welcome is sent once a registration is verified.
func Welcome(to, name string) Message {
	return Message{
		Template: TemplateWelcome,
		To:       []string{to},
		Subject:  "Welcome to the running club",
		Markdown: fmt.Sprintf("Hi %s,\n\nYour membership is active. You can now book places on group runs.\n", name),
	}
}
