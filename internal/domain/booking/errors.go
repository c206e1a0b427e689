package booking

import "fmt"

// Kind classifies a booking or assignment failure for display.
type Kind string

// Error kinds surfaced to members. None of them is retried automatically.
const (
	KindAlreadyBooked Kind = "already_booked"
	KindRunFull       Kind = "run_full"
	KindLirfConflict  Kind = "lirf_conflict"
	KindAuthRequired  Kind = "auth_required"
	KindGeneral       Kind = "general"
)

// Error is a typed booking failure carrying a title and message meant for
// direct display. Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Title   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so callers can write
// errors.Is(err, booking.ErrRunFull) regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors for errors.Is comparisons.
var (
	ErrAlreadyBooked = &Error{
		Kind:    KindAlreadyBooked,
		Title:   "Already booked",
		Message: "You already have a place on this run.",
	}
	ErrRunFull = &Error{
		Kind:    KindRunFull,
		Title:   "Run full",
		Message: "Sorry, this run has reached its maximum number of participants.",
	}
	ErrLirfConflict = &Error{
		Kind:    KindLirfConflict,
		Title:   "LIRF conflict",
		Message: "You are assigned as a LIRF for this run, so you cannot also book a place as a participant.",
	}
	ErrAuthRequired = &Error{
		Kind:    KindAuthRequired,
		Title:   "Sign in required",
		Message: "Please sign in to book a place on a run.",
	}
)

// General wraps an unexpected failure with a generic display message.
// The cause is preserved for logging via Unwrap.
func General(message string, cause error) *Error {
	if message == "" {
		message = "Something went wrong. Please try again."
	}
	return &Error{
		Kind:    KindGeneral,
		Title:   "Booking failed",
		Message: message,
		Err:     cause,
	}
}

// LirfConflictOn names the run a volunteer cannot lead because they are
// booked on it as a participant.
func LirfConflictOn(runTitle string) *Error {
	return &Error{
		Kind:    KindLirfConflict,
		Title:   "LIRF conflict",
		Message: fmt.Sprintf("You are booked on %q as a participant. Cancel your booking before volunteering to lead it.", runTitle),
	}
}
