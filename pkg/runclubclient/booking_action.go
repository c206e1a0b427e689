package runclubclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is where a BookingAction is in its lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
)

// Op is the change a BookingAction applies.
type Op string

const (
	OpBook   Op = "book"
	OpCancel Op = "cancel"
)

// ErrInvalidTransition is returned when a transition is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid booking action transition")

// View is the local state a booking changes: what a run card shows.
type View struct {
	SpacesLeft int
	BookedByMe bool
	BookingID  string
}

// BookingAction tracks one optimistic booking change. Begin patches the
// view immediately; Commit keeps the patch; Rollback restores the view
// captured by Begin in one step.
// INVARIANT: transitions are idle → pending → committed | rolled_back
type BookingAction struct {
	mu     sync.Mutex
	op     Op
	state  State
	before View
	view   View
	err    error
}

// NewBookingAction starts an idle action over the current view.
func NewBookingAction(op Op, view View) *BookingAction {
	return &BookingAction{op: op, state: StateIdle, view: view}
}

// Begin applies the optimistic patch.
// PRE: state is idle
// POST: state is pending; the view shows the expected outcome
func (a *BookingAction) Begin() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateIdle {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, a.state)
	}
	if a.op != OpBook && a.op != OpCancel {
		return fmt.Errorf("%w: unknown op %q", ErrInvalidTransition, a.op)
	}
	a.before = a.view
	switch a.op {
	case OpBook:
		if a.view.SpacesLeft > 0 {
			a.view.SpacesLeft--
		}
		a.view.BookedByMe = true
	case OpCancel:
		a.view.SpacesLeft++
		a.view.BookedByMe = false
		a.view.BookingID = ""
	}
	a.state = StatePending
	return nil
}

// Commit confirms the patch. For a booking, bookingID is the id the server assigned.
// PRE: state is pending
// POST: state is committed
func (a *BookingAction) Commit(bookingID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StatePending {
		return fmt.Errorf("%w: commit from %s", ErrInvalidTransition, a.state)
	}
	if a.op == OpBook {
		a.view.BookingID = bookingID
	}
	a.state = StateCommitted
	return nil
}

// Rollback restores the view from before Begin and records cause.
// PRE: state is pending
// POST: state is rolled_back; View equals the view Begin saw
func (a *BookingAction) Rollback(cause error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StatePending {
		return fmt.Errorf("%w: rollback from %s", ErrInvalidTransition, a.state)
	}
	a.view = a.before
	a.err = cause
	a.state = StateRolledBack
	return nil
}

// State returns the current state.
func (a *BookingAction) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// View returns the current local view.
func (a *BookingAction) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Err returns the cause recorded by Rollback.
func (a *BookingAction) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Book runs a full optimistic booking against the API: Begin, BookRun,
// then Commit or Rollback. The action is returned in its final state
// together with the API error, if any.
func (c *Client) Book(ctx context.Context, runID string, view View) (*BookingAction, error) {
	action := NewBookingAction(OpBook, view)
	if err := action.Begin(); err != nil {
		return action, err
	}
	b, err := c.BookRun(ctx, runID)
	if err != nil {
		_ = action.Rollback(err)
		return action, err
	}
	return action, action.Commit(b.ID)
}

// Cancel runs a full optimistic cancellation of view.BookingID.
func (c *Client) Cancel(ctx context.Context, view View, reason string) (*BookingAction, error) {
	action := NewBookingAction(OpCancel, view)
	if view.BookingID == "" {
		return action, fmt.Errorf("%w: nothing to cancel", ErrInvalidTransition)
	}
	bookingID := view.BookingID
	if err := action.Begin(); err != nil {
		return action, err
	}
	if _, err := c.CancelBooking(ctx, bookingID, reason); err != nil {
		_ = action.Rollback(err)
		return action, err
	}
	return action, action.Commit("")
}
