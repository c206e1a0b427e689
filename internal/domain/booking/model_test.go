package booking_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"runclub/internal/domain/booking"
)

// TestBooking_Validate tests validation of Booking.
func TestBooking_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		b       booking.Booking
		wantErr bool
	}{
		{"valid", booking.Booking{RunID: "r", MemberID: "m", BookedAt: now}, false},
		{"no run", booking.Booking{MemberID: "m", BookedAt: now}, true},
		{"no member", booking.Booking{RunID: "r", BookedAt: now}, true},
		{"no time", booking.Booking{RunID: "r", MemberID: "m"}, true},
		{"long reason", booking.Booking{RunID: "r", MemberID: "m", BookedAt: now, CancellationReason: strings.Repeat("x", 501)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.b.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestBooking_Cancel tests the soft delete.
func TestBooking_Cancel(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	b := booking.Booking{RunID: "r", MemberID: "m", BookedAt: now.Add(-time.Hour)}
	if !b.IsActive() {
		t.Fatal("new booking should be active")
	}
	if err := b.Cancel(now, "  injured "); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if b.IsActive() || b.CancellationReason != "injured" {
		t.Errorf("after cancel: %+v", b)
	}
	if err := b.Cancel(now, ""); !errors.Is(err, booking.ErrAlreadyCancelled) {
		t.Errorf("second Cancel() error = %v", err)
	}
}

// TestError_Is tests that typed errors match on kind.
func TestError_Is(t *testing.T) {
	wrapped := fmt.Errorf("admit: %w", booking.LirfConflictOn("Tuesday 5K"))
	if !errors.Is(wrapped, booking.ErrLirfConflict) {
		t.Error("LirfConflictOn should match ErrLirfConflict")
	}
	if errors.Is(wrapped, booking.ErrRunFull) {
		t.Error("LirfConflictOn should not match ErrRunFull")
	}

	cause := errors.New("connection reset")
	gen := booking.General("", cause)
	if !errors.Is(gen, cause) {
		t.Error("General should unwrap to its cause")
	}
	if gen.Message == "" || gen.Title == "" {
		t.Error("General should carry a display title and message")
	}

	var be *booking.Error
	if !errors.As(wrapped, &be) || be.Kind != booking.KindLirfConflict {
		t.Errorf("errors.As kind = %v", be)
	}
	if !strings.Contains(be.Message, "Tuesday 5K") {
		t.Errorf("message should name the run: %q", be.Message)
	}
}
