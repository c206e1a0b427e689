package orchestrators

import (
	"context"
	"log/slog"

	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/run"
)

// LirfSlotStore changes LIRF slots under the run lock.
type LirfSlotStore interface {
	AssignLirf(ctx context.Context, runID, memberID string) (run.Run, int, error)
	UnassignLirf(ctx context.Context, runID, memberID string) (run.Run, int, error)
}

// LirfInput carries input for the LIRF assignment orchestrators.
type LirfInput struct {
	Identity identity.Identity
	RunID    string
}

// LirfResult reports the slot that changed.
type LirfResult struct {
	Run  run.Run
	Slot int
}

// LirfDeps holds dependencies for AssignLirf and UnassignLirf.
type LirfDeps struct {
	RunStore LirfSlotStore
}

// ExecuteAssignLirf puts the caller into the first open LIRF slot.
// PRE: Caller has access level lirf or admin
// POST: Caller holds exactly one slot among 1..LirfsRequired, or no slot changed
// INVARIANT: A member never both leads and books the same run
func ExecuteAssignLirf(ctx context.Context, input LirfInput, deps LirfDeps) (LirfResult, error) {
	if !input.Identity.IsAuthenticated() {
		return LirfResult{}, booking.ErrAuthRequired
	}
	if !input.Identity.CanLead() {
		return LirfResult{}, run.ErrNotLeader
	}

	r, slot, err := deps.RunStore.AssignLirf(ctx, input.RunID, input.Identity.MemberID)
	if err != nil {
		slog.Info("lirf_event", "event", "assign_rejected", "run_id", input.RunID, "member_id", input.Identity.MemberID, "error", err.Error())
		return LirfResult{}, err
	}

	slog.Info("lirf_event", "event", "lirf_assigned", "run_id", r.ID, "member_id", input.Identity.MemberID, "slot", slot)
	return LirfResult{Run: r, Slot: slot}, nil
}

// ExecuteUnassignLirf removes the caller from their LIRF slot. Later slots
// shift left. Confirmation is taken by the caller before this runs.
// PRE: Caller holds a slot on RunID
// POST: Caller holds no slot; remaining slots are packed from slot 1
func ExecuteUnassignLirf(ctx context.Context, input LirfInput, deps LirfDeps) (LirfResult, error) {
	if !input.Identity.IsAuthenticated() {
		return LirfResult{}, booking.ErrAuthRequired
	}

	r, slot, err := deps.RunStore.UnassignLirf(ctx, input.RunID, input.Identity.MemberID)
	if err != nil {
		return LirfResult{}, err
	}

	slog.Info("lirf_event", "event", "lirf_unassigned", "run_id", r.ID, "member_id", input.Identity.MemberID, "slot", slot)
	return LirfResult{Run: r, Slot: slot}, nil
}
