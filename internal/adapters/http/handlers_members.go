package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/application/listutil"
	"runclub/internal/application/orchestrators"
	"runclub/internal/application/projections"
)

type sendInvitationRequest struct {
	Email       string `json:"email" validate:"required,email"`
	AccessLevel string `json:"access_level" validate:"omitempty,oneof=member lirf admin"`
}

// handleSendInvitation handles POST /api/invitations.
func handleSendInvitation(w http.ResponseWriter, r *http.Request) {
	var req sendInvitationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	inv, err := orchestrators.ExecuteSendInvitation(r.Context(), orchestrators.SendInvitationInput{
		Identity:    middleware.IdentityFromContext(r.Context()),
		Email:       req.Email,
		AccessLevel: req.AccessLevel,
	}, orchestrators.SendInvitationDeps{
		InvitationStore: stores.InvitationStore,
		MemberStore:     stores.MemberStore,
		Outbox:          stores.OutboxStore,
		GenerateID:      generateID,
		GenerateToken:   generateToken,
		Now:             timeNow,
		BaseURL:         settings.BaseURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewInvitation(inv))
}

// handleListInvitations handles GET /api/admin/invitations: invitations
// that are neither accepted nor expired.
func handleListInvitations(w http.ResponseWriter, r *http.Request) {
	open, err := stores.InvitationStore.ListOpen(r.Context(), timeNow())
	if err != nil {
		internalError(w, err)
		return
	}
	out := make([]invitationView, 0, len(open))
	for _, inv := range open {
		out = append(out, viewInvitation(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

type accessLevelRequest struct {
	AccessLevel string `json:"access_level" validate:"required"`
}

// handleChangeAccessLevel handles PUT /api/members/{memberID}/access-level.
// The member's sessions pick up the new level on their next request.
func handleChangeAccessLevel(w http.ResponseWriter, r *http.Request) {
	var req accessLevelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := orchestrators.ExecuteChangeAccessLevel(r.Context(), orchestrators.ChangeAccessLevelInput{
		Identity:    middleware.IdentityFromContext(r.Context()),
		MemberID:    chi.URLParam(r, "memberID"),
		AccessLevel: req.AccessLevel,
	}, orchestrators.ChangeAccessLevelDeps{MemberStore: stores.MemberStore})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rosterEntryView struct {
	ID               string `json:"id"`
	FullName         string `json:"full_name"`
	Email            string `json:"email"`
	AccessLevel      string `json:"access_level"`
	MembershipStatus string `json:"membership_status"`
	RunsAttended     int    `json:"runs_attended"`
}

type rosterView struct {
	Members []rosterEntryView `json:"members"`
	Page    listutil.PageInfo `json:"page"`
}

// handleMemberRoster handles GET /api/admin/members with paging
// (page, per_page), sorting (sort, dir), search (q) and filters
// (access_level, status).
func handleMemberRoster(w http.ResponseWriter, r *http.Request) {
	params := listutil.ParseListParams(r.URL.Query(), projections.RosterSortColumns, projections.RosterFilterKeys)
	res, err := projections.QueryMemberRoster(r.Context(), projections.MemberRosterQuery{Params: params},
		projections.MemberRosterDeps{
			MemberStore:     stores.MemberStore,
			AttendanceStore: stores.AttendanceStore,
		})
	if err != nil {
		internalError(w, err)
		return
	}
	out := rosterView{Members: make([]rosterEntryView, 0, len(res.Members)), Page: res.Page}
	for _, m := range res.Members {
		out.Members = append(out.Members, rosterEntryView{
			ID:               m.ID,
			FullName:         m.FullName,
			Email:            m.Email,
			AccessLevel:      m.AccessLevel,
			MembershipStatus: m.MembershipStatus,
			RunsAttended:     m.RunsAttended,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
