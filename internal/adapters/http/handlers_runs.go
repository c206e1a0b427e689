package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/application/orchestrators"
	"runclub/internal/application/projections"
	"runclub/internal/domain/run"
)

// validDate reports whether s is empty or a YYYY-MM-DD date.
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(run.DateLayout, s)
	return err == nil
}

// handleListRuns handles GET /api/runs?from=YYYY-MM-DD&to=YYYY-MM-DD.
func handleListRuns(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if !validDate(from) || !validDate(to) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "from and to must be dates in YYYY-MM-DD form"})
		return
	}
	if from != "" && to != "" && from > to {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "from must not be after to"})
		return
	}
	res, err := projections.QueryRunList(r.Context(), projections.RunListQuery{
		Identity: middleware.IdentityFromContext(r.Context()),
		From:     from,
		To:       to,
	}, projections.RunListDeps{
		RunStore:     stores.RunStore,
		BookingStore: stores.BookingStore,
		MemberStore:  stores.MemberStore,
		Now:          timeNow,
		Location:     settings.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRunList(res))
}

type recurrenceRequest struct {
	Weeks int    `json:"weeks" validate:"gte=0"`
	RRule string `json:"rrule"`
}

type createRunRequest struct {
	Title           string             `json:"title" validate:"required"`
	Description     string             `json:"description"`
	RunDate         string             `json:"run_date" validate:"required"`
	StartTime       string             `json:"start_time" validate:"required"`
	MeetingPoint    string             `json:"meeting_point" validate:"required"`
	DistanceKm      float64            `json:"distance_km" validate:"gte=0"`
	MaxParticipants int                `json:"max_participants" validate:"required,gt=0"`
	LirfsRequired   int                `json:"lirfs_required" validate:"gte=0"`
	Recurrence      *recurrenceRequest `json:"recurrence"`
}

// handleCreateRun handles POST /api/runs. A recurrence creates every
// occurrence at once; the response lists them all.
func handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	var rec run.Recurrence
	if req.Recurrence != nil {
		rec = run.Recurrence{Weeks: req.Recurrence.Weeks, RRule: req.Recurrence.RRule}
		if rec.IsZero() {
			rec.RRule = settings.DefaultRRule
		}
	}
	runs, err := orchestrators.ExecuteCreateRun(r.Context(), orchestrators.CreateRunInput{
		Identity:        middleware.IdentityFromContext(r.Context()),
		Title:           req.Title,
		Description:     req.Description,
		RunDate:         req.RunDate,
		StartTime:       req.StartTime,
		MeetingPoint:    req.MeetingPoint,
		DistanceKm:      req.DistanceKm,
		MaxParticipants: req.MaxParticipants,
		LirfsRequired:   req.LirfsRequired,
		Recurrence:      rec,
	}, orchestrators.CreateRunDeps{
		RunStore:   stores.RunStore,
		GenerateID: generateID,
		Now:        timeNow,
		Location:   settings.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]runView, 0, len(runs))
	for _, created := range runs {
		out = append(out, viewRun(created))
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleGetRun handles GET /api/runs/{runID}.
func handleGetRun(w http.ResponseWriter, r *http.Request) {
	av, err := projections.QueryRunAvailability(r.Context(), projections.RunAvailabilityQuery{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, projections.RunAvailabilityDeps{
		RunStore:     stores.RunStore,
		BookingStore: stores.BookingStore,
		MemberStore:  stores.MemberStore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAvailability(av))
}

// updateRunRequest holds the editable fields. Absent fields are left alone.
type updateRunRequest struct {
	Title           *string  `json:"title"`
	Description     *string  `json:"description"`
	StartTime       *string  `json:"start_time"`
	MeetingPoint    *string  `json:"meeting_point"`
	DistanceKm      *float64 `json:"distance_km" validate:"omitnil,gte=0"`
	MaxParticipants *int     `json:"max_participants" validate:"omitnil,gt=0"`
	LirfsRequired   *int     `json:"lirfs_required" validate:"omitnil,gte=0"`
}

// handleUpdateRun handles PATCH /api/runs/{runID}.
func handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	var req updateRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	updated, err := orchestrators.ExecuteUpdateRun(r.Context(), orchestrators.UpdateRunInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
		Edit: run.Edit{
			Title:           req.Title,
			Description:     req.Description,
			StartTime:       req.StartTime,
			MeetingPoint:    req.MeetingPoint,
			DistanceKm:      req.DistanceKm,
			MaxParticipants: req.MaxParticipants,
			LirfsRequired:   req.LirfsRequired,
		},
	}, orchestrators.UpdateRunDeps{RunStore: stores.RunStore})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewRun(updated))
}

// handleDeleteRun handles DELETE /api/runs/{runID}.
func handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	err := orchestrators.ExecuteDeleteRun(r.Context(), orchestrators.DeleteRunInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, orchestrators.DeleteRunDeps{RunStore: stores.RunStore})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBookRun handles POST /api/runs/{runID}/bookings.
func handleBookRun(w http.ResponseWriter, r *http.Request) {
	b, err := orchestrators.ExecuteBookRun(r.Context(), orchestrators.BookRunInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, orchestrators.BookRunDeps{
		BookingStore: stores.BookingStore,
		RunStore:     stores.RunStore,
		MemberStore:  stores.MemberStore,
		Outbox:       stores.OutboxStore,
		GenerateID:   generateID,
		Now:          timeNow,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewBooking(b))
}

type lirfResponse struct {
	Run  runView `json:"run"`
	Slot int     `json:"slot"`
}

// handleAssignLirf handles POST /api/runs/{runID}/lirf.
func handleAssignLirf(w http.ResponseWriter, r *http.Request) {
	res, err := orchestrators.ExecuteAssignLirf(r.Context(), orchestrators.LirfInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, orchestrators.LirfDeps{RunStore: stores.RunStore})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lirfResponse{Run: viewRun(res.Run), Slot: res.Slot})
}

// handleUnassignLirf handles DELETE /api/runs/{runID}/lirf?confirm=true.
// Without the confirmation flag nothing changes.
func handleUnassignLirf(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "confirm=true is required to step down as LIRF"})
		return
	}
	res, err := orchestrators.ExecuteUnassignLirf(r.Context(), orchestrators.LirfInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, orchestrators.LirfDeps{RunStore: stores.RunStore})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lirfResponse{Run: viewRun(res.Run), Slot: res.Slot})
}

type transitionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// runTransition is the shape shared by the start, complete and cancel orchestrators.
type runTransition func(ctx context.Context, input orchestrators.RunStatusInput, deps orchestrators.RunStatusDeps) (run.Run, error)

// handleRunTransition adapts a status orchestrator to POST
// /api/runs/{runID}/start, /complete and /cancel. The body is optional.
func handleRunTransition(fn runTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transitionRequest
		if r.ContentLength != 0 {
			if !decodeBody(w, r, &req) {
				return
			}
		}
		updated, err := fn(r.Context(), orchestrators.RunStatusInput{
			Identity: middleware.IdentityFromContext(r.Context()),
			RunID:    chi.URLParam(r, "runID"),
			Reason:   req.Reason,
		}, orchestrators.RunStatusDeps{
			RunStore:     stores.RunStore,
			BookingStore: stores.BookingStore,
			MemberStore:  stores.MemberStore,
			Outbox:       stores.OutboxStore,
			GenerateID:   generateID,
			Now:          timeNow,
			Location:     settings.Location,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewRun(updated))
	}
}

// handleParticipants handles GET /api/runs/{runID}/participants.
func handleParticipants(w http.ResponseWriter, r *http.Request) {
	res, err := projections.QueryRunParticipants(r.Context(), projections.RunParticipantsQuery{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
	}, projections.RunParticipantsDeps{
		RunStore:        stores.RunStore,
		BookingStore:    stores.BookingStore,
		MemberStore:     stores.MemberStore,
		AttendanceStore: stores.AttendanceStore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewParticipants(res))
}

type markRequest struct {
	MemberID string `json:"member_id" validate:"required"`
	Present  bool   `json:"present"`
}

type attendanceRequest struct {
	Marks []markRequest `json:"marks" validate:"required,min=1,dive"`
}

// handleRecordAttendance handles PUT /api/runs/{runID}/attendance.
func handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := orchestrators.ExecuteRecordAttendance(r.Context(), orchestrators.RecordAttendanceInput{
		Identity: middleware.IdentityFromContext(r.Context()),
		RunID:    chi.URLParam(r, "runID"),
		Marks:    marksFrom(req.Marks),
	}, orchestrators.RecordAttendanceDeps{
		RunStore:        stores.RunStore,
		BookingStore:    stores.BookingStore,
		MemberStore:     stores.MemberStore,
		AttendanceStore: stores.AttendanceStore,
		GenerateID:      generateID,
		Now:             timeNow,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewAttendance(res))
}
