package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"runclub/internal/application/orchestrators"
	"runclub/internal/domain/account"
	"runclub/internal/domain/attendance"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/member"
	"runclub/internal/domain/outbox"
	"runclub/internal/domain/registration"
	"runclub/internal/domain/run"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// mdRenderer renders run descriptions. Raw HTML in the markdown is
// omitted because WithUnsafe is not set.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// validate checks decoded request bodies.
var validate = validator.New(validator.WithRequiredStructEnabled())

// generateID creates a new UUID string.
func generateID() string {
	return uuid.New().String()
}

// generateToken creates an unguessable token for emailed links.
func generateToken() string {
	return strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
}

type errorBody struct {
	Error string `json:"error"`
}

// bookingErrorBody is the display shape of a *booking.Error.
type bookingErrorBody struct {
	Kind    booking.Kind `json:"kind"`
	Title   string       `json:"title"`
	Message string       `json:"message"`
}

// errorStatuses maps domain sentinels to HTTP statuses. The first match wins.
var errorStatuses = []struct {
	err    error
	status int
}{
	{run.ErrNotFound, http.StatusNotFound},
	{booking.ErrNotFound, http.StatusNotFound},
	{member.ErrNotFound, http.StatusNotFound},
	{account.ErrNotFound, http.StatusNotFound},
	{invitation.ErrNotFound, http.StatusNotFound},
	{outbox.ErrNotFound, http.StatusNotFound},

	{orchestrators.ErrInvalidCredentials, http.StatusUnauthorized},
	{orchestrators.ErrCurrentPasswordWrong, http.StatusForbidden},
	{orchestrators.ErrAccountLocked, http.StatusForbidden},
	{orchestrators.ErrPendingActivation, http.StatusForbidden},
	{orchestrators.ErrNoProfile, http.StatusForbidden},
	{orchestrators.ErrMembershipInactive, http.StatusForbidden},
	{orchestrators.ErrAdminOnly, http.StatusForbidden},
	{orchestrators.ErrChangeOwnAccess, http.StatusForbidden},
	{run.ErrNotLeader, http.StatusForbidden},
	{run.ErrForbidden, http.StatusForbidden},
	{booking.ErrNotOwner, http.StatusForbidden},

	{run.ErrPositionsFilled, http.StatusConflict},
	{run.ErrAlreadyAssigned, http.StatusConflict},
	{run.ErrNotAssigned, http.StatusConflict},
	{run.ErrInvalidTransition, http.StatusConflict},
	{run.ErrNotRunDay, http.StatusConflict},
	{run.ErrStatusChanged, http.StatusConflict},
	{run.ErrNotEditable, http.StatusConflict},
	{run.ErrNotDeletable, http.StatusConflict},
	{run.ErrHasBookings, http.StatusConflict},
	{run.ErrCapacityBelowBookings, http.StatusConflict},
	{run.ErrRequiredBelowAssigned, http.StatusConflict},
	{booking.ErrAlreadyCancelled, http.StatusConflict},
	{attendance.ErrRunNotStarted, http.StatusConflict},
	{account.ErrEmailTaken, http.StatusConflict},
	{invitation.ErrAlreadyMember, http.StatusConflict},
	{invitation.ErrAlreadyAccepted, http.StatusConflict},
	{outbox.ErrTerminal, http.StatusConflict},

	{registration.ErrTokenInvalid, http.StatusBadRequest},
	{registration.ErrTokenExpired, http.StatusGone},
	{invitation.ErrExpired, http.StatusGone},
	{invitation.ErrEmailMismatch, http.StatusBadRequest},
	{attendance.ErrNoMarks, http.StatusBadRequest},
	{attendance.ErrUnknownMember, http.StatusBadRequest},
	{member.ErrInvalidAccessLevel, http.StatusBadRequest},
	{account.ErrEmptyEmail, http.StatusBadRequest},
	{account.ErrInvalidEmail, http.StatusBadRequest},
	{account.ErrEmptyPassword, http.StatusBadRequest},
	{account.ErrPasswordTooShort, http.StatusBadRequest},
	{orchestrators.ErrNewPasswordSame, http.StatusBadRequest},
	{run.ErrInvalidRecurrence, http.StatusBadRequest},
}

// bookingStatus maps booking error kinds to HTTP statuses.
func bookingStatus(k booking.Kind) int {
	switch k {
	case booking.KindAuthRequired:
		return http.StatusUnauthorized
	case booking.KindAlreadyBooked, booking.KindRunFull, booking.KindLirfConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Booking errors keep their display
// shape; known sentinels get their own status; anything else is logged and
// hidden behind a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var be *booking.Error
	if errors.As(err, &be) {
		if be.Kind == booking.KindGeneral && be.Err != nil {
			slog.Error("booking_error", "title", be.Title, "error", be.Err.Error())
		}
		writeJSON(w, bookingStatus(be.Kind), bookingErrorBody{Kind: be.Kind, Title: be.Title, Message: be.Message})
		return
	}
	for _, es := range errorStatuses {
		if errors.Is(err, es.err) {
			writeJSON(w, es.status, errorBody{Error: es.err.Error()})
			return
		}
	}
	if errors.Is(err, registration.ErrProfileCreation) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: registration.ErrProfileCreation.Error()})
		return
	}
	if orchestrators.IsInvalidInput(err) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	internalError(w, err)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("encode_response", "error", err.Error())
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeBody decodes and validates a JSON request body, writing the error
// response itself. Returns false if the handler should stop.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(r, v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON: " + err.Error()})
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validationMessage(err)})
		return false
	}
	return true
}

// validationMessage turns validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "email":
			parts = append(parts, field+" must be an email address")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// handleHealth handles GET /healthz.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	if settings.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := settings.Ping(ctx); err != nil {
			slog.Error("health_check_failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// renderMarkdown converts a run description to HTML.
func renderMarkdown(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		slog.Warn("markdown_render_failed", "error", err.Error())
		return ""
	}
	return buf.String()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
