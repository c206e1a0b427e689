package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/domain/outbox"
)

// handleAdminOutboxList handles GET /api/admin/outbox?status=failed|pending&limit=N.
// Failed entries are listed by default.
func handleAdminOutboxList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 100 {
		limit = n
	}

	var (
		entries []outbox.Entry
		err     error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", outbox.StatusFailed:
		entries, err = stores.OutboxStore.ListFailed(r.Context(), limit)
	case outbox.StatusPending:
		entries, err = stores.OutboxStore.ListPending(r.Context(), limit)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "status must be failed or pending"})
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOutboxEntries(entries))
}

// handleAdminOutboxRetry handles POST /api/admin/outbox/{entryID}/retry.
// The entry is attempted once now, regardless of its backoff.
func handleAdminOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if settings.Outbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "outbox processing is disabled"})
		return
	}
	id := chi.URLParam(r, "entryID")
	if err := settings.Outbox.ProcessSingle(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("outbox_event", "event", "manual_retry", "entry_id", id,
		"by", middleware.IdentityFromContext(r.Context()).MemberID)
	entry, err := stores.OutboxStore.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOutboxEntries([]outbox.Entry{entry})[0])
}

// handleAdminOutboxAbandon handles POST /api/admin/outbox/{entryID}/abandon.
func handleAdminOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	if settings.Outbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "outbox processing is disabled"})
		return
	}
	id := chi.URLParam(r, "entryID")
	if err := settings.Outbox.AbandonEntry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("outbox_event", "event", "manual_abandon", "entry_id", id,
		"by", middleware.IdentityFromContext(r.Context()).MemberID)
	w.WriteHeader(http.StatusNoContent)
}
