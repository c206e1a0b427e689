package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/application/orchestrators"
	"runclub/internal/application/projections"
)

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// handleCancelBooking handles DELETE /api/bookings/{bookingID}. The reason
// body is optional.
func handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelBookingRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	b, err := orchestrators.ExecuteCancelBooking(r.Context(), orchestrators.CancelBookingInput{
		Identity:  middleware.IdentityFromContext(r.Context()),
		BookingID: chi.URLParam(r, "bookingID"),
		Reason:    req.Reason,
	}, orchestrators.CancelBookingDeps{
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
	writeJSON(w, http.StatusOK, viewBooking(b))
}

// handleMyBookings handles GET /api/me/bookings?all=true. Cancelled
// bookings are listed only when all=true.
func handleMyBookings(w http.ResponseWriter, r *http.Request) {
	list, err := projections.QueryMemberBookings(r.Context(), projections.MemberBookingsQuery{
		Identity:         middleware.IdentityFromContext(r.Context()),
		IncludeCancelled: r.URL.Query().Get("all") == "true",
	}, projections.MemberBookingsDeps{
		RunStore:     stores.RunStore,
		BookingStore: stores.BookingStore,
		Now:          timeNow,
		Location:     settings.Location,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewMemberBookings(list))
}
