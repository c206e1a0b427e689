package web

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/adapters/http/perf"
	accountStore "runclub/internal/adapters/storage/account"
	attendanceStore "runclub/internal/adapters/storage/attendance"
	bookingStore "runclub/internal/adapters/storage/booking"
	invitationStore "runclub/internal/adapters/storage/invitation"
	memberStore "runclub/internal/adapters/storage/member"
	outboxStore "runclub/internal/adapters/storage/outbox"
	registrationStore "runclub/internal/adapters/storage/registration"
	runStore "runclub/internal/adapters/storage/run"
	"runclub/internal/application/orchestrators"
	"runclub/internal/domain/identity"
)

// Stores holds all storage dependencies.
type Stores struct {
	AccountStore      accountStore.Store
	MemberStore       memberStore.Store
	RunStore          runStore.Store
	BookingStore      bookingStore.Store
	AttendanceStore   attendanceStore.Store
	InvitationStore   invitationStore.Store
	RegistrationStore registrationStore.Store
	OutboxStore       outboxStore.Store
}

// Options configures the API. Zero values get defaults in NewMux.
type Options struct {
	BaseURL              string         // public site root used in emailed links
	Location             *time.Location // club time zone
	CSRFKey              []byte         // 32 bytes
	SecureCookies        bool
	TrustedOrigins       []string
	RateLimitPerSecond   int
	MaxBodyBytes         int64
	ProfileRetryAttempts int
	ProfileRetryDelay    time.Duration
	DefaultRRule         string                          // used for a recurrence given without weeks or rule
	Tokens               *middleware.TokenVerifier       // nil disables bearer auth
	Outbox               *orchestrators.OutboxProcessor  // nil disables manual outbox retry
	Ping                 func(ctx context.Context) error // health check; nil reports ok
}

// DefaultRateLimitPerSecond is the per-IP request budget.
const DefaultRateLimitPerSecond = 10

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Global stores instance (set by NewMux)
var stores *Stores

// Global session store instance
var sessions *middleware.SessionStore

// Global options (set by NewMux)
var settings Options

// Global perf collector (set by NewMux)
var perfCollector *perf.Collector

// CSRFKeyFromHex decodes the hex CSRF secret from config.
// PRE: keyHex is 64 hex characters
// POST: Returns the 32-byte key or an error
func CSRFKeyFromHex(keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, errors.New("CSRF key must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// resolveIdentity reloads the caller's identity from the stores on every request.
func resolveIdentity(ctx context.Context, accountID string) (identity.Identity, error) {
	return orchestrators.ResolveIdentity(ctx, accountID, orchestrators.ResolveIdentityDeps{
		AccountStore: stores.AccountStore,
		MemberStore:  stores.MemberStore,
	})
}

// NewMux wires the JSON API.
// PRE: s has every store set; opts.CSRFKey is 32 bytes
// POST: Returns a handler serving /api and /healthz
func NewMux(s *Stores, opts Options, collector *perf.Collector) (http.Handler, error) {
	if len(opts.CSRFKey) != 32 {
		return nil, fmt.Errorf("CSRF key must be 32 bytes, got %d", len(opts.CSRFKey))
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = DefaultRateLimitPerSecond
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	stores = s
	settings = opts
	perfCollector = collector
	sessions = middleware.NewSessionStore()
	middleware.SecureCookies = opts.SecureCookies

	limiter := middleware.NewRateLimiter(opts.RateLimitPerSecond, time.Second)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Timing(collector))
	r.Use(middleware.RateLimit(limiter))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimw.RequestSize(opts.MaxBodyBytes))
	r.Use(middleware.Auth(sessions, opts.Tokens, resolveIdentity))
	r.Use(middleware.CSRF(opts.CSRFKey, opts.SecureCookies, opts.TrustedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	registerRoutes(r)
	return r, nil
}

// registerRoutes attaches every API route to r.
func registerRoutes(r chi.Router) {
	r.Get("/healthz", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", handleLogin)
		r.Post("/auth/logout", handleLogout)
		r.Post("/auth/token", handleIssueToken)
		r.Post("/register", handleRegister)
		r.Post("/register/verify", handleVerifyRegistration)

		r.Get("/me", handleMe)
		r.Put("/me/password", handleChangePassword)
		r.Get("/me/bookings", handleMyBookings)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", handleListRuns)
			r.Post("/", handleCreateRun)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", handleGetRun)
				r.Patch("/", handleUpdateRun)
				r.Delete("/", handleDeleteRun)
				r.Post("/bookings", handleBookRun)
				r.Post("/lirf", handleAssignLirf)
				r.Delete("/lirf", handleUnassignLirf)
				r.Post("/start", handleRunTransition(orchestrators.ExecuteStartRun))
				r.Post("/complete", handleRunTransition(orchestrators.ExecuteCompleteRun))
				r.Post("/cancel", handleRunTransition(orchestrators.ExecuteCancelRun))
				r.Get("/participants", handleParticipants)
				r.Put("/attendance", handleRecordAttendance)
			})
		})

		r.Delete("/bookings/{bookingID}", handleCancelBooking)

		r.Post("/invitations", handleSendInvitation)
		r.Put("/members/{memberID}/access-level", handleChangeAccessLevel)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/perf", handleAdminPerf)
			r.Get("/members", handleMemberRoster)
			r.Get("/invitations", handleListInvitations)
			r.Get("/outbox", handleAdminOutboxList)
			r.Post("/outbox/{entryID}/retry", handleAdminOutboxRetry)
			r.Post("/outbox/{entryID}/abandon", handleAdminOutboxAbandon)
		})
	})
}
