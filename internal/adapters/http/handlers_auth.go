package web

import (
	"log/slog"
	"net/http"
	"time"

	"runclub/internal/adapters/http/middleware"
	"runclub/internal/application/orchestrators"
	"runclub/internal/domain/identity"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func loginDeps() orchestrators.LoginDeps {
	return orchestrators.LoginDeps{
		AccountStore: stores.AccountStore,
		MemberStore:  stores.MemberStore,
		Now:          timeNow,
	}
}

// startSession creates a cookie session for who and writes the cookie.
func startSession(w http.ResponseWriter, who identity.Identity) error {
	token, err := sessions.Create(who.AccountID)
	if err != nil {
		return err
	}
	middleware.SetSessionCookie(w, token)
	return nil
}

// handleLogin handles POST /api/auth/login.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	who, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, loginDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	if err := startSession(w, who); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(who))
}

// handleLogout handles POST /api/auth/logout. Logging out without a session is not an error.
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		sessions.Delete(token)
	}
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleIssueToken handles POST /api/auth/token. It checks credentials like
// login but returns a bearer token instead of setting a cookie.
func handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if settings.Tokens == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "token authentication is disabled"})
		return
	}
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	who, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	}, loginDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	raw, exp, err := settings.Tokens.Issue(who.AccountID)
	if err != nil {
		internalError(w, err)
		return
	}
	slog.Info("auth_event", "event", "token_issued", "account_id", who.AccountID)
	writeJSON(w, http.StatusOK, tokenResponse{Token: raw, ExpiresAt: exp})
}

type registerRequest struct {
	Email                 string `json:"email" validate:"required,email"`
	Password              string `json:"password" validate:"required"`
	FullName              string `json:"full_name" validate:"required"`
	Phone                 string `json:"phone"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	HealthNotes           string `json:"health_notes"`
	InvitationToken       string `json:"invitation_token"`
}

type registerResponse struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleRegister handles POST /api/register. The account is created only
// once the emailed link is followed, so the response is 202.
func handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := orchestrators.ExecuteRegister(r.Context(), orchestrators.RegisterInput{
		Email:                 req.Email,
		Password:              req.Password,
		FullName:              req.FullName,
		Phone:                 req.Phone,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		HealthNotes:           req.HealthNotes,
		InvitationToken:       req.InvitationToken,
	}, orchestrators.RegisterDeps{
		AccountStore:    stores.AccountStore,
		PendingStore:    stores.RegistrationStore,
		InvitationStore: stores.InvitationStore,
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
	writeJSON(w, http.StatusAccepted, registerResponse{Email: p.Email, ExpiresAt: p.ExpiresAt})
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// handleVerifyRegistration handles POST /api/register/verify and logs the new member in.
func handleVerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	who, err := orchestrators.ExecuteVerifyRegistration(r.Context(), orchestrators.VerifyRegistrationInput{
		Token: req.Token,
	}, orchestrators.VerifyRegistrationDeps{
		PendingStore:         stores.RegistrationStore,
		AccountStore:         stores.AccountStore,
		MemberStore:          stores.MemberStore,
		InvitationStore:      stores.InvitationStore,
		Outbox:               stores.OutboxStore,
		GenerateID:           generateID,
		Now:                  timeNow,
		ProfileRetryAttempts: settings.ProfileRetryAttempts,
		ProfileRetryDelay:    settings.ProfileRetryDelay,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := startSession(w, who); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewIdentity(who))
}

// handleMe handles GET /api/me.
func handleMe(w http.ResponseWriter, r *http.Request) {
	who := middleware.IdentityFromContext(r.Context())
	if !who.IsAuthenticated() {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, viewIdentity(who))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// handleChangePassword handles PUT /api/me/password. Every session of the
// account is dropped; a cookie caller gets a fresh one.
func handleChangePassword(w http.ResponseWriter, r *http.Request) {
	who := middleware.IdentityFromContext(r.Context())
	if !who.IsAuthenticated() {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authenticated"})
		return
	}
	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := orchestrators.ExecuteChangePassword(r.Context(), orchestrators.ChangePasswordInput{
		Identity:        who,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}, orchestrators.ChangePasswordDeps{AccountStore: stores.AccountStore})
	if err != nil {
		writeError(w, err)
		return
	}
	dropped := sessions.DeleteAccount(who.AccountID)
	slog.Info("auth_event", "event", "sessions_revoked", "account_id", who.AccountID, "count", dropped)
	if middleware.SessionToken(r) != "" {
		if err := startSession(w, who); err != nil {
			internalError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
