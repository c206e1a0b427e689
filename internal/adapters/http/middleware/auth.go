package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"runclub/internal/domain/identity"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const identityContextKey contextKey = "identity"

// SessionTTL is how long a cookie session stays valid.
const SessionTTL = 24 * time.Hour

// SecureCookies marks session cookies Secure. Set from config at startup.
var SecureCookies = false

// Session is a signed-in browser session. Only the account is stored; the
// identity is resolved again on every request.
type Session struct {
	AccountID string
	CreatedAt time.Time
}

// SessionStore is an in-memory session store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]Session),
		now:      time.Now,
	}
}

// Create stores a new session and returns the token.
// PRE: accountID is non-empty
// POST: Session is stored, token is returned
func (ss *SessionStore) Create(accountID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[token] = Session{AccountID: accountID, CreatedAt: ss.now()}
	return token, nil
}

// Get retrieves a session by token.
// PRE: token is non-empty
// POST: Returns session if valid and not expired; expired sessions are dropped
func (ss *SessionStore) Get(token string) (Session, bool) {
	ss.mu.RLock()
	session, ok := ss.sessions[token]
	ss.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if ss.now().Sub(session.CreatedAt) > SessionTTL {
		ss.Delete(token)
		return Session{}, false
	}
	return session, true
}

// Delete removes a session by token.
// PRE: token is non-empty
// POST: Session with given token is removed
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, token)
}

// DeleteAccount removes every session belonging to accountID.
// POST: The account is signed out everywhere
func (ss *SessionStore) DeleteAccount(accountID string) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := 0
	for token, s := range ss.sessions {
		if s.AccountID == accountID {
			delete(ss.sessions, token)
			n++
		}
	}
	return n
}

// IdentityResolver turns an authenticated account ID into the caller's identity.
type IdentityResolver func(ctx context.Context, accountID string) (identity.Identity, error)

const sessionCookieName = "runclub_session"

// Auth returns middleware that resolves the caller from a bearer token or
// the session cookie and puts the identity in the context. A bearer header
// takes precedence; an invalid one is rejected rather than falling back to
// the cookie.
// It does NOT block anonymous requests; use RequireAuth or RequireLeader for that.
func Auth(sessions *SessionStore, tokens *TokenVerifier, resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := ""
			if raw, ok := bearerToken(r); ok {
				if tokens == nil {
					writeAuthError(w, http.StatusUnauthorized, "bearer tokens are not accepted")
					return
				}
				sub, err := tokens.Verify(raw)
				if err != nil {
					slog.Info("auth_event", "event", "bearer_rejected", "error", err.Error())
					writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				accountID = sub
			} else if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				if session, ok := sessions.Get(cookie.Value); ok {
					accountID = session.AccountID
				}
			}

			if accountID != "" {
				who, err := resolve(r.Context(), accountID)
				if err != nil {
					slog.Info("auth_event", "event", "identity_unresolved", "account_id", accountID, "error", err.Error())
				} else {
					r = r.WithContext(ContextWithIdentity(r.Context(), who))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// RequireAuth returns middleware that blocks anonymous requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).IsAuthenticated() {
			writeAuthError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin returns middleware that blocks callers who are not admins.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := IdentityFromContext(r.Context())
		if !who.IsAuthenticated() {
			writeAuthError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		if !who.IsAdmin() {
			writeAuthError(w, http.StatusForbidden, "admin required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// IdentityFromContext returns the caller's identity, or identity.Anonymous.
func IdentityFromContext(ctx context.Context) identity.Identity {
	who, ok := ctx.Value(identityContextKey).(identity.Identity)
	if !ok {
		return identity.Anonymous
	}
	return who
}

// ContextWithIdentity returns a context carrying who.
func ContextWithIdentity(ctx context.Context, who identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, who)
}

// SessionToken returns the raw session cookie value, if any.
func SessionToken(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
