package middleware

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type contextKey string

const accountContextKey contextKey = "account"

const (
	// SessionTTL caps a session's total lifetime.
	SessionTTL = 24 * time.Hour
	// SessionIdle ends a session nobody has used for this long.
	SessionIdle = 2 * time.Hour
)

// SecureCookies marks the session cookie Secure. Set in production.
var SecureCookies bool

// Session is the signed-in caller as seen by handlers.
type Session struct {
	AccountID string
	Email     string
	Role      string
	CreatedAt time.Time
	LastSeen  time.Time
}

func (s Session) expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL || now.Sub(s.LastSeen) > SessionIdle
}

// SessionStore keeps sessions in memory keyed by the SHA-256 of their token,
// so a dump of the map cannot be replayed as cookies.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[[sha256.Size]byte]Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[[sha256.Size]byte]Session),
		now:      time.Now,
	}
}

func tokenKey(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}

// Create opens a session and returns its bearer token.
// PRE: accountID and role are non-empty
// POST: the returned token resolves through Get until it expires or is deleted
func (ss *SessionStore) Create(accountID, email, role string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	now := ss.now()
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[tokenKey(token)] = Session{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		LastSeen:  now,
	}
	return token, nil
}

// Get resolves a token and marks the session as used.
// POST: expired sessions are dropped and reported as missing
func (ss *SessionStore) Get(token string) (Session, bool) {
	key := tokenKey(token)
	now := ss.now()
	ss.mu.Lock()
	defer ss.mu.Unlock()
	session, ok := ss.sessions[key]
	if !ok {
		return Session{}, false
	}
	if session.expired(now) {
		delete(ss.sessions, key)
		return Session{}, false
	}
	session.LastSeen = now
	ss.sessions[key] = session
	return session, true
}

func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, tokenKey(token))
}

// DeleteAccount drops every session belonging to accountID.
// POST: returns the number of sessions removed
func (ss *SessionStore) DeleteAccount(accountID string) int {
	return ss.deleteWhere(func(s Session) bool { return s.AccountID == accountID })
}

// Prune drops expired sessions that were never looked up again.
func (ss *SessionStore) Prune() int {
	now := ss.now()
	return ss.deleteWhere(func(s Session) bool { return s.expired(now) })
}

func (ss *SessionStore) deleteWhere(match func(Session) bool) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	n := 0
	for key, s := range ss.sessions {
		if match(s) {
			delete(ss.sessions, key)
			n++
		}
	}
	return n
}

// Len reports how many sessions are held, expired ones included.
func (ss *SessionStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.sessions)
}

const sessionCookieName = "carecal_session"

// TokenFromRequest returns the bearer token, or the session cookie value when no
// Authorization header is present.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// IsBearerRequest reports whether the request authenticates with an Authorization header.
func IsBearerRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// Auth returns middleware that resolves the session and sets it in context.
// It does NOT block unauthenticated requests; use RequireAuth or RequireRole for that.
func Auth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := TokenFromRequest(r); token != "" {
				if session, ok := sessions.Get(token); ok {
					r = r.WithContext(ContextWithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// unauthenticated sends browsers to the login page and API clients a 401.
func unauthenticated(w http.ResponseWriter, r *http.Request) {
	slog.Info("auth_denied", "reason", "no_session", "method", r.Method, "path", r.URL.Path)
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	http.Error(w, "not authenticated", http.StatusUnauthorized)
}

// RequireAuth returns middleware that blocks unauthenticated requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole admits only sessions holding one of roles; others get 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				unauthenticated(w, r)
				return
			}
			if !roleSet[session.Role] {
				slog.Warn("auth_denied", "reason", "role", "account_id", session.AccountID, "role", session.Role, "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(accountContextKey).(Session)
	return session, ok
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
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
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, accountContextKey, sess)
}

func generateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
