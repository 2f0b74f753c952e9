package auth

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	sessionCookie = "ceepilot_session"
	stateCookie   = "oauth_state"

	// DevUserHeader names the caller when no identity provider is configured
	DevUserHeader = "X-User-ID"
	// LocalUser is used when auth is disabled and no header is sent
	LocalUser = "local"

	userKey = "ceepilot_user"
)

// Session is a logged-in browser session
type Session struct {
	User      User
	Token     *oauth2.Token
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager keeps login sessions in memory
type Manager struct {
	provider *Provider
	sessions map[string]*Session
	ttl      time.Duration
	secure   bool
	mu       sync.RWMutex
	now      func() time.Time
}

// NewManager creates a session manager. A nil provider disables login and
// makes RequireAuth trust the dev header.
func NewManager(provider *Provider, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		provider: provider,
		sessions: make(map[string]*Session),
		ttl:      ttl,
		secure:   secure,
		now:      time.Now,
	}
}

// Enabled reports whether an identity provider is configured
func (m *Manager) Enabled() bool {
	return m.provider != nil
}

// Provider returns the identity provider, or nil
func (m *Manager) Provider() *Provider {
	return m.provider
}

// SetSession creates a session for user and sets its cookie
func (m *Manager) SetSession(w http.ResponseWriter, user User, token *oauth2.Token) string {
	id := uuid.NewString()
	now := m.now()

	m.mu.Lock()
	m.sessions[id] = &Session{
		User:      user,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
	return id
}

// ClearSession forgets the request's session and expires its cookie
func (m *Manager) ClearSession(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		m.mu.Lock()
		delete(m.sessions, cookie.Value)
		m.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// SessionFromRequest returns the live session of the request, if any
func (m *Manager) SessionFromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}

	m.mu.RLock()
	session, exists := m.sessions[cookie.Value]
	m.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if m.now().After(session.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, cookie.Value)
		m.mu.Unlock()
		return nil, false
	}
	return session, true
}

// SetState stores a fresh CSRF state in a short-lived cookie
func (m *Manager) SetState(w http.ResponseWriter) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		MaxAge:   600,
	})
	return state
}

// CheckState verifies and clears the CSRF state cookie
func (m *Manager) CheckState(w http.ResponseWriter, r *http.Request, state string) bool {
	cookie, err := r.Cookie(stateCookie)
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return err == nil && state != "" && cookie.Value == state
}

// RequireAuth rejects requests without a user. With auth disabled the user
// comes from the dev header, or LocalUser.
func (m *Manager) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			user := strings.TrimSpace(c.GetHeader(DevUserHeader))
			if user == "" {
				user = LocalUser
			}
			c.Set(userKey, user)
			c.Next()
			return
		}

		session, ok := m.SessionFromRequest(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(userKey, session.User.ID)
		c.Next()
	}
}

// UserID returns the user set by RequireAuth
func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}

// Sweep removes expired sessions and returns how many were dropped
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}

// StartCleanup sweeps expired sessions every interval until stop is called
func (m *Manager) StartCleanup(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
