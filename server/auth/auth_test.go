package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/ceepilot/internal/config"
)

func newProviderServer(t *testing.T, profile string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(profile))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func providerConfig(base string) config.Auth {
	return config.Auth{
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      base + "/authorize",
		TokenURL:     base + "/token",
		UserInfoURL:  base + "/userinfo",
		Scopes:       []string{"openid", "email"},
	}
}

func TestNewProviderDisabled(t *testing.T) {
	if p := NewProvider(config.Auth{}, ""); p != nil {
		t.Error("Expected nil provider without client configuration")
	}
}

func TestProviderExchange(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		wantID  string
		wantErr bool
	}{
		{"oidc subject", `{"sub":"abc-1","email":"a@example.fr","name":"Alice"}`, "abc-1", false},
		{"numeric id", `{"id":123456789,"login":"alice"}`, "123456789", false},
		{"no identifier", `{"email":"a@example.fr"}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newProviderServer(t, tt.profile)
			p := NewProvider(providerConfig(srv.URL), srv.URL+"/auth/callback")

			if url := p.AuthCodeURL("st"); !strings.HasPrefix(url, srv.URL+"/authorize?") || !strings.Contains(url, "state=st") {
				t.Errorf("Unexpected auth URL %s", url)
			}

			user, token, err := p.Exchange(context.Background(), "good-code")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got user %+v", user)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if user.ID != tt.wantID {
				t.Errorf("Expected user id %s, got %s", tt.wantID, user.ID)
			}
			if token.AccessToken != "tok-123" {
				t.Errorf("Expected access token tok-123, got %s", token.AccessToken)
			}
		})
	}
}

func TestProviderExchangeBadCode(t *testing.T) {
	srv := newProviderServer(t, `{"sub":"x"}`)
	p := NewProvider(providerConfig(srv.URL), "")

	if _, _, err := p.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("Expected error for rejected code")
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(nil, time.Hour, false)

	w := httptest.NewRecorder()
	id := m.SetSession(w, User{ID: "alice"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}

	session, ok := m.SessionFromRequest(req)
	if !ok || session.User.ID != "alice" {
		t.Fatalf("Expected alice's session, got %+v %v", session, ok)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := m.SessionFromRequest(req); ok {
		t.Error("Expected expired session to be rejected")
	}
	m.now = time.Now

	m.sessions[id] = session
	m.ClearSession(httptest.NewRecorder(), req)
	if _, ok := m.SessionFromRequest(req); ok {
		t.Error("Expected cleared session to be rejected")
	}
}

func TestStateCheck(t *testing.T) {
	m := NewManager(nil, time.Hour, false)

	w := httptest.NewRecorder()
	state := m.SetState(w)

	req := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}

	if m.CheckState(httptest.NewRecorder(), req, "forged") {
		t.Error("Expected forged state to fail")
	}
	if !m.CheckState(httptest.NewRecorder(), req, state) {
		t.Error("Expected matching state to pass")
	}
	if m.CheckState(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), state) {
		t.Error("Expected missing cookie to fail")
	}
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	whoami := func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) }

	t.Run("disabled uses dev header", func(t *testing.T) {
		m := NewManager(nil, time.Hour, false)
		r := gin.New()
		r.GET("/me", m.RequireAuth(), whoami)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(DevUserHeader, "bob")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Body.String() != "bob" {
			t.Errorf("Expected bob, got %q", w.Body.String())
		}

		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		if w.Body.String() != LocalUser {
			t.Errorf("Expected %s, got %q", LocalUser, w.Body.String())
		}
	})

	t.Run("enabled requires session", func(t *testing.T) {
		srv := newProviderServer(t, `{"sub":"x"}`)
		m := NewManager(NewProvider(providerConfig(srv.URL), ""), time.Hour, false)
		r := gin.New()
		r.GET("/me", m.RequireAuth(), whoami)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set(DevUserHeader, "mallory")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}

		login := httptest.NewRecorder()
		m.SetSession(login, User{ID: "carol"}, nil)
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		for _, c := range login.Result().Cookies() {
			req.AddCookie(c)
		}
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != "carol" {
			t.Errorf("Expected carol, got %d %q", w.Code, w.Body.String())
		}
	})
}

func TestSweep(t *testing.T) {
	m := NewManager(nil, time.Minute, false)
	m.SetSession(httptest.NewRecorder(), User{ID: "a"}, nil)
	m.SetSession(httptest.NewRecorder(), User{ID: "b"}, nil)

	if n := m.Sweep(); n != 0 {
		t.Errorf("Expected nothing swept, got %d", n)
	}
	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := m.Sweep(); n != 2 {
		t.Errorf("Expected 2 sessions swept, got %d", n)
	}
}
