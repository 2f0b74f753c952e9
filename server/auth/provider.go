package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/themobileprof/ceepilot/internal/config"
)

// User is the identity returned by the provider
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Provider performs the OAuth2 authorization-code flow against the
// configured identity provider.
type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewProvider creates a provider, or returns nil when auth is not configured
func NewProvider(cfg config.Auth, redirectURL string) *Provider {
	if !cfg.Enabled() {
		return nil
	}
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL returns the provider login URL for state
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and the user behind it
func (p *Provider) Exchange(ctx context.Context, code string) (*User, *oauth2.Token, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	user, err := p.FetchUser(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	return user, token, nil
}

// FetchUser reads the user profile from the userinfo endpoint
func (p *Provider) FetchUser(ctx context.Context, token *oauth2.Token) (*User, error) {
	if p.userInfoURL == "" {
		return nil, fmt.Errorf("no userinfo endpoint configured")
	}
	client := p.oauth.Client(ctx, token)

	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	user := &User{
		ID:    firstString(profile, "sub", "id", "login"),
		Email: firstString(profile, "email"),
		Name:  firstString(profile, "name", "login"),
	}
	if user.ID == "" {
		return nil, fmt.Errorf("user info has no identifier")
	}
	return user, nil
}

// firstString returns the first non-empty field among keys. Numeric ids are
// formatted without exponent.
func firstString(profile map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := profile[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}
