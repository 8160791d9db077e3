package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thunder45/service-translate-sub001/internal/errs"
)

// MockProvider is an in-memory identity provider for tests and local runs
// without an identity-provider account.
type MockProvider struct {
	mu       sync.Mutex
	users    map[string]mockUser
	tokens   map[string]mockToken // accessToken → token state
	refresh  map[string]string    // refreshToken → username
	TokenTTL time.Duration
	seq      int
}

type mockUser struct {
	password    string
	adminID     string
	displayName string
}

type mockToken struct {
	username  string
	expiresAt time.Time
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		users:    make(map[string]mockUser),
		tokens:   make(map[string]mockToken),
		refresh:  make(map[string]string),
		TokenTTL: time.Hour,
	}
}

// AddUser registers a user and returns its stable admin id.
func (p *MockProvider) AddUser(username, password, displayName string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	adminID := uuid.NewString()
	p.users[username] = mockUser{password: password, adminID: adminID, displayName: displayName}
	return adminID
}

func (p *MockProvider) AuthenticateWithPassword(_ context.Context, username, password string) (TokenBundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[username]
	if !ok {
		return TokenBundle{}, errs.New(errs.CognitoUserNotFound, "user not found")
	}
	if u.password != password {
		return TokenBundle{}, errs.New(errs.AuthInvalidCredentials, "invalid credentials")
	}
	return p.issueLocked(username), nil
}

func (p *MockProvider) ValidateToken(_ context.Context, accessToken string) (UserInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tok, ok := p.tokens[accessToken]
	if !ok {
		return UserInfo{}, errs.New(errs.AuthTokenInvalid, "unknown access token")
	}
	if time.Now().After(tok.expiresAt) {
		return UserInfo{}, errs.New(errs.AuthTokenExpired, "access token expired")
	}
	u := p.users[tok.username]
	return UserInfo{
		AdminID:     u.adminID,
		Username:    tok.username,
		Email:       tok.username,
		DisplayName: u.displayName,
	}, nil
}

func (p *MockProvider) Refresh(_ context.Context, refreshToken string) (TokenBundle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	username, ok := p.refresh[refreshToken]
	if !ok {
		return TokenBundle{}, errs.New(errs.AuthRefreshInvalid, "unknown refresh token")
	}
	return p.issueLocked(username), nil
}

// ExpireToken force-expires an issued access token.
func (p *MockProvider) ExpireToken(accessToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok, ok := p.tokens[accessToken]; ok {
		tok.expiresAt = time.Now().Add(-time.Second)
		p.tokens[accessToken] = tok
	}
}

func (p *MockProvider) issueLocked(username string) TokenBundle {
	p.seq++
	access := fmt.Sprintf("access-%s-%d", username, p.seq)
	refreshTok := fmt.Sprintf("refresh-%s-%d", username, p.seq)
	p.tokens[access] = mockToken{username: username, expiresAt: time.Now().Add(p.TokenTTL)}
	p.refresh[refreshTok] = username
	return TokenBundle{
		AccessToken:  access,
		IDToken:      "id-" + access,
		RefreshToken: refreshTok,
		ExpiresIn:    int64(p.TokenTTL / time.Second),
	}
}
