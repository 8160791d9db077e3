// Package identity wraps the external identity provider used to
// authenticate admins.
package identity

import "context"

// TokenBundle is one set of provider tokens. ExpiresIn is in seconds and
// applies to the access token.
type TokenBundle struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int64
}

// UserInfo identifies an authenticated operator. AdminID is the provider's
// stable subject id (UUID form) and never changes for a given account.
type UserInfo struct {
	AdminID     string
	Username    string
	Email       string
	DisplayName string
}

// Provider is the identity-provider contract. Implementations are stateless
// across calls; all per-socket token state lives in the token store.
type Provider interface {
	// AuthenticateWithPassword exchanges credentials for a token bundle.
	AuthenticateWithPassword(ctx context.Context, username, password string) (TokenBundle, error)
	// ValidateToken resolves an access token to its user.
	ValidateToken(ctx context.Context, accessToken string) (UserInfo, error)
	// Refresh exchanges a refresh token for a fresh bundle. Providers that
	// do not rotate refresh tokens return an empty RefreshToken.
	Refresh(ctx context.Context, refreshToken string) (TokenBundle, error)
}
