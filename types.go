package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// ClientInfo captures request metadata persisted alongside a refresh token
// record so sessions can be audited per device.
type ClientInfo struct {
	IPAddress  string `json:"ip_address,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// TokenPair is the response of a successful authentication: a short lived
// access token and a long lived refresh token.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string, info ClientInfo) (*TokenPair, Identity, error)
	Logout(ctx context.Context, refreshToken string) (bool, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	FederatedLogin(ctx context.Context, identityToken string, info ClientInfo) (*TokenPair, Identity, error)
	VerifyEmail(ctx context.Context, token string) (*EmailVerificationResult, error)
	SessionFromToken(token string) (Session, error)
	IdentityFromSession(ctx context.Context, session Session) (Identity, error)
}

// EmailVerificationResult reports the outcome of redeeming a verification
// token. Re-verifying an already verified account is benign, not an error.
type EmailVerificationResult struct {
	UserID          uuid.UUID `json:"user_id"`
	AlreadyVerified bool      `json:"already_verified"`
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetRefreshSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetVerificationTokenTTL() time.Duration
	GetResetTokenTTL() time.Duration
	GetRefreshRotation() bool
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
	GetFederatedIssuer() string
	GetFederatedAudience() string
	GetFederatedKeySetURL() string
}

// IdentityProvider ensure we have a store to retrieve auth identity
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
