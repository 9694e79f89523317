package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind tags every signed token with its purpose so a token issued for
// one flow cannot be replayed in another.
type TokenKind string

const (
	// TokenKindAccess is the short lived bearer token for protected requests.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh is the long lived token redeemable for new access tokens.
	TokenKindRefresh TokenKind = "refresh"
	// TokenKindEmailVerification backs signed email verification links.
	TokenKindEmailVerification TokenKind = "email_verification"
	// TokenKindPasswordReset backs signed password reset links.
	TokenKindPasswordReset TokenKind = "password_reset"
)

// IsValid reports whether the kind is one of the issued kinds.
func (k TokenKind) IsValid() bool {
	switch k {
	case TokenKindAccess, TokenKindRefresh, TokenKindEmailVerification, TokenKindPasswordReset:
		return true
	default:
		return false
	}
}

// AuthClaims represents structured JWT claims
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Kind() TokenKind
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
	ClaimsMetadata() map[string]any
}

// JWTClaims is the concrete implementation of AuthClaims. Well known fields
// are fixed struct members; optional request context (device, IP) goes into
// the Metadata extension map.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID       string         `json:"uid,omitempty"`
	UserRole  string         `json:"role,omitempty"`
	TokenKind TokenKind      `json:"knd,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Kind returns the token kind claim
func (c *JWTClaims) Kind() TokenKind {
	return c.TokenKind
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// HasRole checks if the user has a specific role
func (c *JWTClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
