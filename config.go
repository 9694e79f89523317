package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// SimpleConfig is a concrete Config for callers that do not bring their own
// configuration container. Zero values fall back to the defaults below.
type SimpleConfig struct {
	SigningKey           string        `json:"signing_key"`
	RefreshSigningKey    string        `json:"refresh_signing_key"`
	SigningMethod        string        `json:"signing_method"`
	ContextKey           string        `json:"context_key"`
	AccessTokenTTL       time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `json:"refresh_token_ttl"`
	VerificationTokenTTL time.Duration `json:"verification_token_ttl"`
	ResetTokenTTL        time.Duration `json:"reset_token_ttl"`
	RefreshRotation      bool          `json:"refresh_rotation"`
	TokenLookup          string        `json:"token_lookup"`
	AuthScheme           string        `json:"auth_scheme"`
	Issuer               string        `json:"issuer"`
	Audience             []string      `json:"audience"`
	FederatedIssuer      string        `json:"federated_issuer"`
	FederatedAudience    string        `json:"federated_audience"`
	FederatedKeySetURL   string        `json:"federated_key_set_url"`
}

const (
	// DefaultAccessTokenTTL keeps access tokens short lived.
	DefaultAccessTokenTTL = 30 * time.Minute
	// DefaultRefreshTokenTTL bounds how long a session can be resumed
	// without re-authenticating.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	// DefaultVerificationTokenTTL bounds email verification links.
	DefaultVerificationTokenTTL = 24 * time.Hour
	// DefaultResetTokenTTL bounds password reset links, tighter than
	// verification since reset links grant account takeover.
	DefaultResetTokenTTL = time.Hour
)

var _ Config = (*SimpleConfig)(nil)

// Validate checks the config is usable before any component is constructed.
// The refresh secret must differ from the primary secret so a leaked access
// signing key cannot forge refresh tokens.
func (c SimpleConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.RefreshSigningKey, validation.Required, validation.Length(32, 0),
			validation.By(func(any) error {
				if c.RefreshSigningKey == c.SigningKey {
					return validation.NewError(
						"validation_refresh_key_reuse",
						"refresh signing key must differ from the primary signing key",
					)
				}
				return nil
			})),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.FederatedKeySetURL, is.URL),
	)
}

func (c SimpleConfig) GetSigningKey() string        { return c.SigningKey }
func (c SimpleConfig) GetRefreshSigningKey() string { return c.RefreshSigningKey }

func (c SimpleConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c SimpleConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return "user"
	}
	return c.ContextKey
}

func (c SimpleConfig) GetAccessTokenTTL() time.Duration {
	if c.AccessTokenTTL <= 0 {
		return DefaultAccessTokenTTL
	}
	return c.AccessTokenTTL
}

func (c SimpleConfig) GetRefreshTokenTTL() time.Duration {
	if c.RefreshTokenTTL <= 0 {
		return DefaultRefreshTokenTTL
	}
	return c.RefreshTokenTTL
}

func (c SimpleConfig) GetVerificationTokenTTL() time.Duration {
	if c.VerificationTokenTTL <= 0 {
		return DefaultVerificationTokenTTL
	}
	return c.VerificationTokenTTL
}

func (c SimpleConfig) GetResetTokenTTL() time.Duration {
	if c.ResetTokenTTL <= 0 {
		return DefaultResetTokenTTL
	}
	return c.ResetTokenTTL
}

func (c SimpleConfig) GetRefreshRotation() bool { return c.RefreshRotation }

func (c SimpleConfig) GetTokenLookup() string {
	if c.TokenLookup == "" {
		return "header:Authorization"
	}
	return c.TokenLookup
}

func (c SimpleConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return "Bearer"
	}
	return c.AuthScheme
}

func (c SimpleConfig) GetIssuer() string             { return c.Issuer }
func (c SimpleConfig) GetAudience() []string         { return c.Audience }
func (c SimpleConfig) GetFederatedIssuer() string    { return c.FederatedIssuer }
func (c SimpleConfig) GetFederatedAudience() string  { return c.FederatedAudience }
func (c SimpleConfig) GetFederatedKeySetURL() string { return c.FederatedKeySetURL }
