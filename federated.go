package auth

import (
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// FederatedVerifier validates identity tokens issued by an external identity
// provider against the provider's published signing key set.
//
// The key set is cached by kid. A token carrying an unknown kid triggers one
// shared, rate limited refetch of the key set; concurrent verifications do
// not stampede the remote endpoint. Key fetch failures are retryable for the
// caller, cryptographic and claim failures are fatal for that token.
type FederatedVerifier struct {
	issuer   string
	audience string
	jwks     *keyfunc.JWKS
	logger   Logger

	mu          sync.Mutex
	refreshErr  error
	refreshedAt time.Time
}

// FederatedOption customizes verifier construction.
type FederatedOption func(*federatedOptions)

type federatedOptions struct {
	refreshInterval  time.Duration
	refreshRateLimit time.Duration
	refreshTimeout   time.Duration
	logger           Logger
}

// WithFederatedLogger overrides the verifier logger.
func WithFederatedLogger(logger Logger) FederatedOption {
	return func(o *federatedOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFederatedRefresh tunes the key cache refresh cadence. Useful in tests
// exercising key rotation.
func WithFederatedRefresh(interval, rateLimit, timeout time.Duration) FederatedOption {
	return func(o *federatedOptions) {
		o.refreshInterval = interval
		o.refreshRateLimit = rateLimit
		o.refreshTimeout = timeout
	}
}

// NewFederatedVerifier fetches the remote key set once and keeps it cached.
// A failure to reach the key endpoint here is retryable: the provider may be
// temporarily down while locally issued tokens keep working.
func NewFederatedVerifier(cfg Config, opts ...FederatedOption) (*FederatedVerifier, error) {
	if cfg.GetFederatedKeySetURL() == "" {
		return nil, errors.New("federated key set URL is required", errors.CategoryBadInput)
	}

	options := &federatedOptions{
		refreshInterval:  time.Hour,
		refreshRateLimit: 5 * time.Minute,
		refreshTimeout:   10 * time.Second,
		logger:           defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	v := &FederatedVerifier{
		issuer:   cfg.GetFederatedIssuer(),
		audience: cfg.GetFederatedAudience(),
		logger:   options.logger,
	}

	jwks, err := keyfunc.Get(cfg.GetFederatedKeySetURL(), keyfunc.Options{
		RefreshInterval:   options.refreshInterval,
		RefreshRateLimit:  options.refreshRateLimit,
		RefreshTimeout:    options.refreshTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.recordRefreshError(err)
			v.logger.Warn("federated key set refresh failed", "error", err)
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, ErrFederatedKeyUnavailable.Category, ErrFederatedKeyUnavailable.Message).
			WithTextCode(ErrFederatedKeyUnavailable.TextCode).
			WithMetadata(map[string]any{"retryable": true})
	}

	v.jwks = jwks
	return v, nil
}

// Close stops the background key refresh goroutine.
func (v *FederatedVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

// FederatedClaims is the subset of provider claims the authenticator consumes.
type FederatedClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Verify validates the supplied identity token and returns its claims.
// The verification order follows the provider contract: resolve the kid
// against the cached key set (refetching once on a miss), recompute the
// signature, then validate audience, issuer, and expiry.
func (v *FederatedVerifier) Verify(tokenString string) (*FederatedClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &FederatedClaims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		return nil, v.normalizeVerifyError(err)
	}

	claims, ok := token.Claims.(*FederatedClaims)
	if !ok || !token.Valid {
		return nil, ErrUnableToMapClaims
	}

	if claims.Subject == "" {
		return nil, errors.Wrap(ErrFederatedClaimMismatch, ErrFederatedClaimMismatch.Category, "federated token is missing a subject").
			WithTextCode(ErrFederatedClaimMismatch.TextCode)
	}

	return claims, nil
}

func (v *FederatedVerifier) normalizeVerifyError(err error) error {
	switch {
	case errors.Is(err, keyfunc.ErrKIDNotFound):
		// The kid survived a refetch of the key set. If that refetch
		// itself failed the provider is unreachable and the caller may
		// retry; otherwise the key genuinely does not exist.
		if refreshErr, ok := v.recentRefreshError(); ok {
			return errors.Wrap(refreshErr, ErrFederatedKeyUnavailable.Category, ErrFederatedKeyUnavailable.Message).
				WithTextCode(ErrFederatedKeyUnavailable.TextCode).
				WithMetadata(map[string]any{"retryable": true})
		}
		return errors.Wrap(err, ErrTokenInvalidSignature.Category, "federated token signed by unknown key").
			WithTextCode(ErrTokenInvalidSignature.TextCode)

	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Wrap(err, ErrTokenInvalidSignature.Category, ErrTokenInvalidSignature.Message).
			WithTextCode(ErrTokenInvalidSignature.TextCode)

	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return errors.Wrap(err, ErrFederatedClaimMismatch.Category, ErrFederatedClaimMismatch.Message).
			WithTextCode(ErrFederatedClaimMismatch.TextCode)

	default:
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
}

func (v *FederatedVerifier) recordRefreshError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshErr = err
	v.refreshedAt = time.Now()
}

// recentRefreshError reports a key set refresh failure observed in the last
// minute, which is how an unreachable provider manifests during Verify.
func (v *FederatedVerifier) recentRefreshError() (error, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.refreshErr == nil {
		return nil, false
	}
	if time.Since(v.refreshedAt) > time.Minute {
		return nil, false
	}
	return v.refreshErr, true
}
