package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes attached to rich errors so boundary layers can map rejections
// without string matching.
const (
	TextCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled         = "ACCOUNT_DISABLED"
	TextCodeTooManyLoginAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeTokenExpired            = "TOKEN_EXPIRED"
	TextCodeTokenInvalidSignature   = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenMalformed          = "TOKEN_MALFORMED"
	TextCodeTokenKindMismatch       = "TOKEN_KIND_MISMATCH"
	TextCodeRefreshTokenRevoked     = "REFRESH_TOKEN_REVOKED"
	TextCodeOneTimeTokenUsed        = "ONE_TIME_TOKEN_USED"
	TextCodeOneTimeTokenExpired     = "ONE_TIME_TOKEN_EXPIRED"
	TextCodeOneTimeTokenNotFound    = "ONE_TIME_TOKEN_NOT_FOUND"
	TextCodeFederatedKeyUnavailable = "FEDERATED_KEYS_UNAVAILABLE"
	TextCodeFederatedClaimMismatch  = "FEDERATED_CLAIM_MISMATCH"
	TextCodeStorageUnavailable      = "STORAGE_UNAVAILABLE"
)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("value must not be an empty string", errors.CategoryValidation)

// ErrMismatchedHashAndPassword covers both unknown identifiers and wrong
// passwords: credential verification must not disclose which check failed.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrAccountDisabled rejects authentication for inactive accounts before any
// token is issued.
var ErrAccountDisabled = errors.New("account is disabled", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrTooManyLoginAttempts enforces the login attempt cool down window.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithTextCode(TextCodeTooManyLoginAttempts).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is terminal for the presented token, never retried.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenInvalidSignature rejects tokens whose recomputed signature does not
// match the signing secret.
var ErrTokenInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalidSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed rejects structurally invalid tokens.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenKindMismatch rejects a cryptographically valid token presented
// where a different kind is expected, e.g. an access token replayed as a
// refresh token.
var ErrTokenKindMismatch = errors.New("token kind mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenKindMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrRefreshTokenRevoked rejects redemption of a refresh token that is no
// longer active in the session store.
var ErrRefreshTokenRevoked = errors.New("refresh token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrOneTimeTokenUsed is returned when a one time token is redeemed twice,
// regardless of its remaining time to live.
var ErrOneTimeTokenUsed = errors.New("one time token has already been used", errors.CategoryConflict).
	WithTextCode(TextCodeOneTimeTokenUsed).
	WithCode(errors.CodeConflict)

// ErrOneTimeTokenExpired is returned for one time tokens past their TTL.
var ErrOneTimeTokenExpired = errors.New("one time token has expired", errors.CategoryValidation).
	WithTextCode(TextCodeOneTimeTokenExpired).
	WithCode(errors.CodeBadRequest)

// ErrOneTimeTokenNotFound is returned for unknown one time tokens.
var ErrOneTimeTokenNotFound = errors.New("one time token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeOneTimeTokenNotFound).
	WithCode(errors.CodeNotFound)

// ErrFederatedKeyUnavailable signals that the remote signing key set could
// not be fetched. Unlike cryptographic failures this condition is retryable.
var ErrFederatedKeyUnavailable = errors.New("federated signing keys unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeFederatedKeyUnavailable).
	WithMetadata(map[string]any{"retryable": true})

// ErrFederatedClaimMismatch rejects federated identity tokens whose audience,
// issuer, or expiry do not validate. Fatal for that token.
var ErrFederatedClaimMismatch = errors.New("federated token claims do not match", errors.CategoryAuth).
	WithTextCode(TextCodeFederatedClaimMismatch).
	WithCode(errors.CodeUnauthorized)

// ErrImmutableClaimMutation is returned when a claims decorator touches
// protected claims.
var ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal)

// ErrUnableToFindSession is the error when our request has no token
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT session token
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth)

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data", errors.CategoryBadInput)

// WrapStorageError marks persistence failures as retryable at the caller's
// discretion, never silently swallowed.
func WrapStorageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, errors.CategoryInternal, msg).
		WithTextCode(TextCodeStorageUnavailable).
		WithMetadata(map[string]any{"retryable": true})
}

// IsRetryable reports whether the rejection may be retried by the caller,
// e.g. a federated key fetch that timed out.
func IsRetryable(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	retryable, ok := richErr.Metadata["retryable"].(bool)
	return ok && retryable
}

// HasTextCode reports whether err carries the given text code.
func HasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
