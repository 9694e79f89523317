package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and validates the compact session tokens issued by this
// package. Refresh tokens are signed with a secret distinct from every other
// kind, so a leaked access signing key cannot forge refresh tokens.
//
// All time comparisons use the UTC instants embedded in the token; no clock
// skew leeway is applied.
type TokenService interface {
	Issue(kind TokenKind, subject string, metadata map[string]any, ttl time.Duration) (string, time.Time, error)
	IssueFor(kind TokenKind, identity Identity, metadata map[string]any, ttl time.Duration) (string, time.Time, error)
	SignClaims(claims *JWTClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	ValidateKind(tokenString string, kind TokenKind) (AuthClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey        []byte
	refreshSigningKey []byte
	issuer            string
	audience          jwt.ClaimStrings
	logger            Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey, refreshSigningKey []byte, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey:        signingKey,
		refreshSigningKey: refreshSigningKey,
		issuer:            issuer,
		audience:          audience,
		logger:            logger,
	}
}

func (ts *TokenServiceImpl) secretFor(kind TokenKind) []byte {
	if kind == TokenKindRefresh {
		return ts.refreshSigningKey
	}
	return ts.signingKey
}

// Issue builds and signs claims for the given kind and subject. The returned
// time is the token's expiry.
func (ts *TokenServiceImpl) Issue(kind TokenKind, subject string, metadata map[string]any, ttl time.Duration) (string, time.Time, error) {
	if !kind.IsValid() {
		return "", time.Time{}, errors.New("unknown token kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	if ttl <= 0 {
		return "", time.Time{}, errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:       subject,
		TokenKind: kind,
		Metadata:  metadata,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// IssueFor issues a token carrying the identity's id and role.
func (ts *TokenServiceImpl) IssueFor(kind TokenKind, identity Identity, metadata map[string]any, ttl time.Duration) (string, time.Time, error) {
	if identity == nil {
		return "", time.Time{}, errors.New("identity is required", errors.CategoryBadInput)
	}

	if !kind.IsValid() {
		return "", time.Time{}, errors.New("unknown token kind", errors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	if ttl <= 0 {
		return "", time.Time{}, errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:       identity.ID(),
		UserRole:  identity.Role(),
		TokenKind: kind,
		Metadata:  metadata,
	}

	ensureTokenID(&claims.RegisteredClaims)

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// SignClaims signs the given claims with the secret for their kind.
func (ts *TokenServiceImpl) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.secretFor(claims.TokenKind))
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates an access token, returning structured claims.
// It satisfies TokenValidator for the protected request flow.
func (ts *TokenServiceImpl) Validate(tokenString string) (AuthClaims, error) {
	return ts.ValidateKind(tokenString, TokenKindAccess)
}

// ValidateKind parses the token against the secret for the expected kind,
// recomputes the signature, and enforces the kind claim. Signature mismatch,
// malformed structure, and expiry are all terminal for the request.
func (ts *TokenServiceImpl) ValidateKind(tokenString string, kind TokenKind) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.secretFor(kind), nil
	}, parserOptions...)

	if err != nil {
		return nil, ts.normalizeParseError(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrUnableToDecodeSession
	}

	if claims.TokenKind != kind {
		return nil, errors.Wrap(ErrTokenKindMismatch, ErrTokenKindMismatch.Category, ErrTokenKindMismatch.Message).
			WithTextCode(ErrTokenKindMismatch.TextCode).
			WithMetadata(map[string]any{
				"expected": string(kind),
				"actual":   string(claims.TokenKind),
			})
	}

	return claims, nil
}

func (ts *TokenServiceImpl) normalizeParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errors.Wrap(err, ErrTokenExpired.Category, ErrTokenExpired.Message).
			WithTextCode(ErrTokenExpired.TextCode)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errors.Wrap(err, ErrTokenInvalidSignature.Category, ErrTokenInvalidSignature.Message).
			WithTextCode(ErrTokenInvalidSignature.TextCode)
	default:
		return errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}
}
