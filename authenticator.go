package auth

import (
	"context"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Auther coordinates the credential, token, and session collaborators into
// the authentication flows.
type Auther struct {
	provider        IdentityProvider
	users           Users
	sessions        SessionManager
	repo            RepositoryManager
	federated       *FederatedVerifier
	signingKey      []byte
	refreshKey      []byte
	accessTTL       time.Duration
	refreshTTL      time.Duration
	rotateRefresh   bool
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		[]byte(opts.GetRefreshSigningKey()),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		signingKey:      []byte(opts.GetSigningKey()),
		refreshKey:      []byte(opts.GetRefreshSigningKey()),
		accessTTL:       opts.GetAccessTokenTTL(),
		refreshTTL:      opts.GetRefreshTokenTTL(),
		rotateRefresh:   opts.GetRefreshRotation(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(
		s.signingKey,
		s.refreshKey,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithSessionManager wires the refresh token store. Without it login still
// works but refresh tokens cannot be revoked or redeemed.
func (s *Auther) WithSessionManager(sessions SessionManager) *Auther {
	s.sessions = sessions
	return s
}

// WithUsers wires the user directory used by federated login and email
// verification.
func (s *Auther) WithUsers(users Users) *Auther {
	s.users = users
	return s
}

// WithRepositoryManager wires a transaction manager so multi-step flows such
// as email verification run atomically. It also wires the user and session
// stores when they have not been set yet.
func (s *Auther) WithRepositoryManager(repo RepositoryManager) *Auther {
	s.repo = repo
	if s.users == nil {
		s.users = repo.Users()
	}
	if s.sessions == nil {
		s.sessions = repo.Sessions()
	}
	return s
}

// WithFederatedVerifier enables sign in with provider issued identity tokens.
func (s *Auther) WithFederatedVerifier(verifier *FederatedVerifier) *Auther {
	s.federated = verifier
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching JWTs.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

func (s *Auther) Login(ctx context.Context, identifier, password string, info ClientInfo) (*TokenPair, Identity, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, nil, ErrIdentityNotFound
	}

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("Login blocked due to user status", "status", status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     status,
		})
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, identity, info)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return pair, identity, nil
}

// Logout revokes the refresh token. Revoking a token that is already revoked
// or expired is benign, the session is equally dead either way.
func (s *Auther) Logout(ctx context.Context, refreshToken string) (bool, error) {
	claims, err := s.tokenService.ValidateKind(refreshToken, TokenKindRefresh)
	if err != nil {
		if IsTokenExpiredError(err) {
			return false, nil
		}
		s.logger.Error("Logout refresh token validation failed", "error", err)
		return false, err
	}

	userID, err := parseSubjectUUID(claims.UserID())
	if err != nil {
		return false, err
	}

	if s.sessions == nil {
		return false, ErrUnableToFindSession
	}

	revoked, err := s.sessions.Revoke(ctx, userID, refreshToken)
	if err != nil {
		return false, err
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: claims.UserID(), Type: "user"}, claims.UserID(), map[string]any{
		"revoked": revoked,
	})

	return revoked, nil
}

// Refresh exchanges a live refresh token for a new access token. With
// rotation enabled the refresh token is replaced and the old one revoked.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokenService.ValidateKind(refreshToken, TokenKindRefresh)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	userID, err := parseSubjectUUID(claims.UserID())
	if err != nil {
		return nil, err
	}

	if s.sessions == nil {
		return nil, ErrUnableToFindSession
	}

	record, err := s.sessions.IsActive(ctx, userID, refreshToken)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{ID: claims.UserID(), Type: "user"}, claims.UserID(), map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("Refresh identity lookup failed", "error", err)
		return nil, err
	}

	if _, err := s.ensureIdentityActive(identity); err != nil {
		return nil, err
	}

	accessToken, accessExpires, err := s.issueAccessToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExpires,
		RefreshExpiresAt: record.ExpiresAt,
	}

	if s.rotateRefresh {
		info := ClientInfo{
			IPAddress:  record.IPAddress,
			DeviceInfo: record.DeviceInfo,
			UserAgent:  record.UserAgent,
		}

		rotated, rotatedExpires, err := s.tokenService.IssueFor(TokenKindRefresh, identity, nil, s.refreshTTL)
		if err != nil {
			return nil, err
		}

		if _, err := s.sessions.CreateRefreshRecord(ctx, userID, rotated, rotatedExpires, info); err != nil {
			return nil, err
		}

		if _, err := s.sessions.Revoke(ctx, userID, refreshToken); err != nil {
			return nil, err
		}

		pair.RefreshToken = rotated
		pair.RefreshExpiresAt = rotatedExpires
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"rotated": s.rotateRefresh,
	})

	return pair, nil
}

// FederatedLogin verifies a provider issued identity token and maps it onto a
// local account, creating the account on first sign in.
func (s *Auther) FederatedLogin(ctx context.Context, identityToken string, info ClientInfo) (*TokenPair, Identity, error) {
	if s.federated == nil {
		return nil, nil, goerrors.New("federated login is not configured", goerrors.CategoryOperation)
	}

	if s.users == nil {
		return nil, nil, goerrors.New("federated login requires a user store", goerrors.CategoryOperation)
	}

	claims, err := s.federated.Verify(identityToken)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventFederatedLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		return nil, nil, err
	}

	user, err := s.users.GetOrRegisterFederated(ctx, claims.Subject, claims.Email)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventFederatedLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		return nil, nil, err
	}

	identity := NewIdentityFromUser(user)

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("Federated login blocked due to user status", "status", status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventFederatedLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"error":  err.Error(),
			"status": status,
		})
		return nil, nil, err
	}

	pair, err := s.issuePair(ctx, identity, info)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventFederatedLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"error": err.Error(),
		})
		return nil, nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventFederatedLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"subject": claims.Subject,
	})

	return pair, identity, nil
}

// VerifyEmail redeems a verification token and flips the account's email
// verified flag. Redeeming for an already verified account reports
// AlreadyVerified instead of failing.
func (s *Auther) VerifyEmail(ctx context.Context, token string) (*EmailVerificationResult, error) {
	if s.sessions == nil || s.users == nil {
		return nil, goerrors.New("email verification requires user and session stores", goerrors.CategoryOperation)
	}

	var result *EmailVerificationResult
	var err error
	if s.repo != nil {
		// consume and mark in one transaction so a storage failure after the
		// consume cannot burn the token without verifying the account
		err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			result, err = s.verifyEmailTx(ctx, tx, token)
			return err
		})
	} else {
		result, err = s.verifyEmailTx(ctx, nil, token)
	}
	if err != nil {
		return nil, err
	}

	if !result.AlreadyVerified {
		s.emitAuthEvent(ctx, ActivityEventEmailVerified, ActorRef{ID: result.UserID.String(), Type: "user"}, result.UserID.String(), nil)
	}

	return result, nil
}

func (s *Auther) verifyEmailTx(ctx context.Context, tx bun.IDB, token string) (*EmailVerificationResult, error) {
	var consumed *OneTimeToken
	var user *User
	var err error

	if tx != nil {
		consumed, err = s.sessions.ConsumeOneTimeTokenTx(ctx, tx, token, TokenKindEmailVerification)
	} else {
		consumed, err = s.sessions.ConsumeOneTimeToken(ctx, token, TokenKindEmailVerification)
	}
	if err != nil {
		return nil, err
	}

	if tx != nil {
		user, err = s.users.GetByIDTx(ctx, tx, consumed.UserID.String())
	} else {
		user, err = s.users.GetByID(ctx, consumed.UserID.String())
	}
	if err != nil {
		return nil, err
	}

	result := &EmailVerificationResult{UserID: consumed.UserID}

	if user.EmailValidated {
		result.AlreadyVerified = true
		return result, nil
	}

	if tx != nil {
		err = s.users.MarkEmailVerifiedTx(ctx, tx, consumed.UserID)
	} else {
		err = s.users.MarkEmailVerified(ctx, consumed.UserID)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())

	if err != nil {
		s.logger.Error("IdentityFromSession findidentity by identifier: %s", err)
		return nil, err
	}

	return identity, nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims", "error", err)
		return nil, err
	}

	return session, nil
}

// issuePair mints an access and refresh token for the identity and persists
// the refresh record when a session store is configured.
func (s *Auther) issuePair(ctx context.Context, identity Identity, info ClientInfo) (*TokenPair, error) {
	accessToken, accessExpires, err := s.issueAccessToken(ctx, identity)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshExpires, err := s.tokenService.IssueFor(TokenKindRefresh, identity, nil, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	if s.sessions != nil {
		userID, err := parseSubjectUUID(identity.ID())
		if err != nil {
			return nil, err
		}

		if _, err := s.sessions.CreateRefreshRecord(ctx, userID, refreshToken, refreshExpires, info); err != nil {
			return nil, err
		}
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  accessExpires,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// issueAccessToken runs the claims decorator under the immutable claims guard
// before signing.
func (s *Auther) issueAccessToken(ctx context.Context, identity Identity) (string, time.Time, error) {
	claims := s.newJWTClaims(identity)
	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed", "error", err)
		return "", time.Time{}, err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims", "error", err)
		return "", time.Time{}, err
	}

	signed, err := s.tokenService.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, claims.RegisteredClaims.ExpiresAt.Time, nil
}

func (s *Auther) newJWTClaims(identity Identity) *JWTClaims {
	now := time.Now()

	var aud jwt.ClaimStrings
	if len(s.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(s.audience))
		copy(aud, s.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
		UID:       identity.ID(),
		UserRole:  identity.Role(),
		TokenKind: TokenKindAccess,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return claims
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

func (s *Auther) ensureIdentityActive(identity Identity) (UserStatus, error) {
	status, ok := identityStatus(identity)
	if !ok {
		return "", nil
	}

	if status == "" {
		status = UserStatusActive
	}

	if err := statusAuthError(status); err != nil {
		return status, err
	}

	return status, nil
}

func parseSubjectUUID(subject string) (uuid.UUID, error) {
	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "token subject is not a valid user id")
	}
	return id, nil
}
