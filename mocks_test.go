package auth_test

import (
	"context"
	"time"

	auth "github.com/johnbekele/Rostila-backend"

	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/mock"
)

// MockUserTracker implements auth.UserTracker
type MockUserTracker struct {
	mock.Mock
}

func (m *MockUserTracker) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	if u := args.Get(0); u != nil {
		return u.(*auth.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserTracker) TrackSucccessfulLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// recordNotFoundErr produces the not found error the repositories return for
// missing records.
func recordNotFoundErr() error {
	return repository.NewRecordNotFound()
}

// MockIdentityProvider implements auth.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, identifier, password string) (auth.Identity, error) {
	args := m.Called(ctx, identifier, password)
	if id := args.Get(0); id != nil {
		return id.(auth.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (auth.Identity, error) {
	args := m.Called(ctx, identifier)
	if id := args.Get(0); id != nil {
		return id.(auth.Identity), args.Error(1)
	}
	return nil, args.Error(1)
}

// TestIdentity is a plain Identity implementation for tests.
type TestIdentity struct {
	id       string
	username string
	email    string
	role     string
	status   auth.UserStatus
}

func (t TestIdentity) ID() string              { return t.id }
func (t TestIdentity) Username() string        { return t.username }
func (t TestIdentity) Email() string           { return t.email }
func (t TestIdentity) Role() string            { return t.role }
func (t TestIdentity) Status() auth.UserStatus { return t.status }

// capturingSink records every activity event it sees.
type capturingSink struct {
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) has(eventType auth.ActivityEventType) bool {
	for _, evt := range c.events {
		if evt.EventType == eventType {
			return true
		}
	}
	return false
}

// capturingNotifier records delivered notifications.
type capturingNotifier struct {
	notifications []auth.Notification
}

func (c *capturingNotifier) Notify(ctx context.Context, n auth.Notification) error {
	c.notifications = append(c.notifications, n)
	return nil
}

type mockConfig struct {
	signingKey        string
	refreshSigningKey string
	issuer            string
	audience          []string
	accessTTL         time.Duration
	refreshTTL        time.Duration
	rotation          bool
	federatedIssuer   string
	federatedAudience string
	federatedURL      string
}

func newMockConfig() *mockConfig {
	return &mockConfig{
		signingKey:        "test-signing-key-with-32-bytes!!",
		refreshSigningKey: "test-refresh-key-with-32-bytes!!",
		issuer:            "test-issuer",
		audience:          []string{"test-audience"},
		accessTTL:         time.Minute * 30,
		refreshTTL:        time.Hour * 24 * 7,
	}
}

func (m *mockConfig) GetSigningKey() string                  { return m.signingKey }
func (m *mockConfig) GetRefreshSigningKey() string           { return m.refreshSigningKey }
func (m *mockConfig) GetSigningMethod() string               { return "HS256" }
func (m *mockConfig) GetContextKey() string                  { return "user" }
func (m *mockConfig) GetAccessTokenTTL() time.Duration       { return m.accessTTL }
func (m *mockConfig) GetRefreshTokenTTL() time.Duration      { return m.refreshTTL }
func (m *mockConfig) GetVerificationTokenTTL() time.Duration { return time.Hour * 24 }
func (m *mockConfig) GetResetTokenTTL() time.Duration        { return time.Hour }
func (m *mockConfig) GetRefreshRotation() bool               { return m.rotation }
func (m *mockConfig) GetTokenLookup() string                 { return "header:Authorization" }
func (m *mockConfig) GetAuthScheme() string                  { return "Bearer" }
func (m *mockConfig) GetIssuer() string                      { return m.issuer }
func (m *mockConfig) GetAudience() []string                  { return m.audience }
func (m *mockConfig) GetFederatedIssuer() string             { return m.federatedIssuer }
func (m *mockConfig) GetFederatedAudience() string           { return m.federatedAudience }
func (m *mockConfig) GetFederatedKeySetURL() string          { return m.federatedURL }
