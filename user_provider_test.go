package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/johnbekele/Rostila-backend"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashedPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	return hash
}

func TestUserProvider_VerifyIdentity(t *testing.T) {
	ctx := context.Background()
	hash := hashedPassword(t, "secret-password")

	newUser := func() *auth.User {
		return &auth.User{
			ID:           uuid.New(),
			Username:     "test_user",
			Email:        "test@example.com",
			Role:         auth.RoleMember,
			Status:       auth.UserStatusActive,
			PasswordHash: hash,
		}
	}

	t.Run("valid credentials", func(t *testing.T) {
		user := newUser()
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackSucccessfulLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), identity.ID())
		assert.Equal(t, "test_user", identity.Username())
		assert.Equal(t, string(auth.RoleMember), identity.Role())
		store.AssertExpectations(t)
	})

	t.Run("wrong password tracks the attempt", func(t *testing.T) {
		user := newUser()
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackAttemptedLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "wrong-password")

		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
		store.AssertExpectations(t)
	})

	t.Run("unknown user looks like a wrong password", func(t *testing.T) {
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "ghost@example.com").Return(nil, recordNotFoundErr())

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "ghost@example.com", "whatever")

		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	})

	t.Run("too many attempts inside the cooldown", func(t *testing.T) {
		user := newUser()
		now := time.Now()
		user.LoginAttempts = auth.MaxLoginAttempts + 1
		user.LoginAttemptAt = &now

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		assert.ErrorIs(t, err, auth.ErrTooManyLoginAttempts)
	})

	t.Run("attempts reset once the cooldown has passed", func(t *testing.T) {
		user := newUser()
		stale := time.Now().Add(-48 * time.Hour)
		user.LoginAttempts = auth.MaxLoginAttempts + 1
		user.LoginAttemptAt = &stale

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackSucccessfulLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		identity, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		require.NoError(t, err)
		assert.NotNil(t, identity)
	})

	t.Run("disabled account", func(t *testing.T) {
		user := newUser()
		user.Status = auth.UserStatusDisabled

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		assert.ErrorIs(t, err, auth.ErrAccountDisabled)
	})

	t.Run("wrong password on disabled account is a plain credential failure", func(t *testing.T) {
		user := newUser()
		user.Status = auth.UserStatusDisabled

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackAttemptedLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "not-the-password")

		assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
		store.AssertCalled(t, "TrackAttemptedLogin", ctx, user)
	})

	t.Run("pending account may log in", func(t *testing.T) {
		user := newUser()
		user.Status = auth.UserStatusPending

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackSucccessfulLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		assert.NoError(t, err)
	})

	t.Run("invalid role fails validation", func(t *testing.T) {
		user := newUser()
		user.Role = auth.UserRole("superuser")

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test@example.com").Return(user, nil)
		store.On("TrackSucccessfulLogin", ctx, user).Return(nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.VerifyIdentity(ctx, "test@example.com", "secret-password")

		assert.Error(t, err)
	})
}

func TestUserProvider_FindIdentityByIdentifier(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		user := &auth.User{
			ID:       uuid.New(),
			Username: "test_user",
			Email:    "test@example.com",
			Role:     auth.RoleAdmin,
			Status:   auth.UserStatusActive,
		}

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "test_user").Return(user, nil)

		provider := auth.NewUserProvider(store)
		identity, err := provider.FindIdentityByIdentifier(ctx, "test_user")

		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), identity.ID())
		assert.Equal(t, string(auth.RoleAdmin), identity.Role())
	})

	t.Run("not found bubbles up", func(t *testing.T) {
		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "ghost").Return(nil, recordNotFoundErr())

		provider := auth.NewUserProvider(store)
		_, err := provider.FindIdentityByIdentifier(ctx, "ghost")

		assert.Error(t, err)
	})

	t.Run("disabled account", func(t *testing.T) {
		user := &auth.User{
			ID:     uuid.New(),
			Role:   auth.RoleMember,
			Status: auth.UserStatusDisabled,
		}

		store := new(MockUserTracker)
		store.On("GetByIdentifier", ctx, "disabled").Return(user, nil)

		provider := auth.NewUserProvider(store)
		_, err := provider.FindIdentityByIdentifier(ctx, "disabled")

		assert.ErrorIs(t, err, auth.ErrAccountDisabled)
	})
}
