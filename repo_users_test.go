package auth_test

import (
	"context"
	"testing"

	auth "github.com/johnbekele/Rostila-backend"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersRepository_Register(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	t.Run("fills defaults for role, status, and id", func(t *testing.T) {
		created, err := repo.Register(ctx, &auth.User{
			Username:     "fresh_user",
			Email:        "fresh@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, created.ID)
		assert.Equal(t, auth.RoleGuest, created.Role)
		assert.Equal(t, auth.UserStatusPending, created.Status)
		assert.False(t, created.EmailValidated)
	})

	t.Run("keeps explicit role and status", func(t *testing.T) {
		created, err := repo.Register(ctx, &auth.User{
			Username:     "staff_user",
			Email:        "staff@example.com",
			PasswordHash: "hash",
			Role:         auth.RoleAdmin,
			Status:       auth.UserStatusActive,
		})
		require.NoError(t, err)

		assert.Equal(t, auth.RoleAdmin, created.Role)
		assert.Equal(t, auth.UserStatusActive, created.Status)
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		_, err := repo.Register(ctx, &auth.User{
			Username:     "duplicate_email",
			Email:        "fresh@example.com",
			PasswordHash: "hash",
		})
		assert.Error(t, err)
	})
}

func TestUsersRepository_GetByIdentifier(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	seeded := seedUser(t, db, func(u *auth.User) {
		u.Username = "lookup_user"
		u.Email = "lookup@example.com"
	})

	t.Run("by id", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, seeded.ID.String())
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, found.ID)
	})

	t.Run("by email", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, "lookup@example.com")
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, found.ID)
	})

	t.Run("by username", func(t *testing.T) {
		found, err := repo.GetByIdentifier(ctx, "lookup_user")
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, found.ID)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, err := repo.GetByIdentifier(ctx, "nobody@example.com")
		assert.Error(t, err)
	})
}

func TestUsersRepository_LoginTracking(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	user := seedUser(t, db)

	t.Run("attempted logins accumulate", func(t *testing.T) {
		require.NoError(t, repo.TrackAttemptedLogin(ctx, user))

		reloaded, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.LoginAttempts)
		assert.NotNil(t, reloaded.LoginAttemptAt)

		require.NoError(t, repo.TrackAttemptedLogin(ctx, reloaded))

		reloaded, err = repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.LoginAttempts)
	})

	t.Run("successful login resets the counter", func(t *testing.T) {
		require.NoError(t, repo.TrackSucccessfulLogin(ctx, user))

		reloaded, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, 0, reloaded.LoginAttempts)
		assert.Nil(t, reloaded.LoginAttemptAt)
		assert.NotNil(t, reloaded.LoggedInAt)
	})
}

func TestUsersRepository_ResetPassword(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	user := seedUser(t, db)

	t.Run("replaces the stored hash", func(t *testing.T) {
		require.NoError(t, repo.ResetPassword(ctx, user.ID, "new-hash"))

		reloaded, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.Equal(t, "new-hash", reloaded.PasswordHash)
		assert.True(t, reloaded.EmailValidated)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := repo.ResetPassword(ctx, uuid.New(), "new-hash")
		assert.Error(t, err)
	})
}

func TestUsersRepository_MarkEmailVerified(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	t.Run("pending accounts become active", func(t *testing.T) {
		user := seedUser(t, db, func(u *auth.User) {
			u.Status = auth.UserStatusPending
		})

		require.NoError(t, repo.MarkEmailVerified(ctx, user.ID))

		reloaded, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.True(t, reloaded.EmailValidated)
		assert.Equal(t, auth.UserStatusActive, reloaded.Status)
	})

	t.Run("disabled accounts stay disabled", func(t *testing.T) {
		user := seedUser(t, db, func(u *auth.User) {
			u.Status = auth.UserStatusDisabled
		})

		require.NoError(t, repo.MarkEmailVerified(ctx, user.ID))

		reloaded, err := repo.GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.True(t, reloaded.EmailValidated)
		assert.Equal(t, auth.UserStatusDisabled, reloaded.Status)
	})
}

func TestUsersRepository_SetActive(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	user := seedUser(t, db)

	updated, err := repo.SetActive(ctx, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusDisabled, updated.Status)

	updated, err = repo.SetActive(ctx, user.ID, true)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusActive, updated.Status)
}

func TestUsersRepository_GetOrRegisterFederated(t *testing.T) {
	db := setupTestDB(t)
	repo := auth.NewUsersRepository(db)
	ctx := context.Background()

	t.Run("first login creates the user", func(t *testing.T) {
		user, err := repo.GetOrRegisterFederated(ctx, "provider|abc123", "federated@example.com")
		require.NoError(t, err)

		assert.Equal(t, "provider|abc123", user.FederatedID)
		assert.Equal(t, "federated@example.com", user.Email)
		assert.True(t, user.EmailValidated)
		assert.NotEmpty(t, user.PasswordHash)
	})

	t.Run("subsequent logins reuse the record", func(t *testing.T) {
		first, err := repo.GetOrRegisterFederated(ctx, "provider|repeat", "repeat@example.com")
		require.NoError(t, err)

		second, err := repo.GetOrRegisterFederated(ctx, "provider|repeat", "repeat@example.com")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
	})
}
