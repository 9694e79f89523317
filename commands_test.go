package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/johnbekele/Rostila-backend"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserMessage_Validate(t *testing.T) {
	valid := auth.RegisterUserMessage{
		Email:    "new@example.com",
		Password: "long-enough-password",
	}
	assert.NoError(t, valid.Validate())

	t.Run("missing email", func(t *testing.T) {
		msg := valid
		msg.Email = ""
		assert.Error(t, msg.Validate())
	})

	t.Run("malformed email", func(t *testing.T) {
		msg := valid
		msg.Email = "not-an-email"
		assert.Error(t, msg.Validate())
	})

	t.Run("short password", func(t *testing.T) {
		msg := valid
		msg.Password = "short"
		assert.Error(t, msg.Validate())
	})
}

func TestRegisterUserHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the user and emits a verification token", func(t *testing.T) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		notifier := &capturingNotifier{}

		handler := auth.NewRegisterUserHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Email:    "new@example.com",
			Password: "long-enough-password",
		})
		require.NoError(t, err)

		user, err := repo.Users().GetByIdentifier(ctx, "new@example.com")
		require.NoError(t, err)
		assert.Equal(t, "new", user.Username)
		assert.Equal(t, auth.RoleGuest, user.Role)
		assert.Equal(t, auth.UserStatusPending, user.Status)
		assert.False(t, user.EmailValidated)
		assert.NotEmpty(t, user.PasswordHash)
		assert.NotEqual(t, "long-enough-password", user.PasswordHash)

		require.Len(t, notifier.notifications, 1)
		delivered := notifier.notifications[0]
		assert.Equal(t, auth.TokenKindEmailVerification, delivered.Kind)
		assert.Equal(t, "new@example.com", delivered.Email)
		assert.NotEmpty(t, delivered.Token)

		// the delivered token verifies the account
		consumed, err := repo.Sessions().ConsumeOneTimeToken(ctx, delivered.Token, auth.TokenKindEmailVerification)
		require.NoError(t, err)
		assert.Equal(t, user.ID, consumed.UserID)
	})

	t.Run("invalid payload", func(t *testing.T) {
		db := setupTestDB(t)
		handler := auth.NewRegisterUserHandler(auth.NewRepositoryManager(db))

		err := handler.Execute(ctx, auth.RegisterUserMessage{Email: "bad"})
		assert.Error(t, err)
	})

	t.Run("duplicate email rolls back", func(t *testing.T) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		handler := auth.NewRegisterUserHandler(repo)

		msg := auth.RegisterUserMessage{
			Email:    "dup@example.com",
			Password: "long-enough-password",
		}
		require.NoError(t, handler.Execute(ctx, msg))
		assert.Error(t, handler.Execute(ctx, msg))
	})

	t.Run("hashid produces a deterministic id", func(t *testing.T) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		handler := auth.NewRegisterUserHandler(repo)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Email:     "stable@example.com",
			Password:  "long-enough-password",
			UseHashid: true,
		})
		require.NoError(t, err)

		expected, err := hashid.NewUUID("stable@example.com")
		require.NoError(t, err)

		user, err := repo.Users().GetByIdentifier(ctx, "stable@example.com")
		require.NoError(t, err)
		assert.Equal(t, expected, user.ID)
	})

	t.Run("explicit role is honored", func(t *testing.T) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		handler := auth.NewRegisterUserHandler(repo)

		err := handler.Execute(ctx, auth.RegisterUserMessage{
			Email:    "admin@example.com",
			Password: "long-enough-password",
			Role:     "admin",
			Username: "site_admin",
		})
		require.NoError(t, err)

		user, err := repo.Users().GetByIdentifier(ctx, "admin@example.com")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, user.Role)
		assert.Equal(t, "site_admin", user.Username)
	})
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (auth.RepositoryManager, *auth.User, *capturingNotifier) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		notifier := &capturingNotifier{}

		user, err := repo.Users().Register(ctx, &auth.User{
			Username:     "reset_user",
			Email:        "reset@example.com",
			PasswordHash: hashedPassword(t, "old-password"),
			Status:       auth.UserStatusActive,
			Role:         auth.RoleMember,
		})
		require.NoError(t, err)

		return repo, user, notifier
	}

	t.Run("initialize delivers a reset token", func(t *testing.T) {
		repo, user, notifier := setup(t)

		var resp *auth.InitializePasswordResetResponse
		handler := auth.NewInitializePasswordResetHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.InitializePasswordResetMessage{
			Email:      "reset@example.com",
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Token)
		assert.Equal(t, user.ID, resp.Token.UserID)
		assert.Equal(t, auth.TokenKindPasswordReset, resp.Token.Kind)

		require.Len(t, notifier.notifications, 1)
		assert.Equal(t, auth.TokenKindPasswordReset, notifier.notifications[0].Kind)
		// the stored record carries the digest, the notification the raw token
		assert.Equal(t, auth.HashToken(notifier.notifications[0].Token), resp.Token.TokenHash)
	})

	t.Run("unknown email completes without a token", func(t *testing.T) {
		repo, _, notifier := setup(t)

		var resp *auth.InitializePasswordResetResponse
		handler := auth.NewInitializePasswordResetHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.InitializePasswordResetMessage{
			Email:      "ghost@example.com",
			OnResponse: func(r *auth.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Token)
		assert.Empty(t, notifier.notifications)
	})

	t.Run("finalize swaps the password and kills live sessions", func(t *testing.T) {
		repo, user, notifier := setup(t)
		sink := &capturingSink{}

		// a live refresh session that must not survive the reset
		_, err := repo.Sessions().CreateRefreshRecord(ctx, user.ID, "live-session", time.Now().Add(time.Hour), auth.ClientInfo{})
		require.NoError(t, err)

		initialize := auth.NewInitializePasswordResetHandler(repo).WithNotifier(notifier)
		require.NoError(t, initialize.Execute(ctx, auth.InitializePasswordResetMessage{Email: "reset@example.com"}))
		require.Len(t, notifier.notifications, 1)
		raw := notifier.notifications[0].Token

		finalize := auth.NewFinalizePasswordResetHandler(repo).WithActivitySink(sink)
		err = finalize.Execute(ctx, auth.FinalizePasswordResetMesasge{
			Token:    raw,
			Password: "brand-new-password",
		})
		require.NoError(t, err)

		reloaded, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
		require.NoError(t, err)
		assert.NoError(t, auth.ComparePasswordAndHash("brand-new-password", reloaded.PasswordHash))
		assert.Error(t, auth.ComparePasswordAndHash("old-password", reloaded.PasswordHash))
		assert.True(t, reloaded.EmailValidated)

		_, err = repo.Sessions().IsActive(ctx, user.ID, "live-session")
		assert.ErrorIs(t, err, auth.ErrRefreshTokenRevoked)

		assert.True(t, sink.has(auth.ActivityEventPasswordResetSuccess))

		// the reset token is single use
		err = finalize.Execute(ctx, auth.FinalizePasswordResetMesasge{
			Token:    raw,
			Password: "another-password",
		})
		assert.ErrorIs(t, err, auth.ErrOneTimeTokenUsed)
	})

	t.Run("finalize with an unknown token", func(t *testing.T) {
		repo, _, _ := setup(t)

		handler := auth.NewFinalizePasswordResetHandler(repo)
		err := handler.Execute(ctx, auth.FinalizePasswordResetMesasge{
			Token:    "never-issued",
			Password: "whatever-password",
		})
		assert.ErrorIs(t, err, auth.ErrOneTimeTokenNotFound)
	})
}

func TestAccountVerificationHandler(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (auth.RepositoryManager, *auth.User, *capturingNotifier) {
		db := setupTestDB(t)
		repo := auth.NewRepositoryManager(db)
		notifier := &capturingNotifier{}

		user, err := repo.Users().Register(ctx, &auth.User{
			Username:     "unverified_user",
			Email:        "unverified@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)

		return repo, user, notifier
	}

	t.Run("re-issues a verification token", func(t *testing.T) {
		repo, user, notifier := setup(t)

		var resp *auth.AccountVerificationResponse
		handler := auth.NewAccountVerificationHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.AccountVerificationMesage{
			Email:      "unverified@example.com",
			OnResponse: func(r *auth.AccountVerificationResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Found)
		assert.False(t, resp.AlreadyVerified)

		require.Len(t, notifier.notifications, 1)
		delivered := notifier.notifications[0]
		assert.Equal(t, auth.TokenKindEmailVerification, delivered.Kind)

		consumed, err := repo.Sessions().ConsumeOneTimeToken(ctx, delivered.Token, auth.TokenKindEmailVerification)
		require.NoError(t, err)
		assert.Equal(t, user.ID, consumed.UserID)
	})

	t.Run("already verified account gets no token", func(t *testing.T) {
		repo, user, notifier := setup(t)
		require.NoError(t, repo.Users().MarkEmailVerified(ctx, user.ID))

		var resp *auth.AccountVerificationResponse
		handler := auth.NewAccountVerificationHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.AccountVerificationMesage{
			Email:      "unverified@example.com",
			OnResponse: func(r *auth.AccountVerificationResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.True(t, resp.Found)
		assert.True(t, resp.AlreadyVerified)
		assert.Empty(t, notifier.notifications)
	})

	t.Run("unknown account", func(t *testing.T) {
		repo, _, notifier := setup(t)

		var resp *auth.AccountVerificationResponse
		handler := auth.NewAccountVerificationHandler(repo).WithNotifier(notifier)

		err := handler.Execute(ctx, auth.AccountVerificationMesage{
			Email:      "ghost@example.com",
			OnResponse: func(r *auth.AccountVerificationResponse) { resp = r },
		})
		require.NoError(t, err)

		require.NotNil(t, resp)
		assert.False(t, resp.Found)
		assert.Empty(t, notifier.notifications)
	})
}
