package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Customer email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Token   *OneTimeToken
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger

	ResetTokenTTL time.Duration
}

func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:          repo,
		notifier:      noopNotifier{},
		logger:        defLogger{},
		ResetTokenTTL: DefaultResetTokenTTL,
	}
}

// WithNotifier sets the channel used to deliver the reset token.
func (h *InitializePasswordResetHandler) WithNotifier(n Notifier) *InitializePasswordResetHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	raw := ""

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifier(ctx, event.Email)
		if err != nil {
			// an unknown address completes the flow without a token so the
			// endpoint can't be used to enumerate accounts
			if goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		raw, resp.Token, err = h.repo.Sessions().CreateOneTimeTokenTx(ctx, tx, user.ID, TokenKindPasswordReset, h.ResetTokenTTL)
		if err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if raw != "" {
		err := normalizeNotifier(h.notifier).Notify(ctx, Notification{
			Kind:   TokenKindPasswordReset,
			Email:  user.Email,
			UserID: user.ID.String(),
			Token:  raw,
		})
		if err != nil {
			h.logger.Warn("failed to deliver password reset token: %v", err)
		}
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
