package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type AccountVerificationMesage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Customer email."`
	OnResponse func(a *AccountVerificationResponse)
}

func (e AccountVerificationMesage) Type() string { return "user.verification_request" }

type AccountVerificationResponse struct {
	Found           bool `json:"found" example:"true" doc:"Has the account been found?"`
	AlreadyVerified bool `json:"already_verified" example:"false" doc:"Is the account already verified?"`
}

// AccountVerificationHandler issues a fresh email verification token for an
// account that has not confirmed its address yet.
type AccountVerificationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger

	VerificationTokenTTL time.Duration
}

func NewAccountVerificationHandler(repo RepositoryManager) *AccountVerificationHandler {
	return &AccountVerificationHandler{
		repo:                 repo,
		notifier:             noopNotifier{},
		logger:               defLogger{},
		VerificationTokenTTL: DefaultVerificationTokenTTL,
	}
}

// WithNotifier sets the channel used to deliver the verification token.
func (h *AccountVerificationHandler) WithNotifier(n Notifier) *AccountVerificationHandler {
	h.notifier = normalizeNotifier(n)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *AccountVerificationHandler) WithLogger(logger Logger) *AccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMesage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMesage) error {
	resp := &AccountVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{}
	raw := ""

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifier(ctx, event.Email)
		if err != nil {
			// if the record is not found, is part of expected flow, not an application error
			if goerrors.IsNotFound(err) {
				resp.Found = false
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve verification request")
		}

		resp.Found = true

		if user.EmailValidated {
			resp.AlreadyVerified = true
			return nil
		}

		raw, _, err = h.repo.Sessions().CreateOneTimeTokenTx(ctx, tx, user.ID, TokenKindEmailVerification, h.VerificationTokenTTL)
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	if raw != "" {
		err := normalizeNotifier(h.notifier).Notify(ctx, Notification{
			Kind:   TokenKindEmailVerification,
			Email:  user.Email,
			UserID: user.ID.String(),
			Token:  raw,
		})
		if err != nil {
			h.logger.Warn("failed to deliver verification token: %v", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
