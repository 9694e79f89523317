package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var revokeRefreshTokenSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"is_active" = FALSE,
	"revoked_at" = ?
WHERE
	"rft"."token_hash" = ?
AND "rft"."user_id" = ?
AND "rft"."is_active" = TRUE;`

var revokeAllRefreshTokensSQL = `UPDATE "refresh_tokens" AS "rft"
SET
	"is_active" = FALSE,
	"revoked_at" = ?
WHERE
	"rft"."user_id" = ?
AND "rft"."is_active" = TRUE;`

var consumeOneTimeTokenSQL = `UPDATE "one_time_tokens" AS "ott"
SET
	"is_used" = TRUE,
	"used_at" = ?
WHERE
	"ott"."token_hash" = ?
AND "ott"."kind" = ?
AND "ott"."is_used" = FALSE
AND "ott"."expires_at" > ?
RETURNING *;`

// SessionManager owns the persisted half of the token lifecycle: refresh
// token records and single use tokens. Raw tokens never touch the database,
// only their digests do.
type SessionManager interface {
	RefreshTokens() repository.Repository[*RefreshToken]
	OneTimeTokens() repository.Repository[*OneTimeToken]

	CreateRefreshRecord(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time, info ClientInfo) (*RefreshToken, error)
	CreateRefreshRecordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiresAt time.Time, info ClientInfo) (*RefreshToken, error)

	// IsActive returns the live record for a refresh token, or an error
	// classifying why the token no longer grants a session.
	IsActive(ctx context.Context, userID uuid.UUID, token string) (*RefreshToken, error)

	// Revoke marks a refresh token inactive. It reports true when this call
	// performed the revocation, false when there was nothing left to revoke.
	Revoke(ctx context.Context, userID uuid.UUID, token string) (bool, error)
	RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) (bool, error)
	RevokeAll(ctx context.Context, userID uuid.UUID) (int, error)
	RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)

	CreateOneTimeToken(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (string, *OneTimeToken, error)
	CreateOneTimeTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, ttl time.Duration) (string, *OneTimeToken, error)
	ConsumeOneTimeToken(ctx context.Context, token string, kind TokenKind) (*OneTimeToken, error)
	ConsumeOneTimeTokenTx(ctx context.Context, tx bun.IDB, token string, kind TokenKind) (*OneTimeToken, error)
}

type sessionManager struct {
	db       *bun.DB
	refresh  repository.Repository[*RefreshToken]
	oneTime  repository.Repository[*OneTimeToken]
	tokenLen int
}

var _ SessionManager = (*sessionManager)(nil)

func NewSessionManager(db *bun.DB) SessionManager {
	refresh := repository.NewRepository[*RefreshToken](db, repository.ModelHandlers[*RefreshToken]{
		NewRecord: func() *RefreshToken { return &RefreshToken{} },
		GetID: func(r *RefreshToken) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *RefreshToken, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	oneTime := repository.NewRepository[*OneTimeToken](db, repository.ModelHandlers[*OneTimeToken]{
		NewRecord: func() *OneTimeToken { return &OneTimeToken{} },
		GetID: func(o *OneTimeToken) uuid.UUID {
			if o == nil {
				return uuid.Nil
			}
			return o.ID
		},
		SetID: func(o *OneTimeToken, id uuid.UUID) {
			if o != nil {
				o.ID = id
			}
		},
	})

	return &sessionManager{
		db:       db,
		refresh:  refresh,
		oneTime:  oneTime,
		tokenLen: 32,
	}
}

func (s *sessionManager) RefreshTokens() repository.Repository[*RefreshToken] {
	return s.refresh
}

func (s *sessionManager) OneTimeTokens() repository.Repository[*OneTimeToken] {
	return s.oneTime
}

func (s *sessionManager) CreateRefreshRecord(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time, info ClientInfo) (*RefreshToken, error) {
	return s.CreateRefreshRecordTx(ctx, s.db, userID, token, expiresAt, info)
}

func (s *sessionManager) CreateRefreshRecordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, expiresAt time.Time, info ClientInfo) (*RefreshToken, error) {
	record := &RefreshToken{
		UserID:     userID,
		TokenHash:  HashToken(token),
		IsActive:   true,
		IPAddress:  info.IPAddress,
		DeviceInfo: info.DeviceInfo,
		UserAgent:  info.UserAgent,
		ExpiresAt:  expiresAt,
	}

	created, err := s.refresh.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, WrapStorageError(err, "unable to persist refresh token")
	}

	return created, nil
}

func (s *sessionManager) IsActive(ctx context.Context, userID uuid.UUID, token string) (*RefreshToken, error) {
	record := &RefreshToken{}
	err := s.db.NewSelect().Model(record).
		Where("?TableAlias.token_hash = ?", HashToken(token)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return nil, ErrUnableToFindSession
		}
		return nil, WrapStorageError(err, "unable to load refresh token")
	}

	if record.UserID != userID {
		return nil, ErrUnableToFindSession
	}

	if !record.IsActive {
		return nil, ErrRefreshTokenRevoked
	}

	if time.Now().After(record.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	return record, nil
}

func (s *sessionManager) Revoke(ctx context.Context, userID uuid.UUID, token string) (bool, error) {
	return s.RevokeTx(ctx, s.db, userID, token)
}

func (s *sessionManager) RevokeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string) (bool, error) {
	res, err := tx.NewRaw(revokeRefreshTokenSQL, time.Now(), HashToken(token), userID).Exec(ctx)
	if err != nil {
		return false, WrapStorageError(err, "unable to revoke refresh token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, WrapStorageError(err, "unable to revoke refresh token")
	}

	return affected > 0, nil
}

func (s *sessionManager) RevokeAll(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.RevokeAllTx(ctx, s.db, userID)
}

func (s *sessionManager) RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	res, err := tx.NewRaw(revokeAllRefreshTokensSQL, time.Now(), userID).Exec(ctx)
	if err != nil {
		return 0, WrapStorageError(err, "unable to revoke refresh tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, WrapStorageError(err, "unable to revoke refresh tokens")
	}

	return int(affected), nil
}

func (s *sessionManager) CreateOneTimeToken(ctx context.Context, userID uuid.UUID, kind TokenKind, ttl time.Duration) (string, *OneTimeToken, error) {
	return s.CreateOneTimeTokenTx(ctx, s.db, userID, kind, ttl)
}

func (s *sessionManager) CreateOneTimeTokenTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, kind TokenKind, ttl time.Duration) (string, *OneTimeToken, error) {
	raw, err := generateOpaqueToken(s.tokenLen)
	if err != nil {
		return "", nil, err
	}

	record := &OneTimeToken{
		UserID:    userID,
		TokenHash: HashToken(raw),
		Kind:      kind,
		ExpiresAt: time.Now().Add(ttl),
	}

	created, err := s.oneTime.CreateTx(ctx, tx, record)
	if err != nil {
		return "", nil, WrapStorageError(err, "unable to persist one time token")
	}

	return raw, created, nil
}

func (s *sessionManager) ConsumeOneTimeToken(ctx context.Context, token string, kind TokenKind) (*OneTimeToken, error) {
	return s.ConsumeOneTimeTokenTx(ctx, s.db, token, kind)
}

// ConsumeOneTimeTokenTx consumes with a single conditional update so that
// concurrent redemptions of the same token produce exactly one winner. Losers
// get classified after the fact.
func (s *sessionManager) ConsumeOneTimeTokenTx(ctx context.Context, tx bun.IDB, token string, kind TokenKind) (*OneTimeToken, error) {
	now := time.Now()
	hash := HashToken(token)

	record := &OneTimeToken{}
	err := tx.NewRaw(consumeOneTimeTokenSQL, now, hash, kind, now).Scan(ctx, record)
	if err == nil {
		return record, nil
	}

	if err != sql.ErrNoRows {
		return nil, WrapStorageError(err, "unable to consume one time token")
	}

	return nil, s.classifyFailedConsume(ctx, tx, hash, kind)
}

func (s *sessionManager) classifyFailedConsume(ctx context.Context, tx bun.IDB, hash string, kind TokenKind) error {
	record := &OneTimeToken{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.token_hash = ?", hash).
		Where("?TableAlias.kind = ?", kind).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) || err == sql.ErrNoRows {
			return ErrOneTimeTokenNotFound
		}
		return WrapStorageError(err, "unable to classify one time token")
	}

	if record.IsUsed {
		return ErrOneTimeTokenUsed
	}

	if time.Now().After(record.ExpiresAt) {
		return ErrOneTimeTokenExpired
	}

	return ErrOneTimeTokenNotFound
}

// HashToken produces the hex SHA-256 digest we persist instead of raw token
// material.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateOpaqueToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to generate token material")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
