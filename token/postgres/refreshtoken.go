// Package postgres implements the refresh token repository on pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/token"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx alike.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ token.Repo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct {
	DB DBTX
}

func NewRefreshTokenRepo(db DBTX) *RefreshTokenRepo {
	return &RefreshTokenRepo{DB: db}
}

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, used_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`

func (r *RefreshTokenRepo) Save(ctx context.Context, rt token.RefreshToken) error {
	rows, _ := r.DB.Query(ctx, saveToken, rt.ID, rt.UserID, rt.Token, rt.CreatedAt, rt.ExpiresAt, rt.UsedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return apperrors.Wrapf(err, "save refresh token")
	}
	return nil
}

// markTokenUsed stamps used_at only when it is not already set, so a
// replayed token keeps its original consumption time and is detectable.
const markTokenUsed = `-- name: MarkRefreshTokenUsed
UPDATE refresh_tokens
SET used_at = COALESCE(used_at, $2)
WHERE token = $1
RETURNING id, user_id, created_at, expires_at, used_at
`

func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenStr string, usedAt time.Time) (token.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, markTokenUsed, tokenStr, usedAt)
	rt, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (token.RefreshToken, error) {
		t := token.RefreshToken{Token: tokenStr}
		err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt)
		return t, err
	})

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return rt, apperrors.ErrInvalidRefreshToken
	case err != nil:
		return rt, apperrors.Wrapf(err, "consume refresh token")
	case rt.UsedAt != nil && !rt.UsedAt.Equal(usedAt):
		return rt, apperrors.ErrRefreshTokenUsed
	default:
		// Normalise: the caller sees the pre-consumption state
		rt.UsedAt = nil
		return rt, nil
	}
}

const deleteForUser = `-- name: DeleteRefreshTokensForUser
DELETE FROM refresh_tokens
WHERE user_id = $1
`

func (r *RefreshTokenRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.DB.Exec(ctx, deleteForUser, userID); err != nil {
		return apperrors.Wrapf(err, "delete refresh tokens")
	}
	return nil
}
