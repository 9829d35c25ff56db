// Package postgres implements the user repository on pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/users"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx alike.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	DB DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{DB: db}
}

const createUser = `-- name: CreateUser
INSERT INTO users (id, email, username, given_name, family_name, picture, password_hash)
VALUES ($1, lower($2), $3, $4, $5, $6, $7)
RETURNING id, email, username, given_name, family_name, picture, password_hash, created_at, updated_at
`

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createUser,
		user.ID, user.Email, user.Username, user.GivenName, user.FamilyName, user.Picture, user.HashedPassword)
	created, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
			return apperrors.ErrUserAlreadyExists
		}
		return apperrors.Wrapf(err, "create user")
	}

	*user = created
	return nil
}

const getUserByID = `-- name: GetUserByID
SELECT id, email, username, given_name, family_name, picture, password_hash, created_at, updated_at
FROM users
WHERE id = $1
`

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT id, email, username, given_name, family_name, picture, password_hash, created_at, updated_at
FROM users
WHERE email = lower($1)
`

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT id, email, username, given_name, family_name, picture, password_hash, created_at, updated_at
FROM users
WHERE username = $1
`

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByUsername, username)
	return collectUser(rows)
}

const updateProfile = `-- name: UpdateProfile
UPDATE users
SET given_name = $2, family_name = $3, updated_at = now()
WHERE id = $1
RETURNING id, email, username, given_name, family_name, picture, password_hash, created_at, updated_at
`

func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, givenName, familyName string) (*users.User, error) {
	rows, _ := r.DB.Query(ctx, updateProfile, id, givenName, familyName)
	return collectUser(rows)
}

func collectUser(rows pgx.Rows) (*users.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)
	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, apperrors.ErrUserNotFound
	default:
		return nil, apperrors.Wrapf(err, "query user")
	}
}

func rowToUser(row pgx.CollectableRow) (users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.GivenName, &u.FamilyName, &u.Picture, &u.HashedPassword, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
