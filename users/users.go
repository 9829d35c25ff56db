// Package users holds the server-side user model and repositories.
package users

import (
	"context"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

// User is an account record. HashedPassword is empty for accounts created
// through federated sign-in only.
type User struct {
	ID             uuid.UUID
	Email          string
	Username       string
	GivenName      string
	FamilyName     string
	Picture        string
	HashedPassword string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.HashedPassword != ""
}

// Repo is the user repository contract.
type Repo interface {
	// Create stores a new user. A duplicate email or username returns
	// apperrors.ErrUserAlreadyExists.
	Create(ctx context.Context, user *User) error

	// GetByID returns apperrors.ErrUserNotFound when absent
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// GetByEmail returns apperrors.ErrUserNotFound when absent
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername returns apperrors.ErrUserNotFound when absent
	GetByUsername(ctx context.Context, username string) (*User, error)

	// UpdateProfile updates the mutable profile fields
	UpdateProfile(ctx context.Context, id uuid.UUID, givenName, familyName string) (*User, error)
}

// ValidatePassword enforces the account password policy: at least 8
// characters with at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return apperrors.ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperrors.ErrWeakPassword
	}
	return nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password against a bcrypt hash. Protected
// against timing attacks by bcrypt itself.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
