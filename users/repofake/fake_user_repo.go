package repofake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	byID       map[uuid.UUID]*users.User
	emailIDs   map[string]uuid.UUID // lowercased email to user id
	usernameID map[string]uuid.UUID
	lock       sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:       make(map[uuid.UUID]*users.User),
		emailIDs:   make(map[string]uuid.UUID),
		usernameID: make(map[string]uuid.UUID),
	}
}

func (ur *FakeUserRepo) Create(ctx context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	email := strings.ToLower(user.Email)
	if _, ok := ur.emailIDs[email]; ok {
		return apperrors.ErrUserAlreadyExists
	}
	if user.Username != "" {
		if _, ok := ur.usernameID[user.Username]; ok {
			return apperrors.ErrUserAlreadyExists
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	stored := *user
	ur.byID[user.ID] = &stored
	ur.emailIDs[email] = user.ID
	if user.Username != "" {
		ur.usernameID[user.Username] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.byID[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIDs[strings.ToLower(email)]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	out := *ur.byID[id]
	return &out, nil
}

func (ur *FakeUserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameID[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	out := *ur.byID[id]
	return &out, nil
}

func (ur *FakeUserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, givenName, familyName string) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.byID[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	user.GivenName = givenName
	user.FamilyName = familyName
	user.UpdatedAt = time.Now()
	out := *user
	return &out, nil
}
