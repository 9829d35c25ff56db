package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/eldor47/glucosnap/internal/errors"
	"github.com/eldor47/glucosnap/token"
)

var _ token.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens map[string]*token.RefreshToken
	lock   sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		tokens: make(map[string]*token.RefreshToken),
	}
}

func (tr *FakeRefreshTokenRepo) Save(ctx context.Context, rt token.RefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := rt
	tr.tokens[rt.Token] = &stored
	return nil
}

func (tr *FakeRefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenStr string, usedAt time.Time) (token.RefreshToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[tokenStr]
	if !ok {
		return token.RefreshToken{}, apperrors.ErrInvalidRefreshToken
	}
	if rt.UsedAt != nil {
		return *rt, apperrors.ErrRefreshTokenUsed
	}

	out := *rt
	rt.UsedAt = &usedAt
	return out, nil
}

func (tr *FakeRefreshTokenRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	for key, rt := range tr.tokens {
		if rt.UserID == userID {
			delete(tr.tokens, key)
		}
	}
	return nil
}

// Len reports the number of stored tokens (used and unused).
func (tr *FakeRefreshTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens)
}
