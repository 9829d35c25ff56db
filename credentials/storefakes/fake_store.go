package storefakes

import (
	"context"
	"sync"

	"github.com/eldor47/glucosnap/credentials"
	apperrors "github.com/eldor47/glucosnap/internal/errors"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests.
type FakeStore struct {
	values map[string][]byte
	lock   sync.RWMutex

	// FailWith, when set, is returned from every operation. Used to
	// simulate an unavailable device store.
	FailWith error

	// Counters for asserting on store traffic
	Gets, Sets, Deletes int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string][]byte)}
}

func (s *FakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Gets++
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	value, ok := s.values[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *FakeStore) Set(ctx context.Context, key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Sets++
	if s.FailWith != nil {
		return s.FailWith
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}

func (s *FakeStore) Delete(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.Deletes++
	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys.
func (s *FakeStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.values)
}
