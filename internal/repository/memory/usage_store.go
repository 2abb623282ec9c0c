package memory

import (
	"context"
	"sync"

	"tripconcierge/pkg/errors"
)

// UsageStore is an in-process usage.Store. Values are copied on the way in
// and out so callers cannot mutate stored bytes.
type UsageStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewUsageStore creates an empty store
func NewUsageStore() *UsageStore {
	return &UsageStore{data: make(map[string][]byte)}
}

func (s *UsageStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "usage key %s", key)
	}
	return append([]byte(nil), v...), nil
}

func (s *UsageStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *UsageStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys
func (s *UsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
