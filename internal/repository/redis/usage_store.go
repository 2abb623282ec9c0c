package redis

import (
	"context"

	"tripconcierge/internal/adapters/redis"
	"tripconcierge/pkg/errors"
)

// UsageStore implements usage.Store on Redis so every replica sees the same counters
type UsageStore struct {
	client *redis.Client
	prefix string
}

// NewUsageStore creates a store that namespaces keys with prefix
func NewUsageStore(client *redis.Client, prefix string) *UsageStore {
	return &UsageStore{client: client, prefix: prefix}
}

func (s *UsageStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetBytes(ctx, s.prefix+key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrNotFound, "usage key %s", key)
		}
		return nil, errors.Wrapf(err, "failed to get usage from redis: key=%s", key)
	}
	return data, nil
}

// Set stores the record without TTL; stale windows are replaced by the rate limiter
func (s *UsageStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.SetBytes(ctx, s.prefix+key, value, 0); err != nil {
		return errors.Wrapf(err, "failed to save usage to redis: key=%s", key)
	}
	return nil
}

func (s *UsageStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, s.prefix+key); err != nil {
		return errors.Wrapf(err, "failed to delete usage from redis: key=%s", key)
	}
	return nil
}
