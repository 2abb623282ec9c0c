package usage

import (
	"context"
)

// Store is the persistent key-value store usage records live in.
// Get returns errors.ErrNotFound for a missing key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by stores shared between processes. CompareAndSwap
// writes value only if the key still holds old; a nil old means the key
// must be absent. It reports whether the write happened.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, value []byte) (bool, error)
}
