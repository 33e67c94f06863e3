package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KeyValueStore.Get for a key that was never written.
var ErrKeyNotFound = errors.New("storage key not found")

// KeyValueStore is durable local key-value storage. The task store is its
// only writer.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}
