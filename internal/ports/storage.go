package ports

import (
	"context"
)

type KeyValue struct {
	Key   string
	Value []byte
}

// StoragePort is the KV surface the registry and scheduler persist through.
// Implementations: badger-backed and in-memory (internal/adapters/storage).
type StoragePort interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ListByPrefix(ctx context.Context, prefix string) ([]KeyValue, error)
	Close() error
}
