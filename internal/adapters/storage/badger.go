package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/ports"
)

// Badger persists definitions and execution records in an embedded badger
// store so they survive engine restarts.
type Badger struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewBadger(dataDir string, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Badger{
		db:     db,
		logger: logger.With("component", "badger-storage"),
	}, nil
}

func (b *Badger) Put(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *Badger) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *Badger) ListByPrefix(_ context.Context, prefix string) ([]ports.KeyValue, error) {
	var out []ports.KeyValue
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, ports.KeyValue{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) Close() error {
	if err := b.db.Close(); err != nil {
		b.logger.Error("failed to close badger store", "error", err)
		return err
	}
	return nil
}
