package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/ports"
)

// Memory is the default StoragePort when no data directory is configured.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStopped
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	m.data[key] = copied
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStopped
	}
	value, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStopped
	}
	delete(m.data, key)
	return nil
}

func (m *Memory) ListByPrefix(_ context.Context, prefix string) ([]ports.KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, domain.ErrStopped
	}
	var out []ports.KeyValue
	for key, value := range m.data {
		if strings.HasPrefix(key, prefix) {
			copied := make([]byte, len(value))
			copy(copied, value)
			out = append(out, ports.KeyValue{Key: key, Value: copied})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
