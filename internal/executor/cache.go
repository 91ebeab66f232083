package executor

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/xjson"
)

// CacheKey derives a deterministic memoization key from the node's identity
// and its declared cache-relevant config fields. The execution context never
// participates: an unstable key would silently disable caching or bleed
// results across executions. When a node declares no CacheFields, every
// config field counts.
func CacheKey(node *domain.WorkflowNode) uint64 {
	digest := xxhash.New()
	digest.WriteString(node.ID)
	digest.Write([]byte{0})
	digest.WriteString(string(node.Type))
	digest.Write([]byte{0})

	fields := node.CacheFields
	if len(fields) == 0 {
		fields = make([]string, 0, len(node.Config))
		for key := range node.Config {
			fields = append(fields, key)
		}
	} else {
		fields = append([]string{}, fields...)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value, ok := node.Config[field]
		if !ok {
			continue
		}
		// Map keys are sorted by the JSON encoder, so nested values
		// serialize deterministically.
		encoded, err := xjson.Marshal(value)
		if err != nil {
			continue
		}
		digest.WriteString(field)
		digest.Write([]byte{'='})
		digest.Write(encoded)
		digest.Write([]byte{0})
	}

	return digest.Sum64()
}

// ResultCache memoizes cacheable node results. It is shared across
// executions; safety rests on collision-free key derivation.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[uint64]interface{}
}

func NewResultCache() *ResultCache {
	return &ResultCache{entries: make(map[uint64]interface{})}
}

func (c *ResultCache) Get(key uint64) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.entries[key]
	return value, ok
}

func (c *ResultCache) Put(key uint64, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
