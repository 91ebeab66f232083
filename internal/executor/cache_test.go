package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loomery/loom/internal/domain"
)

func integrationNode(id string, config map[string]interface{}) *domain.WorkflowNode {
	return &domain.WorkflowNode{ID: id, Type: domain.NodeTypeIntegration, Name: id, Config: config}
}

func TestCacheKeyDeterministic(t *testing.T) {
	node := integrationNode("fetch", map[string]interface{}{
		"integration_type": "api",
		"url":              "https://example.com",
		"nested":           map[string]interface{}{"b": 2, "a": 1},
	})

	first := CacheKey(node)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, CacheKey(node))
	}
}

func TestCacheKeyIgnoresFieldsOutsideCacheFields(t *testing.T) {
	base := integrationNode("fetch", map[string]interface{}{
		"url":   "https://example.com",
		"trace": "abc",
	})
	base.CacheFields = []string{"url"}

	changed := integrationNode("fetch", map[string]interface{}{
		"url":   "https://example.com",
		"trace": "xyz",
	})
	changed.CacheFields = []string{"url"}

	assert.Equal(t, CacheKey(base), CacheKey(changed))
}

func TestCacheKeySensitiveToDeclaredFields(t *testing.T) {
	a := integrationNode("fetch", map[string]interface{}{"url": "https://example.com/a"})
	a.CacheFields = []string{"url"}
	b := integrationNode("fetch", map[string]interface{}{"url": "https://example.com/b"})
	b.CacheFields = []string{"url"}

	assert.NotEqual(t, CacheKey(a), CacheKey(b))
}

func TestCacheKeySensitiveToNodeIdentity(t *testing.T) {
	config := map[string]interface{}{"url": "https://example.com"}
	assert.NotEqual(t,
		CacheKey(integrationNode("fetch-a", config)),
		CacheKey(integrationNode("fetch-b", config)))
}

func TestCacheKeyFieldOrderIrrelevant(t *testing.T) {
	a := integrationNode("fetch", map[string]interface{}{"url": "x", "method": "GET"})
	a.CacheFields = []string{"url", "method"}
	b := integrationNode("fetch", map[string]interface{}{"url": "x", "method": "GET"})
	b.CacheFields = []string{"method", "url"}

	assert.Equal(t, CacheKey(a), CacheKey(b))
}

func TestResultCacheRoundTrip(t *testing.T) {
	cache := NewResultCache()

	_, hit := cache.Get(42)
	assert.False(t, hit)

	cache.Put(42, "value")
	value, hit := cache.Get(42)
	assert.True(t, hit)
	assert.Equal(t, "value", value)
	assert.Equal(t, 1, cache.Len())
}
