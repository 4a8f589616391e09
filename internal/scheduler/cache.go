package scheduler

import (
	"sync"

	"github.com/grove-run/grove/internal/model"
)

// CacheKey identifies a memoized result by (type, name, version).
type CacheKey struct {
	Type    model.TaskType
	Name    string
	Version string
}

// ResultCache is the process-wide memoization table the scheduler
// consults before dispatching a node. Safe for concurrent use; owned by
// one Garden aggregate.
type ResultCache struct {
	mu sync.RWMutex
	m  map[CacheKey]model.TaskResult
}

// NewResultCache returns an empty cache.
func NewResultCache() *ResultCache {
	return &ResultCache{m: make(map[CacheKey]model.TaskResult)}
}

// Get returns the memoized result for k, if any.
func (c *ResultCache) Get(k CacheKey) (model.TaskResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[k]
	return v, ok
}

// Put records a result for k.
func (c *ResultCache) Put(k CacheKey, result model.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = result
}

// Invalidate evicts k, used when a module's source paths or dependency
// versions change, whether observed via file-watch or reported by the
// configurator.
func (c *ResultCache) Invalidate(k CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, k)
}

// InvalidateName evicts every cached entry for name regardless of type
// or version, used when a module's whole version changes and every
// cached task/test/build result for it is now stale.
func (c *ResultCache) InvalidateName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.m {
		if k.Name == name {
			delete(c.m, k)
		}
	}
}

func cacheKeyFor(n model.TaskNode) CacheKey {
	return CacheKey{Type: n.Type, Name: n.Name, Version: n.Version}
}
