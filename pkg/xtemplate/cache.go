package xtemplate

import (
	"sync"

	"golang.org/x/crypto/blake2b"
)

// cacheKey identifies a compiled template by name and source.
type cacheKey [blake2b.Size256]byte

func newCacheKey(name, source string) cacheKey {
	buf := make([]byte, 0, len(name)+1+len(source))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, source...)
	return blake2b.Sum256(buf)
}

// TemplateCache is a thread-safe, size-bounded cache of compiled templates.
type TemplateCache struct {
	cache   map[cacheKey]*Template
	maxSize int
	mu      sync.RWMutex
}

// NewTemplateCache creates a cache holding at most maxSize templates.
func NewTemplateCache(maxSize int) *TemplateCache {
	return &TemplateCache{
		cache:   make(map[cacheKey]*Template),
		maxSize: maxSize,
	}
}

// Get retrieves a compiled template from the cache.
func (tc *TemplateCache) Get(name, source string) (*Template, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	t, ok := tc.cache[newCacheKey(name, source)]
	return t, ok
}

// Set stores a compiled template, evicting an arbitrary entry when full.
func (tc *TemplateCache) Set(t *Template) {
	if tc.maxSize <= 0 {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	key := newCacheKey(t.name, t.source)
	if _, exists := tc.cache[key]; !exists && len(tc.cache) >= tc.maxSize {
		for k := range tc.cache {
			delete(tc.cache, k)
			break
		}
	}
	tc.cache[key] = t
}

// Len returns the number of cached templates.
func (tc *TemplateCache) Len() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.cache)
}

// Purge drops every cached template.
func (tc *TemplateCache) Purge() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cache = make(map[cacheKey]*Template)
}
