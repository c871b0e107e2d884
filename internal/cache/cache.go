package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"javagent/internal/extractor"
)

// ResultCache memoizes extraction results keyed by source content hash.
// Re-indexing an unchanged unit skips the parse entirely. Eviction is LRU
// with a fixed entry bound.
type ResultCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element

	hits   int
	misses int
}

type cacheEntry struct {
	key    string
	result *extractor.Result
}

func NewResultCache(max int) *ResultCache {
	if max < 1 {
		max = 256
	}
	return &ResultCache{
		max:     max,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Key hashes a unit's identity and content. Moving a file or editing it
// both change the key.
func Key(unitID string, source []byte) string {
	h := sha256.New()
	h.Write([]byte(unitID))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ResultCache) Get(key string) (*extractor.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *ResultCache) Put(key string, result *extractor.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, result: result})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters since creation.
func (c *ResultCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
