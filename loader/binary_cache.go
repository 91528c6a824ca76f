package loader

import "sync"

// binaryCache is an insertion-ordered, append-only mapping from an
// identity key to a shared, heap-allocated artifact. It backs the module
// cache's table of published modules; the global struct and function
// tables are plain slices on ModuleCache guarded by ModuleCache.mu. Once
// an entry is inserted its index never changes; every method takes this
// cache's own lock, so reads are safe concurrently with inserts.
//
// Modeled after arena-cache's sharded, generic cache (Voskan-arena-cache
// pkg/cache.go), simplified to a no-eviction, no-TTL contract: there is
// nothing here to evict, since modules/structs/functions live for the
// lifetime of the Loader.
type binaryCache[K comparable, V any] struct {
	mu      sync.RWMutex
	values  []V
	idIndex map[K]int
}

func newBinaryCache[K comparable, V any]() *binaryCache[K, V] {
	return &binaryCache[K, V]{idIndex: make(map[K]int)}
}

// insert appends value under key and returns its index. The caller must
// already have checked (under the same lock) that key is absent --
// insert does not itself de-duplicate.
func (c *binaryCache[K, V]) insert(key K, value V) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.values)
	c.values = append(c.values, value)
	c.idIndex[key] = idx
	return idx
}

// get returns the value stored under key, if any, in O(1).
func (c *binaryCache[K, V]) get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.idIndex[key]
	if !ok {
		var zero V
		return zero, false
	}
	return c.values[idx], true
}

// at returns the value at a previously-issued index. Indices are never
// invalidated once handed out.
func (c *binaryCache[K, V]) at(idx int) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx < 0 || idx >= len(c.values) {
		var zero V
		return zero, false
	}
	return c.values[idx], true
}

// len returns the current number of entries. ModuleCache.Stats uses it to
// report the number of published modules.
func (c *binaryCache[K, V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// truncate rolls the cache back to n entries, discarding both the tail of
// values and any id-index entries pointing past n. truncate must never
// be called once any of the discarded entries may have been observed by
// another goroutine. ModuleCache.insert does not call it: its rollback
// truncates the struct and function slices directly, and a failed insert
// never reaches the module table.
func (c *binaryCache[K, V]) truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.values) {
		return
	}
	for k, idx := range c.idIndex {
		if idx >= n {
			delete(c.idIndex, k)
		}
	}
	var zero V
	for i := n; i < len(c.values); i++ {
		c.values[i] = zero
	}
	c.values = c.values[:n]
}
