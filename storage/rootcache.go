package storage

import (
	"sync"

	"github.com/dashpay/grovedb/hash"
)

// RootCache is an in-memory read-your-writes cache over the CFRoots
// registry, adapted from the teacher's HeaderChain
// (_examples/shruggr-inspiration/models/headers.go): the same
// mutex-guarded map-plus-tip shape, but keyed by subtree prefix instead
// of block height, and caching "which key is the current AVL root" for a
// subtree instead of "the header at this height". Merk and grove use it
// to avoid a storage round trip on every root-key lookup within a single
// in-process session; it is purely a cache; CFRoots in the underlying
// store.Context remains the source of truth on cold start.
type RootCache struct {
	mu    sync.RWMutex
	roots map[hash.Digest][]byte // subtree prefix -> root key
}

// NewRootCache creates an empty cache.
func NewRootCache() *RootCache {
	return &RootCache{roots: make(map[hash.Digest][]byte)}
}

// Set records the current root key for a subtree prefix. A nil rootKey
// records "this subtree is empty".
func (c *RootCache) Set(prefix hash.Digest, rootKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots[prefix] = append([]byte{}, rootKey...)
}

// Get returns the cached root key for prefix and whether it was present.
func (c *RootCache) Get(prefix hash.Digest) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.roots[prefix]
	return v, ok
}

// Invalidate drops any cached entry for prefix, analogous to
// HeaderChain.Reorg discarding headers invalidated by a chain
// reorganization: used when a subtree is deleted or its root is about to
// be recomputed from storage rather than trusted from cache.
func (c *RootCache) Invalidate(prefix hash.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.roots, prefix)
}

// Len reports the number of cached subtree roots.
func (c *RootCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.roots)
}
