package merk

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dashpay/grovedb/hash"
)

// LinkCache is an LRU of recently-pruned tree nodes keyed by subtree
// prefix + node key, adapted from the teacher's cache package
// (_examples/shruggr-inspiration/cache/cache.go,
// cache/memory/memory.go): the same bounded-size, evict-oldest
// discipline, generalized from caching parsed term/script lookups to
// caching Merk nodes so a pruned subtree can be "warmed" without a
// storage round trip when it's touched again soon after.
//
// A Link already keeps its own key/hash/heights/aggregates once pruned
// (see pruneLink), so caching just that summary would save nothing: a
// resolve() needs the node's own ValueBytes/ValueHash and its
// children's link summaries, none of which survive on the pruned Link
// itself. LinkCache therefore stores the same shape fetch+decodeNode
// would produce — the node's value plus its Left/Right children
// reduced to fresh LinkReference stubs — so a Recall can stand in for
// a storage Get+decode exactly.
type LinkCache struct {
	lru *lru.Cache[string, *TreeNode]
}

// NewLinkCache creates a cache bounded to size entries.
func NewLinkCache(size int) (*LinkCache, error) {
	l, err := lru.New[string, *TreeNode](size)
	if err != nil {
		return nil, err
	}
	return &LinkCache{lru: l}, nil
}

func cacheKey(prefix hash.Digest, key []byte) string {
	return string(prefix[:]) + string(key)
}

// Remember records node's decoded shape under prefix so a future fetch
// of the same key can skip the storage round trip. Only node's own
// fields and shallow LinkReference stubs for its children are kept;
// any materialized grandchildren are dropped, matching what decodeNode
// would have produced from storage.
func (c *LinkCache) Remember(prefix hash.Digest, node *TreeNode) {
	if c == nil || node == nil {
		return
	}
	c.lru.Add(cacheKey(prefix, node.Key), detachedNode(node))
}

// Recall looks up a previously-remembered node, returning a fresh copy
// so callers can freely attach it to their own Link without aliasing
// the cached entry.
func (c *LinkCache) Recall(prefix hash.Digest, key []byte) (*TreeNode, bool) {
	if c == nil {
		return nil, false
	}
	n, ok := c.lru.Get(cacheKey(prefix, key))
	if !ok {
		return nil, false
	}
	return detachedNode(n), true
}

func detachedNode(n *TreeNode) *TreeNode {
	return &TreeNode{
		Key:        append([]byte{}, n.Key...),
		ValueBytes: append([]byte{}, n.ValueBytes...),
		ValueHash:  n.ValueHash,
		Left:       referenceStub(n.Left),
		Right:      referenceStub(n.Right),
	}
}

func referenceStub(l *Link) *Link {
	if l == nil {
		return nil
	}
	return &Link{
		State:       LinkReference,
		Key:         append([]byte{}, l.Key...),
		Hash:        l.Hash,
		LeftHeight:  l.LeftHeight,
		RightHeight: l.RightHeight,
		SumAgg:      l.SumAgg,
		CountAgg:    l.CountAgg,
	}
}
