package merk

import (
	"bytes"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// Merk is a single subtree's AVL tree, addressed by its 32-byte subtree
// prefix within a storage.Context (spec §3.1/§4.3). It holds one
// in-memory node graph rooted at root, lazily fetching children through
// Link.State == LinkReference placeholders as they are touched.
type Merk struct {
	store   storage.Context
	prefix  hash.Digest
	feature FeatureType
	cache   *LinkCache

	root *TreeNode
}

// Open loads (or prepares to create) the Merk subtree at prefix. An
// empty subtree (no root key registered yet) yields a valid, empty
// Merk rather than an error.
func Open(store storage.Context, prefix hash.Digest, feature FeatureType) (*Merk, cost.OperationCost, error) {
	return OpenCached(store, prefix, feature, nil)
}

// OpenCached is Open with an optional LinkCache consulted before every
// storage fetch the returned Merk makes (both the initial root load
// here and every later resolve of a child link). A nil cache behaves
// exactly like Open.
func OpenCached(store storage.Context, prefix hash.Digest, feature FeatureType, cache *LinkCache) (*Merk, cost.OperationCost, error) {
	c := cost.OperationCost{}
	rootKey, err := store.Get(storage.CFRoots, prefix, nil)
	if err != nil {
		return nil, c, groveerr.Wrap("merk.Open", groveerr.StorageError, err)
	}
	c.AddSeek()

	m := &Merk{store: store, prefix: prefix, feature: feature, cache: cache}
	if len(rootKey) == 0 {
		return m, c, nil
	}

	root, hit, err := m.fetch(rootKey)
	if err != nil {
		return nil, c, err
	}
	if !hit {
		c.AddSeek()
		c.AddLoadedBytes(uint64(len(root.ValueBytes)))
	}
	m.root = root
	return m, c, nil
}

// IsEmpty reports whether the subtree currently has no root.
func (m *Merk) IsEmpty() bool { return m.root == nil }

// RootHash returns the subtree's current root node hash, or
// hash.Null if empty (spec §4.3.1).
func (m *Merk) RootHash() hash.Digest {
	if m.root == nil {
		return hash.Null
	}
	return m.root.NodeHash(m.feature)
}

// RootKey returns the key of the current root node, or nil if empty.
func (m *Merk) RootKey() []byte {
	if m.root == nil {
		return nil
	}
	return m.root.Key
}

// RootSumAgg and RootCountAgg expose the whole subtree's rolled-up
// aggregates (spec invariant 3), used by the grove layer to refresh an
// ancestor aggregate-tree Element's Sum/Count fields after a mutation.
func (m *Merk) RootSumAgg() int64 {
	if m.root == nil {
		return 0
	}
	return m.root.SumAgg()
}

func (m *Merk) RootCountAgg() uint64 {
	if m.root == nil {
		return 0
	}
	return m.root.CountAgg()
}

// fetch loads the node at key, consulting m.cache first. hit reports
// whether the node was served from cache, letting callers skip the
// storage-cost accounting below since no store.Get was actually
// issued.
func (m *Merk) fetch(key []byte) (n *TreeNode, hit bool, err error) {
	if m.cache != nil {
		if n, ok := m.cache.Recall(m.prefix, key); ok {
			return n, true, nil
		}
	}

	raw, err := m.store.Get(storage.CFDefault, m.prefix, key)
	if err != nil {
		return nil, false, groveerr.Wrap("merk.fetch", groveerr.StorageError, err)
	}
	if raw == nil {
		return nil, false, groveerr.New("merk.fetch", groveerr.CorruptedStorage)
	}
	n, err = decodeNode(key, raw)
	if err != nil {
		return nil, false, groveerr.Wrap("merk.fetch", groveerr.CorruptedStorage, err)
	}
	return n, false, nil
}

// resolve materializes the node a link points to, fetching it from
// storage (or m.cache) on first touch (LinkReference -> LinkLoaded) and
// caching the result on the link itself so repeated resolves within the
// same mutation are free.
func (m *Merk) resolve(l *Link, c *cost.OperationCost) (*TreeNode, error) {
	if l == nil {
		return nil, nil
	}
	if l.Node != nil {
		return l.Node, nil
	}
	n, hit, err := m.fetch(l.Key)
	if err != nil {
		return nil, err
	}
	if !hit {
		c.AddSeek()
		c.AddLoadedBytes(uint64(len(n.ValueBytes)))
	}
	l.Node = n
	l.State = LinkLoaded
	return n, nil
}

// attach builds a Modified link to child, eagerly computing its hash
// and aggregates (spec §3.1's Modified state is "hash invalid", but
// eager recomputation here is a strict refinement: the link's Hash
// field is always kept current, which costs extra recomputation on
// deep rotations but never observes a stale hash).
func (m *Merk) attach(child *TreeNode, c *cost.OperationCost) *Link {
	if child == nil {
		return nil
	}
	c.AddHashNodeCalls(1)
	return &Link{
		State:       LinkModified,
		Key:         child.Key,
		Hash:        child.NodeHash(m.feature),
		LeftHeight:  child.Left.Height(),
		RightHeight: child.Right.Height(),
		SumAgg:      child.SumAgg(),
		CountAgg:    child.CountAgg(),
		Node:        child,
	}
}

// Get returns the decoded element at key, or (nil, nil) if absent.
func (m *Merk) Get(key []byte) (*element.Element, cost.OperationCost, error) {
	c := cost.OperationCost{}
	n, err := m.getNode(m.root, key, &c)
	if err != nil {
		return nil, c, err
	}
	if n == nil {
		return nil, c, nil
	}
	e, err := element.Decode(n.ValueBytes)
	if err != nil {
		return nil, c, groveerr.Wrap("merk.Get", groveerr.CorruptedStorage, err)
	}
	return e, c, nil
}

// GetRaw returns the undecoded element bytes and value hash at key.
func (m *Merk) GetRaw(key []byte) ([]byte, hash.Digest, cost.OperationCost, error) {
	c := cost.OperationCost{}
	n, err := m.getNode(m.root, key, &c)
	if err != nil {
		return nil, hash.Null, c, err
	}
	if n == nil {
		return nil, hash.Null, c, nil
	}
	return n.ValueBytes, n.ValueHash, c, nil
}

func (m *Merk) getNode(node *TreeNode, key []byte, c *cost.OperationCost) (*TreeNode, error) {
	for node != nil {
		cmp := bytes.Compare(key, node.Key)
		if cmp == 0 {
			return node, nil
		}
		var next *Link
		if cmp < 0 {
			next = node.Left
		} else {
			next = node.Right
		}
		child, err := m.resolve(next, c)
		if err != nil {
			return nil, err
		}
		node = child
	}
	return nil, nil
}

// Insert writes (or replaces) the element encoded as valueBytes at
// key, with a precomputed value hash (spec §4.6 step 3: the grove layer
// computes a combined hash for Tree/Reference elements before calling
// Insert; Merk itself treats valueHash as opaque).
func (m *Merk) Insert(key, valueBytes []byte, valueHash hash.Digest) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	existing, err := m.getNode(m.root, key, &cost.OperationCost{})
	if err != nil {
		return c, err
	}
	newRoot, err := m.insertNode(m.root, key, valueBytes, valueHash, &c)
	if err != nil {
		return c, err
	}
	m.root = newRoot
	if existing != nil {
		c.ApplyOverwrite(len(existing.ValueBytes), len(valueBytes))
	} else {
		c.ApplyInsert(len(valueBytes))
	}
	return c, nil
}

func (m *Merk) insertNode(node *TreeNode, key, valueBytes []byte, vh hash.Digest, c *cost.OperationCost) (*TreeNode, error) {
	if node == nil {
		return &TreeNode{Key: append([]byte{}, key...), ValueBytes: valueBytes, ValueHash: vh}, nil
	}

	cmp := bytes.Compare(key, node.Key)
	switch {
	case cmp == 0:
		node.ValueBytes = valueBytes
		node.ValueHash = vh
		return node, nil
	case cmp < 0:
		left, err := m.resolve(node.Left, c)
		if err != nil {
			return nil, err
		}
		newLeft, err := m.insertNode(left, key, valueBytes, vh, c)
		if err != nil {
			return nil, err
		}
		node.Left = m.attach(newLeft, c)
	default:
		right, err := m.resolve(node.Right, c)
		if err != nil {
			return nil, err
		}
		newRight, err := m.insertNode(right, key, valueBytes, vh, c)
		if err != nil {
			return nil, err
		}
		node.Right = m.attach(newRight, c)
	}
	return m.rebalance(node, c)
}

// Delete removes key, reporting whether it was present.
func (m *Merk) Delete(key []byte) (bool, cost.OperationCost, error) {
	c := cost.OperationCost{}
	existing, err := m.getNode(m.root, key, &cost.OperationCost{})
	if err != nil {
		return false, c, err
	}
	if existing == nil {
		return false, c, nil
	}
	newRoot, found, err := m.deleteNode(m.root, key, &c)
	if err != nil {
		return false, c, err
	}
	m.root = newRoot
	c.ApplyRemove(len(existing.ValueBytes))
	return found, c, nil
}

func (m *Merk) deleteNode(node *TreeNode, key []byte, c *cost.OperationCost) (*TreeNode, bool, error) {
	if node == nil {
		return nil, false, nil
	}

	cmp := bytes.Compare(key, node.Key)
	switch {
	case cmp < 0:
		left, err := m.resolve(node.Left, c)
		if err != nil {
			return nil, false, err
		}
		newLeft, found, err := m.deleteNode(left, key, c)
		if err != nil {
			return nil, false, err
		}
		node.Left = m.attach(newLeft, c)
		rebalanced, err := m.rebalance(node, c)
		return rebalanced, found, err

	case cmp > 0:
		right, err := m.resolve(node.Right, c)
		if err != nil {
			return nil, false, err
		}
		newRight, found, err := m.deleteNode(right, key, c)
		if err != nil {
			return nil, false, err
		}
		node.Right = m.attach(newRight, c)
		rebalanced, err := m.rebalance(node, c)
		return rebalanced, found, err

	default:
		left, err := m.resolve(node.Left, c)
		if err != nil {
			return nil, false, err
		}
		right, err := m.resolve(node.Right, c)
		if err != nil {
			return nil, false, err
		}
		if left == nil {
			return right, true, nil
		}
		if right == nil {
			return left, true, nil
		}

		succ, err := m.minNode(right, c)
		if err != nil {
			return nil, false, err
		}
		newRight, _, err := m.deleteNode(right, succ.Key, c)
		if err != nil {
			return nil, false, err
		}
		node.Key = succ.Key
		node.ValueBytes = succ.ValueBytes
		node.ValueHash = succ.ValueHash
		node.Right = m.attach(newRight, c)
		rebalanced, err := m.rebalance(node, c)
		return rebalanced, true, err
	}
}

func (m *Merk) minNode(node *TreeNode, c *cost.OperationCost) (*TreeNode, error) {
	for {
		left, err := m.resolve(node.Left, c)
		if err != nil {
			return nil, err
		}
		if left == nil {
			return node, nil
		}
		node = left
	}
}

// rebalance restores the AVL property at node after a mutation to one
// of its children (spec §4.3.3), performing a single or double rotation
// as required. Only the rotated nodes have their hashes/aggregates
// recomputed. Because deletion can leave the heavier side un-resolved
// (the imbalance surfaces on the side opposite the one just mutated),
// rebalance resolves whichever child it needs to inspect before
// touching it, rather than assuming it is already materialized.
func (m *Merk) rebalance(node *TreeNode, c *cost.OperationCost) (*TreeNode, error) {
	bf := node.balanceFactor()
	switch {
	case bf > 1:
		left, err := m.resolve(node.Left, c)
		if err != nil {
			return nil, err
		}
		if left.balanceFactor() < 0 {
			right, err := m.resolve(left.Right, c)
			if err != nil {
				return nil, err
			}
			rotated := m.rotateLeftNode(left, right, c)
			node.Left = m.attach(rotated, c)
		}
		return m.rotateRight(node, c)
	case bf < -1:
		right, err := m.resolve(node.Right, c)
		if err != nil {
			return nil, err
		}
		if right.balanceFactor() > 0 {
			left, err := m.resolve(right.Left, c)
			if err != nil {
				return nil, err
			}
			rotated := m.rotateRightNode(right, left, c)
			node.Right = m.attach(rotated, c)
		}
		return m.rotateLeft(node, c)
	default:
		return node, nil
	}
}

// rotateLeft performs the standard "RR case" single rotation: node's
// right child becomes the new subtree root.
func (m *Merk) rotateLeft(node *TreeNode, c *cost.OperationCost) (*TreeNode, error) {
	newRoot, err := m.resolve(node.Right, c)
	if err != nil {
		return nil, err
	}
	return m.rotateLeftNode(node, newRoot, c), nil
}

// rotateLeftNode performs the rotation once both node and its
// already-resolved right child (newRoot) are in hand.
func (m *Merk) rotateLeftNode(node, newRoot *TreeNode, c *cost.OperationCost) *TreeNode {
	node.Right = newRoot.Left
	newRoot.Left = m.attach(node, c)
	return newRoot
}

// rotateRight performs the standard "LL case" single rotation: node's
// left child becomes the new subtree root.
func (m *Merk) rotateRight(node *TreeNode, c *cost.OperationCost) (*TreeNode, error) {
	newRoot, err := m.resolve(node.Left, c)
	if err != nil {
		return nil, err
	}
	return m.rotateRightNode(node, newRoot, c), nil
}

func (m *Merk) rotateRightNode(node, newRoot *TreeNode, c *cost.OperationCost) *TreeNode {
	node.Left = newRoot.Right
	newRoot.Right = m.attach(node, c)
	return newRoot
}

// Commit persists every node reachable from root whose link state is
// not LinkReference (i.e. loaded or modified since Open), then registers
// the new root key. Commit leaves link states as they are; links are
// rebuilt fresh on the next Open.
func (m *Merk) Commit() (cost.OperationCost, error) {
	c := cost.OperationCost{}
	if m.root == nil {
		if err := m.store.Put(storage.CFRoots, m.prefix, nil, nil); err != nil {
			return c, groveerr.Wrap("merk.Commit", groveerr.StorageError, err)
		}
		c.AddSeek()
		return c, nil
	}

	visited := make(map[string]bool)
	if err := m.commitNode(m.root, visited, &c); err != nil {
		return c, err
	}
	if err := m.store.Put(storage.CFRoots, m.prefix, nil, m.root.Key); err != nil {
		return c, groveerr.Wrap("merk.Commit", groveerr.StorageError, err)
	}
	c.AddSeek()
	return c, nil
}

func (m *Merk) commitNode(node *TreeNode, visited map[string]bool, c *cost.OperationCost) error {
	if node == nil {
		return nil
	}
	if visited[string(node.Key)] {
		return nil
	}
	visited[string(node.Key)] = true

	if node.Left != nil && node.Left.State != LinkReference {
		if err := m.commitNode(node.Left.Node, visited, c); err != nil {
			return err
		}
	}
	if node.Right != nil && node.Right.State != LinkReference {
		if err := m.commitNode(node.Right.Node, visited, c); err != nil {
			return err
		}
	}

	encoded := encodeNode(node)
	if err := m.store.Put(storage.CFDefault, m.prefix, node.Key, encoded); err != nil {
		return groveerr.Wrap("merk.commitNode", groveerr.StorageError, err)
	}
	c.AddSeek()
	c.ApplyInsert(len(encoded))
	return nil
}

// Prune converts every LinkLoaded link reachable from root back to
// LinkReference, dropping the materialized Node pointer but retaining
// key/hash/heights/aggregate (spec §4.3.4): callers use this after
// Commit to bound memory for long-lived Merk handles. Each dropped node
// is first remembered in m.cache (if configured), so a later Open or
// resolve of the same key can skip the storage fetch entirely.
func (m *Merk) Prune() {
	pruneNode(m.root, m.cache, m.prefix)
}

func pruneNode(node *TreeNode, cache *LinkCache, prefix hash.Digest) {
	if node == nil {
		return
	}
	pruneLink(node.Left, cache, prefix)
	pruneLink(node.Right, cache, prefix)
}

func pruneLink(l *Link, cache *LinkCache, prefix hash.Digest) {
	if l == nil || l.Node == nil {
		return
	}
	pruneNode(l.Node, cache, prefix)
	if l.State == LinkLoaded {
		cache.Remember(prefix, l.Node)
		l.Node = nil
	}
}

// DeleteAll removes every node in the subtree and clears the root-key
// registry entry, used by DeleteTree (spec §3.3) for plain Merk
// subtrees.
func (m *Merk) DeleteAll() (cost.OperationCost, error) {
	c := cost.OperationCost{}
	if err := m.store.DeletePrefix(storage.CFDefault, m.prefix); err != nil {
		return c, groveerr.Wrap("merk.DeleteAll", groveerr.StorageError, err)
	}
	if err := m.store.Delete(storage.CFRoots, m.prefix, nil); err != nil {
		return c, groveerr.Wrap("merk.DeleteAll", groveerr.StorageError, err)
	}
	m.root = nil
	return c, nil
}

// Walk performs an in-order traversal of the subtree, invoking fn for
// every node's (key, decoded element). Iteration stops early if fn
// returns false. Used by the query engine (C7) for range scans that
// don't map to contiguous storage-key ranges once rotations have
// happened (Merk key order and storage key order coincide exactly in
// this implementation, but Walk keeps query code independent of that
// detail).
func (m *Merk) Walk(fn func(key []byte, e *element.Element) (bool, error)) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	_, err := m.walkNode(m.root, fn, &c)
	return c, err
}

func (m *Merk) walkNode(node *TreeNode, fn func([]byte, *element.Element) (bool, error), c *cost.OperationCost) (bool, error) {
	if node == nil {
		return true, nil
	}
	left, err := m.resolve(node.Left, c)
	if err != nil {
		return false, err
	}
	more, err := m.walkNode(left, fn, c)
	if err != nil || !more {
		return more, err
	}

	e, err := element.Decode(node.ValueBytes)
	if err != nil {
		return false, groveerr.Wrap("merk.Walk", groveerr.CorruptedStorage, err)
	}
	more, err = fn(node.Key, e)
	if err != nil || !more {
		return more, err
	}

	right, err := m.resolve(node.Right, c)
	if err != nil {
		return false, err
	}
	return m.walkNode(right, fn, c)
}
