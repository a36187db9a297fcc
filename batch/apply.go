package batch

import (
	"sort"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/storage"
)

// cachedSubtree is one Merk opened for this batch: every op targeting
// its path applies against the same handle, and its root hash, once
// finalized, propagates into the Element naming it in its parent (spec
// §4.8 Phase 2 "per-subtree TreeCache... leaf-to-root propagation").
type cachedSubtree struct {
	path  [][]byte
	merk  *merk.Merk
	dirty bool
}

// treeCache opens each subtree addressed during Phase 2 exactly once,
// keyed by pathKey(path), so repeated Gets/Inserts against the same
// subtree (whether from direct ops or from propagation) share state.
type treeCache struct {
	store   storage.Context
	entries map[string]*cachedSubtree
}

func newTreeCache(store storage.Context) *treeCache {
	return &treeCache{store: store, entries: make(map[string]*cachedSubtree)}
}

func (tc *treeCache) open(path [][]byte) (*cachedSubtree, cost.OperationCost, error) {
	k := pathKey(path)
	if e, ok := tc.entries[k]; ok {
		return e, cost.OperationCost{}, nil
	}
	feature, _, c, err := merk.ResolveFeature(tc.store, path)
	if err != nil {
		return nil, c, err
	}
	m, mc, err := merk.Open(tc.store, hash.SubtreePrefix(path), feature)
	c = c.Add(mc)
	if err != nil {
		return nil, c, err
	}
	e := &cachedSubtree{path: path, merk: m}
	tc.entries[k] = e
	return e, c, nil
}

// apply runs Phase 2: applies every group's ops into its subtree's
// cached Merk, then propagates each touched subtree's final root hash
// up to its parent Element, deepest path first, until the root is
// reached, and finally commits every subtree whose Merk changed.
func apply(store storage.Context, groups []subtreeGroup) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	tc := newTreeCache(store)

	for _, g := range groups {
		e, oc, err := tc.open(g.Path)
		c = c.Add(oc)
		if err != nil {
			return c, err
		}
		e.dirty = true
		for _, op := range g.Ops {
			ac, err := applyOp(tc, e, op)
			c = c.Add(ac)
			if err != nil {
				return c, err
			}
		}
	}

	paths := touchedPaths(groups)
	pc, err := propagate(tc, paths)
	c = c.Add(pc)
	if err != nil {
		return c, err
	}

	for _, e := range tc.entries {
		if !e.dirty {
			continue
		}
		cc, err := e.merk.Commit()
		c = c.Add(cc)
		if err != nil {
			return c, err
		}
	}
	return c, nil
}

// touchedPaths returns every group's path plus every ancestor of it,
// deduplicated, so ancestors that received no direct op still get
// opened to receive propagated hash updates.
func touchedPaths(groups []subtreeGroup) [][][]byte {
	seen := make(map[string]bool)
	var out [][][]byte
	add := func(p [][]byte) {
		k := pathKey(p)
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, p)
	}
	for _, g := range groups {
		for i := 0; i <= len(g.Path); i++ {
			add(g.Path[:i])
		}
	}
	return out
}

// propagate walks paths deepest-first, refreshing each non-root
// subtree's owning Element in its parent's cached Merk with the
// subtree's current combined value hash, so that by the time a
// shallower path is processed its children's hashes are already final.
func propagate(tc *treeCache, paths [][][]byte) (cost.OperationCost, error) {
	c := cost.OperationCost{}

	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	for _, p := range paths {
		if len(p) == 0 {
			continue
		}
		parentPath := p[:len(p)-1]
		key := p[len(p)-1]

		parent, oc, err := tc.open(parentPath)
		c = c.Add(oc)
		if err != nil {
			return c, err
		}
		owner, gc, err := parent.merk.Get(key)
		c = c.Add(gc)
		if err != nil {
			return c, err
		}
		if owner == nil {
			// the subtree was created by this batch but never
			// registered under its parent key; nothing to propagate
			// into (the batch itself must insert that Element).
			continue
		}

		// Every path reaching here was opened as a Merk by tc.open (see
		// touchedPaths: only group paths and their ancestors, and a
		// group's Path always names the Merk holding the op's key), so
		// owner is always the Tree-like element naming that child Merk
		// in its parent. Non-Merk subtree owners (Mmr/Dense/BulkAppend/
		// CommitmentTree) are refreshed directly by applyOp when it
		// handles opReplaceNonMerkTreeRoot, without ever becoming a
		// treeCache entry of their own.
		child := tc.entries[pathKey(p)]
		var childHash hash.Digest
		if child != nil && !child.merk.IsEmpty() {
			childHash = child.merk.RootHash()
			owner.RootKey = child.merk.RootKey()
		} else {
			childHash = hash.Null
			owner.RootKey = nil
		}
		if owner.HasAggregateFeature() && child != nil {
			owner.Sum = child.merk.RootSumAgg()
			owner.Count = child.merk.RootCountAgg()
		}

		encoded, err := owner.Encode()
		if err != nil {
			return c, groveerr.Wrap("batch.propagate", groveerr.CorruptedStorage, err)
		}
		combined := hash.Combine(hash.ValueHash(encoded), childHash)
		ic, err := parent.merk.Insert(key, encoded, combined)
		c = c.Add(ic)
		if err != nil {
			return c, err
		}
		parent.dirty = true
	}
	return c, nil
}
