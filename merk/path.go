package merk

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// OpenAtPath opens the Merk subtree addressed by path (spec §4.6's
// path-addressing scheme: prefix(path) = hash.SubtreePrefix(path)),
// deriving the FeatureType it must be opened with from the Element that
// names it in its parent, by walking every ancestor from the root
// exactly once. Returns a nil Element for the root path (""), since the
// root Merk has no owning Element.
//
// Shared by query (range scans that can start at any path) and batch
// (Phase 2's per-subtree TreeCache) so both packages re-derive a
// subtree's FeatureType identically instead of keeping two copies of
// this walk in sync.
func OpenAtPath(store storage.Context, path [][]byte) (*Merk, *element.Element, cost.OperationCost, error) {
	return OpenAtPathCached(store, path, nil)
}

// OpenAtPathCached is OpenAtPath with a LinkCache threaded through both
// the ancestor walk and the final Open, so a caller holding one
// long-lived cache (grove.Grove, sized from Options.CacheSize) can have
// every subtree it opens share it. A nil cache behaves like OpenAtPath.
func OpenAtPathCached(store storage.Context, path [][]byte, cache *LinkCache) (*Merk, *element.Element, cost.OperationCost, error) {
	feature, parentElem, c, err := ResolveFeatureCached(store, path, cache)
	if err != nil {
		return nil, nil, c, err
	}

	prefix := hash.SubtreePrefix(path)
	m, mc, err := OpenCached(store, prefix, feature, cache)
	c = c.Add(mc)
	if err != nil {
		return nil, nil, c, err
	}
	return m, parentElem, c, nil
}

// ResolveFeature walks every ancestor of path from the root exactly
// once, returning the FeatureType the subtree named by path should be
// opened with (if it is a Merk) and the Element that names it in its
// parent. Returns a nil Element for the root path (""). Unlike
// OpenAtPath, it never opens path itself, so callers that first need to
// know whether path is a Merk subtree or a non-Merk subtree (query's
// executor, batch's TreeCache) can decide that before paying for an
// Open.
func ResolveFeature(store storage.Context, path [][]byte) (FeatureType, *element.Element, cost.OperationCost, error) {
	return ResolveFeatureCached(store, path, nil)
}

// ResolveFeatureCached is ResolveFeature with a LinkCache shared across
// the whole ancestor walk.
func ResolveFeatureCached(store storage.Context, path [][]byte, cache *LinkCache) (FeatureType, *element.Element, cost.OperationCost, error) {
	c := cost.OperationCost{}
	feature := FeatureBasic
	var parentElem *element.Element

	for i := 0; i < len(path); i++ {
		prefix := hash.SubtreePrefix(path[:i])
		m, mc, err := OpenCached(store, prefix, feature, cache)
		c = c.Add(mc)
		if err != nil {
			return feature, nil, c, err
		}
		e, gc, err := m.Get(path[i])
		c = c.Add(gc)
		if err != nil {
			return feature, nil, c, err
		}
		if e == nil {
			return feature, nil, c, groveerr.New("merk.ResolveFeature", groveerr.PathNotFound)
		}
		parentElem = e
		feature = FeatureTypeFor(e)
	}
	return feature, parentElem, c, nil
}
