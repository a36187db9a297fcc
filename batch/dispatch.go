package batch

import (
	"bytes"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/reference"
	"github.com/dashpay/grovedb/storage"
)

// applyOp applies one already-folded op against subtree e's Merk.
func applyOp(tc *treeCache, e *cachedSubtree, op QualifiedOp) (cost.OperationCost, error) {
	switch op.Kind {
	case OpInsertOnly:
		existing, gc, err := e.merk.Get(op.Key)
		if err != nil {
			return gc, err
		}
		if existing != nil {
			return gc, groveerr.New("batch.applyOp", groveerr.InvalidBatchOperation)
		}
		return insertElement(tc, e, op.Key, op.Element, gc)

	case OpInsertOrReplace:
		return insertElement(tc, e, op.Key, op.Element, cost.OperationCost{})

	case OpReplace:
		existing, gc, err := e.merk.Get(op.Key)
		if err != nil {
			return gc, err
		}
		if existing == nil {
			return gc, groveerr.New("batch.applyOp", groveerr.KeyNotFound)
		}
		return insertElement(tc, e, op.Key, op.Element, gc)

	case OpPatch:
		existing, gc, err := e.merk.Get(op.Key)
		if err != nil {
			return gc, err
		}
		if existing == nil {
			return gc, groveerr.New("batch.applyOp", groveerr.KeyNotFound)
		}
		if existing.Tag != element.TagItem && existing.Tag != element.TagItemWithSumItem {
			return gc, groveerr.New("batch.applyOp", groveerr.InvalidElementType)
		}
		existing.Bytes = op.Delta
		return insertElement(tc, e, op.Key, existing, gc)

	case OpRefreshReference:
		existing, gc, err := e.merk.Get(op.Key)
		if err != nil {
			return gc, err
		}
		if existing == nil {
			return gc, groveerr.New("batch.applyOp", groveerr.KeyNotFound)
		}
		if existing.Tag != element.TagReference {
			return gc, groveerr.New("batch.applyOp", groveerr.InvalidElementType)
		}
		return insertElement(tc, e, op.Key, existing, gc)

	case OpDelete:
		_, dc, err := e.merk.Delete(op.Key)
		return dc, err

	case OpDeleteTree:
		return applyDeleteTree(tc, e, op)

	case opReplaceNonMerkTreeRoot:
		return applyReplaceNonMerkRoot(e, op)

	default:
		return cost.OperationCost{}, groveerr.New("batch.applyOp", groveerr.InvalidBatchOperation)
	}
}

// insertElement encodes el and computes the Merk leaf hash (spec
// §4.3.1): plain elements use value_hash(encoded) directly; Tree-like
// elements combine it with their child subtree's current root hash
// (hash.Null for a brand new, still-empty child — populating it is a
// separate op targeting the child's own path; an existing child's
// content survives a metadata-only Replace of the owning Element, since
// its storage is untouched); Reference elements combine it with the
// resolved referent's value hash.
func insertElement(tc *treeCache, e *cachedSubtree, key []byte, el *element.Element, c cost.OperationCost) (cost.OperationCost, error) {
	encoded, err := el.Encode()
	if err != nil {
		return c, groveerr.Wrap("batch.insertElement", groveerr.CorruptedStorage, err)
	}
	vh := hash.ValueHash(encoded)

	switch {
	case el.IsTreeLike():
		childPath := append(append([][]byte{}, e.path...), key)
		child, oc, err := tc.open(childPath)
		c = c.Add(oc)
		if err != nil {
			return c, err
		}
		childHash := hash.Null
		if !child.merk.IsEmpty() {
			childHash = child.merk.RootHash()
		}
		vh = hash.Combine(vh, childHash)

	case el.IsNonMerkTree():
		// A non-Merk tree element is only ever inserted fresh, still
		// empty (spec §4.8: populating it is a separate append op,
		// folded by Phase 0 into opReplaceNonMerkTreeRoot, which
		// recomputes this combined hash against the real root once
		// data exists).
		vh = hash.Combine(vh, hash.Null)

	case el.Tag == element.TagReference:
		referent, rc, err := dereferenceViaCache(tc, e.path, key, el)
		c = c.Add(rc)
		if err != nil {
			return c, err
		}
		vh = hash.Combine(vh, referent)
	}

	ic, err := e.merk.Insert(key, encoded, vh)
	c = c.Add(ic)
	return c, err
}

// dereferenceViaCache follows start's reference chain (spec §4.5) to
// its final non-Reference element, returning that element's value hash
// to combine into start's own Merk leaf hash. start is read directly
// for (path, key) itself — rather than going through tc/storage — since
// on an Insert/Replace start may not be persisted yet; every further
// hop in the chain reads through tc normally.
func dereferenceViaCache(tc *treeCache, path [][]byte, key []byte, start *element.Element) (hash.Digest, cost.OperationCost, error) {
	c := cost.OperationCost{}
	var readErr error
	read := func(p reference.Path, k []byte) (*element.Element, error) {
		if pathKey(p) == pathKey(path) && bytes.Equal(k, key) {
			return start, nil
		}
		e, oc, err := tc.open(p)
		c = c.Add(oc)
		if err != nil {
			readErr = err
			return nil, err
		}
		v, gc, err := e.merk.Get(k)
		c = c.Add(gc)
		if err != nil {
			readErr = err
			return nil, err
		}
		if v == nil {
			return nil, groveerr.New("batch.dereferenceViaCache", groveerr.PathNotFound)
		}
		return v, nil
	}

	referent, _, err := reference.Dereference(read, path, key)
	if err != nil {
		if readErr != nil {
			return hash.Null, c, readErr
		}
		return hash.Null, c, err
	}
	encoded, err := referent.Encode()
	if err != nil {
		return hash.Null, c, groveerr.Wrap("batch.dereferenceViaCache", groveerr.CorruptedStorage, err)
	}
	return hash.ValueHash(encoded), c, nil
}

func applyReplaceNonMerkRoot(e *cachedSubtree, op QualifiedOp) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	owner, gc, err := e.merk.Get(op.Key)
	c = c.Add(gc)
	if err != nil {
		return c, err
	}
	if owner == nil {
		return c, groveerr.New("batch.applyReplaceNonMerkRoot", groveerr.KeyNotFound)
	}

	switch op.NonMerkMeta.Kind {
	case NonMerkMmr:
		owner.MmrSize = op.NonMerkMeta.MmrSize
	case NonMerkDense:
		owner.DenseCount = op.NonMerkMeta.DenseCount
		owner.DenseHeight = op.NonMerkMeta.DenseHeight
	case NonMerkBulkAppend:
		owner.TotalCount = op.NonMerkMeta.TotalCount
		owner.ChunkPower = op.NonMerkMeta.ChunkPower
	case NonMerkCommitment:
		owner.TotalCount = op.NonMerkMeta.TotalCount
		owner.ChunkPower = op.NonMerkMeta.ChunkPower
		owner.PayloadSize = op.NonMerkMeta.PayloadSize
	}

	encoded, err := owner.Encode()
	if err != nil {
		return c, groveerr.Wrap("batch.applyReplaceNonMerkRoot", groveerr.CorruptedStorage, err)
	}
	combined := hash.Combine(hash.ValueHash(encoded), op.NonMerkRoot)
	ic, err := e.merk.Insert(op.Key, encoded, combined)
	c = c.Add(ic)
	return c, err
}

type pendingChild struct {
	key []byte
	el  *element.Element
}

func applyDeleteTree(tc *treeCache, e *cachedSubtree, op QualifiedOp) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	existing, gc, err := e.merk.Get(op.Key)
	c = c.Add(gc)
	if err != nil {
		return c, err
	}
	if existing == nil {
		return c, groveerr.New("batch.applyDeleteTree", groveerr.KeyNotFound)
	}
	if existing.Tag != op.TreeType {
		return c, groveerr.New("batch.applyDeleteTree", groveerr.InvalidElementType)
	}

	childPath := append(append([][]byte{}, e.path...), op.Key)
	dc, err := deleteSubtreeRecursive(tc.store, existing, childPath)
	c = c.Add(dc)
	if err != nil {
		return c, err
	}

	_, ddc, err := e.merk.Delete(op.Key)
	c = c.Add(ddc)
	return c, err
}

// deleteSubtreeRecursive wipes el's subtree storage at path and, for a
// Tree-like el, every Tree-like/non-Merk-tree descendant first (spec
// §3.3's recursive DeleteTree: nested subtree prefixes are Blake3 folds
// of their path, not byte-prefixes of their parent's, so a single
// DeletePrefix can't reach them — each descendant must be walked to and
// cleared individually).
func deleteSubtreeRecursive(store storage.Context, el *element.Element, path [][]byte) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	prefix := hash.SubtreePrefix(path)

	if el.IsNonMerkTree() {
		if err := store.DeletePrefix(storage.CFDefault, prefix); err != nil {
			return c, groveerr.Wrap("batch.deleteSubtreeRecursive", groveerr.StorageError, err)
		}
		return c, nil
	}

	feature := merk.FeatureTypeFor(el)
	m, oc, err := merk.Open(store, prefix, feature)
	c = c.Add(oc)
	if err != nil {
		return c, err
	}

	var children []pendingChild
	wc, err := m.Walk(func(key []byte, ce *element.Element) (bool, error) {
		if ce.IsTreeLike() || ce.IsNonMerkTree() {
			children = append(children, pendingChild{key: append([]byte{}, key...), el: ce})
		}
		return true, nil
	})
	c = c.Add(wc)
	if err != nil {
		return c, err
	}

	for _, ch := range children {
		childPath := append(append([][]byte{}, path...), ch.key)
		dc, err := deleteSubtreeRecursive(store, ch.el, childPath)
		c = c.Add(dc)
		if err != nil {
			return c, err
		}
	}

	dac, err := m.DeleteAll()
	c = c.Add(dac)
	if err != nil {
		return c, err
	}
	if err := store.DeletePrefix(storage.CFAux, prefix); err != nil {
		return c, groveerr.Wrap("batch.deleteSubtreeRecursive", groveerr.StorageError, err)
	}
	return c, nil
}
