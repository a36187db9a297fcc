package batch

import (
	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/commitment"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/mmr"
	"github.com/dashpay/grovedb/storage"
)

// preprocess runs Phase 0 (spec §4.8): it rejects internal-only Kinds in
// a caller-submitted batch, then groups the append-style ops
// (CommitmentTreeInsert/MmrTreeAppend/BulkAppend/DenseTreeInsert)
// targeting the same (path, key) non-Merk subtree, applies them in
// order against that subtree's current on-disk state, and folds the
// whole group into one internal opReplaceNonMerkTreeRoot op carrying the
// subtree's final root hash and the NonMerkMeta fields its owning
// Element must be refreshed with. Every other op passes through
// unchanged, in its original relative position.
func preprocess(store storage.Context, ops []QualifiedOp) ([]QualifiedOp, cost.OperationCost, error) {
	c := cost.OperationCost{}

	for _, op := range ops {
		if op.Kind.IsInternal() {
			return nil, c, groveerr.New("batch.preprocess", groveerr.InvalidBatchOperation)
		}
	}

	groupOf := make(map[string][]QualifiedOp)
	var groupOrder []string
	out := make([]QualifiedOp, 0, len(ops))
	folded := make(map[string]int) // subtreeKey -> index into out where the folded op lives

	for _, op := range ops {
		if !op.Kind.IsNonMerkAppend() {
			out = append(out, op)
			continue
		}
		sk := subtreeKey(op.Path, op.Key)
		if _, seen := groupOf[sk]; !seen {
			groupOrder = append(groupOrder, sk)
			folded[sk] = len(out)
			out = append(out, QualifiedOp{}) // placeholder, replaced below
		}
		groupOf[sk] = append(groupOf[sk], op)
	}

	for _, sk := range groupOrder {
		group := groupOf[sk]
		first := group[0]
		replacement, gc, err := foldNonMerkGroup(store, ops, first.Path, first.Key, group)
		c = c.Add(gc)
		if err != nil {
			return nil, c, err
		}
		out[folded[sk]] = replacement
	}

	return out, c, nil
}

// foldNonMerkGroup locates the owning Element for path/key (either
// already on disk, or created earlier in this same batch by a preceding
// InsertOnly/InsertOrReplace), opens the matching non-Merk subtree at
// its structural parameters, applies group's appends in order, and
// returns the single opReplaceNonMerkTreeRoot op replacing them.
func foldNonMerkGroup(store storage.Context, allOps []QualifiedOp, path [][]byte, key []byte, group []QualifiedOp) (QualifiedOp, cost.OperationCost, error) {
	c := cost.OperationCost{}

	owner, oc, err := resolveOwningElement(store, allOps, path, key, group[0].Kind)
	c = c.Add(oc)
	if err != nil {
		return QualifiedOp{}, c, err
	}

	childPrefix := hash.SubtreePrefix(append(append([][]byte{}, path...), key))

	var (
		root hash.Digest
		meta NonMerkMeta
	)

	switch owner.Tag {
	case element.TagMmrTree:
		t, oc, err := mmr.Open(store, childPrefix)
		c = c.Add(oc)
		if err != nil {
			return QualifiedOp{}, c, err
		}
		for _, op := range group {
			if op.Kind != OpMmrTreeAppend {
				return QualifiedOp{}, c, groveerr.New("batch.foldNonMerkGroup", groveerr.InvalidBatchOperation)
			}
			_, ac, err := t.Append(op.Value)
			c = c.Add(ac)
			if err != nil {
				return QualifiedOp{}, c, err
			}
		}
		root = t.Root()
		meta = NonMerkMeta{Kind: NonMerkMmr, MmrSize: t.Size()}

	case element.TagDenseTree:
		t, oc, err := dense.Open(store, childPrefix, owner.DenseHeight)
		c = c.Add(oc)
		if err != nil {
			return QualifiedOp{}, c, err
		}
		for _, op := range group {
			if op.Kind != OpDenseTreeInsert {
				return QualifiedOp{}, c, groveerr.New("batch.foldNonMerkGroup", groveerr.InvalidBatchOperation)
			}
			_, ic, err := t.Insert(op.Value)
			c = c.Add(ic)
			if err != nil {
				return QualifiedOp{}, c, err
			}
		}
		root = t.RootHash()
		meta = NonMerkMeta{Kind: NonMerkDense, DenseCount: t.Count(), DenseHeight: t.Height()}

	case element.TagBulkAppendTree:
		t, oc, err := bulkappend.Open(store, childPrefix, owner.ChunkPower)
		c = c.Add(oc)
		if err != nil {
			return QualifiedOp{}, c, err
		}
		for _, op := range group {
			if op.Kind != OpBulkAppend {
				return QualifiedOp{}, c, groveerr.New("batch.foldNonMerkGroup", groveerr.InvalidBatchOperation)
			}
			_, ac, err := t.Append(op.Value)
			c = c.Add(ac)
			if err != nil {
				return QualifiedOp{}, c, err
			}
		}
		root = t.StateRoot()
		meta = NonMerkMeta{Kind: NonMerkBulkAppend, TotalCount: t.TotalCount(), ChunkPower: t.ChunkPower()}

	case element.TagCommitmentTree:
		t, oc, err := commitment.Open(store, childPrefix, owner.ChunkPower, int(owner.PayloadSize))
		c = c.Add(oc)
		if err != nil {
			return QualifiedOp{}, c, err
		}
		for _, op := range group {
			if op.Kind != OpCommitmentTreeInsert {
				return QualifiedOp{}, c, groveerr.New("batch.foldNonMerkGroup", groveerr.InvalidBatchOperation)
			}
			_, ac, err := t.Append(op.Cmx, op.Rho, op.Value)
			c = c.Add(ac)
			if err != nil {
				return QualifiedOp{}, c, err
			}
		}
		root = t.StateRoot()
		meta = NonMerkMeta{Kind: NonMerkCommitment, TotalCount: t.Count(), ChunkPower: owner.ChunkPower, PayloadSize: owner.PayloadSize}

	default:
		return QualifiedOp{}, c, groveerr.New("batch.foldNonMerkGroup", groveerr.InvalidElementType)
	}

	return QualifiedOp{
		Path:        path,
		Key:         key,
		Kind:        opReplaceNonMerkTreeRoot,
		NonMerkRoot: root,
		NonMerkMeta: meta,
	}, c, nil
}

// resolveOwningElement finds the Element naming the non-Merk subtree at
// path/key: on disk if it already exists, or among allOps' preceding
// InsertOnly/InsertOrReplace ops if the same batch creates it before
// appending to it. kind pins which non-Merk tag the caller expects.
func resolveOwningElement(store storage.Context, allOps []QualifiedOp, path [][]byte, key []byte, kind Kind) (*element.Element, cost.OperationCost, error) {
	c := cost.OperationCost{}

	_, e, fc, gerr := merk.ResolveFeature(store, append(append([][]byte{}, path...), key))
	c = c.Add(fc)
	switch {
	case gerr == nil && e != nil:
		if !e.IsNonMerkTree() {
			return nil, c, groveerr.New("batch.resolveOwningElement", groveerr.InvalidElementType)
		}
		return e, c, nil
	case gerr != nil && !groveerr.Is(gerr, groveerr.PathNotFound):
		return nil, c, gerr
	}

	for _, op := range allOps {
		if op.Kind != OpInsertOnly && op.Kind != OpInsertOrReplace {
			continue
		}
		if pathKey(op.Path) != pathKey(path) || string(op.Key) != string(key) {
			continue
		}
		if op.Element == nil || !op.Element.IsNonMerkTree() {
			continue
		}
		if !nonMerkKindMatches(op.Element.Tag, kind) {
			return nil, c, groveerr.New("batch.resolveOwningElement", groveerr.InvalidElementType)
		}
		return op.Element, c, nil
	}

	return nil, c, groveerr.New("batch.resolveOwningElement", groveerr.InvalidBatchOperation)
}

func nonMerkKindMatches(tag element.Tag, kind Kind) bool {
	switch kind {
	case OpMmrTreeAppend:
		return tag == element.TagMmrTree
	case OpDenseTreeInsert:
		return tag == element.TagDenseTree
	case OpBulkAppend:
		return tag == element.TagBulkAppendTree
	case OpCommitmentTreeInsert:
		return tag == element.TagCommitmentTree
	default:
		return false
	}
}
