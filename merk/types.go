// Package merk implements GroveDB's self-balancing AVL tree (spec
// §3.1/§4.3): three-level Blake3 hashing, four-state child links, lazy
// fetch through a walker abstraction, and aggregate-feature-type
// propagation.
//
// The lazy child-link state machine is grounded on the teacher's
// treebuilder package (_examples/shruggr-inspiration/treebuilder), which
// defers building a full in-memory tree until needed and flushes nodes
// through a kvstore; Merk generalizes that to a self-balancing tree with
// four explicit link states instead of "built or not".
package merk

import (
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
)

// FeatureType selects how aggregate data is carried and whether it
// folds into the node hash (spec invariant 3). It is fixed for an
// entire Merk subtree at Open time, named by the parent Element's tag
// that owns this subtree (e.g. a SumTree element opens its child Merk
// with FeatureSum).
type FeatureType int

const (
	FeatureBasic FeatureType = iota
	FeatureSum
	FeatureBigSum
	FeatureCount
	FeatureCountSum
	FeatureProvableCount
	FeatureProvableCountSum
)

// IsProvableCount reports whether node_hash_with_count applies (spec
// §4.3.1/§6.2) instead of plain node_hash.
func (f FeatureType) IsProvableCount() bool {
	return f == FeatureProvableCount || f == FeatureProvableCountSum
}

// HasCount reports whether count aggregation is tracked at all (stored,
// even if not folded into the hash).
func (f FeatureType) HasCount() bool {
	switch f {
	case FeatureCount, FeatureCountSum, FeatureProvableCount, FeatureProvableCountSum:
		return true
	default:
		return false
	}
}

// FeatureTypeFor derives the FeatureType a child Merk subtree should be
// opened with from the parent Element that owns it.
func FeatureTypeFor(e *element.Element) FeatureType {
	switch e.Tag {
	case element.TagSumTree:
		return FeatureSum
	case element.TagBigSumTree:
		return FeatureBigSum
	case element.TagCountTree:
		return FeatureCount
	case element.TagCountSumTree:
		return FeatureCountSum
	case element.TagProvableCountTree:
		return FeatureProvableCount
	case element.TagProvableCountSumTree:
		return FeatureProvableCountSum
	default:
		return FeatureBasic
	}
}

// LinkState is one of the four mutually exclusive child-link states
// (spec §3.1 table).
type LinkState int

const (
	// LinkReference: on-disk placeholder, not materialized. Hash valid,
	// no pending_writes counter.
	LinkReference LinkState = iota
	// LinkModified: mutated in memory, hash invalid, awaits commit.
	LinkModified
	// LinkUncommitted: freshly hashed, awaits disk flush.
	LinkUncommitted
	// LinkLoaded: fully materialized and clean.
	LinkLoaded
)

// Link is a child pointer carried by a TreeNode (spec §3.1 "Child
// Link"). Key, Hash, LeftHeight/RightHeight, and SumAgg/CountAgg are
// always meaningful (even when State == LinkReference, i.e. the
// pointed-to node is not materialized); Node is non-nil only once the
// link has been fetched (Loaded/Modified/Uncommitted).
type Link struct {
	State LinkState
	Key   []byte
	Hash  hash.Digest

	// LeftHeight/RightHeight are the height of the POINTED-TO node's own
	// left/right children (not of the link itself), so callers can
	// compute the pointed node's height as 1+max(...) without fetching
	// it (spec §3.1: "every link also carries a (left_height,
	// right_height) child-height pair").
	LeftHeight, RightHeight uint8

	// SumAgg/CountAgg mirror the aggregate totals of the subtree rooted
	// at the pointed-to node (own contribution plus both children),
	// kept valid even while pruned to LinkReference so aggregate
	// propagation never requires a fetch.
	SumAgg   int64
	CountAgg uint64

	Node *TreeNode
}

// Height returns the height of the subtree this link points to: 0 for
// a nil link (absent child), else 1+max(LeftHeight, RightHeight).
func (l *Link) Height() uint8 {
	if l == nil {
		return 0
	}
	h := l.LeftHeight
	if l.RightHeight > h {
		h = l.RightHeight
	}
	return 1 + h
}

// HashOrNull returns the link's hash, or hash.Null for a nil link
// (spec §4.3.1 "absent children contribute NULL_HASH").
func (l *Link) HashOrNull() hash.Digest {
	if l == nil {
		return hash.Null
	}
	return l.Hash
}

// TreeNode is one node of a Merk AVL tree (spec §3.1 "TreeNode").
type TreeNode struct {
	Key        []byte
	ValueBytes []byte // encoded element.Element
	ValueHash  hash.Digest

	Left, Right *Link
}

// KVHash computes kv_hash = Blake3(varint(len(key)) || key || value_hash)
// via the shared hash package (spec §6.2).
func (n *TreeNode) KVHash() hash.Digest {
	return hash.KVHash(n.Key, n.ValueHash)
}

// ownSumCount decodes the node's stored element and returns its direct
// sum/count contribution (spec invariant 3), ignoring decode failures
// (treated as a non-contributing element — a node whose bytes don't
// decode as a valid Element cannot happen under normal operation since
// Merk itself wrote them via Encode).
func (n *TreeNode) ownSumCount() (int64, uint64) {
	e, err := element.Decode(n.ValueBytes)
	if err != nil {
		return 0, 1
	}
	return e.SumContribution(), e.CountContribution()
}

// SumAgg returns the total sum aggregate for the subtree rooted at n:
// its own contribution plus both children's aggregates.
func (n *TreeNode) SumAgg() int64 {
	own, _ := n.ownSumCount()
	return own + n.Left.sumAggOrZero() + n.Right.sumAggOrZero()
}

// CountAgg returns the total count aggregate for the subtree rooted at
// n: its own contribution plus both children's aggregates.
func (n *TreeNode) CountAgg() uint64 {
	_, own := n.ownSumCount()
	return own + n.Left.countAggOrZero() + n.Right.countAggOrZero()
}

func (l *Link) sumAggOrZero() int64 {
	if l == nil {
		return 0
	}
	return l.SumAgg
}

func (l *Link) countAggOrZero() uint64 {
	if l == nil {
		return 0
	}
	return l.CountAgg
}

// NodeHash computes the node's hash per spec §4.3.1/§6.2, folding the
// count aggregate into the hash for ProvableCount* feature types.
func (n *TreeNode) NodeHash(feature FeatureType) hash.Digest {
	kv := n.KVHash()
	lh := n.Left.HashOrNull()
	rh := n.Right.HashOrNull()
	if feature.IsProvableCount() {
		return hash.NodeHashWithCount(kv, lh, rh, n.CountAgg())
	}
	return hash.NodeHash(kv, lh, rh)
}

// height returns n's own height (0 for a nil node).
func (n *TreeNode) height() uint8 {
	if n == nil {
		return 0
	}
	lh := n.Left.Height()
	rh := n.Right.Height()
	if lh > rh {
		return 1 + lh
	}
	return 1 + rh
}

// balanceFactor returns left_height - right_height (spec §4.3.3).
func (n *TreeNode) balanceFactor() int {
	return int(n.Left.Height()) - int(n.Right.Height())
}
