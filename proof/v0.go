// Package proof implements GroveDB's proof wire formats and pure
// (storage-free) verification: the stack-machine Merk proof of spec
// §4.9 and the layered multi-subtree composition of spec §4.14. Proof
// generation against a live Merk lives in the merk package itself,
// since only it can walk its own unexported tree nodes (mirroring how
// mmr/dense/bulkappend/commitment each generate their own proofs
// in-package); this package owns the wire shapes and the verifier both
// sides agree on.
package proof

import (
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
)

// OpCode is one stack-machine instruction (spec §4.9 "op ::= Push |
// PushInverted | Parent | Child | ParentInverted | ChildInverted"). The
// Inverted variants exist in the spec for descending (right-to-left)
// iteration order; this implementation only ever generates ascending
// proofs, so they are accepted by Execute (swapping which side attaches)
// but never emitted by merk's generators.
type OpCode int

const (
	OpPush OpCode = iota
	OpPushInverted
	OpParent
	OpChild
	OpParentInverted
	OpChildInverted
)

// NodeKind selects which of the spec's Node variants a pushed Node
// carries. The four Provable*Count variants (KVCount, KVHashCount,
// KVRefValueHashCount, KVDigestCount) are folded into their base
// variant here via the optional Count field rather than four extra
// constants — the wire shape differs only by "does this node disclose
// a count", not by a distinct hashing rule.
type NodeKind int

const (
	// KindHash: a fully collapsed, opaque subtree hash (off-path
	// sibling; no further structure disclosed).
	KindHash NodeKind = iota
	// KindKVHash: an on-path ancestor, key and value hidden, only its
	// own kv_hash disclosed.
	KindKVHash
	// KindKV: a matched plain-Item leaf; key and raw value disclosed.
	KindKV
	// KindKVValueHash: a matched Tree-like/non-Merk-tree leaf; key and
	// encoded Element disclosed, value_hash carries the precomputed
	// combined hash (spec §4.3.1) since the verifier cannot recompute
	// it without a child-subtree root.
	KindKVValueHash
	// KindKVValueHashFeatureType: as KindKVValueHash, plus the owning
	// Element's aggregate tag, for callers that need to know which
	// aggregate rule the child subtree is carrying.
	KindKVValueHashFeatureType
	// KindKVRefValueHash: a matched Reference leaf; key and the
	// Reference element's own encoded bytes disclosed, RefHash carries
	// the combined hash against the (unexpanded) referent's value hash.
	KindKVRefValueHash
	// KindKVDigest: an absence-proof boundary node — key and value hash
	// disclosed (so a verifier can confirm it lies outside the queried
	// range/key) but not the raw value.
	KindKVDigest
)

// Node is one disclosed tree node (spec §4.9 "Node variants").
type Node struct {
	Kind NodeKind

	// Hash carries the full node hash for KindHash, or the kv_hash for
	// KindKVHash.
	Hash hash.Digest

	Key   []byte // KV*, KVDigest
	Value []byte // KV, KVValueHash(FeatureType), KVRefValueHash (raw encoded bytes)

	// ValueHash is the node's combined value hash: for KindKVValueHash
	// (FeatureType) and KindKVDigest it is supplied directly since the
	// verifier cannot (or, for KVDigest, need not) recompute it.
	ValueHash hash.Digest

	FeatureType byte // KindKVValueHashFeatureType only

	RefHash hash.Digest // KindKVRefValueHash: combined hash against the referent

	// Count, when non-nil, folds into this node's hash via
	// hash.NodeHashWithCount instead of hash.NodeHash (spec §4.3.1,
	// ProvableCount*/ProvableCountSum feature types disclose a count at
	// every node along the proved path).
	Count *uint64
}

// Op is one stack-machine instruction together with the Node it pushes
// (nil for every Op except OpPush/OpPushInverted).
type Op struct {
	Code OpCode
	Node *Node
}

// V0Proof is a complete stack-machine Merk proof (spec §4.9).
type V0Proof struct {
	Ops []Op
}

// DisclosedEntry is one fully-revealed (key, value) pair a proof
// discloses — the prover's matched query results, in emission order.
type DisclosedEntry struct {
	Key       []byte
	Value     []byte
	ValueHash hash.Digest
}

// frame is one tree under construction on the execution stack.
type frame struct {
	kvHash    hash.Digest
	count     *uint64
	hash      hash.Digest
	hasLeft   bool
	leftHash  hash.Digest
	hasRight  bool
	rightHash hash.Digest
	collapsed bool // KindHash: opaque, no further attach allowed
}

func (f frame) leftOrNull() hash.Digest {
	if f.hasLeft {
		return f.leftHash
	}
	return hash.Null
}

func (f frame) rightOrNull() hash.Digest {
	if f.hasRight {
		return f.rightHash
	}
	return hash.Null
}

func nodeHash(kv, left, right hash.Digest, count *uint64) hash.Digest {
	if count != nil {
		return hash.NodeHashWithCount(kv, left, right, *count)
	}
	return hash.NodeHash(kv, left, right)
}

func nodeKVHash(n *Node) (hash.Digest, error) {
	switch n.Kind {
	case KindKVHash:
		return n.Hash, nil
	case KindKV:
		return hash.KVHash(n.Key, hash.ValueHash(n.Value)), nil
	case KindKVValueHash, KindKVValueHashFeatureType, KindKVDigest:
		return hash.KVHash(n.Key, n.ValueHash), nil
	case KindKVRefValueHash:
		return hash.KVHash(n.Key, n.RefHash), nil
	default:
		return hash.Null, groveerr.New("proof.nodeKVHash", groveerr.InvalidProof)
	}
}

// Execute runs ops against a fresh stack, reconstructing the proved
// tree bottom-up and returning its single resulting root hash plus
// every fully-disclosed (key, value) entry encountered, in push order.
// It is pure: no storage, no knowledge of which Merk produced ops.
func Execute(ops []Op) (hash.Digest, []DisclosedEntry, error) {
	var stack []frame
	var disclosed []DisclosedEntry

	pop := func() (frame, error) {
		if len(stack) == 0 {
			return frame{}, groveerr.New("proof.Execute", groveerr.InvalidProof)
		}
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return f, nil
	}

	attach := func(parent, child frame, asLeft bool) frame {
		if asLeft {
			parent.hasLeft = true
			parent.leftHash = child.hash
		} else {
			parent.hasRight = true
			parent.rightHash = child.hash
		}
		parent.hash = nodeHash(parent.kvHash, parent.leftOrNull(), parent.rightOrNull(), parent.count)
		return parent
	}

	for _, op := range ops {
		switch op.Code {
		case OpPush, OpPushInverted:
			if op.Node == nil {
				return hash.Null, nil, groveerr.New("proof.Execute", groveerr.InvalidProof)
			}
			n := op.Node
			if n.Kind == KindHash {
				stack = append(stack, frame{hash: n.Hash, collapsed: true})
				continue
			}
			kv, err := nodeKVHash(n)
			if err != nil {
				return hash.Null, nil, err
			}
			f := frame{kvHash: kv, count: n.Count}
			f.hash = nodeHash(kv, hash.Null, hash.Null, n.Count)
			stack = append(stack, f)

			switch n.Kind {
			case KindKV:
				disclosed = append(disclosed, DisclosedEntry{Key: n.Key, Value: n.Value, ValueHash: hash.ValueHash(n.Value)})
			case KindKVValueHash, KindKVValueHashFeatureType:
				disclosed = append(disclosed, DisclosedEntry{Key: n.Key, Value: n.Value, ValueHash: n.ValueHash})
			case KindKVRefValueHash:
				disclosed = append(disclosed, DisclosedEntry{Key: n.Key, Value: n.Value, ValueHash: n.RefHash})
			}

		case OpParent, OpParentInverted:
			parent, err := pop()
			if err != nil {
				return hash.Null, nil, err
			}
			child, err := pop()
			if err != nil {
				return hash.Null, nil, err
			}
			if parent.collapsed {
				return hash.Null, nil, groveerr.New("proof.Execute", groveerr.InvalidProof)
			}
			asLeft := op.Code == OpParent
			stack = append(stack, attach(parent, child, asLeft))

		case OpChild, OpChildInverted:
			child, err := pop()
			if err != nil {
				return hash.Null, nil, err
			}
			parent, err := pop()
			if err != nil {
				return hash.Null, nil, err
			}
			if parent.collapsed {
				return hash.Null, nil, groveerr.New("proof.Execute", groveerr.InvalidProof)
			}
			asLeft := op.Code == OpChildInverted
			stack = append(stack, attach(parent, child, asLeft))

		default:
			return hash.Null, nil, groveerr.New("proof.Execute", groveerr.InvalidProof)
		}
	}

	if len(stack) != 1 {
		return hash.Null, nil, groveerr.New("proof.Execute", groveerr.InvalidProof)
	}
	return stack[0].hash, disclosed, nil
}

// VerifyV0 executes p and checks its reconstructed root against
// expectedRoot, returning every disclosed (key, value) pair on success.
func VerifyV0(p *V0Proof, expectedRoot hash.Digest) ([]DisclosedEntry, error) {
	root, disclosed, err := Execute(p.Ops)
	if err != nil {
		return nil, err
	}
	if root != expectedRoot {
		return nil, groveerr.New("proof.VerifyV0", groveerr.InvalidProof)
	}
	return disclosed, nil
}
