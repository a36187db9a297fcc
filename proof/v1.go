package proof

import (
	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/commitment"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/mmr"
)

// ProofBytesKind tags which subtree engine produced a ProofBytes (spec
// §4.14 "ProofBytes ::= Merk | MMR | BulkAppendTree | DenseTree |
// CommitmentTree").
type ProofBytesKind int

const (
	BytesMerk ProofBytesKind = iota
	BytesMMR
	BytesBulkAppendTree
	BytesDenseTree
	BytesCommitmentTree
)

// ProofBytes is one subtree's proof, tagged by which engine produced it.
// Exactly one of the typed fields is populated, matching Kind.
type ProofBytes struct {
	Kind       ProofBytesKind
	Merk       *V0Proof
	MMR        *mmr.Proof
	BulkAppend *bulkappend.Proof
	Dense      *dense.Proof
	Commitment *commitment.Proof
}

// DenseParams carries the out-of-band (height, count) a dense proof
// needs to recompute its root (spec §4.11: "height and count supplied
// out of band by the containing parent Element").
type DenseParams struct {
	Height uint8
	Count  uint16
}

// LayerProof is one node of GroveDB's layered proof (spec §4.14):
// Proof is this layer's own subtree proof, and LowerLayers maps the key
// of every proved, descended child subtree (within Proof's own Merk, if
// Proof.Kind == BytesMerk) to that child's LayerProof. Non-Merk layers
// (MMR/BulkAppendTree/DenseTree/CommitmentTree) are always terminal —
// LowerLayers is empty for them, since none of those engines recurse
// into further proved subtrees of their own.
type LayerProof struct {
	Proof       ProofBytes
	LowerLayers map[string]*LayerProof
	// DenseParams is set only when Proof.Kind == BytesDenseTree, since
	// dense.ComputeRoot needs height/count the proof itself doesn't
	// carry.
	DenseParams DenseParams
}

// computeChildRoot recovers lp's own implied root purely from its proof
// data (no expected root to compare against, no storage), recursing
// into lp's own LowerLayers first since a Merk layer's root depends on
// every one of its proved Tree-like children already having been
// checked and folded in. verifyMerkLayer calls this once for each
// disclosed entry that has a lower layer.
func computeChildRoot(lp *LayerProof) (hash.Digest, []DisclosedEntry, error) {
	switch lp.Proof.Kind {
	case BytesMerk:
		root, disclosed, err := verifyMerkLayer(lp)
		return root, disclosed, err
	case BytesMMR:
		root, ok := mmr.ComputeRoot(lp.Proof.MMR)
		if !ok {
			return hash.Null, nil, groveerr.New("proof.computeChildRoot", groveerr.InvalidProof)
		}
		return root, nil, nil
	case BytesDenseTree:
		root, ok := dense.ComputeRoot(lp.DenseParams.Height, lp.DenseParams.Count, lp.Proof.Dense)
		if !ok {
			return hash.Null, nil, groveerr.New("proof.computeChildRoot", groveerr.InvalidProof)
		}
		return root, nil, nil
	case BytesBulkAppendTree:
		root, ok := bulkappend.ComputeStateRoot(lp.Proof.BulkAppend)
		if !ok {
			return hash.Null, nil, groveerr.New("proof.computeChildRoot", groveerr.InvalidProof)
		}
		return root, nil, nil
	case BytesCommitmentTree:
		root, ok := commitment.ComputeRoot(lp.Proof.Commitment)
		if !ok {
			return hash.Null, nil, groveerr.New("proof.computeChildRoot", groveerr.InvalidProof)
		}
		return root, nil, nil
	default:
		return hash.Null, nil, groveerr.New("proof.computeChildRoot", groveerr.InvalidProof)
	}
}

// verifyMerkLayer executes lp's Merk V0 proof against its own
// self-reported root (obtained by running Execute, the same
// reconstruction VerifyV0 uses, without yet knowing the caller's
// expected root — the caller checks that separately), then for every
// disclosed Tree-like/non-Merk-tree entry with a matching LowerLayers
// sub-proof, recursively recovers that child's root and checks it
// against the combined hash the parent entry already disclosed (spec
// §4.14: "combine_hash(H(parent_element_bytes), child_root_hash)").
// V0 proofs (Kind == BytesMerk with no deeper composition attempted)
// that try to resolve a LowerLayers entry for a non-Merk-tree element
// without ever having been asked to must still work here since
// VerifyLayered is V1-aware; a literal V0-only caller that encounters a
// non-Merk descendant simply never populates LowerLayers for it and
// gets NotSupported from the dedicated V0 entry point instead (see
// VerifyV0DisallowNonMerk).
func verifyMerkLayer(lp *LayerProof) (hash.Digest, []DisclosedEntry, error) {
	root, disclosed, err := Execute(lp.Proof.Merk.Ops)
	if err != nil {
		return hash.Null, nil, err
	}

	for _, e := range disclosed {
		child, ok := lp.LowerLayers[string(e.Key)]
		if !ok {
			continue
		}
		owner, err := element.Decode(e.Value)
		if err != nil {
			return hash.Null, nil, groveerr.Wrap("proof.verifyMerkLayer", groveerr.CorruptedStorage, err)
		}
		if err := checkKindMatchesElement(child.Proof.Kind, owner); err != nil {
			return hash.Null, nil, err
		}

		childRoot, _, err := computeChildRoot(child)
		if err != nil {
			return hash.Null, nil, err
		}
		wantCombined := hash.Combine(hash.ValueHash(e.Value), childRoot)
		if wantCombined != e.ValueHash {
			return hash.Null, nil, groveerr.New("proof.verifyMerkLayer", groveerr.InvalidProof)
		}
	}

	return root, disclosed, nil
}

func checkKindMatchesElement(kind ProofBytesKind, owner *element.Element) error {
	switch kind {
	case BytesMerk:
		if !owner.IsTreeLike() {
			return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
		}
	case BytesMMR:
		if owner.Tag != element.TagMmrTree {
			return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
		}
	case BytesDenseTree:
		if owner.Tag != element.TagDenseTree {
			return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
		}
	case BytesBulkAppendTree:
		if owner.Tag != element.TagBulkAppendTree {
			return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
		}
	case BytesCommitmentTree:
		if owner.Tag != element.TagCommitmentTree {
			return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
		}
	default:
		return groveerr.New("proof.checkKindMatchesElement", groveerr.InvalidProof)
	}
	return nil
}

// VerifyLayered verifies a complete layered proof (spec §4.14) against
// the root of its top (outermost) Merk layer, recursing into every
// populated LowerLayers entry and checking each one's combined hash.
// Selection of V0 vs V1 happens at generation time (whether any
// descended subtree is non-Merk); VerifyLayered handles both uniformly
// since a pure-Merk tree (every LowerLayers entry itself BytesMerk, all
// the way down, or no LowerLayers at all) is exactly a V0 proof with an
// empty composition step.
func VerifyLayered(lp *LayerProof, expectedRoot hash.Digest) ([]DisclosedEntry, error) {
	if lp.Proof.Kind != BytesMerk {
		return nil, groveerr.New("proof.VerifyLayered", groveerr.InvalidProof)
	}
	root, disclosed, err := verifyMerkLayer(lp)
	if err != nil {
		return nil, err
	}
	if root != expectedRoot {
		return nil, groveerr.New("proof.VerifyLayered", groveerr.InvalidProof)
	}
	return disclosed, nil
}

// VerifyV0DisallowNonMerk is the strict V0 entry point (spec §4.14: "V0
// proofs MUST NOT descend into non-Merk trees — if encountered, return
// NotSupported"): it behaves exactly like VerifyV0, except any disclosed
// Tree-like entry whose LowerLayers sub-proof is present AND non-Merk is
// rejected outright rather than composed.
func VerifyV0DisallowNonMerk(lp *LayerProof, expectedRoot hash.Digest) ([]DisclosedEntry, error) {
	if hasNonMerkDescendant(lp) {
		return nil, groveerr.New("proof.VerifyV0DisallowNonMerk", groveerr.NotSupported)
	}
	return VerifyLayered(lp, expectedRoot)
}

func hasNonMerkDescendant(lp *LayerProof) bool {
	if lp.Proof.Kind != BytesMerk {
		return true
	}
	for _, child := range lp.LowerLayers {
		if hasNonMerkDescendant(child) {
			return true
		}
	}
	return false
}
