package dense

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
)

// MaxProofEntries bounds every proof field (spec §4.11 pre-check 3).
const MaxProofEntries = 100000

// PosValue is a disclosed (position, raw value) pair.
type PosValue struct {
	Position uint16
	Value    []byte
}

// PosHash is a (position, 32-byte hash) pair, used either as a
// collapsed-subtree root (NodeHashes) or an undisclosed value hash
// (NodeValueHashes).
type PosHash struct {
	Position uint16
	Hash     hash.Digest
}

// Proof is a DenseTreeProof (spec §4.11): height and count are supplied
// out of band by the containing parent Element, not carried here.
type Proof struct {
	Entries         []PosValue
	NodeValueHashes []PosHash
	NodeHashes      []PosHash
}

// GenerateProof builds a proof disclosing the raw values at positions,
// covering every ancestor on the path to the root with an undisclosed
// value hash, and collapsing every off-path sibling subtree into one
// precomputed hash.
func (t *Tree) GenerateProof(positions []uint16) (*Proof, cost.OperationCost, error) {
	c := cost.OperationCost{}
	for _, p := range positions {
		if p >= t.count {
			return nil, c, groveerr.New("dense.GenerateProof", groveerr.KeyNotFound)
		}
	}

	onPath := make(map[uint64]bool)
	target := make(map[uint64]bool)
	for _, p := range positions {
		pos := uint64(p)
		target[pos] = true
		for {
			onPath[pos] = true
			if pos == 0 {
				break
			}
			pos = (pos - 1) / 2
		}
	}

	proof := &Proof{}
	var walk func(pos uint64) error
	walk = func(pos uint64) error {
		if pos >= uint64(t.count) || pos >= uint64(Capacity(t.height)) {
			return nil
		}
		if !onPath[pos] {
			h, err := t.hashAt(pos, &c)
			if err != nil {
				return err
			}
			proof.NodeHashes = append(proof.NodeHashes, PosHash{Position: uint16(pos), Hash: h})
			return nil
		}
		value, err := t.readValue(pos, &c)
		if err != nil {
			return err
		}
		if target[pos] {
			proof.Entries = append(proof.Entries, PosValue{Position: uint16(pos), Value: value})
		} else {
			proof.NodeValueHashes = append(proof.NodeValueHashes, PosHash{
				Position: uint16(pos),
				Hash:     hash.DenseValueHash(value),
			})
		}
		if err := walk(left(pos)); err != nil {
			return err
		}
		return walk(right(pos))
	}
	if err := walk(0); err != nil {
		return nil, c, err
	}
	return proof, c, nil
}

// precheck validates structural bounds before any recomputation is
// attempted (spec §4.11 "Pre-checks before verification").
func precheck(height uint8, count uint16, proof *Proof) error {
	if height < 1 || height > MaxHeight {
		return groveerr.New("dense.Verify", groveerr.InvalidProof)
	}
	if count > Capacity(height) {
		return groveerr.New("dense.Verify", groveerr.InvalidProof)
	}
	if len(proof.Entries) > MaxProofEntries || len(proof.NodeValueHashes) > MaxProofEntries || len(proof.NodeHashes) > MaxProofEntries {
		return groveerr.New("dense.Verify", groveerr.InvalidProof)
	}

	// A position appearing twice, whether within one field (rule 4) or
	// across two different fields (rule 5), is rejected the same way:
	// track every position seen so far regardless of which field it
	// came from.
	seen := make(map[uint16]bool)
	mark := func(pos uint16, field int) error {
		if seen[pos] {
			return groveerr.New("dense.Verify", groveerr.InvalidProof)
		}
		seen[pos] = true
		return nil
	}
	for _, e := range proof.Entries {
		if err := mark(e.Position, 0); err != nil {
			return err
		}
	}
	for _, n := range proof.NodeValueHashes {
		if err := mark(n.Position, 1); err != nil {
			return err
		}
	}
	for _, n := range proof.NodeHashes {
		if err := mark(n.Position, 2); err != nil {
			return err
		}
	}

	isAncestor := func(a, of uint16) bool {
		pos := uint64(of)
		for pos > 0 {
			pos = (pos - 1) / 2
			if uint64(a) == pos {
				return true
			}
		}
		return false
	}
	for _, n := range proof.NodeHashes {
		for _, e := range proof.Entries {
			if isAncestor(n.Position, e.Position) {
				return groveerr.New("dense.Verify", groveerr.InvalidProof)
			}
		}
		for _, v := range proof.NodeValueHashes {
			if isAncestor(n.Position, v.Position) {
				return groveerr.New("dense.Verify", groveerr.InvalidProof)
			}
		}
	}
	return nil
}

// Verify recomputes the root from proof alone (no storage access) and
// compares it to expectedRoot (spec §4.11 "Recompute").
func Verify(height uint8, count uint16, proof *Proof, expectedRoot hash.Digest) bool {
	root, ok := ComputeRoot(height, count, proof)
	if !ok {
		return false
	}
	return root == expectedRoot
}

// ComputeRoot recomputes a dense tree's root hash from proof alone (no
// storage access, no expected root to compare against), exported
// separately from Verify so a containing layer (e.g. a proof composing
// this subtree's root into its own Merk parent's combined hash) can
// recover the root without first knowing what it should be.
func ComputeRoot(height uint8, count uint16, proof *Proof) (hash.Digest, bool) {
	if err := precheck(height, count, proof); err != nil {
		return hash.Null, false
	}

	entries := make(map[uint16][]byte, len(proof.Entries))
	for _, e := range proof.Entries {
		entries[e.Position] = e.Value
	}
	valueHashes := make(map[uint16]hash.Digest, len(proof.NodeValueHashes))
	for _, n := range proof.NodeValueHashes {
		valueHashes[n.Position] = n.Hash
	}
	collapsed := make(map[uint16]hash.Digest, len(proof.NodeHashes))
	for _, n := range proof.NodeHashes {
		collapsed[n.Position] = n.Hash
	}

	capacity := Capacity(height)
	var recompute func(pos uint64) (hash.Digest, bool)
	recompute = func(pos uint64) (hash.Digest, bool) {
		if pos >= uint64(count) || pos >= uint64(capacity) {
			return hash.Null, true
		}
		if pos <= 0xFFFF {
			if h, ok := collapsed[uint16(pos)]; ok {
				return h, true
			}
		}
		var vh hash.Digest
		if pos > 0xFFFF {
			return hash.Null, false
		}
		p16 := uint16(pos)
		if v, ok := entries[p16]; ok {
			vh = hash.DenseValueHash(v)
		} else if h, ok := valueHashes[p16]; ok {
			vh = h
		} else {
			return hash.Null, false
		}
		l, ok := recompute(left(pos))
		if !ok {
			return hash.Null, false
		}
		r, ok := recompute(right(pos))
		if !ok {
			return hash.Null, false
		}
		return hash.DenseNodeFromValueHash(vh, l, r), true
	}

	return recompute(0)
}
