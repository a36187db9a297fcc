package mmr

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
)

// PathStep is one sibling hash on the climb from a leaf to its mountain
// peak. Right reports whether the sibling sits to the right of the
// accumulator (so the fold computes Blake3(acc || sibling)) or to the
// left (Blake3(sibling || acc)).
type PathStep struct {
	Hash  hash.Digest
	Right bool
}

// LeafProof is one proved leaf's position, value, and climb to its
// containing peak (spec §4.10 "Proof": one entry of the leaves tuple).
type LeafProof struct {
	Position  uint64
	LeafIndex uint64
	Hash      hash.Digest
	Value     []byte
	Path      []PathStep
	// PeakIndex names which entry of Proof.PeakHashes this leaf's climb
	// reconstructs, so verification knows which peak to substitute
	// before bagging.
	PeakIndex int
}

// Proof is a self-contained inclusion proof for one or more leaves
// against an MMR root (spec §4.10 "Proof"): MmrProof{mmr_size, leaves,
// sibling_hashes} expressed as named fields — PeakHashes carries every
// current peak (in left-to-right order) so bagging needs no storage
// access, and each LeafProof's Path is its slice of the flat
// sibling_hashes array.
type Proof struct {
	MMRSize    uint64
	Leaves     []LeafProof
	PeakHashes []hash.Digest
}

// GenerateProof builds an inclusion proof for the given leaf indices.
func (t *Tree) GenerateProof(leafIndices []uint64) (*Proof, cost.OperationCost, error) {
	c := cost.OperationCost{}
	proof := &Proof{MMRSize: t.size}
	for _, p := range t.peaks {
		proof.PeakHashes = append(proof.PeakHashes, p.h)
	}

	for _, idx := range leafIndices {
		if idx >= t.leafCount {
			return nil, c, groveerr.New("mmr.GenerateProof", groveerr.KeyNotFound)
		}
		pos := leafPosition(idx)
		leaf, err := t.readNode(pos, &c)
		if err != nil {
			return nil, c, err
		}

		peakIdx, peak := t.findContainingPeak(pos)
		path, err := t.buildPath(peak.pos, peak.height, pos, &c)
		if err != nil {
			return nil, c, err
		}

		proof.Leaves = append(proof.Leaves, LeafProof{
			Position:  pos,
			LeafIndex: idx,
			Hash:      leaf.h,
			Value:     leaf.value,
			Path:      path,
			PeakIndex: peakIdx,
		})
	}
	return proof, c, nil
}

func (t *Tree) findContainingPeak(pos uint64) (int, peakState) {
	for i, p := range t.peaks {
		if pos <= p.pos {
			return i, p
		}
	}
	return len(t.peaks) - 1, t.peaks[len(t.peaks)-1]
}

// buildPath recursively descends from a mountain peak to the target leaf
// position, collecting the sibling hash at each level (grounded on the
// teacher's merkle.Builder.buildProof recursive descent), ordered
// leaf-to-peak for straightforward verification folding.
func (t *Tree) buildPath(pos, height, target uint64, c *cost.OperationCost) ([]PathStep, error) {
	if height == 0 {
		return nil, nil
	}
	left, right := mountainChildren(pos, height)
	if target <= left {
		rightRec, err := t.readNode(right, c)
		if err != nil {
			return nil, err
		}
		rest, err := t.buildPath(left, height-1, target, c)
		if err != nil {
			return nil, err
		}
		return append(rest, PathStep{Hash: rightRec.h, Right: true}), nil
	}
	leftRec, err := t.readNode(left, c)
	if err != nil {
		return nil, err
	}
	rest, err := t.buildPath(right, height-1, target, c)
	if err != nil {
		return nil, err
	}
	return append(rest, PathStep{Hash: leftRec.h, Right: false}), nil
}

// Verify checks proof against expectedRoot with no storage access (spec
// §4.10 "Verification: reconstruct from leaves, walk sibling hashes, bag
// peaks, compare to expected MMR root; cross-validate
// proof.mmr_size == element.mmr_size").
func Verify(proof *Proof, expectedRoot hash.Digest) bool {
	root, ok := ComputeRoot(proof)
	if !ok {
		return false
	}
	return root == expectedRoot
}

// ComputeRoot recomputes an MMR's bagged root from proof alone (no
// storage access, no expected root to compare against), exported
// separately from Verify so a containing layer can recover the root
// without first knowing what it should be.
func ComputeRoot(proof *Proof) (hash.Digest, bool) {
	if len(proof.PeakHashes) == 0 {
		if len(proof.Leaves) == 0 {
			return hash.Null, true
		}
		return hash.Null, false
	}

	peaks := append([]hash.Digest{}, proof.PeakHashes...)
	for _, leaf := range proof.Leaves {
		if leaf.PeakIndex < 0 || leaf.PeakIndex >= len(peaks) {
			return hash.Null, false
		}
		if hash.MMRLeaf(leaf.Value) != leaf.Hash {
			return hash.Null, false
		}
		acc := leaf.Hash
		for _, step := range leaf.Path {
			if step.Right {
				acc = hash.MMRMerge(acc, step.Hash)
			} else {
				acc = hash.MMRMerge(step.Hash, acc)
			}
		}
		if acc != peaks[leaf.PeakIndex] {
			return hash.Null, false
		}
	}

	acc := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		acc = hash.MMRMerge(peaks[i], acc)
	}
	return acc, true
}
