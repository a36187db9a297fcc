package commitment

import (
	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/hash"
)

// Proof is a self-contained range proof over a CommitmentTree subtree
// (spec §4.13 "Proof integration", path (a)): the underlying BulkAppend
// range proof, plus the disclosed frontier root needed to recombine the
// Merk child-hash root.
type Proof struct {
	LogProof     *bulkappend.Proof
	FrontierRoot hash.Digest
}

// GenerateProof proves every record in [start, end) (spec §4.12/§4.13).
func (t *Tree) GenerateProof(start, end uint64) (*Proof, cost.OperationCost, error) {
	logProof, c, err := t.log.GenerateProof(start, end)
	if err != nil {
		return nil, c, err
	}
	return &Proof{LogProof: logProof, FrontierRoot: t.frontier.Root()}, c, nil
}

// Verify checks proof against expectedRoot, the Merk child-hash root
// this CommitmentTree element carries, with no storage access: it
// recovers the BulkAppend log's implied state_root from LogProof, then
// recombines it with the disclosed FrontierRoot the same way StateRoot
// does.
func Verify(proof *Proof, expectedRoot hash.Digest) bool {
	root, ok := ComputeRoot(proof)
	if !ok {
		return false
	}
	return root == expectedRoot
}

// ComputeRoot recomputes a commitment tree's root from proof alone (no
// storage access, no expected root to compare against), exported
// separately from Verify so a containing layer can recover the root
// without first knowing what it should be.
func ComputeRoot(proof *Proof) (hash.Digest, bool) {
	bulkRoot, ok := bulkappend.ComputeStateRoot(proof.LogProof)
	if !ok {
		return hash.Null, false
	}
	return hash.CommitmentTreeRoot(proof.FrontierRoot, bulkRoot), true
}
