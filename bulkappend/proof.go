package bulkappend

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/mmr"
	"github.com/dashpay/grovedb/storage"
)

// ChunkDisclosure carries one fully-disclosed chunk blob, proved to be
// the MMR leaf at ChunkIndex.
type ChunkDisclosure struct {
	ChunkIndex uint64
	Blob       []byte
}

// Proof is a self-contained range proof over a BulkAppend subtree (spec
// §4.12 "Proof"): each touched chunk is disclosed in full (chunk blobs
// are immutable and already store every entry packed together, so
// partial disclosure saves nothing) alongside one MMR inclusion proof
// covering every disclosed chunk's position in the chunk MMR. Whatever
// the range, the proof carries the chunk MMR's peaks (whenever at least
// one chunk exists) and the whole live buffer, so the state root can
// always be recomputed.
type Proof struct {
	ChunkPower    uint8
	TotalCount    uint64
	Chunks        []ChunkDisclosure
	ChunkProof    *mmr.Proof
	BufferEntries [][]byte
}

// GenerateProof proves every position in [start, end) (spec §4.12
// "Proof"). end may exceed TotalCount-1 only up to TotalCount.
func (t *Tree) GenerateProof(start, end uint64) (*Proof, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if start > end || end > t.totalCount {
		return nil, c, groveerr.New("bulkappend.GenerateProof", groveerr.InvalidPath)
	}

	proof := &Proof{ChunkPower: t.chunkPower, TotalCount: t.totalCount}
	chunkCount := t.ChunkCount()
	chunkBoundary := chunkCount * t.chunkSize

	var chunkIndices []uint64
	if start < chunkBoundary {
		lastChunkPos := end
		if lastChunkPos > chunkBoundary {
			lastChunkPos = chunkBoundary
		}
		firstChunk := start / t.chunkSize
		lastChunk := (lastChunkPos - 1) / t.chunkSize

		for idx := firstChunk; idx <= lastChunk; idx++ {
			raw, err := t.store.Get(storage.CFDefault, t.prefix, chunkKey(idx))
			if err != nil {
				return nil, c, groveerr.Wrap("bulkappend.GenerateProof", groveerr.StorageError, err)
			}
			if raw == nil {
				return nil, c, groveerr.New("bulkappend.GenerateProof", groveerr.CorruptedStorage)
			}
			c.AddSeek()
			c.AddLoadedBytes(uint64(len(raw)))
			proof.Chunks = append(proof.Chunks, ChunkDisclosure{ChunkIndex: idx, Blob: raw})
			chunkIndices = append(chunkIndices, idx)
		}
	}

	if chunkCount > 0 {
		mmrProof, mmrCost, err := t.chunks.GenerateProof(chunkIndices)
		if err != nil {
			return nil, c, err
		}
		c = c.Add(mmrCost)
		proof.ChunkProof = mmrProof
	}

	proof.BufferEntries = append(proof.BufferEntries, t.buffer...)

	return proof, c, nil
}

// ComputeStateRoot recomputes the state_root a proof implies, performing
// every internal consistency check along the way (spec §4.12
// "Verification" steps 1-3), without comparing against any externally
// expected root. Exported separately from Verify so composing subtrees
// (e.g. commitment, which combines this root with a frontier root before
// comparing against its own combined root) can recover it directly
// instead of needing to already know it.
func ComputeStateRoot(proof *Proof) (hash.Digest, bool) {
	if proof.ChunkPower < 1 || proof.ChunkPower > 16 {
		return hash.Null, false
	}

	mmrRoot := hash.Null
	if proof.ChunkProof != nil && len(proof.ChunkProof.PeakHashes) > 0 {
		if len(proof.Chunks) != len(proof.ChunkProof.Leaves) {
			return hash.Null, false
		}
		byIndex := make(map[uint64][]byte, len(proof.Chunks))
		for _, cd := range proof.Chunks {
			byIndex[cd.ChunkIndex] = cd.Blob
		}
		for _, leaf := range proof.ChunkProof.Leaves {
			blob, ok := byIndex[leaf.LeafIndex]
			if !ok {
				return hash.Null, false
			}
			entries, err := decodeChunkBlob(blob, uint64(1)<<proof.ChunkPower)
			if err != nil {
				return hash.Null, false
			}
			root := chunkDenseRoot(entries)
			if !bytesEqual(leaf.Value, root[:]) {
				return hash.Null, false
			}
		}

		peaks := proof.ChunkProof.PeakHashes
		acc := peaks[len(peaks)-1]
		for i := len(peaks) - 2; i >= 0; i-- {
			acc = hash.MMRMerge(peaks[i], acc)
		}
		mmrRoot = acc
		if !mmr.Verify(proof.ChunkProof, mmrRoot) {
			return hash.Null, false
		}
	} else if len(proof.Chunks) > 0 {
		return hash.Null, false
	}

	bufRoot := hash.Null
	if len(proof.BufferEntries) > 0 {
		bufRoot = dense.ComputeRootFromValues(proof.BufferEntries, proof.ChunkPower)
	}

	return hash.BulkAppendStateRoot(mmrRoot, bufRoot), true
}

// Verify checks proof against expectedStateRoot with no storage access
// (spec §4.12 "Verification" step 4: recombine state_root and compare
// to the expected value from the parent Element).
func Verify(proof *Proof, expectedStateRoot hash.Digest) bool {
	root, ok := ComputeStateRoot(proof)
	return ok && root == expectedStateRoot
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
