// Per-non-Merk-subtree convenience wrappers (spec §6.4: "Per non-Merk
// tree type: {type}_insert|append, {type}_get_value, {type}_count (plus
// per-type extras)"). Each wrapper opens the subtree directly via its
// own package's Open — the owning Element at the parent path must
// already exist (created through Grove.Insert with the matching
// element.NewXxxTree constructor) before one of these is called, the
// same precondition batch's Phase 0 append-folding relies on.
package grove

import (
	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/commitment"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/mmr"
)

// MmrTreeAppend appends value to the MMR subtree at path, returning the
// new leaf's position (spec §6.4 "mmr_tree_append").
func (g *Grove) MmrTreeAppend(path [][]byte, value []byte) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := mmr.Open(g.store.Immediate(), prefix)
	if err != nil {
		return 0, c, err
	}
	pos, ac, err := t.Append(value)
	c = c.Add(ac)
	return pos, c, err
}

// MmrTreeGetValue reads back the leaf value at idx (spec §6.4
// "mmr_tree_get_value").
func (g *Grove) MmrTreeGetValue(path [][]byte, idx uint64) ([]byte, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := mmr.Open(g.store.Immediate(), prefix)
	if err != nil {
		return nil, c, err
	}
	v, gc, err := t.GetLeaf(idx)
	c = c.Add(gc)
	return v, c, err
}

// MmrTreeCount returns the leaf count (spec §6.4 "mmr_tree_count").
func (g *Grove) MmrTreeCount(path [][]byte) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := mmr.Open(g.store.Immediate(), prefix)
	if err != nil {
		return 0, c, err
	}
	return t.LeafCount(), c, nil
}

// MmrTreeRootHash returns the bagged-peaks root (spec §6.4
// "mmr_tree_root_hash").
func (g *Grove) MmrTreeRootHash(path [][]byte) (hash.Digest, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := mmr.Open(g.store.Immediate(), prefix)
	if err != nil {
		return hash.Null, c, err
	}
	if t.IsEmpty() {
		return hash.Null, c, nil
	}
	return t.Root(), c, nil
}

// MmrTreeLeafCount is an alias of MmrTreeCount naming spec §6.4's
// "mmr_tree_leaf_count" extra directly.
func (g *Grove) MmrTreeLeafCount(path [][]byte) (uint64, cost.OperationCost, error) {
	return g.MmrTreeCount(path)
}

// DenseTreeInsert inserts value at the next free position of the dense
// subtree at path (spec §6.4 "dense_tree_insert"). height must match the
// height the owning DenseTree Element was created with.
func (g *Grove) DenseTreeInsert(path [][]byte, height uint8, value []byte) (uint16, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := dense.Open(g.store.Immediate(), prefix, height)
	if err != nil {
		return 0, c, err
	}
	pos, ic, err := t.Insert(value)
	c = c.Add(ic)
	return pos, c, err
}

// DenseTreeGetValue reads back the value at position (spec §6.4
// "dense_tree_get_value").
func (g *Grove) DenseTreeGetValue(path [][]byte, height uint8, position uint16) ([]byte, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := dense.Open(g.store.Immediate(), prefix, height)
	if err != nil {
		return nil, c, err
	}
	v, gc, err := t.Get(position)
	c = c.Add(gc)
	return v, c, err
}

// DenseTreeCount returns the dense subtree's occupied-position count.
func (g *Grove) DenseTreeCount(path [][]byte, height uint8) (uint16, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := dense.Open(g.store.Immediate(), prefix, height)
	if err != nil {
		return 0, c, err
	}
	return t.Count(), c, nil
}

// DenseTreeRootHash returns the dense tree's Merkle root (spec §6.4
// "dense_tree_root_hash").
func (g *Grove) DenseTreeRootHash(path [][]byte, height uint8) (hash.Digest, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := dense.Open(g.store.Immediate(), prefix, height)
	if err != nil {
		return hash.Null, c, err
	}
	return t.RootHash(), c, nil
}

// BulkAppend appends value to the two-tier log subtree at path, folding
// a buffer chunk if this append fills it (spec §6.4 "bulk_append").
func (g *Grove) BulkAppend(path [][]byte, chunkPower uint8, value []byte) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := bulkappend.Open(g.store.Immediate(), prefix, chunkPower)
	if err != nil {
		return 0, c, err
	}
	pos, ac, err := t.Append(value)
	c = c.Add(ac)
	return pos, c, err
}

// BulkGetValue reads back the entry at position (spec §6.4
// "bulk_get_value"), reading through a completed chunk or the live
// buffer transparently.
func (g *Grove) BulkGetValue(path [][]byte, chunkPower uint8, position uint64) ([]byte, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := bulkappend.Open(g.store.Immediate(), prefix, chunkPower)
	if err != nil {
		return nil, c, err
	}
	v, gc, err := t.GetValue(position)
	c = c.Add(gc)
	return v, c, err
}

// BulkGetChunk returns every entry in the completed chunk chunkIdx (spec
// §6.4 "bulk_get_chunk"), composed from repeated GetValue calls rather
// than duplicating bulkappend's private chunk-blob decoding.
func (g *Grove) BulkGetChunk(path [][]byte, chunkPower uint8, chunkIdx uint64) ([][]byte, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := bulkappend.Open(g.store.Immediate(), prefix, chunkPower)
	if err != nil {
		return nil, c, err
	}
	if chunkIdx >= t.ChunkCount() {
		return nil, c, groveerr.New("grove.BulkGetChunk", groveerr.KeyNotFound)
	}
	chunkSize := t.ChunkSize()
	out := make([][]byte, 0, chunkSize)
	for i := uint64(0); i < chunkSize; i++ {
		v, gc, err := t.GetValue(chunkIdx*chunkSize + i)
		c = c.Add(gc)
		if err != nil {
			return nil, c, err
		}
		out = append(out, v)
	}
	return out, c, nil
}

// BulkGetBuffer returns every entry still held in the uncompacted
// in-memory buffer tier (spec §6.4 "bulk_get_buffer").
func (g *Grove) BulkGetBuffer(path [][]byte, chunkPower uint8) ([][]byte, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := bulkappend.Open(g.store.Immediate(), prefix, chunkPower)
	if err != nil {
		return nil, c, err
	}
	base := t.ChunkCount() * t.ChunkSize()
	out := make([][]byte, 0, t.BufferCount())
	for i := uint64(0); i < t.BufferCount(); i++ {
		v, gc, err := t.GetValue(base + i)
		c = c.Add(gc)
		if err != nil {
			return nil, c, err
		}
		out = append(out, v)
	}
	return out, c, nil
}

// BulkChunkCount returns the number of completed chunks (spec §6.4
// "bulk_chunk_count").
func (g *Grove) BulkChunkCount(path [][]byte, chunkPower uint8) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := bulkappend.Open(g.store.Immediate(), prefix, chunkPower)
	if err != nil {
		return 0, c, err
	}
	return t.ChunkCount(), c, nil
}

// CommitmentTreeInsert appends a (cmx, rho, payload) note commitment to
// the commitment-tree subtree at path (spec §6.4 "commitment_tree_insert").
func (g *Grove) CommitmentTreeInsert(path [][]byte, chunkPower uint8, payloadSize int, cmx, rho hash.Digest, payload []byte) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := commitment.Open(g.store.Immediate(), prefix, chunkPower, payloadSize)
	if err != nil {
		return 0, c, err
	}
	pos, ac, err := t.Append(cmx, rho, payload)
	c = c.Add(ac)
	return pos, c, err
}

// CommitmentTreeGetValue reads back the note commitment at position
// (spec §6.4 "commitment_tree_get_value").
func (g *Grove) CommitmentTreeGetValue(path [][]byte, chunkPower uint8, payloadSize int, position uint64) (cmx, rho hash.Digest, payload []byte, c cost.OperationCost, err error) {
	prefix := hash.SubtreePrefix(path)
	t, oc, err := commitment.Open(g.store.Immediate(), prefix, chunkPower, payloadSize)
	c = oc
	if err != nil {
		return hash.Null, hash.Null, nil, c, err
	}
	cmx, rho, payload, gc, err := t.GetValue(position)
	c = c.Add(gc)
	return cmx, rho, payload, c, err
}

// CommitmentTreeAnchor returns the frontier root used as the tree's
// public anchor (spec §6.4 "commitment_tree_anchor").
func (g *Grove) CommitmentTreeAnchor(path [][]byte, chunkPower uint8, payloadSize int) (hash.Digest, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := commitment.Open(g.store.Immediate(), prefix, chunkPower, payloadSize)
	if err != nil {
		return hash.Null, c, err
	}
	return t.Anchor(), c, nil
}

// CommitmentTreeCount returns the number of committed notes (spec §6.4
// "commitment_tree_count").
func (g *Grove) CommitmentTreeCount(path [][]byte, chunkPower uint8, payloadSize int) (uint64, cost.OperationCost, error) {
	prefix := hash.SubtreePrefix(path)
	t, c, err := commitment.Open(g.store.Immediate(), prefix, chunkPower, payloadSize)
	if err != nil {
		return 0, c, err
	}
	return t.Count(), c, nil
}
