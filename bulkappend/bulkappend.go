// Package bulkappend implements GroveDB's two-tier append-only log
// subtree (spec §4.12): a dense fixed-size buffer that compacts into
// immutable chunk blobs anchored by a chunk Merkle Mountain Range.
//
// Tier 2 is built by composing the `mmr` package directly rather than
// reimplementing MMR node storage under this package's own key scheme —
// the chunk MMR lives at the same subtree prefix and its 'm'/'s' keys
// never collide with this package's own 'b'/'e' single-byte prefixes
// (spec §4.12 "Storage"). The spec's separate 'M' metadata key
// (mmr_size as u64 BE) is not persisted here: mmr_size is already
// recoverable from the composed mmr.Tree's own state, so duplicating it
// under a second key would just be another value to keep in sync.
package bulkappend

import (
	"encoding/binary"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/mmr"
	"github.com/dashpay/grovedb/storage"
)

func bufferKey(idx uint32) []byte {
	k := make([]byte, 5)
	k[0] = 'b'
	binary.BigEndian.PutUint32(k[1:], idx)
	return k
}

func chunkKey(idx uint64) []byte {
	k := make([]byte, 9)
	k[0] = 'e'
	binary.BigEndian.PutUint64(k[1:], idx)
	return k
}

// Tree is one BulkAppend subtree. chunk_power and total_count are owned
// by the containing parent Element (spec §4.12); Tree only needs
// chunk_power at Open time and derives total_count from the composed
// chunk MMR's leaf count plus the reconstructed buffer length.
type Tree struct {
	store      storage.Context
	prefix     hash.Digest
	chunkPower uint8
	chunkSize  uint64

	totalCount uint64
	buffer     [][]byte // in-memory mirror of the current buffer (spec "batch append with in-memory buffer mirror")

	chunks *mmr.Tree
}

// Open loads the BulkAppend subtree at prefix with the given chunk
// power, reconstructing its buffer mirror from storage. total_count is
// not persisted here (spec: "total_count and chunk_power live only in
// the parent Element"): chunk_count comes from the composed chunk MMR's
// own leaf count, and buffer_count is recovered by scanning buffer
// entries until one is missing, so Tree needs no metadata key of its
// own for it — see the package-level Open Question note on the 'M' key.
func Open(store storage.Context, prefix hash.Digest, chunkPower uint8) (*Tree, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if chunkPower < 1 || chunkPower > 16 {
		return nil, c, groveerr.New("bulkappend.Open", groveerr.InvalidPath)
	}

	t := &Tree{store: store, prefix: prefix, chunkPower: chunkPower, chunkSize: uint64(1) << chunkPower}

	chunks, chunkCost, err := mmr.Open(store, prefix)
	if err != nil {
		return nil, c, err
	}
	c = c.Add(chunkCost)
	t.chunks = chunks

	for i := uint32(0); ; i++ {
		v, err := store.Get(storage.CFDefault, prefix, bufferKey(i))
		if err != nil {
			return nil, c, groveerr.Wrap("bulkappend.Open", groveerr.StorageError, err)
		}
		c.AddSeek()
		if v == nil {
			break
		}
		c.AddLoadedBytes(uint64(len(v)))
		t.buffer = append(t.buffer, v)
	}

	t.totalCount = t.chunks.LeafCount()*t.chunkSize + uint64(len(t.buffer))
	return t, c, nil
}

// TotalCount, ChunkCount, BufferCount expose the derived values named in
// spec §4.12 ("Derived values").
func (t *Tree) TotalCount() uint64  { return t.totalCount }
func (t *Tree) ChunkCount() uint64  { return t.totalCount / t.chunkSize }
func (t *Tree) BufferCount() uint64 { return t.totalCount % t.chunkSize }
func (t *Tree) ChunkSize() uint64   { return t.chunkSize }
func (t *Tree) ChunkPower() uint8   { return t.chunkPower }

// StateRoot computes state_root = Blake3(b"bulk_state" || mmr_root ||
// buffer_dense_root) (spec §4.12 "State root"), the type-specific root
// flowing as the Merk child hash.
func (t *Tree) StateRoot() hash.Digest {
	mmrRoot := hash.Null
	if !t.chunks.IsEmpty() {
		mmrRoot = t.chunks.Root()
	}
	bufRoot := hash.Null
	if len(t.buffer) > 0 {
		bufRoot = dense.ComputeRootFromValues(t.buffer, t.chunkPower)
	}
	return hash.BulkAppendStateRoot(mmrRoot, bufRoot)
}

// Append adds value to the buffer, compacting into a new chunk once the
// buffer reaches chunk_size (spec §4.12 "Append algorithm" / tier-2
// compaction). Returns the value's position in the overall log.
func (t *Tree) Append(value []byte) (uint64, cost.OperationCost, error) {
	c := cost.OperationCost{}
	position := t.totalCount

	bufIdx := uint32(len(t.buffer))
	if err := t.store.Put(storage.CFDefault, t.prefix, bufferKey(bufIdx), value); err != nil {
		return 0, c, groveerr.Wrap("bulkappend.Append", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(value))
	t.buffer = append(t.buffer, value)
	t.totalCount++
	c.AddHashNodeCalls(2) // buffer chain recompute (spec: "2 for buffer chain")

	if uint64(len(t.buffer)) == t.chunkSize {
		if err := t.compact(&c); err != nil {
			return 0, c, err
		}
	}

	c.AddHashNodeCalls(1) // state root
	return position, c, nil
}

func (t *Tree) compact(c *cost.OperationCost) error {
	blob, err := encodeChunkBlob(t.buffer)
	if err != nil {
		return groveerr.Wrap("bulkappend.compact", groveerr.StorageError, err)
	}
	// chunkIdx is the number of chunks already compacted (the chunk MMR's
	// leaf count before this append), not t.ChunkCount(): totalCount has
	// already been incremented by the triggering Append, so ChunkCount()
	// here would be one too high.
	chunkIdx := t.chunks.LeafCount()
	if err := t.store.Put(storage.CFDefault, t.prefix, chunkKey(chunkIdx), blob); err != nil {
		return groveerr.Wrap("bulkappend.compact", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(blob))

	root := chunkDenseRoot(t.buffer)
	c.AddHashNodeCalls(uint32(2*len(t.buffer) - 1))

	if _, mmrCost, err := t.chunks.Append(root[:]); err != nil {
		return err
	} else {
		*c = c.Add(mmrCost)
	}

	for i := uint32(0); i < uint32(len(t.buffer)); i++ {
		if err := t.store.Delete(storage.CFDefault, t.prefix, bufferKey(i)); err != nil {
			return groveerr.Wrap("bulkappend.compact", groveerr.StorageError, err)
		}
	}
	t.buffer = nil
	return nil
}

// GetValue returns the raw entry at position, reading through a
// completed chunk blob or the live buffer as appropriate.
func (t *Tree) GetValue(position uint64) ([]byte, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if position >= t.totalCount {
		return nil, c, groveerr.New("bulkappend.GetValue", groveerr.KeyNotFound)
	}
	chunkIdx := position / t.chunkSize
	if chunkIdx < t.ChunkCount() {
		raw, err := t.store.Get(storage.CFDefault, t.prefix, chunkKey(chunkIdx))
		if err != nil {
			return nil, c, groveerr.Wrap("bulkappend.GetValue", groveerr.StorageError, err)
		}
		if raw == nil {
			return nil, c, groveerr.New("bulkappend.GetValue", groveerr.CorruptedStorage)
		}
		c.AddSeek()
		c.AddLoadedBytes(uint64(len(raw)))
		entries, err := decodeChunkBlob(raw, t.chunkSize)
		if err != nil {
			return nil, c, groveerr.Wrap("bulkappend.GetValue", groveerr.CorruptedStorage, err)
		}
		return entries[position%t.chunkSize], c, nil
	}

	idx := position % t.chunkSize
	if idx >= uint64(len(t.buffer)) {
		return nil, c, groveerr.New("bulkappend.GetValue", groveerr.KeyNotFound)
	}
	return t.buffer[idx], c, nil
}
