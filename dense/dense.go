// Package dense implements GroveDB's complete binary dense fixed-size
// tree subtree (spec §4.11): capacity 2^height-1 positions filled in
// level order, every position (internal or leaf) hashing its own value
// together with both children regardless of whether they're populated.
package dense

import (
	"encoding/binary"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// MaxHeight is the largest tree height the spec allows (§4.11).
const MaxHeight = 16

var stateKey = []byte{'s'}

// Capacity returns 2^height - 1, the number of addressable positions.
func Capacity(height uint8) uint16 {
	return uint16((uint32(1) << height) - 1)
}

func left(pos uint64) uint64  { return 2*pos + 1 }
func right(pos uint64) uint64 { return 2*pos + 2 }

func posKey(pos uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, pos)
	return k
}

// Tree is one dense fixed-size subtree, addressed by its subtree prefix.
type Tree struct {
	store  storage.Context
	prefix hash.Digest
	height uint8
	count  uint16
	root   hash.Digest
}

// Open loads (or prepares) the dense tree at prefix with the given
// height, fixed for the subtree's lifetime (spec: height authenticated
// via the containing parent Element, not stored here).
func Open(store storage.Context, prefix hash.Digest, height uint8) (*Tree, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if height < 1 || height > MaxHeight {
		return nil, c, groveerr.New("dense.Open", groveerr.InvalidPath)
	}
	t := &Tree{store: store, prefix: prefix, height: height}

	raw, err := store.Get(storage.CFDefault, prefix, stateKey)
	if err != nil {
		return nil, c, groveerr.Wrap("dense.Open", groveerr.StorageError, err)
	}
	c.AddSeek()
	if raw == nil {
		return t, c, nil
	}
	if len(raw) < 34 {
		return nil, c, groveerr.New("dense.Open", groveerr.CorruptedStorage)
	}
	t.count = binary.BigEndian.Uint16(raw[:2])
	copy(t.root[:], raw[2:34])
	return t, c, nil
}

// Height and Count expose the tree's fixed shape and current fill level.
func (t *Tree) Height() uint8          { return t.height }
func (t *Tree) Count() uint16          { return t.count }
func (t *Tree) RootHash() hash.Digest  { return t.root }

func (t *Tree) readValue(pos uint64, c *cost.OperationCost) ([]byte, error) {
	raw, err := t.store.Get(storage.CFDefault, t.prefix, posKey(pos))
	if err != nil {
		return nil, groveerr.Wrap("dense.readValue", groveerr.StorageError, err)
	}
	if raw == nil {
		return nil, groveerr.New("dense.readValue", groveerr.CorruptedStorage)
	}
	c.AddSeek()
	c.AddLoadedBytes(uint64(len(raw)))
	return raw, nil
}

// ComputeRootFromValues computes a dense tree's root hash purely from an
// in-memory slice of values, with no storage dependency: the same
// level-order, hash-every-position formula as Tree, used by callers
// (e.g. bulkappend's tier-1 buffer) that already mirror their values in
// memory and only need the hash, not the storage-backed Tree itself.
func ComputeRootFromValues(values [][]byte, height uint8) hash.Digest {
	capacity := uint64(Capacity(height))
	count := uint64(len(values))
	var recurse func(pos uint64) hash.Digest
	recurse = func(pos uint64) hash.Digest {
		if pos >= count || pos >= capacity {
			return hash.Null
		}
		return hash.DenseNode(values[pos], recurse(left(pos)), recurse(right(pos)))
	}
	return recurse(0)
}

func (t *Tree) hashAt(pos uint64, c *cost.OperationCost) (hash.Digest, error) {
	if pos >= uint64(t.count) || pos >= uint64(Capacity(t.height)) {
		return hash.Null, nil
	}
	value, err := t.readValue(pos, c)
	if err != nil {
		return hash.Null, err
	}
	l, err := t.hashAt(left(pos), c)
	if err != nil {
		return hash.Null, err
	}
	r, err := t.hashAt(right(pos), c)
	if err != nil {
		return hash.Null, err
	}
	c.AddHashNodeCalls(1)
	return hash.DenseNode(value, l, r), nil
}

func (t *Tree) writeState(c *cost.OperationCost) error {
	buf := make([]byte, 0, 34)
	var cb [2]byte
	binary.BigEndian.PutUint16(cb[:], t.count)
	buf = append(buf, cb[:]...)
	buf = append(buf, t.root[:]...)
	if err := t.store.Put(storage.CFDefault, t.prefix, stateKey, buf); err != nil {
		return groveerr.Wrap("dense.writeState", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(buf))
	return nil
}

// Insert appends value at the next free position, recomputing the whole
// tree's root hash from scratch (spec §4.11: "O(count) Blake3").
func (t *Tree) Insert(value []byte) (uint16, cost.OperationCost, error) {
	c := cost.OperationCost{}
	capacity := Capacity(t.height)
	if t.count >= capacity {
		return 0, c, groveerr.New("dense.Insert", groveerr.CapacityExceeded)
	}
	pos := t.count
	if err := t.store.Put(storage.CFDefault, t.prefix, posKey(uint64(pos)), value); err != nil {
		return 0, c, groveerr.Wrap("dense.Insert", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(value))
	t.count++

	root, err := t.hashAt(0, &c)
	if err != nil {
		return 0, c, err
	}
	t.root = root
	if err := t.writeState(&c); err != nil {
		return 0, c, err
	}
	return pos, c, nil
}

// Get returns the raw value stored at position.
func (t *Tree) Get(position uint16) ([]byte, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if position >= t.count {
		return nil, c, groveerr.New("dense.Get", groveerr.KeyNotFound)
	}
	v, err := t.readValue(uint64(position), &c)
	return v, c, err
}
