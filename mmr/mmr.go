// Package mmr implements GroveDB's append-only Merkle Mountain Range
// subtree (spec §4.10): a flat position-indexed node space whose peaks
// track the 1-bits of the leaf count, merged via a trailing-ones
// cascade on every append.
//
// The recursive peak-descent proof walk is grounded on the teacher's
// merkle package (_examples/shruggr-inspiration/merkle/proof.go), which
// recursively descends a binary tree from a stored root collecting
// sibling hashes at each level; this package generalizes that to a
// forest of mountains of varying height instead of one balanced tree,
// and replaces double-SHA256 with Blake3 per spec §6.2.
package mmr

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// Tree is one MMR subtree, addressed by its 32-byte subtree prefix.
type Tree struct {
	store storage.Context
	prefix hash.Digest

	leafCount uint64
	size      uint64
	peaks     []peakState

	// written mirrors nodes Put this session that a transactional
	// context may not yet surface through Get, so merges within the
	// same append (and later reads before Commit) see their siblings
	// (spec §4.10 "Write-through cache").
	written map[uint64]record
}

// Open loads the MMR rooted at prefix, or prepares an empty one if no
// state has been persisted yet.
func Open(store storage.Context, prefix hash.Digest) (*Tree, cost.OperationCost, error) {
	c := cost.OperationCost{}
	t := &Tree{store: store, prefix: prefix, written: make(map[uint64]record)}

	raw, err := store.Get(storage.CFDefault, prefix, statePrefix)
	if err != nil {
		return nil, c, groveerr.Wrap("mmr.Open", groveerr.StorageError, err)
	}
	c.AddSeek()
	if raw == nil {
		return t, c, nil
	}
	leafCount, peaks, err := decodeState(raw)
	if err != nil {
		return nil, c, groveerr.Wrap("mmr.Open", groveerr.CorruptedStorage, err)
	}
	t.leafCount = leafCount
	t.peaks = peaks
	t.size = sizeForLeafCount(leafCount)
	return t, c, nil
}

// LeafCount returns the number of leaves appended so far.
func (t *Tree) LeafCount() uint64 { return t.leafCount }

// Size returns the current mmr_size (total node count).
func (t *Tree) Size() uint64 { return t.size }

// IsEmpty reports whether the tree has no leaves.
func (t *Tree) IsEmpty() bool { return t.leafCount == 0 }

// Root computes the current MMR root by bagging the peaks right-to-left
// (spec §4.10 "Root"): bag([p0..pk-1]) = fold_right, or the lone peak's
// hash when there is only one.
func (t *Tree) Root() hash.Digest {
	if len(t.peaks) == 0 {
		return hash.Null
	}
	acc := t.peaks[len(t.peaks)-1].h
	for i := len(t.peaks) - 2; i >= 0; i-- {
		acc = hash.MMRMerge(t.peaks[i].h, acc)
	}
	return acc
}

func (t *Tree) readNode(pos uint64, c *cost.OperationCost) (record, error) {
	if r, ok := t.written[pos]; ok {
		return r, nil
	}
	raw, err := t.store.Get(storage.CFDefault, t.prefix, nodeKey(pos))
	if err != nil {
		return record{}, groveerr.Wrap("mmr.readNode", groveerr.StorageError, err)
	}
	if raw == nil {
		return record{}, groveerr.New("mmr.readNode", groveerr.CorruptedStorage)
	}
	c.AddSeek()
	c.AddLoadedBytes(uint64(len(raw)))
	r, err := decodeRecord(raw)
	if err != nil {
		return record{}, groveerr.Wrap("mmr.readNode", groveerr.CorruptedStorage, err)
	}
	return r, nil
}

func (t *Tree) writeNode(pos uint64, r record, c *cost.OperationCost) error {
	data := encodeRecord(r)
	if err := t.store.Put(storage.CFDefault, t.prefix, nodeKey(pos), data); err != nil {
		return groveerr.Wrap("mmr.writeNode", groveerr.StorageError, err)
	}
	t.written[pos] = r
	c.ApplyInsert(len(data))
	return nil
}

func (t *Tree) writeState(c *cost.OperationCost) error {
	data := encodeState(t.leafCount, t.peaks)
	if err := t.store.Put(storage.CFDefault, t.prefix, statePrefix, data); err != nil {
		return groveerr.Wrap("mmr.writeState", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(data))
	return nil
}

// Append adds value as a new leaf, running the merge cascade (spec
// §4.10 "Append algorithm"), and returns its leaf index.
func (t *Tree) Append(value []byte) (uint64, cost.OperationCost, error) {
	c := cost.OperationCost{}
	leafIdx := t.leafCount
	leafPos := t.size

	leafHash := hash.MMRLeaf(value)
	c.AddHashNodeCalls(1)
	if err := t.writeNode(leafPos, record{isLeaf: true, h: leafHash, value: value}, &c); err != nil {
		return 0, c, err
	}
	t.size++
	t.peaks = append(t.peaks, peakState{pos: leafPos, height: 0, h: leafHash})

	merges := trailingOnes(leafIdx)
	for i := 0; i < merges; i++ {
		right := t.peaks[len(t.peaks)-1]
		left := t.peaks[len(t.peaks)-2]
		t.peaks = t.peaks[:len(t.peaks)-2]

		parentPos := t.size
		parentHash := hash.MMRMerge(left.h, right.h)
		c.AddHashNodeCalls(1)
		if err := t.writeNode(parentPos, record{isLeaf: false, h: parentHash}, &c); err != nil {
			return 0, c, err
		}
		t.size++
		t.peaks = append(t.peaks, peakState{pos: parentPos, height: left.height + 1, h: parentHash})
	}

	t.leafCount++
	if err := t.writeState(&c); err != nil {
		return 0, c, err
	}
	return leafIdx, c, nil
}

// GetLeaf returns the value stored at leaf index idx.
func (t *Tree) GetLeaf(idx uint64) ([]byte, cost.OperationCost, error) {
	c := cost.OperationCost{}
	if idx >= t.leafCount {
		return nil, c, groveerr.New("mmr.GetLeaf", groveerr.KeyNotFound)
	}
	r, err := t.readNode(leafPosition(idx), &c)
	if err != nil {
		return nil, c, err
	}
	return r.value, c, nil
}
