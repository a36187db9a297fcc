package commitment

import (
	"encoding/binary"
	"math/bits"

	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
)

// FrontierDepth is the fixed incremental-Merkle-tree depth (spec §4.13).
const FrontierDepth = 32

// emptyRoots[i] is the root of an empty subtree of height i, seeded from
// the "uncommitted leaf" constant at level 0 (spec: "same empty-root
// constant contract for proof-interop" — any substitute hash function
// must reproduce this ladder).
var emptyRoots = computeEmptyRoots()

func computeEmptyRoots() [FrontierDepth + 1]hash.Digest {
	var roots [FrontierDepth + 1]hash.Digest
	roots[0] = hash.Null
	for i := 1; i <= FrontierDepth; i++ {
		roots[i] = hash.Combine(roots[i-1], roots[i-1])
	}
	return roots
}

// EmptyRoot is the combined frontier root of a CommitmentTree with no
// committed leaves.
var EmptyRoot = emptyRoots[FrontierDepth]

func trailingOnes(n uint64) int {
	return bits.TrailingZeros64(^n)
}

// Frontier is the depth-32 incremental Merkle tree (spec §4.13
// "Frontier"): only the rightmost leaf, up to 32 ommers (left-sibling
// hashes at levels where the path to that leaf goes right), and the
// leaf's position are retained — never the full tree.
type Frontier struct {
	hasLeaf  bool
	position uint64
	leaf     hash.Digest
	ommers   []hash.Digest
}

// Append inserts leaf as the next commitment, cascading ommer updates
// the same trailing-ones way as an MMR append: the number of merges is
// the count of trailing one bits of the new leaf's index, not of the
// previous position. Returns the number of ommer merges performed, for
// cost accounting.
func (f *Frontier) Append(leaf hash.Digest) int {
	newIndex := uint64(0)
	if f.hasLeaf {
		newIndex = f.position + 1
	}

	merges := trailingOnes(newIndex)
	cur := leaf
	level := 0
	for i := 0; i < merges; i++ {
		cur = hash.Combine(f.ommers[level], cur)
		level++
	}
	if level == len(f.ommers) {
		f.ommers = append(f.ommers, cur)
	} else {
		f.ommers[level] = cur
	}

	f.position = newIndex
	f.leaf = leaf
	f.hasLeaf = true
	return merges
}

// Root recomputes the frontier's root by walking all 32 levels,
// combining with a stored ommer wherever the leaf's position has a 1
// bit (a completed left sibling) or with the empty-subtree constant
// otherwise.
func (f *Frontier) Root() hash.Digest {
	if !f.hasLeaf {
		return EmptyRoot
	}
	acc := f.leaf
	for level := 0; level < FrontierDepth; level++ {
		if (f.position>>uint(level))&1 == 1 {
			acc = hash.Combine(f.ommers[level], acc)
		} else {
			acc = hash.Combine(acc, emptyRoots[level])
		}
	}
	return acc
}

// Encode serializes the frontier to its wire format (spec §4.13
// "Frontier"): 1 byte for an empty tree, else
// has_frontier||position(8 BE)||leaf(32)||ommer_count(1)||ommers.
func (f *Frontier) Encode() []byte {
	if !f.hasLeaf {
		return []byte{0x00}
	}
	buf := make([]byte, 0, 1+8+32+1+len(f.ommers)*32)
	buf = append(buf, 0x01)
	var pb [8]byte
	binary.BigEndian.PutUint64(pb[:], f.position)
	buf = append(buf, pb[:]...)
	buf = append(buf, f.leaf[:]...)
	buf = append(buf, byte(len(f.ommers)))
	for _, o := range f.ommers {
		buf = append(buf, o[:]...)
	}
	return buf
}

// DecodeFrontier parses a frontier blob produced by Encode.
func DecodeFrontier(data []byte) (*Frontier, error) {
	if len(data) < 1 {
		return nil, groveerr.New("commitment.DecodeFrontier", groveerr.CorruptedStorage)
	}
	if data[0] == 0x00 {
		return &Frontier{}, nil
	}
	if data[0] != 0x01 || len(data) < 1+8+32+1 {
		return nil, groveerr.New("commitment.DecodeFrontier", groveerr.CorruptedStorage)
	}
	f := &Frontier{hasLeaf: true}
	f.position = binary.BigEndian.Uint64(data[1:9])
	copy(f.leaf[:], data[9:41])
	count := int(data[41])
	if count > FrontierDepth || len(data) != 42+count*32 {
		return nil, groveerr.New("commitment.DecodeFrontier", groveerr.CorruptedStorage)
	}
	f.ommers = make([]hash.Digest, count)
	for i := 0; i < count; i++ {
		copy(f.ommers[i][:], data[42+i*32:42+(i+1)*32])
	}
	return f, nil
}
