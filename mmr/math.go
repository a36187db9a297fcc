package mmr

import "math/bits"

// trailingOnes counts consecutive set bits at the low end of n (spec
// §4.10: "the number of merges equals trailing_ones(N)").
func trailingOnes(n uint64) int {
	return bits.TrailingZeros64(^n)
}

// sizeForLeafCount returns the total node count (leaves + internal) of a
// complete MMR holding n leaves: size(n) = 2n - popcount(n). Each append
// at pre-count i writes 1 + trailing_ones(i) nodes, and summing that
// series telescopes to this closed form.
func sizeForLeafCount(n uint64) uint64 {
	return 2*n - uint64(bits.OnesCount64(n))
}

// leafPosition returns the flat-array position of leaf index idx: the
// node count written before that leaf was appended, i.e. sizeForLeafCount
// evaluated at idx.
func leafPosition(idx uint64) uint64 {
	return sizeForLeafCount(idx)
}

// mountainHeight is the height (0 = leaf) of the perfect binary "mountain"
// whose 1-bit position in leafCount it corresponds to, i.e. log2 of the
// bit value.
func mountainHeight(bit uint) uint64 { return uint64(bit) }

// mountainSize returns the node count of a perfect mountain of height h:
// 2^(h+1) - 1.
func mountainSize(h uint64) uint64 {
	return (uint64(1) << (h + 1)) - 1
}

// peakLayout derives the (position, height) of every current peak from
// leafCount alone (spec §4.10: "peaks correspond to 1-bits in the binary
// representation of leaf_count"), processing bits from most to least
// significant the same way the append cascade builds mountains
// left-to-right.
func peakLayout(leafCount uint64) []struct {
	pos, height uint64
} {
	var peaks []struct {
		pos, height uint64
	}
	if leafCount == 0 {
		return nil
	}
	pos := uint64(0)
	for b := bits.Len64(leafCount) - 1; b >= 0; b-- {
		if leafCount&(uint64(1)<<uint(b)) == 0 {
			continue
		}
		h := mountainHeight(uint(b))
		size := mountainSize(h)
		peaks = append(peaks, struct{ pos, height uint64 }{pos + size - 1, h})
		pos += size
	}
	return peaks
}

// mountainChildren returns the (left, right) root positions of the two
// height-(h-1) subtrees under a mountain root at position p with height
// h >= 1, derived from the post-order numbering the append cascade
// produces: the right subtree is written immediately before the root,
// the left subtree before that.
func mountainChildren(p, h uint64) (left, right uint64) {
	right = p - 1
	left = p - (uint64(1) << h)
	return
}
