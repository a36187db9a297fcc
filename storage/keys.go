package storage

import "github.com/dashpay/grovedb/hash"

// cfTag distinguishes the four logical column families within a single
// physical keyspace, for backends (like Badger, see badgerstore) that
// have no native column-family concept and so must fold CF identity into
// the key itself, the same trick the teacher's indexnode/multihash
// packages use for single-byte tag prefixes.
func cfTag(cf CF) byte {
	switch cf {
	case CFDefault:
		return 'd'
	case CFAux:
		return 'a'
	case CFRoots:
		return 'r'
	default:
		panic("storage: unknown CF")
	}
}

// EncodeKey builds the physical key for a prefixed CF entry:
// cfTag || prefix(32) || key.
func EncodeKey(cf CF, prefix hash.Digest, key []byte) []byte {
	buf := make([]byte, 1+hash.Size+len(key))
	buf[0] = cfTag(cf)
	copy(buf[1:1+hash.Size], prefix[:])
	copy(buf[1+hash.Size:], key)
	return buf
}

// EncodeMetaKey builds the physical key for a meta-CF entry: 'm' || key,
// with no subtree prefix (spec §4.2: meta keys are raw/global).
func EncodeMetaKey(key MetaKey) []byte {
	buf := make([]byte, 1+len(key))
	buf[0] = 'm'
	copy(buf[1:], key)
	return buf
}

// prefixBound returns [lo, hi) physical-key bounds covering every key
// under cfTag||prefix, for backends that need an explicit upper bound to
// stop a forward scan (the prefix is incremented in its last byte; since
// prefix is a fixed-width 32-byte hash this never overflows into a
// shorter representation).
func prefixBound(cf CF, prefix hash.Digest) (lo, hi []byte) {
	lo = EncodeKey(cf, prefix, nil)
	hi = append([]byte{}, lo...)
	for i := len(hi) - 1; i >= 0; i-- {
		if hi[i] != 0xff {
			hi[i]++
			return lo, hi[:i+1]
		}
		hi = hi[:i]
	}
	// All 0xff (astronomically unlikely for a Blake3 prefix): no finite
	// upper bound, caller must scan to the end of the keyspace.
	return lo, nil
}
