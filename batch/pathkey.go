package batch

import "encoding/binary"

// pathKey encodes path into a deterministic, collision-free string for
// use as a map/grouping key: length-prefixed segments rule out the
// ambiguity a plain separator-joined string would have (["ab","c"] vs
// ["a","bc"]).
func pathKey(path [][]byte) string {
	var buf []byte
	var lenBuf [4]byte
	for _, seg := range path {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(seg)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, seg...)
	}
	return string(buf)
}

// subtreeKey is pathKey extended with a trailing key segment, for
// grouping ops that target the same (path, key) pair (spec §4.8 Phase 0
// and Phase 1's "group by (path, key)").
func subtreeKey(path [][]byte, key []byte) string {
	return pathKey(append(append([][]byte{}, path...), key))
}
