package bulkappend

import (
	"encoding/binary"
	"fmt"

	"github.com/dashpay/grovedb/hash"
)

// Chunk blob framing tags (spec §4.12 "Serialize the entries into an
// immutable chunk blob").
const (
	framingFixed    byte = 0x00
	framingVariable byte = 0x01
)

// encodeChunkBlob serializes entries into an immutable chunk blob,
// prefixed with a self-describing multihash header (spec §4.12
// "Serialize the entries into an immutable chunk blob") carrying the
// chunk's own dense root, grounded on the teacher's multihash wrapping
// (_examples/shruggr-inspiration/multihash/hash.go): a reader can check
// the header against its own recomputed root before trusting the
// framed entries, the same self-describing-envelope discipline the
// teacher uses for anything persisted standalone.
func encodeChunkBlob(entries [][]byte) ([]byte, error) {
	header, err := hash.WrapSelfDescribing(chunkDenseRoot(entries))
	if err != nil {
		return nil, fmt.Errorf("bulkappend: wrap chunk header: %w", err)
	}
	body := encodeChunkBody(entries)

	buf := make([]byte, 0, 4+len(header)+len(body))
	buf = putBytes(buf, header)
	buf = append(buf, body...)
	return buf, nil
}

// encodeChunkBody frames exactly len(entries) entries, auto-selecting
// fixed-size framing when every entry has equal length (denser: no
// per-entry length prefix) and falling back to variable framing
// otherwise.
func encodeChunkBody(entries [][]byte) []byte {
	fixed := true
	entryLen := 0
	if len(entries) > 0 {
		entryLen = len(entries[0])
		for _, e := range entries[1:] {
			if len(e) != entryLen {
				fixed = false
				break
			}
		}
	}

	if fixed {
		buf := make([]byte, 0, 5+entryLen*len(entries))
		buf = append(buf, framingFixed)
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(entryLen))
		buf = append(buf, lb[:]...)
		for _, e := range entries {
			buf = append(buf, e...)
		}
		return buf
	}

	buf := make([]byte, 0, 1+len(entries)*4)
	buf = append(buf, framingVariable)
	for _, e := range entries {
		var lb [4]byte
		binary.BigEndian.PutUint32(lb[:], uint32(len(e)))
		buf = append(buf, lb[:]...)
		buf = append(buf, e...)
	}
	return buf
}

// decodeChunkBlob parses a blob produced by encodeChunkBlob, verifying
// its self-describing header against the dense root recomputed from
// the decoded entries before returning them: a chunk blob that decodes
// cleanly but whose header disagrees with its own content is treated
// as corrupted storage, the same as a truncated framing field.
func decodeChunkBlob(data []byte, chunkSize uint64) ([][]byte, error) {
	header, rest, err := readBytes(data)
	if err != nil {
		return nil, fmt.Errorf("bulkappend: decode chunk header: %w", err)
	}
	entries, err := decodeChunkBody(rest, chunkSize)
	if err != nil {
		return nil, err
	}

	wantRoot, err := hash.UnwrapSelfDescribing(header)
	if err != nil {
		return nil, fmt.Errorf("bulkappend: unwrap chunk header: %w", err)
	}
	if wantRoot != chunkDenseRoot(entries) {
		return nil, fmt.Errorf("bulkappend: chunk blob header does not match its entries")
	}
	return entries, nil
}

func decodeChunkBody(data []byte, chunkSize uint64) ([][]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("bulkappend: empty chunk blob")
	}
	tag := data[0]
	data = data[1:]
	entries := make([][]byte, 0, chunkSize)

	switch tag {
	case framingFixed:
		if len(data) < 4 {
			return nil, fmt.Errorf("bulkappend: truncated fixed-framing length")
		}
		entryLen := int(binary.BigEndian.Uint32(data[:4]))
		data = data[4:]
		for i := uint64(0); i < chunkSize; i++ {
			if len(data) < entryLen {
				return nil, fmt.Errorf("bulkappend: truncated fixed-framing entry %d", i)
			}
			entries = append(entries, append([]byte{}, data[:entryLen]...))
			data = data[entryLen:]
		}
	case framingVariable:
		for i := uint64(0); i < chunkSize; i++ {
			if len(data) < 4 {
				return nil, fmt.Errorf("bulkappend: truncated variable-framing length %d", i)
			}
			n := int(binary.BigEndian.Uint32(data[:4]))
			data = data[4:]
			if len(data) < n {
				return nil, fmt.Errorf("bulkappend: truncated variable-framing entry %d", i)
			}
			entries = append(entries, append([]byte{}, data[:n]...))
			data = data[n:]
		}
	default:
		return nil, fmt.Errorf("bulkappend: unknown chunk blob framing tag %d", tag)
	}
	return entries, nil
}

// chunkDenseRoot computes the "standard complete binary tree" Merkle
// root over a chunk's entries (spec §4.12 tier-2 compaction step 2):
// leaf[i] = Blake3(entry[i]), internal = Blake3(l||r). Unlike the
// dense-tree hash (§4.11), internal nodes carry no value of their own —
// this is grounded directly on the teacher's merkle.Builder.buildTree
// pairwise fold (_examples/shruggr-inspiration/merkle/builder.go),
// generalized from double-SHA256 to Blake3. Chunk size is always a
// power of two (2^chunk_power), so no odd-length duplicate-last padding
// is ever needed, unlike the teacher's Bitcoin tree.
func chunkDenseRoot(entries [][]byte) hash.Digest {
	level := make([]hash.Digest, len(entries))
	for i, e := range entries {
		level[i] = hash.DenseValueHash(e)
	}
	for len(level) > 1 {
		next := make([]hash.Digest, len(level)/2)
		for i := range next {
			next[i] = hash.MMRMerge(level[2*i], level[2*i+1])
		}
		level = next
	}
	if len(level) == 0 {
		return hash.Null
	}
	return level[0]
}

func putBytes(buf []byte, b []byte) []byte {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	buf = append(buf, lb[:]...)
	return append(buf, b...)
}

func readBytes(data []byte) (b []byte, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("truncated byte string: need %d, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
