package merk

import (
	"encoding/binary"
	"fmt"

	"github.com/dashpay/grovedb/hash"
)

// encodeNode serializes a TreeNode for storage (CFDefault, keyed by the
// node's own key under the subtree prefix). The node's own Key is not
// repeated in the value since the storage key already carries it; only
// value bytes, value hash, and a lazy summary of each child link
// (state-independent: key/hash/heights/aggregate, enough to reconstruct
// a LinkReference without fetching the child) are stored.
func encodeNode(n *TreeNode) []byte {
	buf := make([]byte, 0, 64+len(n.ValueBytes))
	buf = putBytes(buf, n.ValueBytes)
	buf = append(buf, n.ValueHash[:]...)
	buf = putLinkSummary(buf, n.Left)
	buf = putLinkSummary(buf, n.Right)
	return buf
}

func putLinkSummary(buf []byte, l *Link) []byte {
	if l == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = putBytes(buf, l.Key)
	buf = append(buf, l.Hash[:]...)
	buf = append(buf, l.LeftHeight, l.RightHeight)
	buf = appendInt64(buf, l.SumAgg)
	buf = appendUint64(buf, l.CountAgg)
	return buf
}

// decodeNode parses the encoding produced by encodeNode. key is the
// node's own key (recovered from the storage key, not the value).
func decodeNode(key []byte, data []byte) (*TreeNode, error) {
	n := &TreeNode{Key: append([]byte{}, key...)}

	var err error
	if n.ValueBytes, data, err = readBytes(data); err != nil {
		return nil, fmt.Errorf("merk: decode node value: %w", err)
	}
	if len(data) < hash.Size {
		return nil, fmt.Errorf("merk: decode node: truncated value hash")
	}
	copy(n.ValueHash[:], data[:hash.Size])
	data = data[hash.Size:]

	if n.Left, data, err = readLinkSummary(data); err != nil {
		return nil, fmt.Errorf("merk: decode left link: %w", err)
	}
	if n.Right, data, err = readLinkSummary(data); err != nil {
		return nil, fmt.Errorf("merk: decode right link: %w", err)
	}
	return n, nil
}

func readLinkSummary(data []byte) (*Link, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("truncated link presence byte")
	}
	present := data[0]
	data = data[1:]
	if present == 0 {
		return nil, data, nil
	}

	l := &Link{State: LinkReference}
	var err error
	if l.Key, data, err = readBytes(data); err != nil {
		return nil, nil, err
	}
	if len(data) < hash.Size+2+8+8 {
		return nil, nil, fmt.Errorf("truncated link fixed fields")
	}
	copy(l.Hash[:], data[:hash.Size])
	data = data[hash.Size:]
	l.LeftHeight, l.RightHeight = data[0], data[1]
	data = data[2:]
	l.SumAgg = int64(binary.BigEndian.Uint64(data[:8]))
	data = data[8:]
	l.CountAgg = binary.BigEndian.Uint64(data[:8])
	data = data[8:]
	return l, data, nil
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
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
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}
