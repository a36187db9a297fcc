package mmr

import (
	"encoding/binary"
	"fmt"

	"github.com/dashpay/grovedb/hash"
)

// record is the on-disk shape of a single MMR node (spec §4.10
// "Storage"): tag byte (internal/leaf) + 32-byte hash + optional
// length-prefixed leaf value. Node records compare by hash only, so a
// verifier-reconstructed internal node and a prover-supplied leaf at the
// same position are interchangeable wherever only the hash matters.
type record struct {
	isLeaf bool
	h      hash.Digest
	value  []byte
}

var statePrefix = []byte{'s'}

func nodeKey(pos uint64) []byte {
	k := make([]byte, 9)
	k[0] = 'm'
	binary.BigEndian.PutUint64(k[1:], pos)
	return k
}

func encodeRecord(r record) []byte {
	buf := make([]byte, 0, 33+len(r.value))
	if r.isLeaf {
		buf = append(buf, 0x01)
	} else {
		buf = append(buf, 0x00)
	}
	buf = append(buf, r.h[:]...)
	if r.isLeaf {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(r.value)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, r.value...)
	}
	return buf
}

func decodeRecord(data []byte) (record, error) {
	if len(data) < 33 {
		return record{}, fmt.Errorf("mmr: truncated node record")
	}
	r := record{isLeaf: data[0] == 0x01}
	copy(r.h[:], data[1:33])
	data = data[33:]
	if r.isLeaf {
		if len(data) < 4 {
			return record{}, fmt.Errorf("mmr: truncated leaf value length")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return record{}, fmt.Errorf("mmr: truncated leaf value")
		}
		r.value = append([]byte{}, data[:n]...)
	}
	return r, nil
}

// peakState is the persisted summary of one current peak: enough to bag
// the root or extend the cascade without re-reading every node record.
type peakState struct {
	pos    uint64
	height uint64
	h      hash.Digest
}

func encodeState(leafCount uint64, peaks []peakState) []byte {
	buf := make([]byte, 0, 10+len(peaks)*41)
	buf = appendUint64(buf, leafCount)
	buf = appendUint16(buf, uint16(len(peaks)))
	for _, p := range peaks {
		buf = appendUint64(buf, p.pos)
		buf = append(buf, byte(p.height))
		buf = append(buf, p.h[:]...)
	}
	return buf
}

func decodeState(data []byte) (leafCount uint64, peaks []peakState, err error) {
	if len(data) < 10 {
		return 0, nil, fmt.Errorf("mmr: truncated state")
	}
	leafCount = binary.BigEndian.Uint64(data[:8])
	data = data[8:]
	n := binary.BigEndian.Uint16(data[:2])
	data = data[2:]
	peaks = make([]peakState, 0, n)
	for i := uint16(0); i < n; i++ {
		if len(data) < 41 {
			return 0, nil, fmt.Errorf("mmr: truncated peak entry")
		}
		p := peakState{pos: binary.BigEndian.Uint64(data[:8]), height: uint64(data[8])}
		copy(p.h[:], data[9:41])
		data = data[41:]
		peaks = append(peaks, p)
	}
	return leafCount, peaks, nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
