// Package element implements GroveDB's tagged Element value (spec
// §3.1/§4.4/§6.3): the fifteen-variant discriminated union stored at
// every (subtree, key) pair, with a deterministic binary encoding.
//
// The encoding is grounded on the teacher's indexnode package
// (_examples/shruggr-inspiration/indexnode/indexnode.go): a fixed
// header (version/flags/counts) followed by fixed-width big-endian
// integer fields and length-prefixed byte strings, the same "small tagged
// binary record" shape, generalized here from IndexNode's one node
// format to Element's fifteen-variant discriminated union.
package element

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies an Element variant (spec §3.1 table).
type Tag byte

const (
	TagItem Tag = iota
	TagReference
	TagTree
	TagSumItem
	TagSumTree
	TagBigSumTree
	TagCountTree
	TagCountSumTree
	TagItemWithSumItem
	TagProvableCountTree
	TagProvableCountSumTree
	TagCommitmentTree
	TagMmrTree
	TagBulkAppendTree
	TagDenseTree
)

func (t Tag) String() string {
	names := [...]string{
		"Item", "Reference", "Tree", "SumItem", "SumTree", "BigSumTree",
		"CountTree", "CountSumTree", "ItemWithSumItem", "ProvableCountTree",
		"ProvableCountSumTree", "CommitmentTree", "MmrTree", "BulkAppendTree",
		"DenseAppendOnlyFixedSizeTree",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("Tag(%d)", t)
}

// ReferenceKind enumerates the seven reference resolution strategies
// (spec §3.1).
type ReferenceKind byte

const (
	RefAbsolutePath ReferenceKind = iota
	RefUpstreamRoot
	RefUpstreamRootRepeat
	RefUpstreamFromElement
	RefCousinReference
	RefRemovedCousinReference
	RefSiblingReference
)

// Element is the tagged value stored at a (subtree, key) pair. Only the
// fields relevant to Tag are meaningful; others are zero. Using one
// struct rather than fifteen concrete types keeps Merk/grove/batch code
// that switches on Tag straightforward, at the cost of some unused
// fields per variant — the same tradeoff the teacher's IndexNode makes
// by carrying HasData/SortByData/IsRange flags that aren't all
// meaningful simultaneously.
type Element struct {
	Tag Tag

	// Item, ItemWithSumItem
	Bytes []byte

	// Reference
	RefKind    ReferenceKind
	RefPath    [][]byte // absolute path segments, or kind-specific payload (see reference package)
	RefKey     []byte
	RefMaxHop  uint8
	RefHasHop  bool

	// Tree, SumTree, BigSumTree, CountTree, CountSumTree,
	// ProvableCountTree, ProvableCountSumTree: child subtree root key.
	// Nil means the child subtree is empty.
	RootKey []byte

	// SumItem, SumTree, CountSumTree, ItemWithSumItem,
	// ProvableCountSumTree
	Sum int64

	// BigSumTree: signed 128-bit sum as big-endian two's complement.
	BigSum [16]byte

	// CountTree, CountSumTree, ProvableCountTree, ProvableCountSumTree
	Count uint64

	// CommitmentTree, BulkAppendTree
	TotalCount uint64
	ChunkPower uint8

	// CommitmentTree: fixed ciphertext payload size in bytes (spec
	// §4.13's memo-size profile), needed alongside ChunkPower to reopen
	// the subtree's BulkAppend log.
	PayloadSize uint16

	// MmrTree
	MmrSize uint64

	// DenseAppendOnlyFixedSizeTree
	DenseCount  uint16
	DenseHeight uint8

	Flags []byte
}

// NewItem constructs a basic Item element.
func NewItem(value, flags []byte) *Element {
	return &Element{Tag: TagItem, Bytes: value, Flags: flags}
}

// NewTree constructs a plain Tree portal element. rootKey is nil for a
// freshly-created empty subtree.
func NewTree(rootKey, flags []byte) *Element {
	return &Element{Tag: TagTree, RootKey: rootKey, Flags: flags}
}

// NewSumItem constructs a SumItem contributing value to its parent
// SumTree's aggregate.
func NewSumItem(value int64, flags []byte) *Element {
	return &Element{Tag: TagSumItem, Sum: value, Flags: flags}
}

// NewSumTree constructs a SumTree portal with the given aggregate sum.
func NewSumTree(rootKey []byte, sum int64, flags []byte) *Element {
	return &Element{Tag: TagSumTree, RootKey: rootKey, Sum: sum, Flags: flags}
}

// IsTreeLike reports whether the element is a subtree portal whose child
// hash (plain Merk root, or 0 for an empty child) flows into the parent
// node hash (spec §4.3.1 combined value hash; the non-Merk tree variants
// are NOT tree-like by this definition — see IsNonMerkTree).
func (e *Element) IsTreeLike() bool {
	switch e.Tag {
	case TagTree, TagSumTree, TagBigSumTree, TagCountTree, TagCountSumTree,
		TagProvableCountTree, TagProvableCountSumTree:
		return true
	default:
		return false
	}
}

// IsNonMerkTree reports whether the element's child subtree is one of
// the non-Merk engines (MMR, Dense, BulkAppend, CommitmentTree) whose
// type-specific root flows as the Merk child hash per spec invariant 5.
func (e *Element) IsNonMerkTree() bool {
	switch e.Tag {
	case TagMmrTree, TagDenseTree, TagBulkAppendTree, TagCommitmentTree:
		return true
	default:
		return false
	}
}

// HasAggregateFeature reports whether e's node carries an aggregate
// feature type (spec §3.1/invariant 3): sum and/or count maintained
// across the subtree.
func (e *Element) HasAggregateFeature() bool {
	switch e.Tag {
	case TagSumTree, TagBigSumTree, TagCountTree, TagCountSumTree,
		TagProvableCountTree, TagProvableCountSumTree:
		return true
	default:
		return false
	}
}

// IsProvableCount reports whether e's count is folded directly into the
// node hash (spec invariant 3, §4.3.1 node_hash_with_count) rather than
// merely stored as a field.
func (e *Element) IsProvableCount() bool {
	return e.Tag == TagProvableCountTree || e.Tag == TagProvableCountSumTree
}

// SumContribution returns the signed value this element itself
// contributes to an enclosing SumTree/CountSumTree's aggregate (spec
// invariant 3): SumItem and ItemWithSumItem contribute their Sum field;
// everything else contributes 0. Nested SumTree/CountSumTree elements
// contribute their own stored Sum (so a SumTree nested under another
// SumTree folds its total into the parent), matching "aggregation of its
// own contribution and its two child aggregates".
func (e *Element) SumContribution() int64 {
	switch e.Tag {
	case TagSumItem, TagItemWithSumItem:
		return e.Sum
	case TagSumTree, TagCountSumTree, TagProvableCountSumTree:
		return e.Sum
	default:
		return 0
	}
}

// CountContribution returns how many leaf elements this element itself
// represents for an enclosing CountTree/CountSumTree aggregate: 1 for
// any concrete leaf element, and the stored Count for a nested
// count-bearing tree (so counts roll up transitively).
func (e *Element) CountContribution() uint64 {
	switch e.Tag {
	case TagCountTree, TagCountSumTree, TagProvableCountTree, TagProvableCountSumTree:
		return e.Count
	case TagTree, TagSumTree, TagBigSumTree:
		return 0
	default:
		return 1
	}
}

// --- encoding ---

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func readBytes(data []byte) (b []byte, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("element: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("element: truncated byte string: need %d, have %d", n, len(data))
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

// Encode serializes e to GroveDB's deterministic Element binary encoding
// (spec §4.4/§6.3): a 1-byte discriminant followed by big-endian
// multi-byte integers and length-prefixed byte strings in a fixed field
// order per variant. The encoding MUST stay fixed: any reordering would
// silently break every hash depending on it (spec §4.4).
func (e *Element) Encode() ([]byte, error) {
	buf := []byte{byte(e.Tag)}

	switch e.Tag {
	case TagItem:
		buf = putBytes(buf, e.Bytes)
		buf = putBytes(buf, e.Flags)

	case TagReference:
		buf = append(buf, byte(e.RefKind))
		var hopByte byte
		if e.RefHasHop {
			hopByte = 1
		}
		buf = append(buf, hopByte, e.RefMaxHop)
		buf = appendUint32(buf, uint32(len(e.RefPath)))
		for _, seg := range e.RefPath {
			buf = putBytes(buf, seg)
		}
		buf = putBytes(buf, e.RefKey)
		buf = putBytes(buf, e.Flags)

	case TagTree:
		buf = putBytes(buf, e.RootKey)
		buf = putBytes(buf, e.Flags)

	case TagSumItem:
		buf = appendInt64(buf, e.Sum)
		buf = putBytes(buf, e.Flags)

	case TagSumTree:
		buf = putBytes(buf, e.RootKey)
		buf = appendInt64(buf, e.Sum)
		buf = putBytes(buf, e.Flags)

	case TagBigSumTree:
		buf = putBytes(buf, e.RootKey)
		buf = append(buf, e.BigSum[:]...)
		buf = putBytes(buf, e.Flags)

	case TagCountTree:
		buf = putBytes(buf, e.RootKey)
		buf = appendUint64(buf, e.Count)
		buf = putBytes(buf, e.Flags)

	case TagCountSumTree:
		buf = putBytes(buf, e.RootKey)
		buf = appendUint64(buf, e.Count)
		buf = appendInt64(buf, e.Sum)
		buf = putBytes(buf, e.Flags)

	case TagItemWithSumItem:
		buf = putBytes(buf, e.Bytes)
		buf = appendInt64(buf, e.Sum)
		buf = putBytes(buf, e.Flags)

	case TagProvableCountTree:
		buf = putBytes(buf, e.RootKey)
		buf = appendUint64(buf, e.Count)
		buf = putBytes(buf, e.Flags)

	case TagProvableCountSumTree:
		buf = putBytes(buf, e.RootKey)
		buf = appendUint64(buf, e.Count)
		buf = appendInt64(buf, e.Sum)
		buf = putBytes(buf, e.Flags)

	case TagCommitmentTree:
		buf = appendUint64(buf, e.TotalCount)
		buf = append(buf, e.ChunkPower)
		buf = appendUint16(buf, e.PayloadSize)
		buf = putBytes(buf, e.Flags)

	case TagMmrTree:
		buf = appendUint64(buf, e.MmrSize)
		buf = putBytes(buf, e.Flags)

	case TagBulkAppendTree:
		buf = appendUint64(buf, e.TotalCount)
		buf = append(buf, e.ChunkPower)
		buf = putBytes(buf, e.Flags)

	case TagDenseTree:
		buf = appendUint16(buf, e.DenseCount)
		buf = append(buf, e.DenseHeight)
		buf = putBytes(buf, e.Flags)

	default:
		return nil, fmt.Errorf("element: unknown tag %d", e.Tag)
	}

	return buf, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}
func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}

// Decode parses the binary encoding produced by Encode.
func Decode(data []byte) (*Element, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("element: empty encoding")
	}
	tag := Tag(data[0])
	data = data[1:]
	e := &Element{Tag: tag}

	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("element: truncated fixed field for tag %s: need %d, have %d", tag, n, len(data))
		}
		return nil
	}

	switch tag {
	case TagItem:
		var err error
		if e.Bytes, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagReference:
		if err := need(2); err != nil {
			return nil, err
		}
		e.RefKind = ReferenceKind(data[0])
		e.RefHasHop = data[1] != 0
		data = data[2:]
		if err := need(1); err != nil {
			return nil, err
		}
		e.RefMaxHop = data[0]
		data = data[1:]
		if err := need(4); err != nil {
			return nil, err
		}
		segCount := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		e.RefPath = make([][]byte, segCount)
		var err error
		for i := uint32(0); i < segCount; i++ {
			if e.RefPath[i], data, err = readBytes(data); err != nil {
				return nil, err
			}
		}
		if e.RefKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagSumItem:
		if err := need(8); err != nil {
			return nil, err
		}
		e.Sum = int64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		var err error
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagSumTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(8); err != nil {
			return nil, err
		}
		e.Sum = int64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagBigSumTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(16); err != nil {
			return nil, err
		}
		copy(e.BigSum[:], data[:16])
		data = data[16:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagCountTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(8); err != nil {
			return nil, err
		}
		e.Count = binary.BigEndian.Uint64(data[:8])
		data = data[8:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagCountSumTree, TagProvableCountSumTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(16); err != nil {
			return nil, err
		}
		e.Count = binary.BigEndian.Uint64(data[:8])
		e.Sum = int64(binary.BigEndian.Uint64(data[8:16]))
		data = data[16:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagItemWithSumItem:
		var err error
		if e.Bytes, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(8); err != nil {
			return nil, err
		}
		e.Sum = int64(binary.BigEndian.Uint64(data[:8]))
		data = data[8:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagProvableCountTree:
		var err error
		if e.RootKey, data, err = readBytes(data); err != nil {
			return nil, err
		}
		if err := need(8); err != nil {
			return nil, err
		}
		e.Count = binary.BigEndian.Uint64(data[:8])
		data = data[8:]
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagCommitmentTree:
		if err := need(11); err != nil {
			return nil, err
		}
		e.TotalCount = binary.BigEndian.Uint64(data[:8])
		e.ChunkPower = data[8]
		e.PayloadSize = binary.BigEndian.Uint16(data[9:11])
		data = data[11:]
		var err error
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagMmrTree:
		if err := need(8); err != nil {
			return nil, err
		}
		e.MmrSize = binary.BigEndian.Uint64(data[:8])
		data = data[8:]
		var err error
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagBulkAppendTree:
		if err := need(9); err != nil {
			return nil, err
		}
		e.TotalCount = binary.BigEndian.Uint64(data[:8])
		e.ChunkPower = data[8]
		data = data[9:]
		var err error
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	case TagDenseTree:
		if err := need(3); err != nil {
			return nil, err
		}
		e.DenseCount = binary.BigEndian.Uint16(data[:2])
		e.DenseHeight = data[2]
		data = data[3:]
		var err error
		if e.Flags, data, err = readBytes(data); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("element: unknown tag byte %d", tag)
	}

	return e, nil
}

// MaxEncodedSize returns the documented maximum encoded size for
// cost-estimation purposes (spec §4.4): non-Merk tree elements have
// fixed small sizes; variable-length variants are bounded by the given
// max byte-string lengths.
func MaxEncodedSize(tag Tag, maxBytesLen, maxFlagsLen int) int {
	switch tag {
	case TagCommitmentTree, TagBulkAppendTree:
		return 12
	case TagMmrTree:
		return 11
	case TagDenseTree:
		return 6
	case TagItem:
		return 1 + 4 + maxBytesLen + 4 + maxFlagsLen
	case TagItemWithSumItem:
		return 1 + 4 + maxBytesLen + 8 + 4 + maxFlagsLen
	case TagSumItem:
		return 1 + 8 + 4 + maxFlagsLen
	case TagBigSumTree:
		return 1 + 4 + 32 /* root key bound not known here */ + 16 + 4 + maxFlagsLen
	default:
		return 1 + 4 + 32 + 16 + 4 + maxFlagsLen
	}
}
