// Package query implements GroveDB's PathQuery engine (spec §4.7): a
// declarative description of which keys to visit within a subtree, how
// to descend into nested Tree elements, and how limit/offset apply to
// the resulting element stream.
//
// Grounded on `merk.Merk.Walk` (spec §4.3's in-order traversal,
// documented there as built for exactly this use) for Merk-tree
// iteration, and spec §4.7 directly for the QueryItem variants, branch
// selection, and merge rules; the teacher has no analogous range-query
// layer (`treebuilder`/`txindexer` only ever look up a script hash by
// exact key), so this package's shape comes from the spec rather than
// an imitated teacher file.
package query

import "bytes"

// Kind discriminates the nine range shapes a QueryItem can take (spec
// §4.7): an exact key, or one of eight half-open/closed/unbounded byte
// ranges.
type Kind int

const (
	KindKey Kind = iota
	KindRange                 // [Start, End)
	KindRangeInclusive        // [Start, End]
	KindRangeFull             // all keys
	KindRangeFrom             // [Start, ..)
	KindRangeTo               // [.., End)
	KindRangeToInclusive      // [.., End]
	KindRangeAfter            // (Start, ..)
	KindRangeAfterTo          // (Start, End)
	KindRangeAfterToInclusive // (Start, End]
)

// Item is one entry of a Query's ordered item list.
type Item struct {
	Kind  Kind
	Key   []byte
	Start []byte
	End   []byte
}

func Key(k []byte) Item { return Item{Kind: KindKey, Key: k} }

func Range(start, end []byte) Item { return Item{Kind: KindRange, Start: start, End: end} }

func RangeInclusive(start, end []byte) Item {
	return Item{Kind: KindRangeInclusive, Start: start, End: end}
}

func RangeFull() Item { return Item{Kind: KindRangeFull} }

func RangeFrom(start []byte) Item { return Item{Kind: KindRangeFrom, Start: start} }

func RangeTo(end []byte) Item { return Item{Kind: KindRangeTo, End: end} }

func RangeToInclusive(end []byte) Item { return Item{Kind: KindRangeToInclusive, End: end} }

func RangeAfter(start []byte) Item { return Item{Kind: KindRangeAfter, Start: start} }

func RangeAfterTo(start, end []byte) Item {
	return Item{Kind: KindRangeAfterTo, Start: start, End: end}
}

func RangeAfterToInclusive(start, end []byte) Item {
	return Item{Kind: KindRangeAfterToInclusive, Start: start, End: end}
}

// Matches reports whether key falls within this item's bound.
func (it Item) Matches(key []byte) bool {
	switch it.Kind {
	case KindKey:
		return bytes.Equal(key, it.Key)
	case KindRange:
		return bytes.Compare(key, it.Start) >= 0 && bytes.Compare(key, it.End) < 0
	case KindRangeInclusive:
		return bytes.Compare(key, it.Start) >= 0 && bytes.Compare(key, it.End) <= 0
	case KindRangeFull:
		return true
	case KindRangeFrom:
		return bytes.Compare(key, it.Start) >= 0
	case KindRangeTo:
		return bytes.Compare(key, it.End) < 0
	case KindRangeToInclusive:
		return bytes.Compare(key, it.End) <= 0
	case KindRangeAfter:
		return bytes.Compare(key, it.Start) > 0
	case KindRangeAfterTo:
		return bytes.Compare(key, it.Start) > 0 && bytes.Compare(key, it.End) < 0
	case KindRangeAfterToInclusive:
		return bytes.Compare(key, it.Start) > 0 && bytes.Compare(key, it.End) <= 0
	default:
		return false
	}
}
