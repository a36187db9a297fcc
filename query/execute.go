package query

import (
	"encoding/binary"

	"github.com/dashpay/grovedb/bulkappend"
	"github.com/dashpay/grovedb/commitment"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/dense"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/mmr"
	"github.com/dashpay/grovedb/storage"
)

// ResultItem is one element produced by executing a PathQuery: the full
// path to the subtree it was found in (pq.Path plus any subquery
// descent), its key within that subtree, and its decoded Element.
type ResultItem struct {
	Path    [][]byte
	Key     []byte
	Element *element.Element
}

// Executor runs PathQueries against a storage.Context, opening Merk and
// non-Merk subtrees as it descends (spec §4.6's path-addressing scheme,
// reused here rather than duplicated: prefix(path) = hash.SubtreePrefix,
// and the FeatureType a subtree was created with is re-derived from its
// owning parent Element exactly as grove core does on insert).
type Executor struct {
	store storage.Context
}

func NewExecutor(store storage.Context) *Executor {
	return &Executor{store: store}
}

// Execute runs pq and returns the matching elements, already
// limit/offset-bounded in the query's iteration direction.
func (ex *Executor) Execute(pq *PathQuery) ([]ResultItem, cost.OperationCost, error) {
	c := cost.OperationCost{}

	feature, parentElem, fc, err := merk.ResolveFeature(ex.store, pq.Path)
	c = c.Add(fc)
	if err != nil {
		return nil, c, err
	}

	var results []ResultItem
	if parentElem != nil && parentElem.IsNonMerkTree() {
		items, nc, err := ex.executeNonMerk(parentElem, pq.Path, pq.Query.Query)
		c = c.Add(nc)
		if err != nil {
			return nil, c, err
		}
		results = items
	} else {
		prefix := hash.SubtreePrefix(pq.Path)
		m, mc, err := merk.Open(ex.store, prefix, feature)
		c = c.Add(mc)
		if err != nil {
			return nil, c, err
		}
		items, wc, err := ex.executeMerk(m, pq.Path, pq.Query.Query)
		c = c.Add(wc)
		if err != nil {
			return nil, c, err
		}
		results = items
	}

	return applyLimitOffset(results, pq.Query), c, nil
}

// executeMerk walks m in ascending key order, matching each key against
// q.Items in order, descending into Tree/aggregate elements and
// non-Merk subtrees via the selected subquery branch.
func (ex *Executor) executeMerk(m *merk.Merk, path [][]byte, q *Query) ([]ResultItem, cost.OperationCost, error) {
	c := cost.OperationCost{}

	var matched []ResultItem
	for _, item := range q.Items {
		wc, err := m.Walk(func(key []byte, e *element.Element) (bool, error) {
			if item.Matches(key) {
				matched = append(matched, ResultItem{Path: path, Key: key, Element: e})
			}
			return true, nil
		})
		c = c.Add(wc)
		if err != nil {
			return nil, c, err
		}
	}
	if !q.LeftToRight {
		reverseResults(matched)
	}

	var out []ResultItem
	for _, mi := range matched {
		branch := q.branchFor(mi.Key)
		if branch == nil || (!mi.Element.IsTreeLike() && !mi.Element.IsNonMerkTree()) {
			out = append(out, mi)
			continue
		}
		if q.AddParentTreeOnSubquery {
			out = append(out, mi)
		}
		childPath := append(append([][]byte{}, path...), mi.Key)
		childPath = append(childPath, branch.SubqueryPath...)
		sub, sc, err := ex.Execute(&PathQuery{
			Path:  childPath,
			Query: SizedQuery{Query: branch.Subquery},
		})
		c = c.Add(sc)
		if err != nil {
			return nil, c, err
		}
		out = append(out, sub...)
	}
	return out, c, nil
}

// executeNonMerk services a PathQuery whose target path names an
// MMR/Dense/BulkAppend/CommitmentTree subtree directly: Item bounds are
// interpreted as big-endian fixed-width position encodings (spec §4.7)
// rather than arbitrary Merk keys, and the matched range is read from
// the type-specific subtree with no further descent (none of these
// subtree types nest Tree elements).
func (ex *Executor) executeNonMerk(e *element.Element, path [][]byte, q *Query) ([]ResultItem, cost.OperationCost, error) {
	c := cost.OperationCost{}
	prefix := hash.SubtreePrefix(path)

	reader, count, widthBytes, oc, err := openNonMerkReader(ex.store, prefix, e)
	c = c.Add(oc)
	if err != nil {
		return nil, c, err
	}

	var positions []uint64
	for _, item := range q.Items {
		for pos := uint64(0); pos < count; pos++ {
			key := encodePosition(pos, widthBytes)
			if item.Matches(key) {
				positions = append(positions, pos)
			}
		}
	}
	if !q.LeftToRight {
		reverseUint64(positions)
	}

	var out []ResultItem
	for _, pos := range positions {
		el, vc, err := reader(pos)
		c = c.Add(vc)
		if err != nil {
			return nil, c, err
		}
		out = append(out, ResultItem{Path: path, Key: encodePosition(pos, widthBytes), Element: el})
	}
	return out, c, nil
}

func encodePosition(pos uint64, widthBytes int) []byte {
	if widthBytes == 2 {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(pos))
		return b
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, pos)
	return b
}

// openNonMerkReader opens e's subtree once and returns its addressable
// position count, the big-endian key width used to encode a position
// (spec §4.7: u16 for dense positions, u64 for MMR leaf indices and
// Bulk/CommitmentTree positions), and a per-position reader closure
// wrapping each value as a synthetic Item/Bytes element so the result
// stream has a uniform shape regardless of subtree kind.
func openNonMerkReader(store storage.Context, prefix hash.Digest, e *element.Element) (reader func(uint64) (*element.Element, cost.OperationCost, error), count uint64, widthBytes int, c cost.OperationCost, err error) {
	switch e.Tag {
	case element.TagMmrTree:
		t, oc, err := mmr.Open(store, prefix)
		if err != nil {
			return nil, 0, 0, oc, err
		}
		return func(pos uint64) (*element.Element, cost.OperationCost, error) {
			v, vc, err := t.GetLeaf(pos)
			if err != nil {
				return nil, vc, err
			}
			return element.NewItem(v, nil), vc, nil
		}, t.LeafCount(), 8, oc, nil
	case element.TagDenseTree:
		t, oc, err := dense.Open(store, prefix, e.DenseHeight)
		if err != nil {
			return nil, 0, 0, oc, err
		}
		return func(pos uint64) (*element.Element, cost.OperationCost, error) {
			v, vc, err := t.Get(uint16(pos))
			if err != nil {
				return nil, vc, err
			}
			return element.NewItem(v, nil), vc, nil
		}, uint64(t.Count()), 2, oc, nil
	case element.TagBulkAppendTree:
		t, oc, err := bulkappend.Open(store, prefix, e.ChunkPower)
		if err != nil {
			return nil, 0, 0, oc, err
		}
		return func(pos uint64) (*element.Element, cost.OperationCost, error) {
			v, vc, err := t.GetValue(pos)
			if err != nil {
				return nil, vc, err
			}
			return element.NewItem(v, nil), vc, nil
		}, t.TotalCount(), 8, oc, nil
	case element.TagCommitmentTree:
		t, oc, err := commitment.Open(store, prefix, e.ChunkPower, int(e.PayloadSize))
		if err != nil {
			return nil, 0, 0, oc, err
		}
		return func(pos uint64) (*element.Element, cost.OperationCost, error) {
			cmx, rho, payload, vc, err := t.GetValue(pos)
			if err != nil {
				return nil, vc, err
			}
			record := make([]byte, 0, 64+len(payload))
			record = append(record, cmx[:]...)
			record = append(record, rho[:]...)
			record = append(record, payload...)
			return element.NewItem(record, nil), vc, nil
		}, t.Count(), 8, oc, nil
	default:
		return nil, 0, 0, cost.OperationCost{}, groveerr.New("query.openNonMerkReader", groveerr.InvalidElementType)
	}
}

func reverseResults(items []ResultItem) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

func reverseUint64(items []uint64) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}

// applyLimitOffset applies sq.Offset then sq.Limit over results in the
// already-established iteration direction (spec §4.7: "limit and offset
// apply across the final element stream in the iteration direction").
func applyLimitOffset(results []ResultItem, sq SizedQuery) []ResultItem {
	if sq.Offset != nil {
		off := *sq.Offset
		if off >= uint64(len(results)) {
			return nil
		}
		results = results[off:]
	}
	if sq.Limit != nil && *sq.Limit < uint64(len(results)) {
		results = results[:*sq.Limit]
	}
	return results
}
