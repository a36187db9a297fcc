package query

import "github.com/dashpay/grovedb/groveerr"

// pendingQuery is a PathQuery's SizedQuery paired with the portion of
// its path not yet consumed while folding it into a shared merge tree.
type pendingQuery struct {
	rest [][]byte
	sq   SizedQuery
}

// Merge combines multiple PathQueries into one equivalent PathQuery by
// common path prefix (spec §4.7): at the longest path shared by every
// input, sibling queries are folded into Items/subquery branches of a
// single merged Query, so a single Execute call covers what would
// otherwise require running each PathQuery independently.
//
// All queries must share the same Limit/Offset at the merge point (spec
// leaves this detail open; requiring agreement is the conservative
// choice, since silently picking one query's bound over another's would
// change what the caller asked for).
func Merge(queries []*PathQuery) (*PathQuery, error) {
	if len(queries) == 0 {
		return nil, groveerr.New("query.Merge", groveerr.InvalidPath)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}

	commonLen := len(queries[0].Path)
	for _, pq := range queries[1:] {
		commonLen = commonPrefixLen(queries[0].Path[:commonLen], pq.Path)
	}

	items := make([]pendingQuery, len(queries))
	for i, pq := range queries {
		items[i] = pendingQuery{rest: pq.Path[commonLen:], sq: pq.Query}
	}

	limit := items[0].sq.Limit
	offset := items[0].sq.Offset
	for _, it := range items[1:] {
		if !uint64PtrEqual(limit, it.sq.Limit) || !uint64PtrEqual(offset, it.sq.Offset) {
			return nil, groveerr.New("query.Merge", groveerr.InvalidPath)
		}
	}

	mergedQuery, err := mergeAtLevel(items)
	if err != nil {
		return nil, err
	}

	return &PathQuery{
		Path:  queries[0].Path[:commonLen],
		Query: SizedQuery{Query: mergedQuery, Limit: limit, Offset: offset},
	}, nil
}

// mergeAtLevel folds a set of PathQuery suffixes (relative to a shared
// base path) into one Query at that base path: suffixes that terminate
// here contribute their Items/branches directly; suffixes that continue
// deeper are grouped by their next path segment and folded into a Key
// item whose subquery recursively merges that group.
func mergeAtLevel(items []pendingQuery) (*Query, error) {
	q := New()
	groups := map[string][]pendingQuery{}
	var groupOrder []string

	for _, it := range items {
		if len(it.rest) == 0 {
			q.Items = append(q.Items, it.sq.Query.Items...)
			if q.DefaultSubqueryBranch == nil {
				q.DefaultSubqueryBranch = it.sq.Query.DefaultSubqueryBranch
			}
			q.ConditionalSubqueryBranches = append(q.ConditionalSubqueryBranches, it.sq.Query.ConditionalSubqueryBranches...)
			q.AddParentTreeOnSubquery = q.AddParentTreeOnSubquery || it.sq.Query.AddParentTreeOnSubquery
			q.LeftToRight = it.sq.Query.LeftToRight
			continue
		}
		seg := string(it.rest[0])
		if _, ok := groups[seg]; !ok {
			groupOrder = append(groupOrder, seg)
		}
		groups[seg] = append(groups[seg], pendingQuery{rest: it.rest[1:], sq: it.sq})
	}

	for _, seg := range groupOrder {
		segBytes := []byte(seg)
		childQuery, err := mergeAtLevel(groups[seg])
		if err != nil {
			return nil, err
		}
		q.ConditionalSubqueryBranches = append(q.ConditionalSubqueryBranches, ConditionalBranch{
			Item:   Key(segBytes),
			Branch: &Branch{Subquery: childQuery},
		})
		q.Items = append(q.Items, Key(segBytes))
	}

	return q, nil
}

func commonPrefixLen(a, b [][]byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && bytesEqual(a[i], b[i]) {
		i++
	}
	return i
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func uint64PtrEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
