package query

// Branch is the subquery a matched Tree-element key descends into (spec
// §4.7): an optional extra path to append before the subquery's own
// items are evaluated against the descended-into subtree.
type Branch struct {
	Subquery     *Query
	SubqueryPath [][]byte
}

// ConditionalBranch pairs a QueryItem with the Branch to use for keys it
// matches, overriding Query.DefaultSubqueryBranch (spec §4.7: "ordered
// map from QueryItem to branch" — represented here as an ordered slice
// since Go has no ordered-map literal and evaluation order matters:
// first matching entry wins).
type ConditionalBranch struct {
	Item   Item
	Branch *Branch
}

// Query is one subtree-level query: which keys to visit, and how to
// descend into any of them that resolve to a Tree element.
type Query struct {
	Items                       []Item
	DefaultSubqueryBranch       *Branch
	ConditionalSubqueryBranches []ConditionalBranch
	LeftToRight                 bool
	AddParentTreeOnSubquery     bool
}

// New returns a Query with the default left-to-right iteration order.
func New() *Query {
	return &Query{LeftToRight: true}
}

// BranchFor exposes branchFor's subquery-branch selection to callers
// outside this package (grove's layered proof generation independently
// decides whether a matched key descends before recursing a level
// deeper, rather than duplicating Execute's own descent).
func (q *Query) BranchFor(key []byte) *Branch {
	return q.branchFor(key)
}

// branchFor returns the subquery branch a matched key should descend
// into: the first ConditionalSubqueryBranches entry whose Item matches,
// else DefaultSubqueryBranch, else nil (no descent).
func (q *Query) branchFor(key []byte) *Branch {
	for _, cb := range q.ConditionalSubqueryBranches {
		if cb.Item.Matches(key) {
			return cb.Branch
		}
	}
	return q.DefaultSubqueryBranch
}

// SizedQuery bounds a Query's result stream.
type SizedQuery struct {
	Query  *Query
	Limit  *uint64
	Offset *uint64
}

// PathQuery addresses a SizedQuery at a specific subtree path.
type PathQuery struct {
	Path  [][]byte
	Query SizedQuery
}
