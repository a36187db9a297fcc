package grove

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/query"
)

// Query runs pq against the grove and returns every matching element
// (spec §6.4 "query"), reusing query.Executor directly.
func (g *Grove) Query(pq *query.PathQuery) ([]query.ResultItem, cost.OperationCost, error) {
	ex := query.NewExecutor(g.store.Immediate())
	return ex.Execute(pq)
}

// QueryMany merges pqs by common path prefix (query.Merge) and executes
// the merged result as a single PathQuery (spec §4.7 "query merging",
// exposed at the public surface as §6.4 "query_many").
func (g *Grove) QueryMany(pqs []*query.PathQuery) ([]query.ResultItem, cost.OperationCost, error) {
	merged, err := query.Merge(pqs)
	if err != nil {
		return nil, cost.OperationCost{}, err
	}
	return g.Query(merged)
}

// QueryItemValue runs pq and returns the single raw element value it
// resolves to, erroring InvalidPath if the query yields zero or more
// than one element (SPEC_FULL.md §C.1's supplement of the
// "query_item_value" name in spec §6.4: a convenience for the common
// "fetch exactly one leaf" shape without building a full result set).
func (g *Grove) QueryItemValue(pq *query.PathQuery) (*element.Element, cost.OperationCost, error) {
	results, c, err := g.Query(pq)
	if err != nil {
		return nil, c, err
	}
	if len(results) != 1 {
		return nil, c, groveerr.New("grove.QueryItemValue", groveerr.InvalidPath)
	}
	return results[0].Element, c, nil
}
