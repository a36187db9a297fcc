package batch

import (
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/storage"
)

// Apply runs ops against store as one atomic write: Phase 0 folds
// non-Merk append ops, Phase 1 groups the result by subtree, Phase 2
// applies every group and propagates hash changes up to the root, and
// the whole thing commits or rolls back together via a single
// storage.Transaction (spec §4.8 "applied as one atomic unit").
func Apply(store storage.Store, ops []QualifiedOp) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	if len(ops) == 0 {
		return c, nil
	}

	txn, err := store.Begin()
	if err != nil {
		return c, groveerr.Wrap("batch.Apply", groveerr.StorageError, err)
	}

	folded, pc, err := preprocess(txn, ops)
	c = c.Add(pc)
	if err != nil {
		txn.Rollback()
		return c, err
	}

	groups := groupBySubtree(folded)

	ac, err := apply(txn, groups)
	c = c.Add(ac)
	if err != nil {
		txn.Rollback()
		return c, err
	}

	if err := txn.Commit(); err != nil {
		return c, groveerr.Wrap("batch.Apply", groveerr.StorageError, err)
	}
	return c, nil
}
