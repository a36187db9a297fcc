package grove

import (
	"github.com/dashpay/grovedb/batch"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/groveerr"
)

// ApplyBatch applies ops as one atomic write (spec §6.4 "apply_batch"),
// delegating directly to batch.Apply — Phase 0/1/2 and the single
// storage.Transaction commit/rollback already live there.
func (g *Grove) ApplyBatch(ops []batch.QualifiedOp) (cost.OperationCost, error) {
	c, err := batch.Apply(g.store, ops)
	g.log().Debug().Int("ops", len(ops)).Err(err).Msg("apply_batch")
	if err == nil {
		g.recordCommit(nil)
	}
	return c, err
}

// FlagsUpdateCallback rewrites a touched element's opaque flags byte
// string immediately before it is re-encoded (spec §6.4's optional
// apply_batch callback, supplemented per SPEC_FULL.md §C.3): flags feed
// the element's encoded hash but the callback itself is a convenience
// for bookkeeping (e.g. bumping a last-modified counter), not a new hash
// input in its own right.
type FlagsUpdateCallback func(oldFlags, newFlags []byte) ([]byte, error)

// ApplyBatchWithFlagsCallback runs ApplyBatch after invoking cb against
// every op that carries an Element, replacing that Element's Flags with
// cb's return value before the op is handed to batch.Apply.
func (g *Grove) ApplyBatchWithFlagsCallback(ops []batch.QualifiedOp, cb FlagsUpdateCallback) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	rewritten := make([]batch.QualifiedOp, len(ops))
	for i, op := range ops {
		if op.Element != nil {
			existing, gc, err := g.GetRaw(op.Path, op.Key)
			c = c.Add(gc)
			if err != nil {
				return c, err
			}
			var oldFlags []byte
			if existing != nil {
				oldFlags = existing.Flags
			}
			newFlags, err := cb(oldFlags, op.Element.Flags)
			if err != nil {
				return c, groveerr.Wrap("grove.ApplyBatchWithFlagsCallback", groveerr.InvalidBatchOperation, err)
			}
			e := *op.Element
			e.Flags = newFlags
			op.Element = &e
		}
		rewritten[i] = op
	}
	ac, err := g.ApplyBatch(rewritten)
	c = c.Add(ac)
	return c, err
}

// EstimatedCost is the worst-case per-op cost bound EstimateBatchCost
// returns without mutating any state (spec §4.1 "worst-case ... estimators
// exist as pure functions over structural inputs"; supplemented per
// SPEC_FULL.md §C.2 as a named batch variant for fee-estimation callers).
type EstimatedCost struct {
	Op   batch.QualifiedOp
	Cost cost.OperationCost
}

// EstimateBatchCost returns a worst-case cost bound per op instead of
// executing the batch: every InsertOnly/InsertOrReplace/Replace op is
// charged as a fresh write of its full encoded size and a Patch op as a
// fresh write of its delta's length (the "old == 0 bytes" branch of spec §4.1's overwrite arithmetic, the
// most expensive case since ApplyOverwrite's M>N/M<N branches can only
// charge less for an op of the same size), a Delete/DeleteTree op is
// charged a worst-case maxElementSize removal, and a tree-depth factor
// (spec §4.1's "tree depth" structural input) scales seek/hash-call
// counts to account for worst-case propagation up to the grove root.
func EstimateBatchCost(ops []batch.QualifiedOp, maxElementSize int, maxTreeDepth uint32) []EstimatedCost {
	out := make([]EstimatedCost, len(ops))
	for i, op := range ops {
		out[i] = EstimatedCost{Op: op, Cost: estimateOp(op, maxElementSize, maxTreeDepth)}
	}
	return out
}

func estimateOp(op batch.QualifiedOp, maxElementSize int, maxTreeDepth uint32) cost.OperationCost {
	c := cost.OperationCost{}
	switch op.Kind {
	case batch.OpInsertOnly, batch.OpInsertOrReplace, batch.OpReplace:
		size := maxElementSize
		if op.Element != nil {
			if encoded, err := op.Element.Encode(); err == nil {
				size = len(encoded)
			}
		}
		c.ApplyInsert(size)
	case batch.OpPatch:
		c.ApplyInsert(len(op.Delta))
	case batch.OpDelete, batch.OpDeleteTree:
		c.ApplyRemove(maxElementSize)
	default:
		c.ApplyInsert(maxElementSize)
	}
	// Worst case, every ancestor Merk on the path to the root is
	// resolved once and re-hashed once (spec §4.6's
	// propagate_changes_with_transaction walks leaf to root).
	c.AddSeek()
	c.Seeks += maxTreeDepth
	c.AddHashNodeCalls(maxTreeDepth + 1)
	return c
}
