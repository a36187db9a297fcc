package batch

import (
	"bytes"
	"sort"
)

// subtreeGroup is every op (after Phase 0 folding) targeting one Merk
// subtree, in the stable (path, key) order Phase 1 establishes (spec
// §4.8 "stable-sort by (path,key), group"). Type-checking against the
// open Merk happens in Phase 2, since it needs a Merk handle anyway.
type subtreeGroup struct {
	Path [][]byte
	Ops  []QualifiedOp
}

// groupBySubtree stable-sorts ops by (path, key) and partitions them
// into one subtreeGroup per distinct path, preserving each op's
// relative order among ops sharing the same key (so e.g. an Insert
// followed by a Patch on the same key still applies in that order).
func groupBySubtree(ops []QualifiedOp) []subtreeGroup {
	sorted := make([]QualifiedOp, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := pathKey(sorted[i].Path), pathKey(sorted[j].Path)
		if pi != pj {
			return pi < pj
		}
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	var groups []subtreeGroup
	for _, op := range sorted {
		if len(groups) == 0 || pathKey(groups[len(groups)-1].Path) != pathKey(op.Path) {
			groups = append(groups, subtreeGroup{Path: op.Path})
		}
		g := &groups[len(groups)-1]
		g.Ops = append(g.Ops, op)
	}
	return groups
}
