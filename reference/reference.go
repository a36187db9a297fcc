// Package reference implements GroveDB's seven reference-resolution
// kinds and hop-bounded, cycle-detecting dereferencing (spec §4.5,
// invariant 7).
//
// Resolution is grounded on the teacher's txindexer plugin-dispatch
// shape (_examples/shruggr-inspiration/txindexer/indexer.go), which
// switches on a small discriminant to pick a strategy; here the
// discriminant is element.ReferenceKind and the strategies are pure
// path-rewriting functions rather than indexer plugins.
package reference

import (
	"bytes"
	"fmt"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
)

// MaxHops bounds reference-chain dereferencing (spec invariant 7).
const MaxHops = 10

// Path is an ordered sequence of path segments, mirroring spec §3.1's
// Path entity.
type Path = [][]byte

// Qualified names an absolute (subtree path, key) pair a reference
// ultimately points at.
type Qualified struct {
	Path Path
	Key  []byte
}

func clonePath(p Path) Path {
	out := make(Path, len(p))
	for i, seg := range p {
		out[i] = append([]byte{}, seg...)
	}
	return out
}

func appendSeg(p Path, seg []byte) Path {
	out := clonePath(p)
	return append(out, append([]byte{}, seg...))
}

// Resolve computes the absolute qualified path a reference element
// points at, given the path and key at which the reference itself is
// stored (spec §4.5's resolve, one rule per element.ReferenceKind).
func Resolve(e *element.Element, currentPath Path, currentKey []byte) (Qualified, error) {
	if e.Tag != element.TagReference {
		return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidElementType)
	}

	switch e.RefKind {
	case element.RefAbsolutePath:
		// (i) absolute path list: RefPath is the full subtree path,
		// RefKey the key within it.
		return Qualified{Path: clonePath(e.RefPath), Key: append([]byte{}, e.RefKey...)}, nil

	case element.RefUpstreamRoot:
		// (ii) keep the first N segments of current path then append
		// RefPath's segments. RefPath[0] carries N as a big-endian
		// length-1 marker is avoided; instead the convention here is
		// that RefPath itself IS the suffix to append, and the kept
		// prefix length is len(currentPath) - upstream distance, which
		// we encode as the number of leading empty markers is not used
		// — callers pass the already-computed keep-count via RefMaxHop
		// when RefHasHop, else keep the whole current path minus one
		// segment (the common "go to the parent, then append" case).
		n := len(currentPath)
		if e.RefHasHop && int(e.RefMaxHop) < n {
			n = int(e.RefMaxHop)
		} else if n > 0 {
			n = n - 1
		}
		base := clonePath(currentPath[:n])
		full := append(base, e.RefPath...)
		return splitPathKey(full, e.RefKey)

	case element.RefUpstreamRootRepeat:
		// (iii) same as (ii) but re-append the current key segment
		// before the RefPath suffix (so the element that held the
		// reference's own key reappears one level up).
		n := len(currentPath)
		if e.RefHasHop && int(e.RefMaxHop) < n {
			n = int(e.RefMaxHop)
		} else if n > 0 {
			n = n - 1
		}
		base := clonePath(currentPath[:n])
		base = appendSeg(base, currentKey)
		full := append(base, e.RefPath...)
		return splitPathKey(full, e.RefKey)

	case element.RefUpstreamFromElement:
		// (iv) drop the last N segments of current path, then append
		// RefPath.
		n := int(e.RefMaxHop)
		if n > len(currentPath) {
			return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidPath)
		}
		base := clonePath(currentPath[:len(currentPath)-n])
		full := append(base, e.RefPath...)
		return splitPathKey(full, e.RefKey)

	case element.RefCousinReference:
		// (v) replace the last segment of current path with a given
		// cousin key, keeping the same key within that sibling subtree.
		if len(currentPath) == 0 {
			return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidPath)
		}
		if len(e.RefPath) != 1 {
			return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidPath)
		}
		base := clonePath(currentPath[:len(currentPath)-1])
		base = append(base, append([]byte{}, e.RefPath[0]...))
		return Qualified{Path: base, Key: append([]byte{}, currentKey...)}, nil

	case element.RefRemovedCousinReference:
		// (vi) replace the parent with a given multi-segment path,
		// keeping the reference's own current key.
		return Qualified{Path: clonePath(e.RefPath), Key: append([]byte{}, currentKey...)}, nil

	case element.RefSiblingReference:
		// (vii) change only the final key within the same parent.
		return Qualified{Path: clonePath(currentPath), Key: append([]byte{}, e.RefKey...)}, nil

	default:
		return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidElementType)
	}
}

func splitPathKey(full Path, key []byte) (Qualified, error) {
	if len(key) == 0 && len(full) == 0 {
		return Qualified{}, groveerr.New("reference.Resolve", groveerr.InvalidPath)
	}
	return Qualified{Path: full, Key: append([]byte{}, key...)}, nil
}

// Reader reads the element stored at (path, key); it abstracts over
// grove's storage-backed get so this package stays free of storage
// and cost-monad imports (those wrap Reader at the call site).
type Reader func(path Path, key []byte) (*element.Element, error)

// Dereference follows a chain of element.TagReference elements
// starting at (path, key), applying Resolve repeatedly, until it lands
// on a non-Reference element or fails per spec §4.5's pseudocode:
// cycle detection via a visited-set of qualified targets, and a hop
// budget of MaxHops.
func Dereference(read Reader, path Path, key []byte) (*element.Element, Qualified, error) {
	current := Qualified{Path: clonePath(path), Key: append([]byte{}, key...)}
	visited := map[string]bool{qualifiedKey(current): true}

	elem, err := read(current.Path, current.Key)
	if err != nil {
		return nil, Qualified{}, err
	}
	if elem == nil {
		return nil, Qualified{}, groveerr.New("reference.Dereference", groveerr.KeyNotFound)
	}

	hops := MaxHops
	for elem.Tag == element.TagReference {
		target, err := Resolve(elem, current.Path, current.Key)
		if err != nil {
			return nil, Qualified{}, err
		}
		tk := qualifiedKey(target)
		if visited[tk] {
			return nil, Qualified{}, groveerr.New("reference.Dereference", groveerr.CyclicReference)
		}
		visited[tk] = true

		if hops == 0 {
			return nil, Qualified{}, groveerr.New("reference.Dereference", groveerr.HopLimitExceeded)
		}
		hops--

		elem, err = read(target.Path, target.Key)
		if err != nil {
			return nil, Qualified{}, err
		}
		if elem == nil {
			return nil, Qualified{}, groveerr.New("reference.Dereference", groveerr.KeyNotFound)
		}
		current = target
	}

	return elem, current, nil
}

func qualifiedKey(q Qualified) string {
	var buf bytes.Buffer
	for _, seg := range q.Path {
		fmt.Fprintf(&buf, "%d:", len(seg))
		buf.Write(seg)
	}
	fmt.Fprintf(&buf, "|%d:", len(q.Key))
	buf.Write(q.Key)
	return buf.String()
}
