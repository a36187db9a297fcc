// Package storage implements the path-prefixed storage abstraction of
// spec §4.2/§6.1: four logical column families (default, aux, roots,
// meta) over an underlying transactional ordered KV store, with
// immediate and optimistic-transactional write contexts and atomic write
// batches.
//
// It is grounded on the teacher's kvstore package
// (_examples/shruggr-inspiration/kvstore/store.go), which defines a
// minimal Put/Get/Delete/Close interface wrapping a 32-byte hash key; we
// keep that interface shape but widen it from a single namespace to the
// four logical CFs GroveDB needs, and add transaction/batch semantics the
// teacher's interface didn't need for its single-writer indexing use
// case.
package storage

import "github.com/dashpay/grovedb/hash"

// CF identifies one of the four logical column families (spec §4.2).
type CF int

const (
	// CFDefault holds serialized Merk tree nodes, keyed by
	// prefix(32) || node_key, and (for non-Merk subtrees) type-specific
	// data blobs under distinct single-byte sub-prefixes.
	CFDefault CF = iota
	// CFAux holds application-defined auxiliary key-value pairs.
	CFAux
	// CFRoots holds the subtree root-key registry: one entry per
	// subtree prefix naming which key is the current AVL root.
	CFRoots
)

// MetaKey namespaces are raw, unprefixed keys in the meta CF (spec
// §4.2): global version/feature-flag state that isn't scoped to any
// subtree.
type MetaKey []byte

// IterOptions controls the bounds and direction of a range scan.
type IterOptions struct {
	// Start and End bound the scan lexicographically within the CF's
	// key space *after* prefix stripping (i.e. over the raw node/app
	// key, not the prefix-qualified storage key). A nil Start/End
	// leaves that side unbounded.
	Start, End []byte
	// Reverse iterates from End down to Start when true.
	Reverse bool
}

// IterFunc is invoked once per key in scan order. Returning false stops
// the iteration early without an error.
type IterFunc func(key, value []byte) (more bool, err error)

// Context is a single logical view over the four-CF store, fixed to one
// subtree prefix's worth of keys for CFDefault/CFAux/CFRoots operations.
// Implementations MUST prefix every CFDefault/CFAux/CFRoots key with the
// 32-byte subtree prefix so namespace isolation holds (spec invariant 6).
type Context interface {
	Get(cf CF, prefix hash.Digest, key []byte) ([]byte, error)
	Put(cf CF, prefix hash.Digest, key []byte, value []byte) error
	Delete(cf CF, prefix hash.Digest, key []byte) error

	// Iterate scans CFDefault/CFAux keys under prefix in key order
	// (or reverse, per opts.Reverse).
	Iterate(cf CF, prefix hash.Digest, opts IterOptions, fn IterFunc) error

	// DeletePrefix removes every key under prefix in cf; used by
	// recursive DeleteTree (spec §3.3) and non-Merk subtree resets.
	DeletePrefix(cf CF, prefix hash.Digest) error

	GetMeta(key MetaKey) ([]byte, error)
	PutMeta(key MetaKey, value []byte) error
	DeleteMeta(key MetaKey) error
}

// Batch accumulates writes for atomic application (spec §4.2 "write
// batch"). Unlike Transaction, a Batch does no conflict detection: it is
// a pure accumulate-then-flush buffer, matching the teacher's
// "writes into a transaction are buffered, not immediately readable"
// discipline (spec §4.2 commit discipline) one level down.
type Batch interface {
	Context
	// Flush atomically applies every buffered write. A Batch MUST NOT
	// be reused after Flush.
	Flush() error
	// Discard abandons the batch without applying any write.
	Discard()
}

// Transaction is an optimistic, read-committed-snapshot transactional
// context (spec §4.2, §5): reads observe a consistent snapshot, writes
// are buffered until Commit, and Commit fails with a conflict error if
// the read or write set overlaps a transaction committed concurrently,
// in which case the caller MUST retry.
//
// Per spec §4.2's commit discipline, callers MUST release any handle
// derived from the transaction (e.g. an open Batch) before calling
// Commit; a transaction dropped without Commit rolls back silently
// (spec §5 "Cancellation").
type Transaction interface {
	Context
	Commit() error
	Rollback() error
}

// Store is the top-level handle over the underlying KV engine, vending
// both an always-available immediate context and fresh optimistic
// transactions (spec §4.2: "immediate context writes through with no
// transaction").
type Store interface {
	// Immediate returns a context that commits each write through
	// without an explicit transaction.
	Immediate() Context
	// Begin starts a new optimistic transaction.
	Begin() (Transaction, error)
	Close() error
}
