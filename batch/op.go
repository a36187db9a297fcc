// Package batch implements GroveDB's batch engine (spec §4.8): a list of
// QualifiedOps applied to a storage.Store as one atomic write, with a
// preprocessing pass that folds non-Merk append ops into a single
// root-replacement op, a validation pass, and a leaf-to-root propagation
// pass so each touched subtree's hash is recomputed once regardless of
// how many ops touched it.
//
// Grounded on spec §4.8 directly (the teacher has no multi-op atomic
// write path of its own: `txindexer`/`processor` apply one mutation at a
// time against badger's own transaction, never batching heterogeneous
// operation kinds), composing this project's `merk`/`mmr`/`dense`/
// `bulkappend`/`commitment`/`reference` packages for the per-subtree work
// each op ultimately performs.
package batch

import (
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
)

// Kind discriminates a QualifiedOp's operation (spec §4.8). The last
// four are internal-only: Phase 0 produces them, and a batch submitted
// by a caller containing one directly is rejected (InvalidBatchOperation).
type Kind int

const (
	OpInsertOnly Kind = iota
	OpInsertOrReplace
	OpReplace
	OpPatch
	OpRefreshReference
	OpDelete
	OpDeleteTree

	OpCommitmentTreeInsert
	OpMmrTreeAppend
	OpBulkAppend
	OpDenseTreeInsert

	opReplaceTreeRootKey
	opInsertTreeWithRootHash
	opReplaceNonMerkTreeRoot
	opInsertNonMerkTree
)

// IsInternal reports whether kind is one Phase 0/Phase 2 produce
// internally; user-submitted batches must not contain one (spec §4.8
// "user-submitted batches MUST NOT contain internal variants").
func (k Kind) IsInternal() bool {
	return k >= opReplaceTreeRootKey
}

// IsNonMerkAppend reports whether kind is one of the four append
// variants Phase 0 groups and folds (spec §4.8 Phase 0).
func (k Kind) IsNonMerkAppend() bool {
	switch k {
	case OpCommitmentTreeInsert, OpMmrTreeAppend, OpBulkAppend, OpDenseTreeInsert:
		return true
	default:
		return false
	}
}

// NonMerkKind names which non-Merk engine a QualifiedOp's append/root
// payload targets.
type NonMerkKind int

const (
	NonMerkMmr NonMerkKind = iota
	NonMerkDense
	NonMerkBulkAppend
	NonMerkCommitment
)

// NonMerkMeta carries the parent Element fields a non-Merk subtree's
// owning Element must be refreshed with after Phase 0 folds its appends
// (spec §4.8 "ReplaceNonMerkTreeRoot{hash, meta}").
type NonMerkMeta struct {
	Kind NonMerkKind

	MmrSize uint64 // NonMerkMmr

	DenseCount  uint16 // NonMerkDense
	DenseHeight uint8

	TotalCount uint64 // NonMerkBulkAppend, NonMerkCommitment
	ChunkPower uint8

	PayloadSize uint16 // NonMerkCommitment
}

// QualifiedOp is one batch operation, flattened into a single tagged
// struct in the same style as element.Element: only the fields relevant
// to Kind are meaningful.
type QualifiedOp struct {
	Path [][]byte
	Key  []byte

	Kind Kind

	// InsertOnly, InsertOrReplace, Replace
	Element *element.Element

	// Patch: the new raw value bytes for an existing Item/ItemWithSumItem
	// element (spec names this "Δbytes" but leaves the diff format
	// open; see DESIGN.md for why full replacement is used here).
	Delta []byte

	// DeleteTree: the expected discriminant, checked before deleting so
	// a caller can't accidentally blow away a SumTree while expecting a
	// plain Tree (spec §4.8 "DeleteTree(TreeType)").
	TreeType element.Tag

	// CommitmentTreeInsert
	Cmx, Rho hash.Digest

	// CommitmentTreeInsert (ciphertext payload), MmrTreeAppend,
	// BulkAppend, DenseTreeInsert (appended value)
	Value []byte

	// internal: opReplaceTreeRootKey, opInsertTreeWithRootHash
	RootKey  []byte
	RootHash hash.Digest
	Sum      int64
	Count    uint64

	// internal: opReplaceNonMerkTreeRoot, opInsertNonMerkTree
	NonMerkRoot hash.Digest
	NonMerkMeta NonMerkMeta
}

func InsertOnly(path [][]byte, key []byte, e *element.Element) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpInsertOnly, Element: e}
}

func InsertOrReplace(path [][]byte, key []byte, e *element.Element) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpInsertOrReplace, Element: e}
}

func Replace(path [][]byte, key []byte, e *element.Element) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpReplace, Element: e}
}

func Patch(path [][]byte, key []byte, delta []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpPatch, Delta: delta}
}

func RefreshReference(path [][]byte, key []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpRefreshReference}
}

func Delete(path [][]byte, key []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpDelete}
}

func DeleteTree(path [][]byte, key []byte, treeType element.Tag) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpDeleteTree, TreeType: treeType}
}

func CommitmentTreeInsert(path [][]byte, key []byte, cmx, rho hash.Digest, payload []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpCommitmentTreeInsert, Cmx: cmx, Rho: rho, Value: payload}
}

func MmrTreeAppend(path [][]byte, key []byte, value []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpMmrTreeAppend, Value: value}
}

func BulkAppend(path [][]byte, key []byte, value []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpBulkAppend, Value: value}
}

func DenseTreeInsert(path [][]byte, key []byte, value []byte) QualifiedOp {
	return QualifiedOp{Path: path, Key: key, Kind: OpDenseTreeInsert, Value: value}
}
