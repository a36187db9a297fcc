// Package grove implements GroveDB's top-level public API surface (spec
// §4.6, §6.4): a thin facade addressing a recursive tree of Merk and
// non-Merk subtrees by path, built entirely on top of this project's own
// already-grounded packages (merk, batch, query, proof) rather than
// duplicating their tree-walking or propagation logic.
//
// Grounded on the teacher's constructor-injection style
// (_examples/shruggr-inspiration/processor/processor.go's
// NewProcessor(store, idx)): Grove holds its dependencies (a
// storage.Store, an optional logger) as unexported fields set once at
// Open, the same shape as Processor holding its KVStore/Indexer.
package grove

import (
	"context"
	"time"

	"github.com/dashpay/grovedb/batch"
	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveadmin"
	"github.com/dashpay/grovedb/groveerr"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/reference"
	"github.com/dashpay/grovedb/storage"

	"github.com/rs/zerolog"
)

// Options configures a Grove at Open (spec §A.3: constructor options,
// not a viper/env layer — grove is a library, not a standalone service).
type Options struct {
	// Storage is the underlying store grove addresses every subtree
	// through. Required.
	Storage storage.Store

	// Logger receives structured events for committed writes and batch
	// applications (spec §A.1). Nil discards logging, matching the
	// teacher's badger opts.WithLogger(nil) convention.
	Logger *zerolog.Logger

	// CacheSize bounds a merk.LinkCache shared across every subtree Grove
	// opens (spec §4.3.4): each Merk.Prune remembers the nodes it drops
	// there, so a later re-open of the same path can recall them instead
	// of issuing a storage fetch. Zero (the default) disables the cache
	// entirely — every open always hits storage.
	CacheSize int

	// Admin, if set, receives one recorded commit for every successful
	// grove-root-changing write (spec SPEC_FULL.md §B's commit-history
	// ledger). Nil disables commit recording entirely — the ledger is
	// not on the hot path of any core operation.
	Admin *groveadmin.Ledger
}

// Grove is the top-level handle over a GroveDB instance.
type Grove struct {
	store  storage.Store
	logger zerolog.Logger
	admin  *groveadmin.Ledger
	cache  *merk.LinkCache
}

// Open constructs a Grove over opts.Storage.
func Open(opts Options) (*Grove, error) {
	if opts.Storage == nil {
		return nil, groveerr.New("grove.Open", groveerr.InvalidPath)
	}
	g := &Grove{store: opts.Storage, logger: zerolog.Nop(), admin: opts.Admin}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	}
	if opts.CacheSize > 0 {
		cache, err := merk.NewLinkCache(opts.CacheSize)
		if err != nil {
			return nil, groveerr.Wrap("grove.Open", groveerr.InvalidPath, err)
		}
		g.cache = cache
	}
	return g, nil
}

// openAtPath opens the Merk subtree addressed by path through g.cache,
// the single choke point every read path in this file goes through so
// Options.CacheSize actually bounds repeated subtree opens.
func (g *Grove) openAtPath(path [][]byte) (*merk.Merk, *element.Element, cost.OperationCost, error) {
	return merk.OpenAtPathCached(g.store.Immediate(), path, g.cache)
}

// recordCommit appends a groveadmin.Commit row for the grove root's
// current hash after a successful write, if an Admin ledger was
// configured. Recording failures are logged and swallowed rather than
// propagated: the ledger is an auditing convenience, not a write-path
// dependency, so a sqlite hiccup must never fail the mutation whose
// result it is merely trying to log.
func (g *Grove) recordCommit(path [][]byte) {
	if g.admin == nil {
		return
	}
	root, _, err := g.RootHash(nil)
	if err != nil {
		g.log().Warn().Err(err).Msg("recordCommit: failed to read root hash")
		return
	}
	if _, err := g.admin.Record(context.Background(), pathKey(path), root, time.Now().Unix()); err != nil {
		g.log().Warn().Err(err).Msg("recordCommit: failed to append ledger row")
	}
}

func pathKey(path [][]byte) string {
	out := make([]byte, 0, len(path)*8)
	for _, seg := range path {
		out = append(out, seg...)
		out = append(out, '/')
	}
	return string(out)
}

// log returns the component logger, pre-tagged with the component name
// (spec §A.1's structured-logging convention).
func (g *Grove) log() *zerolog.Logger {
	l := g.logger.With().Str("component", "grove").Logger()
	return &l
}

// Insert stores el at (path, key), creating (or reusing) path's parent
// Merk, recomputing its value hash per spec §4.3.1, and propagating the
// new root hash up to the grove root (spec §4.6 steps 1-6). Delegates
// to batch.Apply with a single op so the propagation/commit machinery
// exists in exactly one place.
func (g *Grove) Insert(path [][]byte, key []byte, el *element.Element) (cost.OperationCost, error) {
	c, err := batch.Apply(g.store, []batch.QualifiedOp{batch.InsertOrReplace(path, key, el)})
	g.log().Debug().Strs("path", pathStrings(path)).Bytes("key", key).Err(err).Msg("insert")
	if err == nil {
		g.recordCommit(path)
	}
	return c, err
}

// InsertIfNotExists inserts el at (path, key) only if the key is
// currently absent, failing InvalidBatchOperation otherwise (spec §6.4
// "insert_if_not_exists").
func (g *Grove) InsertIfNotExists(path [][]byte, key []byte, el *element.Element) (cost.OperationCost, error) {
	c, err := batch.Apply(g.store, []batch.QualifiedOp{batch.InsertOnly(path, key, el)})
	if err == nil {
		g.recordCommit(path)
	}
	return c, err
}

// Get returns the element stored at (path, key), dereferencing it first
// if it is a Reference (spec §6.4 "get" vs "get_raw"). Returns (nil,
// cost, nil) if absent.
func (g *Grove) Get(path [][]byte, key []byte) (*element.Element, cost.OperationCost, error) {
	c := cost.OperationCost{}
	reader := g.reader(&c)
	el, _, err := reference.Dereference(reader, path, key)
	if err != nil {
		if groveerr.Is(err, groveerr.KeyNotFound) {
			return nil, c, nil
		}
		return nil, c, err
	}
	return el, c, nil
}

// GetRaw returns the element stored at (path, key) without following a
// Reference (spec §6.4 "get_raw").
func (g *Grove) GetRaw(path [][]byte, key []byte) (*element.Element, cost.OperationCost, error) {
	m, _, oc, err := g.openAtPath(path)
	c := oc
	if err != nil {
		return nil, c, err
	}
	el, gc, err := m.Get(key)
	c = c.Add(gc)
	m.Prune()
	return el, c, err
}

// HasRaw reports whether (path, key) holds any element, without
// dereferencing (spec §6.4 "has_raw").
func (g *Grove) HasRaw(path [][]byte, key []byte) (bool, cost.OperationCost, error) {
	el, c, err := g.GetRaw(path, key)
	return el != nil, c, err
}

// reader adapts Grove's storage into the reference.Reader shape
// reference.Dereference needs, folding every intermediate Get's cost
// into acc.
func (g *Grove) reader(acc *cost.OperationCost) reference.Reader {
	return func(path reference.Path, key []byte) (*element.Element, error) {
		m, _, oc, err := g.openAtPath(path)
		*acc = acc.Add(oc)
		if err != nil {
			return nil, err
		}
		el, gc, err := m.Get(key)
		*acc = acc.Add(gc)
		m.Prune()
		return el, err
	}
}

// Delete removes (path, key), propagating the parent's new root hash up
// to the grove root (spec §4.6 "delete").
func (g *Grove) Delete(path [][]byte, key []byte) (cost.OperationCost, error) {
	c, err := batch.Apply(g.store, []batch.QualifiedOp{batch.Delete(path, key)})
	g.log().Debug().Strs("path", pathStrings(path)).Bytes("key", key).Err(err).Msg("delete")
	if err == nil {
		g.recordCommit(path)
	}
	return c, err
}

// DeleteIfEmptyTree deletes (path, key) only if it names a Tree-like
// element whose child subtree is currently empty (spec §6.4
// "delete_if_empty_tree"), erroring InvalidBatchOperation otherwise.
func (g *Grove) DeleteIfEmptyTree(path [][]byte, key []byte) (cost.OperationCost, error) {
	el, c, err := g.GetRaw(path, key)
	if err != nil {
		return c, err
	}
	if el == nil {
		return c, groveerr.New("grove.DeleteIfEmptyTree", groveerr.KeyNotFound)
	}
	if !el.IsTreeLike() {
		return c, groveerr.New("grove.DeleteIfEmptyTree", groveerr.InvalidElementType)
	}
	childPath := append(append([][]byte{}, path...), key)
	child, _, oc, err := g.openAtPath(childPath)
	c = c.Add(oc)
	if err != nil {
		return c, err
	}
	if !child.IsEmpty() {
		return c, groveerr.New("grove.DeleteIfEmptyTree", groveerr.InvalidBatchOperation)
	}
	dc, err := g.Delete(path, key)
	c = c.Add(dc)
	return c, err
}

// DeleteTree removes the Tree-like element at (path, key) together with
// its entire child subtree (spec §4.6 "delete_tree may be recursive
// (default) or require emptiness (opt-in)"). requireEmpty=true rejects
// the call with InvalidBatchOperation if the child subtree holds any
// entries, instead of performing batch.DeleteTree's unconditional
// recursive wipe.
func (g *Grove) DeleteTree(path [][]byte, key []byte, treeType element.Tag, requireEmpty bool) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	if requireEmpty {
		childPath := append(append([][]byte{}, path...), key)
		child, _, oc, err := g.openAtPath(childPath)
		c = c.Add(oc)
		if err != nil {
			return c, err
		}
		if !child.IsEmpty() {
			return c, groveerr.New("grove.DeleteTree", groveerr.InvalidBatchOperation)
		}
	}
	bc, err := batch.Apply(g.store, []batch.QualifiedOp{batch.DeleteTree(path, key, treeType)})
	c = c.Add(bc)
	if err == nil {
		g.recordCommit(path)
	}
	return c, err
}

// RootHash returns the current root hash of the Merk subtree at path
// (spec §6.4 "root_hash"); path nil/empty addresses the grove root.
func (g *Grove) RootHash(path [][]byte) (hash.Digest, cost.OperationCost, error) {
	m, _, c, err := g.openAtPath(path)
	if err != nil {
		return hash.Null, c, err
	}
	return m.RootHash(), c, nil
}

// PutAux stores a raw application-defined key/value pair in the aux CF
// under path's subtree prefix (spec §4.2's aux namespace), entirely
// outside the Merk/hash machinery: aux entries never feed a node hash.
func (g *Grove) PutAux(path [][]byte, key, value []byte) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	prefix := hash.SubtreePrefix(path)
	if err := g.store.Immediate().Put(storage.CFAux, prefix, key, value); err != nil {
		return c, groveerr.Wrap("grove.PutAux", groveerr.StorageError, err)
	}
	c.ApplyInsert(len(value))
	return c, nil
}

// GetAux reads back a value stored by PutAux, or (nil, cost, nil) if
// absent (spec §4.2, §4.6 "get_aux").
func (g *Grove) GetAux(path [][]byte, key []byte) ([]byte, cost.OperationCost, error) {
	c := cost.OperationCost{}
	prefix := hash.SubtreePrefix(path)
	v, err := g.store.Immediate().Get(storage.CFAux, prefix, key)
	if err != nil {
		return nil, c, groveerr.Wrap("grove.GetAux", groveerr.StorageError, err)
	}
	c.AddSeek()
	if v != nil {
		c.AddLoadedBytes(uint64(len(v)))
	}
	return v, c, nil
}

// DeleteAux removes a value stored by PutAux.
func (g *Grove) DeleteAux(path [][]byte, key []byte) (cost.OperationCost, error) {
	c := cost.OperationCost{}
	prefix := hash.SubtreePrefix(path)
	if err := g.store.Immediate().Delete(storage.CFAux, prefix, key); err != nil {
		return c, groveerr.Wrap("grove.DeleteAux", groveerr.StorageError, err)
	}
	return c, nil
}

func pathStrings(path [][]byte) []string {
	out := make([]string, len(path))
	for i, seg := range path {
		out[i] = string(seg)
	}
	return out
}
