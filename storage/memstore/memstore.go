// Package memstore is an in-memory storage.Store, grounded on the
// teacher's kvstore/memory package
// (_examples/shruggr-inspiration/kvstore/memory/memory.go), which backs
// a sync.Map with hex-encoded keys for a single flat namespace. We widen
// that to the four-CF storage.Context contract and add transaction and
// batch support (a mutex-guarded map plus a pending-writes overlay),
// since GroveDB's commit/rollback contract (spec §4.2, §5) has no
// analogue in the teacher's single-context test store.
package memstore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// Store is an in-memory implementation of storage.Store, suitable for
// unit tests and embedding where durability is not required.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new empty in-memory Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Immediate() storage.Context { return &immediateCtx{s: s} }

func (s *Store) Begin() (storage.Transaction, error) {
	s.mu.RLock()
	snapshot := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	return &txn{
		store:    s,
		snapshot: snapshot,
		writes:   make(map[string][]byte),
		deletes:  make(map[string]bool),
		reads:    make(map[string]bool),
	}, nil
}

func (s *Store) Close() error { return nil }

// --- immediate context ---

type immediateCtx struct{ s *Store }

func (c *immediateCtx) Get(cf storage.CF, prefix hash.Digest, key []byte) ([]byte, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	v, ok := c.s.data[string(storage.EncodeKey(cf, prefix, key))]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (c *immediateCtx) Put(cf storage.CF, prefix hash.Digest, key []byte, value []byte) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.data[string(storage.EncodeKey(cf, prefix, key))] = append([]byte{}, value...)
	return nil
}

func (c *immediateCtx) Delete(cf storage.CF, prefix hash.Digest, key []byte) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.data, string(storage.EncodeKey(cf, prefix, key)))
	return nil
}

func (c *immediateCtx) DeletePrefix(cf storage.CF, prefix hash.Digest) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	raw := storage.EncodeKey(cf, prefix, nil)
	for k := range c.s.data {
		if strings_HasPrefix(k, raw) {
			delete(c.s.data, k)
		}
	}
	return nil
}

func (c *immediateCtx) Iterate(cf storage.CF, prefix hash.Digest, opts storage.IterOptions, fn storage.IterFunc) error {
	c.s.mu.RLock()
	keys, vals := collectPrefixed(c.s.data, cf, prefix, opts)
	c.s.mu.RUnlock()
	return runIter(keys, vals, opts, fn)
}

func (c *immediateCtx) GetMeta(key storage.MetaKey) ([]byte, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	v, ok := c.s.data[string(storage.EncodeMetaKey(key))]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (c *immediateCtx) PutMeta(key storage.MetaKey, value []byte) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.data[string(storage.EncodeMetaKey(key))] = append([]byte{}, value...)
	return nil
}

func (c *immediateCtx) DeleteMeta(key storage.MetaKey) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	delete(c.s.data, string(storage.EncodeMetaKey(key)))
	return nil
}

// --- optimistic transaction ---

type txn struct {
	store    *Store
	snapshot map[string][]byte
	writes   map[string][]byte
	deletes  map[string]bool
	reads    map[string]bool
	done     bool
}

func (t *txn) get(physKey string) ([]byte, error) {
	if t.done {
		return nil, fmt.Errorf("memstore: transaction already finished")
	}
	t.reads[physKey] = true
	if t.deletes[physKey] {
		return nil, nil
	}
	if v, ok := t.writes[physKey]; ok {
		return append([]byte{}, v...), nil
	}
	if v, ok := t.snapshot[physKey]; ok {
		return append([]byte{}, v...), nil
	}
	return nil, nil
}

func (t *txn) put(physKey string, value []byte) error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	delete(t.deletes, physKey)
	t.writes[physKey] = append([]byte{}, value...)
	return nil
}

func (t *txn) del(physKey string) error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	delete(t.writes, physKey)
	t.deletes[physKey] = true
	return nil
}

func (t *txn) Get(cf storage.CF, prefix hash.Digest, key []byte) ([]byte, error) {
	return t.get(string(storage.EncodeKey(cf, prefix, key)))
}
func (t *txn) Put(cf storage.CF, prefix hash.Digest, key []byte, value []byte) error {
	return t.put(string(storage.EncodeKey(cf, prefix, key)), value)
}
func (t *txn) Delete(cf storage.CF, prefix hash.Digest, key []byte) error {
	return t.del(string(storage.EncodeKey(cf, prefix, key)))
}
func (t *txn) GetMeta(key storage.MetaKey) ([]byte, error) {
	return t.get(string(storage.EncodeMetaKey(key)))
}
func (t *txn) PutMeta(key storage.MetaKey, value []byte) error {
	return t.put(string(storage.EncodeMetaKey(key)), value)
}
func (t *txn) DeleteMeta(key storage.MetaKey) error {
	return t.del(string(storage.EncodeMetaKey(key)))
}

func (t *txn) DeletePrefix(cf storage.CF, prefix hash.Digest) error {
	raw := storage.EncodeKey(cf, prefix, nil)
	merged := t.mergedView()
	for k := range merged {
		if strings_HasPrefix(k, raw) {
			if err := t.del(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *txn) mergedView() map[string][]byte {
	merged := make(map[string][]byte, len(t.snapshot)+len(t.writes))
	for k, v := range t.snapshot {
		merged[k] = v
	}
	for k := range t.deletes {
		delete(merged, k)
	}
	for k, v := range t.writes {
		merged[k] = v
	}
	return merged
}

func (t *txn) Iterate(cf storage.CF, prefix hash.Digest, opts storage.IterOptions, fn storage.IterFunc) error {
	merged := t.mergedView()
	keys, vals := collectPrefixed(merged, cf, prefix, opts)
	return runIter(keys, vals, opts, fn)
}

// Commit validates that no key this transaction read or wrote was
// modified by another committed transaction since Begin, then applies
// the buffered writes atomically (spec §4.2, §5: optimistic conflict
// detection, abort-and-retry on overlap).
func (t *txn) Commit() error {
	if t.done {
		return fmt.Errorf("memstore: transaction already finished")
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool, len(t.reads)+len(t.writes)+len(t.deletes))
	for k := range t.reads {
		touched[k] = true
	}
	for k := range t.writes {
		touched[k] = true
	}
	for k := range t.deletes {
		touched[k] = true
	}
	for k := range touched {
		var before []byte
		if v, ok := t.snapshot[k]; ok {
			before = v
		}
		current, exists := s.data[k]
		if exists != (before != nil) || (exists && !bytes.Equal(current, before)) {
			return fmt.Errorf("memstore: transaction conflict on key, retry required")
		}
	}

	for k := range t.deletes {
		delete(s.data, k)
	}
	for k, v := range t.writes {
		s.data[k] = v
	}
	return nil
}

func (t *txn) Rollback() error {
	t.done = true
	return nil
}

// --- shared helpers ---

func strings_HasPrefix(s string, prefix []byte) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == string(prefix)
}

func collectPrefixed(data map[string][]byte, cf storage.CF, prefix hash.Digest, opts storage.IterOptions) (keys [][]byte, vals [][]byte) {
	raw := storage.EncodeKey(cf, prefix, nil)
	type kv struct {
		k []byte
		v []byte
	}
	var all []kv
	for k, v := range data {
		if !strings_HasPrefix(k, raw) {
			continue
		}
		suffix := []byte(k)[len(raw):]
		if opts.Start != nil && bytes.Compare(suffix, opts.Start) < 0 {
			continue
		}
		if opts.End != nil && bytes.Compare(suffix, opts.End) >= 0 {
			continue
		}
		all = append(all, kv{k: append([]byte{}, suffix...), v: append([]byte{}, v...)})
	}
	sort.Slice(all, func(i, j int) bool { return bytes.Compare(all[i].k, all[j].k) < 0 })
	if opts.Reverse {
		for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
			all[i], all[j] = all[j], all[i]
		}
	}
	for _, e := range all {
		keys = append(keys, e.k)
		vals = append(vals, e.v)
	}
	return keys, vals
}

func runIter(keys, vals [][]byte, opts storage.IterOptions, fn storage.IterFunc) error {
	for i := range keys {
		more, err := fn(keys[i], vals[i])
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}
