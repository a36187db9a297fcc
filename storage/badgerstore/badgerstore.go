// Package badgerstore is the production storage.Store backend, grounded
// on the teacher's kvstore/badger package
// (_examples/shruggr-inspiration/kvstore/badger/badger.go): same
// badger.DefaultOptions(dir).WithLogger(nil) construction, same
// db.Update/db.View wrapping for immediate reads/writes, same
// ErrKeyNotFound-to-nil translation. Badger has no native column
// families, so the four logical CFs of spec §4.2 are folded into the key
// via storage.EncodeKey/EncodeMetaKey; Badger's own SSI (serializable
// snapshot isolation) transactions back the optimistic-transaction
// contract of spec §5 directly, so storage.Transaction here is a thin
// wrapper over *badger.Txn rather than a reimplementation.
package badgerstore

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

// Options configures a Store, mirroring the teacher's badger.Config
// shape (DataDir) extended with the ambient logging hook from SPEC_FULL
// §A.1.
type Options struct {
	// Path is the on-disk data directory. Required unless InMemory.
	Path string
	// InMemory runs Badger's in-memory mode (useful for tests that want
	// Badger's exact transaction semantics without touching disk).
	InMemory bool
	// Logger receives Badger's internal log lines; nil discards them,
	// matching the teacher's opts.WithLogger(nil).
	Logger *zerolog.Logger
}

// Store is a Badger-backed storage.Store.
type Store struct {
	db *badger.DB
}

// New opens (creating if necessary) a Badger-backed Store.
func New(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("badgerstore: Path is required unless InMemory is set")
	}

	bopts := badger.DefaultOptions(opts.Path).WithInMemory(opts.InMemory)
	if opts.Logger == nil {
		bopts = bopts.WithLogger(nil)
	} else {
		bopts = bopts.WithLogger(zerologAdapter{l: opts.Logger})
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Immediate() storage.Context { return &immediateCtx{db: s.db} }

func (s *Store) Begin() (storage.Transaction, error) {
	return &txn{t: s.db.NewTransaction(true)}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RunGC runs Badger's value-log garbage collection, carried over from
// the teacher's badger.go unchanged in behavior (not part of the core
// storage.Store contract; operational tooling only).
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// --- immediate context ---

type immediateCtx struct{ db *badger.DB }

func (c *immediateCtx) Get(cf storage.CF, prefix hash.Digest, key []byte) ([]byte, error) {
	return getKey(c.db, storage.EncodeKey(cf, prefix, key))
}

func (c *immediateCtx) Put(cf storage.CF, prefix hash.Digest, key []byte, value []byte) error {
	physKey := storage.EncodeKey(cf, prefix, key)
	return c.db.Update(func(t *badger.Txn) error { return t.Set(physKey, value) })
}

func (c *immediateCtx) Delete(cf storage.CF, prefix hash.Digest, key []byte) error {
	physKey := storage.EncodeKey(cf, prefix, key)
	return c.db.Update(func(t *badger.Txn) error { return t.Delete(physKey) })
}

func (c *immediateCtx) DeletePrefix(cf storage.CF, prefix hash.Digest) error {
	rawPrefix := storage.EncodeKey(cf, prefix, nil)
	for {
		var keys [][]byte
		err := c.db.View(func(t *badger.Txn) error {
			it := t.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek(rawPrefix); it.ValidForPrefix(rawPrefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
				if len(keys) >= 10000 {
					break
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		if err := c.db.Update(func(t *badger.Txn) error {
			for _, k := range keys {
				if err := t.Delete(k); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
}

func (c *immediateCtx) Iterate(cf storage.CF, prefix hash.Digest, opts storage.IterOptions, fn storage.IterFunc) error {
	return iterate(c.db.NewTransaction(false), true, cf, prefix, opts, fn)
}

func (c *immediateCtx) GetMeta(key storage.MetaKey) ([]byte, error) {
	return getKey(c.db, storage.EncodeMetaKey(key))
}

func (c *immediateCtx) PutMeta(key storage.MetaKey, value []byte) error {
	physKey := storage.EncodeMetaKey(key)
	return c.db.Update(func(t *badger.Txn) error { return t.Set(physKey, value) })
}

func (c *immediateCtx) DeleteMeta(key storage.MetaKey) error {
	physKey := storage.EncodeMetaKey(key)
	return c.db.Update(func(t *badger.Txn) error { return t.Delete(physKey) })
}

func getKey(db *badger.DB, physKey []byte) ([]byte, error) {
	var value []byte
	err := db.View(func(t *badger.Txn) error {
		item, err := t.Get(physKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			value = append([]byte{}, v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// --- transaction ---

// txn wraps a *badger.Txn. Badger buffers writes in the transaction and
// they are not visible to reads issued through a *different* transaction
// until Commit succeeds, matching spec §4.2's commit discipline
// precisely; we add no extra buffering on top.
type txn struct {
	t         *badger.Txn
	committed bool
}

func (t *txn) Get(cf storage.CF, prefix hash.Digest, key []byte) ([]byte, error) {
	return getFromTxn(t.t, storage.EncodeKey(cf, prefix, key))
}

func (t *txn) Put(cf storage.CF, prefix hash.Digest, key []byte, value []byte) error {
	return t.t.Set(storage.EncodeKey(cf, prefix, key), value)
}

func (t *txn) Delete(cf storage.CF, prefix hash.Digest, key []byte) error {
	return t.t.Delete(storage.EncodeKey(cf, prefix, key))
}

func (t *txn) DeletePrefix(cf storage.CF, prefix hash.Digest) error {
	rawPrefix := storage.EncodeKey(cf, prefix, nil)
	it := t.t.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	var keys [][]byte
	for it.Seek(rawPrefix); it.ValidForPrefix(rawPrefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := t.t.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) Iterate(cf storage.CF, prefix hash.Digest, opts storage.IterOptions, fn storage.IterFunc) error {
	return iterate(t.t, false, cf, prefix, opts, fn)
}

func (t *txn) GetMeta(key storage.MetaKey) ([]byte, error) {
	return getFromTxn(t.t, storage.EncodeMetaKey(key))
}

func (t *txn) PutMeta(key storage.MetaKey, value []byte) error {
	return t.t.Set(storage.EncodeMetaKey(key), value)
}

func (t *txn) DeleteMeta(key storage.MetaKey) error {
	return t.t.Delete(storage.EncodeMetaKey(key))
}

func (t *txn) Commit() error {
	t.committed = true
	return t.t.Commit()
}

func (t *txn) Rollback() error {
	if !t.committed {
		t.t.Discard()
	}
	return nil
}

func getFromTxn(t *badger.Txn, physKey []byte) ([]byte, error) {
	item, err := t.Get(physKey)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var value []byte
	err = item.Value(func(v []byte) error {
		value = append([]byte{}, v...)
		return nil
	})
	return value, err
}

func iterate(t *badger.Txn, discardAfter bool, cf storage.CF, prefix hash.Digest, opts storage.IterOptions, fn storage.IterFunc) error {
	if discardAfter {
		defer t.Discard()
	}
	rawPrefix := storage.EncodeKey(cf, prefix, nil)

	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Reverse = opts.Reverse
	it := t.NewIterator(iterOpts)
	defer it.Close()

	var seekKey []byte
	if opts.Reverse {
		if opts.End != nil {
			seekKey = append(append([]byte{}, rawPrefix...), opts.End...)
		} else {
			// seek to just past the prefix to start reverse scan
			seekKey = append(append([]byte{}, rawPrefix...), 0xff)
		}
	} else {
		if opts.Start != nil {
			seekKey = append(append([]byte{}, rawPrefix...), opts.Start...)
		} else {
			seekKey = rawPrefix
		}
	}

	for it.Seek(seekKey); it.ValidForPrefix(rawPrefix); it.Next() {
		k := it.Item().Key()
		suffix := append([]byte{}, k[len(rawPrefix):]...)

		if !opts.Reverse && opts.End != nil && bytesCompare(suffix, opts.End) >= 0 {
			break
		}
		if opts.Reverse && opts.Start != nil && bytesCompare(suffix, opts.Start) < 0 {
			break
		}

		var value []byte
		if err := it.Item().Value(func(v []byte) error {
			value = append([]byte{}, v...)
			return nil
		}); err != nil {
			return err
		}

		more, err := fn(suffix, value)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func bytesCompare(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// zerologAdapter bridges a *zerolog.Logger to badger's small Logger
// interface (Errorf/Warningf/Infof/Debugf), the same "disable by
// default, adapt when present" idiom as the teacher's
// opts.WithLogger(nil) call.
type zerologAdapter struct{ l *zerolog.Logger }

func (z zerologAdapter) Errorf(f string, args ...interface{})   { z.l.Error().Msgf(f, args...) }
func (z zerologAdapter) Warningf(f string, args ...interface{}) { z.l.Warn().Msgf(f, args...) }
func (z zerologAdapter) Infof(f string, args ...interface{})    { z.l.Info().Msgf(f, args...) }
func (z zerologAdapter) Debugf(f string, args ...interface{})   { z.l.Debug().Msgf(f, args...) }
