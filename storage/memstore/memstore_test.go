package memstore

import (
	"bytes"
	"testing"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage"
)

func prefixOf(b byte) hash.Digest {
	var d hash.Digest
	d[0] = b
	return d
}

func TestImmediatePutGetDelete(t *testing.T) {
	s := New()
	ctx := s.Immediate()
	prefix := prefixOf(1)

	if v, err := ctx.Get(storage.CFDefault, prefix, []byte("k")); err != nil || v != nil {
		t.Fatalf("expected a miss before Put, got v=%v err=%v", v, err)
	}

	if err := ctx.Put(storage.CFDefault, prefix, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, err := ctx.Get(storage.CFDefault, prefix, []byte("k"))
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("expected v, got %v err=%v", v, err)
	}

	if err := ctx.Delete(storage.CFDefault, prefix, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if v, err := ctx.Get(storage.CFDefault, prefix, []byte("k")); err != nil || v != nil {
		t.Fatalf("expected a miss after Delete, got v=%v err=%v", v, err)
	}
}

func TestImmediateDeletePrefixOnlyTouchesThatPrefix(t *testing.T) {
	s := New()
	ctx := s.Immediate()
	p1, p2 := prefixOf(1), prefixOf(2)

	ctx.Put(storage.CFDefault, p1, []byte("a"), []byte("1"))
	ctx.Put(storage.CFDefault, p1, []byte("b"), []byte("2"))
	ctx.Put(storage.CFDefault, p2, []byte("a"), []byte("3"))

	if err := ctx.DeletePrefix(storage.CFDefault, p1); err != nil {
		t.Fatal(err)
	}

	if v, _ := ctx.Get(storage.CFDefault, p1, []byte("a")); v != nil {
		t.Fatal("expected p1/a removed")
	}
	if v, _ := ctx.Get(storage.CFDefault, p1, []byte("b")); v != nil {
		t.Fatal("expected p1/b removed")
	}
	if v, _ := ctx.Get(storage.CFDefault, p2, []byte("a")); !bytes.Equal(v, []byte("3")) {
		t.Fatalf("expected p2/a untouched, got %v", v)
	}
}

func TestImmediateIterateOrderAndBounds(t *testing.T) {
	s := New()
	ctx := s.Immediate()
	prefix := prefixOf(1)
	for _, k := range []string{"a", "b", "c", "d"} {
		ctx.Put(storage.CFDefault, prefix, []byte(k), []byte(k))
	}

	var got []string
	ctx.Iterate(storage.CFDefault, prefix, storage.IterOptions{Start: []byte("b"), End: []byte("d")}, func(key, _ []byte) (bool, error) {
		got = append(got, string(key))
		return true, nil
	})
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected [b c], got %v", got)
	}
}

func TestImmediateIterateReverse(t *testing.T) {
	s := New()
	ctx := s.Immediate()
	prefix := prefixOf(1)
	for _, k := range []string{"a", "b", "c"} {
		ctx.Put(storage.CFDefault, prefix, []byte(k), []byte(k))
	}

	var got []string
	ctx.Iterate(storage.CFDefault, prefix, storage.IterOptions{Reverse: true}, func(key, _ []byte) (bool, error) {
		got = append(got, string(key))
		return true, nil
	})
	if len(got) != 3 || got[0] != "c" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("expected [c b a], got %v", got)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := New()
	ctx := s.Immediate()

	if err := ctx.PutMeta(storage.MetaKey("version"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	v, err := ctx.GetMeta(storage.MetaKey("version"))
	if err != nil || !bytes.Equal(v, []byte("1")) {
		t.Fatalf("expected \"1\", got %v err=%v", v, err)
	}

	if err := ctx.DeleteMeta(storage.MetaKey("version")); err != nil {
		t.Fatal(err)
	}
	if v, _ := ctx.GetMeta(storage.MetaKey("version")); v != nil {
		t.Fatal("expected a miss after DeleteMeta")
	}
}

func TestTransactionWritesAreIsolatedUntilCommit(t *testing.T) {
	s := New()
	prefix := prefixOf(1)

	txn, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Put(storage.CFDefault, prefix, []byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	if v, _ := s.Immediate().Get(storage.CFDefault, prefix, []byte("k")); v != nil {
		t.Fatal("expected the immediate context not to see an uncommitted transactional write")
	}

	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Immediate().Get(storage.CFDefault, prefix, []byte("k")); !bytes.Equal(v, []byte("v")) {
		t.Fatal("expected the immediate context to see the write after Commit")
	}
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	s := New()
	prefix := prefixOf(1)

	txn, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	txn.Put(storage.CFDefault, prefix, []byte("k"), []byte("v"))
	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	if v, _ := s.Immediate().Get(storage.CFDefault, prefix, []byte("k")); v != nil {
		t.Fatal("expected a rolled-back transaction to leave no trace")
	}
}

func TestConcurrentTransactionsConflictOnOverlap(t *testing.T) {
	s := New()
	prefix := prefixOf(1)
	s.Immediate().Put(storage.CFDefault, prefix, []byte("k"), []byte("orig"))

	t1, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	t2, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := t1.Get(storage.CFDefault, prefix, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := t1.Put(storage.CFDefault, prefix, []byte("k"), []byte("t1")); err != nil {
		t.Fatal(err)
	}
	if err := t1.Commit(); err != nil {
		t.Fatalf("expected t1's commit to succeed: %v", err)
	}

	if _, err := t2.Get(storage.CFDefault, prefix, []byte("k")); err != nil {
		t.Fatal(err)
	}
	if err := t2.Put(storage.CFDefault, prefix, []byte("k"), []byte("t2")); err != nil {
		t.Fatal(err)
	}
	if err := t2.Commit(); err == nil {
		t.Fatal("expected t2's commit to fail: it read a key t1 already overwrote")
	}
}

func TestTransactionOperationsAfterFinishError(t *testing.T) {
	s := New()
	txn, err := s.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Put(storage.CFDefault, prefixOf(1), []byte("k"), []byte("v")); err == nil {
		t.Fatal("expected an error writing to an already-committed transaction")
	}
}
