package merk

import (
	"bytes"
	"testing"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage/memstore"
)

func TestLinkCacheRememberRecallRoundTrip(t *testing.T) {
	cache, err := NewLinkCache(8)
	if err != nil {
		t.Fatal(err)
	}
	prefix := testPrefix()

	n := &TreeNode{
		Key:        []byte("k"),
		ValueBytes: []byte("v"),
		ValueHash:  hash.ValueHash([]byte("v")),
		Left:       &Link{State: LinkLoaded, Key: []byte("l"), Node: &TreeNode{Key: []byte("l")}},
	}
	cache.Remember(prefix, n)

	got, ok := cache.Recall(prefix, []byte("k"))
	if !ok {
		t.Fatal("expected a hit after Remember")
	}
	if !bytes.Equal(got.ValueBytes, []byte("v")) || got.ValueHash != n.ValueHash {
		t.Fatalf("recalled node doesn't match remembered one: %+v", got)
	}
	if got.Left == nil || got.Left.State != LinkReference || got.Left.Node != nil {
		t.Fatalf("expected Recall to reduce a loaded child to a bare LinkReference stub, got %+v", got.Left)
	}

	if _, ok := cache.Recall(prefix, []byte("missing")); ok {
		t.Fatal("expected a miss for an unremembered key")
	}
}

func TestLinkCacheNilIsANoOp(t *testing.T) {
	var cache *LinkCache
	cache.Remember(testPrefix(), &TreeNode{Key: []byte("k")})
	if _, ok := cache.Recall(testPrefix(), []byte("k")); ok {
		t.Fatal("expected a nil cache to always miss")
	}
}

// TestFetchPrefersCacheOverStorage proves resolve/Open's fetch chokepoint
// actually consults the cache before reaching for storage: a key that
// exists only in the cache, not in the backing store, must still
// resolve successfully.
func TestFetchPrefersCacheOverStorage(t *testing.T) {
	store := memstore.New().Immediate()
	prefix := testPrefix()
	cache, err := NewLinkCache(4)
	if err != nil {
		t.Fatal(err)
	}

	m := &Merk{store: store, prefix: prefix, feature: FeatureBasic, cache: cache}
	ghost := &TreeNode{Key: []byte("ghost"), ValueBytes: []byte("v"), ValueHash: hash.ValueHash([]byte("v"))}
	cache.Remember(prefix, ghost)

	got, hit, err := m.fetch([]byte("ghost"))
	if err != nil {
		t.Fatalf("expected a cache hit to succeed even though storage has no such key: %v", err)
	}
	if !hit {
		t.Fatal("expected fetch to report a cache hit")
	}
	if !bytes.Equal(got.ValueBytes, []byte("v")) {
		t.Fatalf("got %+v", got)
	}

	if _, _, err := m.fetch([]byte("nonexistent")); err == nil {
		t.Fatal("expected an uncached, unstored key to fail")
	}
}

// TestPrunePopulatesCacheForLoadedChildren exercises Prune's half of the
// wiring: resolving a multi-node tree's children through a fresh,
// cache-backed Open transitions them to LinkLoaded, and Prune must
// Remember each one before dropping it back to LinkReference.
func TestPrunePopulatesCacheForLoadedChildren(t *testing.T) {
	store := memstore.New().Immediate()
	prefix := testPrefix()

	m1, _, err := Open(store, prefix, FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		data, vh := itemBytes(t, "value")
		if _, err := m1.Insert([]byte{'a' + byte(i)}, data, vh); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if _, err := m1.Commit(); err != nil {
		t.Fatal(err)
	}

	cache, err := NewLinkCache(32)
	if err != nil {
		t.Fatal(err)
	}
	m2, _, err := OpenCached(store, prefix, FeatureBasic, cache)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, _, err := m2.Get([]byte{'a' + byte(i)}); err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
	}
	m2.Prune()

	if cache.lru.Len() == 0 {
		t.Fatal("expected Prune to have remembered at least one loaded child node")
	}
}
