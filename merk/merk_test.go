package merk

import (
	"fmt"
	"testing"

	"github.com/dashpay/grovedb/cost"
	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage/memstore"
)

func testPrefix() hash.Digest {
	return hash.SubtreePrefix([][]byte{[]byte("test")})
}

func itemBytes(t *testing.T, v string) ([]byte, hash.Digest) {
	t.Helper()
	e := element.NewItem([]byte(v), nil)
	data, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data, hash.ValueHash(data)
}

func TestInsertGetRoundTrip(t *testing.T) {
	store := memstore.New().Immediate()
	prefix := testPrefix()

	m, _, err := Open(store, prefix, FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		data, vh := itemBytes(t, fmt.Sprintf("value-%02d", i))
		if _, err := m.Insert(key, data, vh); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		e, _, err := m.Get(key)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if e == nil {
			t.Fatalf("key %d missing", i)
		}
		want := fmt.Sprintf("value-%02d", i)
		if string(e.Bytes) != want {
			t.Fatalf("key %d: got %q want %q", i, e.Bytes, want)
		}
	}
}

func checkBalanced(t *testing.T, m *Merk) {
	t.Helper()
	var walk func(n *TreeNode) uint8
	walk = func(n *TreeNode) uint8 {
		if n == nil {
			return 0
		}
		c := &cost.OperationCost{}
		left, err := m.resolve(n.Left, c)
		if err != nil {
			t.Fatal(err)
		}
		right, err := m.resolve(n.Right, c)
		if err != nil {
			t.Fatal(err)
		}
		lh := walk(left)
		rh := walk(right)
		diff := int(lh) - int(rh)
		if diff > 1 || diff < -1 {
			t.Fatalf("node %q unbalanced: left height %d right height %d", n.Key, lh, rh)
		}
		if lh > rh {
			return 1 + lh
		}
		return 1 + rh
	}
	walk(m.root)
}

func TestInsertionStaysBalanced(t *testing.T) {
	store := memstore.New().Immediate()
	m, _, err := Open(store, testPrefix(), FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 50; i++ {
		key := []byte(fmt.Sprintf("%04d", i))
		data, vh := itemBytes(t, "v")
		if _, err := m.Insert(key, data, vh); err != nil {
			t.Fatal(err)
		}
	}
	checkBalanced(t, m)
}

func TestDeleteThenMissing(t *testing.T) {
	store := memstore.New().Immediate()
	m, _, err := Open(store, testPrefix(), FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, k := range keys {
		data, vh := itemBytes(t, "v-"+k)
		if _, err := m.Insert([]byte(k), data, vh); err != nil {
			t.Fatal(err)
		}
	}

	found, _, err := m.Delete([]byte("c"))
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected key c to be found and deleted")
	}
	checkBalanced(t, m)

	e, _, err := m.Get([]byte("c"))
	if err != nil {
		t.Fatal(err)
	}
	if e != nil {
		t.Fatal("deleted key must not be found")
	}

	for _, k := range []string{"a", "b", "d", "e", "f", "g"} {
		e, _, err := m.Get([]byte(k))
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			t.Fatalf("key %q should still be present", k)
		}
	}
}

func TestRootHashSensitiveToValue(t *testing.T) {
	store1 := memstore.New().Immediate()
	store2 := memstore.New().Immediate()
	prefix := testPrefix()

	m1, _, _ := Open(store1, prefix, FeatureBasic)
	data1, vh1 := itemBytes(t, "alice")
	if _, err := m1.Insert([]byte("name"), data1, vh1); err != nil {
		t.Fatal(err)
	}

	m2, _, _ := Open(store2, prefix, FeatureBasic)
	data2, vh2 := itemBytes(t, "alicf")
	if _, err := m2.Insert([]byte("name"), data2, vh2); err != nil {
		t.Fatal(err)
	}

	if m1.RootHash() == m2.RootHash() {
		t.Fatal("flipping one byte of a value must change the root hash")
	}
}

func TestCommitAndReopen(t *testing.T) {
	store := memstore.New()
	prefix := testPrefix()

	m, _, err := Open(store.Immediate(), prefix, FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		data, vh := itemBytes(t, fmt.Sprintf("v%d", i))
		if _, err := m.Insert(key, data, vh); err != nil {
			t.Fatal(err)
		}
	}
	wantRoot := m.RootHash()
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	reopened, _, err := Open(store.Immediate(), prefix, FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.RootHash() != wantRoot {
		t.Fatal("root hash changed across commit/reopen")
	}
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		e, _, err := reopened.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			t.Fatalf("key %d missing after reopen", i)
		}
	}
}

func TestSumTreeAggregate(t *testing.T) {
	store := memstore.New().Immediate()
	m, _, err := Open(store, testPrefix(), FeatureSum)
	if err != nil {
		t.Fatal(err)
	}

	insertSumItem := func(key string, v int64) {
		e := element.NewSumItem(v, nil)
		data, err := e.Encode()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Insert([]byte(key), data, hash.ValueHash(data)); err != nil {
			t.Fatal(err)
		}
	}
	insertSumItem("bob", 150)
	insertSumItem("alice", 100)
	insertSumItem("carol", 100)

	if got := m.RootSumAgg(); got != 350 {
		t.Fatalf("sum aggregate: got %d want 350", got)
	}
}
