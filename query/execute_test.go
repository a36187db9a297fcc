package query

import (
	"fmt"
	"testing"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/mmr"
	"github.com/dashpay/grovedb/storage"
	"github.com/dashpay/grovedb/storage/memstore"
)

func memstoreImmediate() storage.Context {
	return memstore.New().Immediate()
}

func encodeAndHash(t *testing.T, e *element.Element) ([]byte, hash.Digest) {
	t.Helper()
	data, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return data, hash.ValueHash(data)
}

func insertElement(t *testing.T, m *merk.Merk, key []byte, e *element.Element) {
	t.Helper()
	data, vh := encodeAndHash(t, e)
	if _, err := m.Insert(key, data, vh); err != nil {
		t.Fatalf("insert %q: %v", key, err)
	}
}

func openRootMerk(t *testing.T, store storage.Context) *merk.Merk {
	t.Helper()
	m, _, err := merk.Open(store, hash.SubtreePrefix(nil), merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func uint64p(v uint64) *uint64 { return &v }

func TestExecuteFlatRangeQuery(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		insertElement(t, root, key, element.NewItem([]byte(fmt.Sprintf("v%02d", i)), nil))
	}

	q := New()
	q.Items = []Item{Range([]byte("k02"), []byte("k06"))}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{
		Path:  nil,
		Query: SizedQuery{Query: q},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		want := fmt.Sprintf("k%02d", i+2)
		if string(r.Key) != want {
			t.Fatalf("result %d: got key %q want %q", i, r.Key, want)
		}
	}
}

func TestExecuteRightToLeftReversesOrder(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)
	for i := 0; i < 5; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		insertElement(t, root, key, element.NewItem([]byte("v"), nil))
	}

	q := New()
	q.LeftToRight = false
	q.Items = []Item{RangeFull()}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{Query: SizedQuery{Query: q}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	if string(results[0].Key) != "k04" || string(results[4].Key) != "k00" {
		t.Fatalf("results not reversed: %v", keysOf(results))
	}
}

func TestExecuteLimitAndOffset(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)
	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("k%02d", i))
		insertElement(t, root, key, element.NewItem([]byte("v"), nil))
	}

	q := New()
	q.Items = []Item{RangeFull()}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{
		Query: SizedQuery{Query: q, Offset: uint64p(2), Limit: uint64p(3)},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"k02", "k03", "k04"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, w := range want {
		if string(results[i].Key) != w {
			t.Fatalf("result %d: got %q want %q", i, results[i].Key, w)
		}
	}
}

func TestExecuteDescendsViaDefaultSubquery(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)
	insertElement(t, root, []byte("users"), element.NewTree(nil, nil))

	childPrefix := hash.SubtreePrefix([][]byte{[]byte("users")})
	child, _, err := merk.Open(store, childPrefix, merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("u%02d", i))
		insertElement(t, child, key, element.NewItem([]byte("profile"), nil))
	}

	top := New()
	top.Items = []Item{Key([]byte("users"))}
	top.DefaultSubqueryBranch = &Branch{Subquery: func() *Query {
		sq := New()
		sq.Items = []Item{RangeFull()}
		return sq
	}()}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{Query: SizedQuery{Query: top}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		want := fmt.Sprintf("u%02d", i)
		if string(r.Key) != want {
			t.Fatalf("result %d: got %q want %q", i, r.Key, want)
		}
		if len(r.Path) != 1 || string(r.Path[0]) != "users" {
			t.Fatalf("result %d: unexpected path %v", i, r.Path)
		}
	}
}

func TestExecuteAddParentTreeOnSubquery(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)
	insertElement(t, root, []byte("users"), element.NewTree(nil, nil))

	childPrefix := hash.SubtreePrefix([][]byte{[]byte("users")})
	child, _, err := merk.Open(store, childPrefix, merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	insertElement(t, child, []byte("u00"), element.NewItem([]byte("profile"), nil))

	top := New()
	top.Items = []Item{Key([]byte("users"))}
	top.AddParentTreeOnSubquery = true
	sub := New()
	sub.Items = []Item{RangeFull()}
	top.DefaultSubqueryBranch = &Branch{Subquery: sub}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{Query: SizedQuery{Query: top}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (parent tree + child)", len(results))
	}
	if results[0].Element.Tag != element.TagTree || string(results[0].Key) != "users" {
		t.Fatalf("expected parent Tree element first, got %+v", results[0])
	}
	if string(results[1].Key) != "u00" {
		t.Fatalf("expected child second, got %+v", results[1])
	}
}

func TestExecuteConditionalBranchOverridesDefault(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)
	insertElement(t, root, []byte("a"), element.NewTree(nil, nil))
	insertElement(t, root, []byte("b"), element.NewTree(nil, nil))

	for _, seg := range []string{"a", "b"} {
		prefix := hash.SubtreePrefix([][]byte{[]byte(seg)})
		child, _, err := merk.Open(store, prefix, merk.FeatureBasic)
		if err != nil {
			t.Fatal(err)
		}
		insertElement(t, child, []byte("only-"+seg), element.NewItem([]byte("v"), nil))
	}

	top := New()
	top.Items = []Item{Key([]byte("a")), Key([]byte("b"))}
	defaultSub := New()
	defaultSub.Items = []Item{RangeFull()}
	top.DefaultSubqueryBranch = &Branch{Subquery: defaultSub}
	// conditional branch for "b" descends but applies a Key-only filter
	// that excludes everything, proving it overrides the default.
	emptySub := New()
	emptySub.Items = []Item{Key([]byte("nonexistent"))}
	top.ConditionalSubqueryBranches = []ConditionalBranch{
		{Item: Key([]byte("b")), Branch: &Branch{Subquery: emptySub}},
	}

	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{Query: SizedQuery{Query: top}})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || string(results[0].Key) != "only-a" {
		t.Fatalf("expected only only-a via default branch, got %+v", results)
	}
}

func TestExecuteNonMerkSubtree(t *testing.T) {
	store := memstoreImmediate()
	root := openRootMerk(t, store)

	mmrPrefix := hash.SubtreePrefix([][]byte{[]byte("log")})
	tree, _, err := mmr.Open(store, mmrPrefix)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, _, err := tree.Append([]byte(fmt.Sprintf("entry-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	insertElement(t, root, []byte("log"), &element.Element{Tag: element.TagMmrTree, MmrSize: tree.Size()})

	q := New()
	q.Items = []Item{RangeFull()}
	ex := NewExecutor(store)
	results, _, err := ex.Execute(&PathQuery{
		Path:  [][]byte{[]byte("log")},
		Query: SizedQuery{Query: q},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		want := fmt.Sprintf("entry-%d", i)
		if string(r.Element.Bytes) != want {
			t.Fatalf("result %d: got %q want %q", i, r.Element.Bytes, want)
		}
	}
}

func keysOf(items []ResultItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = string(it.Key)
	}
	return out
}
