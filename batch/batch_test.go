package batch

import (
	"bytes"
	"testing"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/merk"
	"github.com/dashpay/grovedb/storage"
	"github.com/dashpay/grovedb/storage/memstore"
)

func openRootMerk(t *testing.T, store storage.Context) *merk.Merk {
	t.Helper()
	m, _, err := merk.Open(store, hash.SubtreePrefix(nil), merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func getElement(t *testing.T, store storage.Context, path [][]byte, key []byte) *element.Element {
	t.Helper()
	m, _, _, err := merk.OpenAtPath(store, path)
	if err != nil {
		t.Fatal(err)
	}
	e, _, err := m.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestApplyInsertOnlyAndGet(t *testing.T) {
	store := memstore.New()

	ops := []QualifiedOp{
		InsertOnly(nil, []byte("a"), element.NewItem([]byte("v1"), nil)),
	}
	if _, err := Apply(store, ops); err != nil {
		t.Fatal(err)
	}

	got := getElement(t, store.Immediate(), nil, []byte("a"))
	if got == nil || string(got.Bytes) != "v1" {
		t.Fatalf("got %+v, want Item v1", got)
	}
}

func TestApplyInsertOnlyRejectsExisting(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewItem([]byte("v1"), nil))}); err != nil {
		t.Fatal(err)
	}
	_, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewItem([]byte("v2"), nil))})
	if err == nil {
		t.Fatal("expected error inserting over existing key with InsertOnly")
	}

	got := getElement(t, store.Immediate(), nil, []byte("a"))
	if string(got.Bytes) != "v1" {
		t.Fatalf("failed batch must not have partially applied: got %q", got.Bytes)
	}
}

func TestApplyReplaceRequiresExisting(t *testing.T) {
	store := memstore.New()

	_, err := Apply(store, []QualifiedOp{Replace(nil, []byte("missing"), element.NewItem([]byte("v"), nil))})
	if err == nil {
		t.Fatal("expected error replacing a nonexistent key")
	}

	if _, err := Apply(store, []QualifiedOp{InsertOrReplace(nil, []byte("a"), element.NewItem([]byte("v1"), nil))}); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(store, []QualifiedOp{Replace(nil, []byte("a"), element.NewItem([]byte("v2"), nil))}); err != nil {
		t.Fatal(err)
	}
	got := getElement(t, store.Immediate(), nil, []byte("a"))
	if string(got.Bytes) != "v2" {
		t.Fatalf("got %q, want v2", got.Bytes)
	}
}

func TestApplyPatchReplacesBytes(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewItem([]byte("v1"), nil))}); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(store, []QualifiedOp{Patch(nil, []byte("a"), []byte("patched"))}); err != nil {
		t.Fatal(err)
	}
	got := getElement(t, store.Immediate(), nil, []byte("a"))
	if string(got.Bytes) != "patched" {
		t.Fatalf("got %q, want patched", got.Bytes)
	}
}

func TestApplyPatchRejectsNonItem(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("t"), element.NewTree(nil, nil))}); err != nil {
		t.Fatal(err)
	}
	_, err := Apply(store, []QualifiedOp{Patch(nil, []byte("t"), []byte("x"))})
	if err == nil {
		t.Fatal("expected error patching a Tree element")
	}
}

func TestApplyDelete(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewItem([]byte("v1"), nil))}); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(store, []QualifiedOp{Delete(nil, []byte("a"))}); err != nil {
		t.Fatal(err)
	}
	got := getElement(t, store.Immediate(), nil, []byte("a"))
	if got != nil {
		t.Fatalf("expected key deleted, got %+v", got)
	}
}

func TestApplyNestedTreePropagatesHash(t *testing.T) {
	store := memstore.New()

	ops := []QualifiedOp{
		InsertOnly(nil, []byte("users"), element.NewTree(nil, nil)),
		InsertOnly([][]byte{[]byte("users")}, []byte("u0"), element.NewItem([]byte("alice"), nil)),
	}
	if _, err := Apply(store, ops); err != nil {
		t.Fatal(err)
	}

	rootMerk := openRootMerk(t, store.Immediate())
	usersElem, _, err := rootMerk.Get([]byte("users"))
	if err != nil {
		t.Fatal(err)
	}
	if usersElem == nil || usersElem.Tag != element.TagTree {
		t.Fatalf("expected Tree element at users, got %+v", usersElem)
	}
	childMerk, _, err := merk.Open(store.Immediate(), hash.SubtreePrefix([][]byte{[]byte("users")}), merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	if childMerk.IsEmpty() {
		t.Fatal("expected child Merk to contain u0")
	}
	if !bytes.Equal(usersElem.RootKey, childMerk.RootKey()) {
		t.Fatalf("users Element RootKey %x does not match child Merk root key %x", usersElem.RootKey, childMerk.RootKey())
	}
	_, usersHash, _, err := rootMerk.GetRaw([]byte("users"))
	if err != nil {
		t.Fatal(err)
	}

	// adding a second entry to the child must change the propagated hash
	// of the users leaf in the root Merk
	if _, err := Apply(store, []QualifiedOp{
		InsertOnly([][]byte{[]byte("users")}, []byte("u1"), element.NewItem([]byte("bob"), nil)),
	}); err != nil {
		t.Fatal(err)
	}
	rootMerk2 := openRootMerk(t, store.Immediate())
	_, usersHash2, _, err := rootMerk2.GetRaw([]byte("users"))
	if err != nil {
		t.Fatal(err)
	}
	if usersHash == usersHash2 {
		t.Fatal("expected users leaf hash to change after inserting u1")
	}
}

func TestApplyDeleteTreeRecursivelyWipesDescendants(t *testing.T) {
	store := memstore.New()

	ops := []QualifiedOp{
		InsertOnly(nil, []byte("a"), element.NewTree(nil, nil)),
		InsertOnly([][]byte{[]byte("a")}, []byte("b"), element.NewTree(nil, nil)),
		InsertOnly([][]byte{[]byte("a"), []byte("b")}, []byte("leaf"), element.NewItem([]byte("v"), nil)),
	}
	if _, err := Apply(store, ops); err != nil {
		t.Fatal(err)
	}

	if _, err := Apply(store, []QualifiedOp{DeleteTree(nil, []byte("a"), element.TagTree)}); err != nil {
		t.Fatal(err)
	}

	rootMerk := openRootMerk(t, store.Immediate())
	got, _, err := rootMerk.Get([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected a deleted from root, got %+v", got)
	}

	bMerk, _, err := merk.Open(store.Immediate(), hash.SubtreePrefix([][]byte{[]byte("a"), []byte("b")}), merk.FeatureBasic)
	if err != nil {
		t.Fatal(err)
	}
	if !bMerk.IsEmpty() {
		t.Fatal("expected nested subtree a/b to be wiped by recursive DeleteTree")
	}
}

func TestApplyDeleteTreeRejectsWrongType(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewTree(nil, nil))}); err != nil {
		t.Fatal(err)
	}
	_, err := Apply(store, []QualifiedOp{DeleteTree(nil, []byte("a"), element.TagSumTree)})
	if err == nil {
		t.Fatal("expected error deleting a Tree as if it were a SumTree")
	}
}

func TestApplyRefreshReference(t *testing.T) {
	store := memstore.New()

	ops := []QualifiedOp{
		InsertOnly(nil, []byte("target"), element.NewItem([]byte("v1"), nil)),
		InsertOnly(nil, []byte("ref"), &element.Element{
			Tag:     element.TagReference,
			RefKind: element.RefAbsolutePath,
			RefPath: [][]byte{[]byte("target")},
		}),
	}
	if _, err := Apply(store, ops); err != nil {
		t.Fatal(err)
	}

	rootMerk := openRootMerk(t, store.Immediate())
	_, refHashBefore, _, err := rootMerk.GetRaw([]byte("ref"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Apply(store, []QualifiedOp{Patch(nil, []byte("target"), []byte("v2"))}); err != nil {
		t.Fatal(err)
	}
	if _, err := Apply(store, []QualifiedOp{RefreshReference(nil, []byte("ref"))}); err != nil {
		t.Fatal(err)
	}

	rootMerk2 := openRootMerk(t, store.Immediate())
	_, refHashAfter, _, err := rootMerk2.GetRaw([]byte("ref"))
	if err != nil {
		t.Fatal(err)
	}
	if refHashBefore == refHashAfter {
		t.Fatal("expected reference leaf hash to change after RefreshReference following a change to its referent")
	}
}

func TestApplyRefreshReferenceRejectsNonReference(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{InsertOnly(nil, []byte("a"), element.NewItem([]byte("v"), nil))}); err != nil {
		t.Fatal(err)
	}
	_, err := Apply(store, []QualifiedOp{RefreshReference(nil, []byte("a"))})
	if err == nil {
		t.Fatal("expected error refreshing a non-Reference element")
	}
}

func TestApplyMmrAppendFoldsGroupAndUpdatesOwner(t *testing.T) {
	store := memstore.New()

	if _, err := Apply(store, []QualifiedOp{
		InsertOnly(nil, []byte("log"), &element.Element{Tag: element.TagMmrTree}),
	}); err != nil {
		t.Fatal(err)
	}

	ops := []QualifiedOp{
		MmrTreeAppend(nil, []byte("log"), []byte("entry-0")),
		MmrTreeAppend(nil, []byte("log"), []byte("entry-1")),
		MmrTreeAppend(nil, []byte("log"), []byte("entry-2")),
	}
	if _, err := Apply(store, ops); err != nil {
		t.Fatal(err)
	}

	got := getElement(t, store.Immediate(), nil, []byte("log"))
	if got == nil || got.Tag != element.TagMmrTree {
		t.Fatalf("expected MmrTree element at log, got %+v", got)
	}
	if got.MmrSize == 0 {
		t.Fatal("expected MmrSize to be updated after appends")
	}
}

func TestApplyRejectsInternalKindFromCaller(t *testing.T) {
	store := memstore.New()

	_, err := Apply(store, []QualifiedOp{
		{Path: nil, Key: []byte("x"), Kind: opReplaceNonMerkTreeRoot},
	})
	if err == nil {
		t.Fatal("expected error submitting an internal op kind directly")
	}
}

func TestApplyNonMerkAppendRejectsMissingOwner(t *testing.T) {
	store := memstore.New()

	_, err := Apply(store, []QualifiedOp{
		MmrTreeAppend(nil, []byte("nope"), []byte("x")),
	})
	if err == nil {
		t.Fatal("expected error appending to a non-Merk tree with no owning element")
	}
}

func TestApplyEmptyOpsIsNoop(t *testing.T) {
	store := memstore.New()
	if _, err := Apply(store, nil); err != nil {
		t.Fatal(err)
	}
}
