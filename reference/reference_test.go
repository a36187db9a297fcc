package reference

import (
	"bytes"
	"testing"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/groveerr"
)

func pth(segs ...string) Path {
	p := make(Path, len(segs))
	for i, s := range segs {
		p[i] = []byte(s)
	}
	return p
}

func TestResolveAbsolutePath(t *testing.T) {
	e := &element.Element{
		Tag:     element.TagReference,
		RefKind: element.RefAbsolutePath,
		RefPath: pth("contracts", "C1", "docs"),
		RefKey:  []byte("D1"),
	}
	q, err := Resolve(e, pth("idx", "alice"), []byte("D1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Path) != 3 || string(q.Path[2]) != "docs" || string(q.Key) != "D1" {
		t.Fatalf("unexpected resolution: %+v", q)
	}
}

func TestResolveSiblingReference(t *testing.T) {
	e := &element.Element{
		Tag:     element.TagReference,
		RefKind: element.RefSiblingReference,
		RefKey:  []byte("other"),
	}
	q, err := Resolve(e, pth("a", "b"), []byte("this"))
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Path) != 2 || string(q.Path[1]) != "b" || string(q.Key) != "other" {
		t.Fatalf("unexpected resolution: %+v", q)
	}
}

func TestResolveCousinReference(t *testing.T) {
	e := &element.Element{
		Tag:     element.TagReference,
		RefKind: element.RefCousinReference,
		RefPath: [][]byte{[]byte("cousin")},
	}
	q, err := Resolve(e, pth("a", "b"), []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Path) != 2 || string(q.Path[1]) != "cousin" || string(q.Key) != "k" {
		t.Fatalf("unexpected resolution: %+v", q)
	}
}

func TestResolveRejectsNonReference(t *testing.T) {
	e := element.NewItem([]byte("x"), nil)
	if _, err := Resolve(e, pth("a"), []byte("k")); err == nil {
		t.Fatal("expected an error resolving a non-reference element")
	}
}

// fakeStore is a minimal in-memory (path,key) -> element map used to
// exercise Dereference without any storage package dependency.
type fakeStore map[string]*element.Element

func storeKey(path Path, key []byte) string {
	var b bytes.Buffer
	for _, s := range path {
		b.Write(s)
		b.WriteByte('/')
	}
	b.Write(key)
	return b.String()
}

func (s fakeStore) reader() Reader {
	return func(path Path, key []byte) (*element.Element, error) {
		e, ok := s[storeKey(path, key)]
		if !ok {
			return nil, nil
		}
		return e, nil
	}
}

func TestDereferenceFollowsChain(t *testing.T) {
	store := fakeStore{}
	store[storeKey(pth("contracts", "C1", "docs"), []byte("D1"))] = element.NewItem([]byte("data"), nil)
	store[storeKey(pth("idx", "alice"), []byte("D1"))] = &element.Element{
		Tag:     element.TagReference,
		RefKind: element.RefAbsolutePath,
		RefPath: pth("contracts", "C1", "docs"),
		RefKey:  []byte("D1"),
	}

	got, target, err := Dereference(store.reader(), pth("idx", "alice"), []byte("D1"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Bytes) != "data" {
		t.Fatalf("got %q", got.Bytes)
	}
	if len(target.Path) != 3 || string(target.Path[2]) != "docs" {
		t.Fatalf("unexpected final target: %+v", target)
	}
}

func TestDereferenceDetectsCycle(t *testing.T) {
	store := fakeStore{}
	ref := func(path Path, key []byte) *element.Element {
		return &element.Element{Tag: element.TagReference, RefKind: element.RefAbsolutePath, RefPath: path, RefKey: key}
	}
	store[storeKey(pth("A"), []byte("k"))] = ref(pth("B"), []byte("k"))
	store[storeKey(pth("B"), []byte("k"))] = ref(pth("C"), []byte("k"))
	store[storeKey(pth("C"), []byte("k"))] = ref(pth("A"), []byte("k"))

	_, _, err := Dereference(store.reader(), pth("A"), []byte("k"))
	if !groveerr.Is(err, groveerr.CyclicReference) {
		t.Fatalf("expected CyclicReference, got %v", err)
	}
}

func TestDereferenceHopLimit(t *testing.T) {
	store := fakeStore{}
	// a chain of MaxHops+2 references, none of which repeats a target,
	// must fail with HopLimitExceeded before reaching the final item.
	for i := 0; i < MaxHops+2; i++ {
		from := []byte{byte(i)}
		to := []byte{byte(i + 1)}
		store[storeKey(pth("chain"), from)] = &element.Element{
			Tag: element.TagReference, RefKind: element.RefSiblingReference, RefKey: to,
		}
	}
	store[storeKey(pth("chain"), []byte{byte(MaxHops + 2)})] = element.NewItem([]byte("end"), nil)

	_, _, err := Dereference(store.reader(), pth("chain"), []byte{0})
	if !groveerr.Is(err, groveerr.HopLimitExceeded) {
		t.Fatalf("expected HopLimitExceeded, got %v", err)
	}
}

func TestDereferenceMissingKey(t *testing.T) {
	store := fakeStore{}
	_, _, err := Dereference(store.reader(), pth("nope"), []byte("k"))
	if !groveerr.Is(err, groveerr.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}
