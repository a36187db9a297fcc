package merk

import (
	"testing"

	"github.com/dashpay/grovedb/element"
	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/proof"
	"github.com/dashpay/grovedb/storage/memstore"
)

func insertItem(t *testing.T, m *Merk, key, value string) {
	t.Helper()
	e := element.NewItem([]byte(value), nil)
	encoded, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Insert([]byte(key), encoded, hash.ValueHash(encoded)); err != nil {
		t.Fatal(err)
	}
}

func newTestMerk(t *testing.T, feature FeatureType) *Merk {
	t.Helper()
	store := memstore.New().Immediate()
	m, _, err := Open(store, hash.SubtreePrefix(nil), feature)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestGenerateKeyProofPresent(t *testing.T) {
	m := newTestMerk(t, FeatureBasic)
	insertItem(t, m, "a", "1")
	insertItem(t, m, "b", "2")
	insertItem(t, m, "c", "3")
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	p, _, err := m.GenerateKeyProof([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	disclosed, err := proof.VerifyV0(p, m.RootHash())
	if err != nil {
		t.Fatal(err)
	}
	if len(disclosed) != 1 || string(disclosed[0].Key) != "b" {
		t.Fatalf("expected exactly one disclosed entry for key b, got %+v", disclosed)
	}
}

func TestGenerateKeyProofAbsent(t *testing.T) {
	m := newTestMerk(t, FeatureBasic)
	insertItem(t, m, "a", "1")
	insertItem(t, m, "c", "3")
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	p, _, err := m.GenerateKeyProof([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	disclosed, err := proof.VerifyV0(p, m.RootHash())
	if err != nil {
		t.Fatal(err)
	}
	if len(disclosed) != 0 {
		t.Fatalf("expected no disclosed entries for an absent key, got %+v", disclosed)
	}
}

func TestGenerateKeyProofWrongRootFails(t *testing.T) {
	m := newTestMerk(t, FeatureBasic)
	insertItem(t, m, "a", "1")
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	p, _, err := m.GenerateKeyProof([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := proof.VerifyV0(p, hash.Null); err == nil {
		t.Fatal("expected verification against the wrong root to fail")
	}
}

func TestGenerateRangeProof(t *testing.T) {
	m := newTestMerk(t, FeatureBasic)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		insertItem(t, m, k, k+k)
	}
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	p, _, err := m.GenerateRangeProof([]byte("b"), []byte("d"), false, true)
	if err != nil {
		t.Fatal(err)
	}
	disclosed, err := proof.VerifyV0(p, m.RootHash())
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]bool)
	for _, e := range disclosed {
		got[string(e.Key)] = true
	}
	if len(got) != 2 || !got["b"] || !got["c"] {
		t.Fatalf("expected range [b,d) to disclose exactly {b,c}, got %+v", got)
	}
}

func TestGenerateKeyProofFoldsCountForProvableCount(t *testing.T) {
	m := newTestMerk(t, FeatureProvableCount)
	insertItem(t, m, "a", "1")
	insertItem(t, m, "b", "2")
	insertItem(t, m, "c", "3")
	if _, err := m.Commit(); err != nil {
		t.Fatal(err)
	}

	p, _, err := m.GenerateKeyProof([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := proof.VerifyV0(p, m.RootHash()); err != nil {
		t.Fatalf("expected provable-count proof to verify, got %v", err)
	}
}
