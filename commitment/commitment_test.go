package commitment

import (
	"bytes"
	"testing"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage/memstore"
)

func testPrefix() hash.Digest {
	return hash.SubtreePrefix([][]byte{[]byte("notes")})
}

func testPayload(i int) []byte {
	return bytes.Repeat([]byte{byte(i)}, PrimaryMemoProfile)
}

func TestAppendAndGetValue(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		cmx := leafDigest(byte(i))
		rho := leafDigest(byte(100 + i))
		if _, _, err := tr.Append(cmx, rho, testPayload(i)); err != nil {
			t.Fatal(err)
		}
	}
	if tr.Count() != 6 {
		t.Fatalf("count: got %d want 6", tr.Count())
	}
	for i := 0; i < 6; i++ {
		cmx, rho, payload, _, err := tr.GetValue(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if cmx != leafDigest(byte(i)) || rho != leafDigest(byte(100+i)) {
			t.Fatalf("position %d: wrong cmx/rho", i)
		}
		if !bytes.Equal(payload, testPayload(i)) {
			t.Fatalf("position %d: wrong payload", i)
		}
	}
}

func TestAppendRejectsWrongPayloadSize(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = tr.Append(leafDigest(1), leafDigest(2), []byte("too short"))
	if err == nil {
		t.Fatal("expected InvalidPayloadSize error")
	}
}

func TestStateRootChangesOnAppend(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	r0 := tr.StateRoot()
	if _, _, err := tr.Append(leafDigest(1), leafDigest(2), testPayload(0)); err != nil {
		t.Fatal(err)
	}
	r1 := tr.StateRoot()
	if r0 == r1 {
		t.Fatal("state root must change after append")
	}
}

func TestReopenPreservesStateAndAnchor(t *testing.T) {
	store := memstore.New()
	prefix := testPrefix()

	tr, _, err := Open(store.Immediate(), prefix, 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, _, err := tr.Append(leafDigest(byte(i)), leafDigest(byte(50+i)), testPayload(i)); err != nil {
			t.Fatal(err)
		}
	}
	wantRoot := tr.StateRoot()
	wantAnchor := tr.Anchor()

	reopened, _, err := Open(store.Immediate(), prefix, 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Count() != 5 {
		t.Fatalf("count after reopen: got %d want 5", reopened.Count())
	}
	if reopened.StateRoot() != wantRoot {
		t.Fatal("state root changed across reopen")
	}
	if reopened.Anchor() != wantAnchor {
		t.Fatal("anchor changed across reopen")
	}
}

func TestProveAndVerify(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2, PrimaryMemoProfile) // chunk_size 4
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 9; i++ {
		if _, _, err := tr.Append(leafDigest(byte(i)), leafDigest(byte(i+1)), testPayload(i)); err != nil {
			t.Fatal(err)
		}
	}

	proof, _, err := tr.GenerateProof(0, 9)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(proof, tr.StateRoot()) {
		t.Fatal("valid proof failed to verify")
	}
}

func TestVerifyRejectsMismatchedFrontierRoot(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2, PrimaryMemoProfile)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := tr.Append(leafDigest(byte(i)), leafDigest(byte(i+1)), testPayload(i)); err != nil {
			t.Fatal(err)
		}
	}
	proof, _, err := tr.GenerateProof(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	proof.FrontierRoot = leafDigest(0xAA)
	if Verify(proof, tr.StateRoot()) {
		t.Fatal("tampered frontier root must not verify")
	}
}
