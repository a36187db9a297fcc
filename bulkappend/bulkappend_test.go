package bulkappend

import (
	"fmt"
	"testing"

	"github.com/dashpay/grovedb/hash"
	"github.com/dashpay/grovedb/storage/memstore"
)

func testPrefix() hash.Digest {
	return hash.SubtreePrefix([][]byte{[]byte("log")})
}

func TestAppendAcrossChunkBoundary(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2) // chunk_size 4
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if tr.TotalCount() != 10 {
		t.Fatalf("total count: got %d want 10", tr.TotalCount())
	}
	if tr.ChunkCount() != 2 {
		t.Fatalf("chunk count: got %d want 2", tr.ChunkCount())
	}
	if tr.BufferCount() != 2 {
		t.Fatalf("buffer count: got %d want 2", tr.BufferCount())
	}
	for i := 0; i < 10; i++ {
		v, _, err := tr.GetValue(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("position %d: got %q", i, v)
		}
	}
}

func TestStateRootChangesOnAppend(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2)
	if err != nil {
		t.Fatal(err)
	}
	r0 := tr.StateRoot()
	if _, _, err := tr.Append([]byte("a")); err != nil {
		t.Fatal(err)
	}
	r1 := tr.StateRoot()
	if r0 == r1 {
		t.Fatal("state root must change after append")
	}
	for i := 0; i < 3; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("b%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	r2 := tr.StateRoot()
	if r1 == r2 {
		t.Fatal("state root must change once a chunk compacts")
	}
}

func TestReopenPreservesStateAndValues(t *testing.T) {
	store := memstore.New()
	prefix := testPrefix()

	tr, _, err := Open(store.Immediate(), prefix, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	wantRoot := tr.StateRoot()

	reopened, _, err := Open(store.Immediate(), prefix, 2)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.TotalCount() != 7 {
		t.Fatalf("total count after reopen: got %d want 7", reopened.TotalCount())
	}
	if reopened.StateRoot() != wantRoot {
		t.Fatal("state root changed across reopen")
	}
	for i := 0; i < 7; i++ {
		v, _, err := reopened.GetValue(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		if string(v) != fmt.Sprintf("v%d", i) {
			t.Fatalf("position %d after reopen: got %q", i, v)
		}
	}
}

func TestProveAndVerifyAcrossChunkAndBuffer(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2) // chunk_size 4
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	proof, _, err := tr.GenerateProof(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(proof, tr.StateRoot()) {
		t.Fatal("valid full-range proof failed to verify")
	}
}

func TestProveChunkOnlyRange(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	proof, _, err := tr.GenerateProof(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(proof.BufferEntries) != 0 {
		t.Fatal("8 entries fill two chunks of 4, so the buffer is empty and no buffer entries should be disclosed")
	}
	if !Verify(proof, tr.StateRoot()) {
		t.Fatal("valid chunk-only proof failed to verify")
	}
}

func TestVerifyRejectsTamperedChunkBlob(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	proof, _, err := tr.GenerateProof(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	proof.Chunks[0].Blob[len(proof.Chunks[0].Blob)-1] ^= 0xFF
	if Verify(proof, tr.StateRoot()) {
		t.Fatal("tampered chunk blob must not verify")
	}
}

func TestVerifyRejectsTamperedBufferEntry(t *testing.T) {
	store := memstore.New().Immediate()
	tr, _, err := Open(store, testPrefix(), 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if _, _, err := tr.Append([]byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	proof, _, err := tr.GenerateProof(4, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(proof.BufferEntries) == 0 {
		t.Fatal("expected buffer entries to be disclosed")
	}
	proof.BufferEntries[0] = []byte("tampered")
	if Verify(proof, tr.StateRoot()) {
		t.Fatal("tampered buffer entry must not verify")
	}
}
