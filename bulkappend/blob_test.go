package bulkappend

import (
	"bytes"
	"testing"
)

func TestChunkBlobRoundTrip(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	blob, err := encodeChunkBlob(entries)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeChunkBlob(blob, uint64(len(entries)))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if !bytes.Equal(got[i], e) {
			t.Fatalf("entry %d: got %q want %q", i, got[i], e)
		}
	}
}

func TestChunkBlobDetectsHeaderEntryMismatch(t *testing.T) {
	entries := [][]byte{[]byte("a"), []byte("b")}
	blob, err := encodeChunkBlob(entries)
	if err != nil {
		t.Fatal(err)
	}

	// Corrupt the last entry byte, leaving the header (and its checksum
	// of the original entries) untouched.
	blob[len(blob)-1] ^= 0xFF

	if _, err := decodeChunkBlob(blob, uint64(len(entries))); err == nil {
		t.Fatal("expected decodeChunkBlob to reject a blob whose header no longer matches its entries")
	}
}
