package element

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*Element{
		NewItem([]byte("hello"), nil),
		NewItem([]byte(""), []byte("flag")),
		NewTree([]byte("rootkey"), nil),
		NewTree(nil, nil),
		NewSumItem(-42, nil),
		NewSumTree([]byte("rk"), 350, nil),
		{Tag: TagBigSumTree, RootKey: []byte("rk2"), BigSum: [16]byte{0: 1, 15: 2}},
		{Tag: TagCountTree, RootKey: []byte("rk3"), Count: 7},
		{Tag: TagCountSumTree, RootKey: []byte("rk4"), Count: 7, Sum: -9},
		{Tag: TagItemWithSumItem, Bytes: []byte("data"), Sum: 100},
		{Tag: TagProvableCountTree, RootKey: []byte("rk5"), Count: 3},
		{Tag: TagProvableCountSumTree, RootKey: []byte("rk6"), Count: 3, Sum: 8},
		{Tag: TagCommitmentTree, TotalCount: 12345, ChunkPower: 10, PayloadSize: 216},
		{Tag: TagMmrTree, MmrSize: 8},
		{Tag: TagBulkAppendTree, TotalCount: 99, ChunkPower: 4},
		{Tag: TagDenseTree, DenseCount: 5, DenseHeight: 3},
		{
			Tag:       TagReference,
			RefKind:   RefAbsolutePath,
			RefPath:   [][]byte{[]byte("a"), []byte("b")},
			RefKey:    []byte("k"),
			RefHasHop: true,
			RefMaxHop: 5,
		},
	}

	for i, want := range cases {
		data, err := want.Encode()
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		assertElementsEqual(t, i, want, got)
	}
}

func assertElementsEqual(t *testing.T, i int, want, got *Element) {
	t.Helper()
	if got.Tag != want.Tag {
		t.Fatalf("case %d: tag mismatch: got %v want %v", i, got.Tag, want.Tag)
	}
	if !bytes.Equal(got.Bytes, want.Bytes) {
		t.Errorf("case %d: Bytes mismatch", i)
	}
	if !bytes.Equal(got.RootKey, want.RootKey) {
		t.Errorf("case %d: RootKey mismatch", i)
	}
	if got.Sum != want.Sum {
		t.Errorf("case %d: Sum mismatch: got %d want %d", i, got.Sum, want.Sum)
	}
	if got.Count != want.Count {
		t.Errorf("case %d: Count mismatch", i)
	}
	if got.BigSum != want.BigSum {
		t.Errorf("case %d: BigSum mismatch", i)
	}
	if got.TotalCount != want.TotalCount || got.ChunkPower != want.ChunkPower {
		t.Errorf("case %d: CommitmentTree/BulkAppend fields mismatch", i)
	}
	if got.PayloadSize != want.PayloadSize {
		t.Errorf("case %d: PayloadSize mismatch", i)
	}
	if got.MmrSize != want.MmrSize {
		t.Errorf("case %d: MmrSize mismatch", i)
	}
	if got.DenseCount != want.DenseCount || got.DenseHeight != want.DenseHeight {
		t.Errorf("case %d: dense fields mismatch", i)
	}
	if got.Tag == TagReference {
		if len(got.RefPath) != len(want.RefPath) {
			t.Fatalf("case %d: RefPath length mismatch", i)
		}
		for j := range got.RefPath {
			if !bytes.Equal(got.RefPath[j], want.RefPath[j]) {
				t.Errorf("case %d: RefPath[%d] mismatch", i, j)
			}
		}
		if !bytes.Equal(got.RefKey, want.RefKey) {
			t.Errorf("case %d: RefKey mismatch", i)
		}
		if got.RefHasHop != want.RefHasHop || got.RefMaxHop != want.RefMaxHop {
			t.Errorf("case %d: hop fields mismatch", i)
		}
	}
}

func TestEncodingChangesOnAnyByteFlip(t *testing.T) {
	e := NewItem([]byte("value"), []byte("flags"))
	base, err := e.Encode()
	if err != nil {
		t.Fatal(err)
	}

	other := NewItem([]byte("valuf"), []byte("flags"))
	otherEnc, _ := other.Encode()
	if bytes.Equal(base, otherEnc) {
		t.Fatal("flipping a byte of the value must change the encoding")
	}
}

func TestAggregateContributions(t *testing.T) {
	si := NewSumItem(150, nil)
	if si.SumContribution() != 150 {
		t.Fatalf("SumItem contribution: got %d", si.SumContribution())
	}

	item := NewItem([]byte("x"), nil)
	if item.SumContribution() != 0 {
		t.Fatalf("plain Item must contribute 0 to sum aggregates")
	}
	if item.CountContribution() != 1 {
		t.Fatalf("plain Item must contribute 1 to count aggregates")
	}

	st := NewSumTree([]byte("rk"), 500, nil)
	if st.SumContribution() != 500 {
		t.Fatalf("nested SumTree must roll its own stored sum into the parent")
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	e := NewItem([]byte("value"), []byte("flags"))
	data, _ := e.Encode()
	if _, err := Decode(data[:len(data)-2]); err == nil {
		t.Fatal("expected an error decoding truncated element bytes")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected an error for an unknown discriminant byte")
	}
}
