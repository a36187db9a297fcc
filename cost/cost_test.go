package cost

import "testing"

func TestOperationCostAddIsComponentWise(t *testing.T) {
	a := OperationCost{Seeks: 1, HashNodeCalls: 2, SinsemillaHashCalls: 3}
	a.Storage.AddedBytes = 10
	b := OperationCost{Seeks: 4, HashNodeCalls: 5, SinsemillaHashCalls: 6}
	b.Storage.AddedBytes = 20

	got := a.Add(b)
	if got.Seeks != 5 || got.HashNodeCalls != 7 || got.SinsemillaHashCalls != 9 {
		t.Fatalf("unexpected sum: %+v", got)
	}
	if got.Storage.AddedBytes != 30 {
		t.Fatalf("expected AddedBytes 30, got %d", got.Storage.AddedBytes)
	}
}

func TestRemovedBytesAddIsStickyFalse(t *testing.T) {
	known := RemovedBytes{Known: true, BytesRemoved: 5}
	estimate := RemovedBytes{Known: false, BytesRemoved: 7}

	got := known.Add(estimate)
	if got.Known {
		t.Fatal("expected Known to go sticky-false once any contributor is an estimate")
	}
	if got.BytesRemoved != 12 {
		t.Fatalf("expected BytesRemoved 12, got %d", got.BytesRemoved)
	}
}

func TestApplyOverwriteEqualLength(t *testing.T) {
	var c OperationCost
	c.ApplyOverwrite(10, 10)
	if c.Storage.ReplacedBytes != 10 || c.Storage.AddedBytes != 0 || c.Storage.RemovedBytes.BytesRemoved != 0 {
		t.Fatalf("unexpected cost for equal-length overwrite: %+v", c.Storage)
	}
}

func TestApplyOverwriteGrowing(t *testing.T) {
	var c OperationCost
	c.ApplyOverwrite(10, 15)
	if c.Storage.ReplacedBytes != 10 || c.Storage.AddedBytes != 5 {
		t.Fatalf("unexpected cost for growing overwrite: %+v", c.Storage)
	}
}

func TestApplyOverwriteShrinking(t *testing.T) {
	var c OperationCost
	c.ApplyOverwrite(10, 4)
	if c.Storage.ReplacedBytes != 4 {
		t.Fatalf("expected ReplacedBytes 4, got %d", c.Storage.ReplacedBytes)
	}
	if !c.Storage.RemovedBytes.Known || c.Storage.RemovedBytes.BytesRemoved != 6 {
		t.Fatalf("expected a known removal of 6 bytes, got %+v", c.Storage.RemovedBytes)
	}
}

func TestApplyInsertAndRemove(t *testing.T) {
	var c OperationCost
	c.ApplyInsert(8)
	c.ApplyRemove(3)
	if c.Storage.AddedBytes != 8 {
		t.Fatalf("expected AddedBytes 8, got %d", c.Storage.AddedBytes)
	}
	if !c.Storage.RemovedBytes.Known || c.Storage.RemovedBytes.BytesRemoved != 3 {
		t.Fatalf("unexpected removed bytes: %+v", c.Storage.RemovedBytes)
	}
}

func TestCtxAccumulatesAndFinishes(t *testing.T) {
	ctx := NewCtx()
	ctx.Add(OperationCost{Seeks: 1})
	ctx.Add(OperationCost{Seeks: 2})

	if ctx.Total().Seeks != 3 {
		t.Fatalf("expected accumulated Seeks 3, got %d", ctx.Total().Seeks)
	}

	res := Finish(ctx, "value")
	if res.Value != "value" || res.Cost.Seeks != 3 {
		t.Fatalf("unexpected Result: %+v", res)
	}
}
