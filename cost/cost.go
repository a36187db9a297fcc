// Package cost implements the operation-cost monad threaded through every
// fallible GroveDB operation (spec §4.1): every result carries an
// accumulating OperationCost alongside its value or error.
package cost

// RemovedBytes distinguishes a precise removal count from an estimated one,
// used for refund accounting (spec §4.1).
type RemovedBytes struct {
	// Known is true when BytesRemoved is an exact count rather than an
	// estimate. Section-tagged removals (per-CF) are tracked by callers
	// keeping one RemovedBytes per section; this type itself only carries
	// the known/estimated distinction for a single section.
	Known        bool
	BytesRemoved uint64
}

// Add combines two removal tallies. The zero value means "no removal" and
// is the identity. Otherwise Known is sticky-false: once any contributing
// removal is an estimate, the sum is an estimate.
func (r RemovedBytes) Add(o RemovedBytes) RemovedBytes {
	if r == (RemovedBytes{}) {
		return o
	}
	if o == (RemovedBytes{}) {
		return r
	}
	return RemovedBytes{
		Known:        r.Known && o.Known,
		BytesRemoved: r.BytesRemoved + o.BytesRemoved,
	}
}

// StorageCost is the storage-facing component of an OperationCost.
type StorageCost struct {
	AddedBytes     uint32
	ReplacedBytes  uint32
	RemovedBytes   RemovedBytes
	LoadedBytes    uint64
}

// Add combines two storage costs component-wise.
func (s StorageCost) Add(o StorageCost) StorageCost {
	return StorageCost{
		AddedBytes:    s.AddedBytes + o.AddedBytes,
		ReplacedBytes: s.ReplacedBytes + o.ReplacedBytes,
		RemovedBytes:  s.RemovedBytes.Add(o.RemovedBytes),
		LoadedBytes:   s.LoadedBytes + o.LoadedBytes,
	}
}

// OperationCost accumulates resource consumption across an operation or
// chain of operations (spec §3.1, §4.1). It is a monoid under Add: the
// zero value is the identity.
type OperationCost struct {
	Seeks               uint32
	Storage             StorageCost
	StorageLoadedBytes  uint64
	HashNodeCalls       uint32
	SinsemillaHashCalls uint32
}

// Add returns the component-wise sum of two costs. Addition is
// associative and commutative, so callers may fold costs in any order
// (spec invariant 8: cost monotonicity).
func (c OperationCost) Add(o OperationCost) OperationCost {
	return OperationCost{
		Seeks:               c.Seeks + o.Seeks,
		Storage:             c.Storage.Add(o.Storage),
		StorageLoadedBytes:  c.StorageLoadedBytes + o.StorageLoadedBytes,
		HashNodeCalls:       c.HashNodeCalls + o.HashNodeCalls,
		SinsemillaHashCalls: c.SinsemillaHashCalls + o.SinsemillaHashCalls,
	}
}

// AddSeek increments the seek counter by one.
func (c *OperationCost) AddSeek() { c.Seeks++ }

// AddHashNodeCalls adds n Blake3 node-hash invocations to the tally.
func (c *OperationCost) AddHashNodeCalls(n uint32) { c.HashNodeCalls += n }

// AddSinsemillaHashCalls adds n commitment-tree frontier hash invocations.
func (c *OperationCost) AddSinsemillaHashCalls(n uint32) { c.SinsemillaHashCalls += n }

// AddLoadedBytes records bytes read from storage.
func (c *OperationCost) AddLoadedBytes(n uint64) { c.StorageLoadedBytes += n }

// ApplyOverwrite folds in the storage-cost arithmetic for overwriting an
// oldLen-byte value with a newLen-byte one (spec §4.1):
//
//	M == N -> replaced += N
//	M >  N -> replaced += N, added += (M-N)
//	M <  N -> replaced += M, removed += (N-M), known
func (c *OperationCost) ApplyOverwrite(oldLen, newLen int) {
	switch {
	case newLen == oldLen:
		c.Storage.ReplacedBytes += uint32(oldLen)
	case newLen > oldLen:
		c.Storage.ReplacedBytes += uint32(oldLen)
		c.Storage.AddedBytes += uint32(newLen - oldLen)
	default:
		c.Storage.ReplacedBytes += uint32(newLen)
		c.Storage.RemovedBytes = c.Storage.RemovedBytes.Add(RemovedBytes{
			Known:        true,
			BytesRemoved: uint64(oldLen - newLen),
		})
	}
}

// ApplyInsert records a fresh write of n bytes with no prior value.
func (c *OperationCost) ApplyInsert(n int) {
	c.Storage.AddedBytes += uint32(n)
}

// ApplyRemove records a known removal of n bytes (e.g. a delete).
func (c *OperationCost) ApplyRemove(n int) {
	c.Storage.RemovedBytes = c.Storage.RemovedBytes.Add(RemovedBytes{Known: true, BytesRemoved: uint64(n)})
}

// Result pairs an operation's value with its accumulated cost, the shape
// every GroveDB operation returns (result, cost). On error Value is the
// zero value of T but Cost still reflects work actually performed before
// failure, per spec §4.1 and §7 ("accumulated cost is attached to the
// error").
type Result[T any] struct {
	Value T
	Cost  OperationCost
}

// Ctx is a mutable cost accumulator threaded through a call chain via
// pointer, letting nested helpers add to a shared total without the
// caller manually summing return values at every frame. Chain returns
// still happen via Result[T]; Ctx is the ergonomic accumulator used
// internally by merk/grove/batch while building one.
type Ctx struct {
	total OperationCost
}

// NewCtx returns a fresh zero-cost accumulator.
func NewCtx() *Ctx { return &Ctx{} }

// Add folds o into the running total.
func (c *Ctx) Add(o OperationCost) { c.total = c.total.Add(o) }

// Total returns the accumulated cost so far.
func (c *Ctx) Total() OperationCost { return c.total }

// Finish wraps value and the accumulated total into a Result.
func Finish[T any](c *Ctx, value T) Result[T] {
	return Result[T]{Value: value, Cost: c.total}
}
