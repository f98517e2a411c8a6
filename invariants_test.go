package talc

import (
	"math/rand"
	"testing"
)

// chunkView is a scan-time description of one chunk, used only by tests
// to walk a heap's allocatable span and check the invariants spec.md §8
// names (I1-I6) without relying on the production code under test.
type chunkView struct {
	base, acme uintptr
	free       bool
}

// walkChunks scans the allocatable span from base to acme, decoding each
// chunk via the same tagged-word rule Free/Malloc use: the low bit of the
// first word distinguishes an allocated-chunk tag from a free-chunk list
// pointer.
func walkChunks(t *testing.T, h *Heap) []chunkView {
	t.Helper()
	var chunks []chunkView
	p := h.allocatableBase
	for p < h.allocatableAcme {
		word := loadWord(p)
		if IsAllocated(word) {
			acme := Tag(word).AcmePtr()
			if acme <= p || acme > h.allocatableAcme {
				t.Fatalf("walkChunks: allocated chunk at %d has bogus acme %d", p, acme)
			}
			chunks = append(chunks, chunkView{base: p, acme: acme, free: false})
			p = acme
			continue
		}
		size := freeChunkSize(p)
		if size < MinChunk {
			t.Fatalf("walkChunks: free chunk at %d reports size %d < MinChunk", p, size)
		}
		acme := p + size
		if acme > h.allocatableAcme {
			t.Fatalf("walkChunks: free chunk at %d overruns allocatable acme", p)
		}
		chunks = append(chunks, chunkView{base: p, acme: acme, free: true})
		p = acme
	}
	return chunks
}

// checkHeapInvariants asserts I1-I6 of spec.md §8 against the current
// state of h, walking the arena directly rather than trusting any of the
// bookkeeping it is meant to validate.
func checkHeapInvariants(t *testing.T, h *Heap) {
	t.Helper()
	if h.allocatableBase == 0 && h.allocatableAcme == 0 {
		return
	}

	chunks := walkChunks(t, h)

	// I1: the span is tiled with no gaps/overlaps, every chunk >= MinChunk.
	if len(chunks) == 0 {
		t.Fatal("invariant I1: allocatable span produced no chunks")
	}
	if chunks[0].base != h.allocatableBase {
		t.Fatalf("invariant I1: first chunk base %d != allocatableBase %d", chunks[0].base, h.allocatableBase)
	}
	if chunks[len(chunks)-1].acme != h.allocatableAcme {
		t.Fatalf("invariant I1: last chunk acme %d != allocatableAcme %d", chunks[len(chunks)-1].acme, h.allocatableAcme)
	}
	for i, c := range chunks {
		if c.acme-c.base < MinChunk {
			t.Fatalf("invariant I1: chunk[%d] size %d < MinChunk", i, c.acme-c.base)
		}
		if i > 0 && chunks[i-1].acme != c.base {
			t.Fatalf("invariant I1: gap between chunk[%d] (acme %d) and chunk[%d] (base %d)", i-1, chunks[i-1].acme, i, c.base)
		}
	}

	// I2: no two adjacent chunks are both free.
	for i := 1; i < len(chunks); i++ {
		if chunks[i-1].free && chunks[i].free {
			t.Fatalf("invariant I2: chunk[%d] and chunk[%d] are both free and adjacent", i-1, i)
		}
	}

	// I3: boundary tags agree for every free chunk.
	for i, c := range chunks {
		if !c.free {
			continue
		}
		low := loadWord(c.base + 2*Word)
		high := loadWord(c.acme - Word)
		if low != high {
			t.Fatalf("invariant I3: chunk[%d] boundary tags disagree: low=%d high=%d", i, low, high)
		}
		if low != c.acme-c.base {
			t.Fatalf("invariant I3: chunk[%d] boundary tag %d != actual size %d", i, low, c.acme-c.base)
		}
	}

	// I4: a bin's availability bit is set iff its list is non-empty.
	for b := 0; b < BinCount; b++ {
		nonEmpty := loadWord(h.binHeadSlot(b)) != 0
		if nonEmpty != h.avail.Test(b) {
			t.Fatalf("invariant I4: bin %d non-empty=%v but availability bit=%v", b, nonEmpty, h.avail.Test(b))
		}
	}

	// I5: for every allocated chunk with an upper neighbour, isBelowFree
	// of that neighbour's tag (if allocated) matches whether this chunk
	// is free. Equivalently, walking pairs of adjacent chunks: if the
	// upper one is allocated, its tag's isBelowFree must equal the lower
	// one's free-ness.
	for i := 1; i < len(chunks); i++ {
		upper := chunks[i]
		if upper.free {
			continue
		}
		tag := readTag(upper.base)
		if tag.IsBelowFree() != chunks[i-1].free {
			t.Fatalf("invariant I5: chunk[%d].isBelowFree=%v but chunk[%d].free=%v", i, tag.IsBelowFree(), i-1, chunks[i-1].free)
		}
	}

	// I6: isTopFree iff the highest chunk is free.
	top := chunks[len(chunks)-1]
	if top.free != h.isTopFree {
		t.Fatalf("invariant I6: top chunk free=%v but h.isTopFree=%v", top.free, h.isTopFree)
	}
}

func TestInvariantsHoldThroughSingleAllocFree(t *testing.T) {
	h := New()
	h.Init(make([]byte, 10_000_000))
	checkHeapInvariants(t, h)

	layout := NewLayout(1243, 8)
	p, err := h.Malloc(layout)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	checkHeapInvariants(t, h)
	writeMarker(p, 1243, 0xFF)

	h.Free(p, layout)
	checkHeapInvariants(t, h)
}

// TestInvariantsHoldAfterInterleavedAllocFree mirrors spec.md scenario
// S2: one hundred same-sized allocations, then the lower half freed in
// order and the upper half freed in reverse order, checking invariants
// after every single step.
func TestInvariantsHoldAfterInterleavedAllocFree(t *testing.T) {
	h := New()
	h.Init(make([]byte, 10_000_000))
	checkHeapInvariants(t, h)

	layout := NewLayout(1243, 8)
	ptrs := make([]uintptr, 100)
	for i := range ptrs {
		p, err := h.Malloc(layout)
		if err != nil {
			t.Fatalf("malloc %d: %v", i, err)
		}
		ptrs[i] = p
		checkHeapInvariants(t, h)
	}

	for i := 0; i < 50; i++ {
		h.Free(ptrs[i], layout)
		checkHeapInvariants(t, h)
	}
	for i := 99; i >= 50; i-- {
		h.Free(ptrs[i], layout)
		checkHeapInvariants(t, h)
	}

	m := h.Metrics()
	if m.FreeChunks != 1 {
		t.Fatalf("after freeing every allocation, FreeChunks = %d, want 1", m.FreeChunks)
	}
}

func TestInvariantsHoldThroughRandomizedMallocFreeSequence(t *testing.T) {
	h := New()
	h.Init(make([]byte, 1<<20))
	checkHeapInvariants(t, h)

	rng := rand.New(rand.NewSource(12345))
	type live struct {
		ptr    uintptr
		layout Layout
	}
	var allocs []live

	for i := 0; i < 500; i++ {
		if len(allocs) > 0 && rng.Intn(2) == 0 {
			idx := rng.Intn(len(allocs))
			a := allocs[idx]
			h.Free(a.ptr, a.layout)
			allocs[idx] = allocs[len(allocs)-1]
			allocs = allocs[:len(allocs)-1]
		} else {
			size := uintptr(1 + rng.Intn(512))
			layout := NewLayout(size, 8)
			p, err := h.Malloc(layout)
			if err == nil {
				allocs = append(allocs, live{ptr: p, layout: layout})
			}
		}
		checkHeapInvariants(t, h)
	}

	for _, a := range allocs {
		h.Free(a.ptr, a.layout)
	}
	checkHeapInvariants(t, h)
}

func TestInvariantsHoldThroughGrowShrinkExtendTruncate(t *testing.T) {
	full := make([]byte, 1<<20)
	small := full[:1<<15]

	h := New()
	h.Init(small)
	checkHeapInvariants(t, h)

	layout := NewLayout(64, 8)
	p, err := h.Malloc(layout)
	if err != nil {
		t.Fatalf("malloc: %v", err)
	}
	checkHeapInvariants(t, h)

	grown, err := h.Grow(p, layout, 512)
	if err != nil {
		t.Fatalf("grow: %v", err)
	}
	checkHeapInvariants(t, h)

	h.Shrink(grown, NewLayout(512, 8), 48)
	checkHeapInvariants(t, h)

	h.Extend(full)
	checkHeapInvariants(t, h)

	h.Truncate(full[:1<<16])
	checkHeapInvariants(t, h)
}
