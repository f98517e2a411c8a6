// Package talc implements a boundary-tagged, segregated-fit heap core
// suitable as the backing allocator for a freestanding (no operating
// system) environment.
//
// # Overview
//
// A Heap takes ownership of one or more contiguous byte slices ("arenas")
// handed to it by the caller and serves Malloc/Free/Grow/Shrink requests
// out of them, recycling freed memory and coalescing adjacent free chunks
// so fragmentation never compounds. Every byte of bookkeeping lives
// inside the arena itself — the only state outside it is the small Heap
// struct (a handful of pointers and two bitmap words).
//
// # Basic Usage
//
//	h := talc.New()
//	arena := make([]byte, 1<<20)
//	h.Init(arena)
//
//	ptr, err := h.Malloc(talc.NewLayout(128, 8))
//	if err != nil {
//		// out of memory
//	}
//	h.Free(ptr, talc.NewLayout(128, 8))
//
// # Thread Safety
//
// Heap is not safe for concurrent use — it is a strictly single-threaded,
// synchronous core by design. For concurrent access, wrap it in SafeHeap:
//
//	sh := talc.NewSafeHeap()
//	sh.Init(arena)
//	ptr, err := sh.Malloc(talc.NewLayout(128, 8))
//
// # Memory Layout
//
// The allocatable interior of an arena is word-aligned inward and
// partitioned into a contiguous run of chunks, each either free or
// allocated, with the invariant that two free chunks are never adjacent.
// Free chunks carry an intrusive list node and duplicated boundary-tag
// size words; allocated chunks carry a single-word tag encoding their
// acme plus two flag bits. See the Span, Tag and bin-indexing types for
// the pieces of this layout.
//
// # Out of memory
//
// When no free list holds a chunk large enough for a request, Malloc
// invokes the heap's OomHandler. The default, AllocErrorHandler, always
// fails; callers that want to grow the arena on demand supply their own
// handler via WithOomHandler, calling Extend on the heap it is given.
//
// # Metrics
//
// Heap.Metrics returns a derived snapshot of current usage:
//
//	m := h.Metrics()
//	fmt.Printf("utilization: %.1f%%\n", m.Utilization*100)
package talc
