package talc

import "sync"

// SafeHeap is a mutex-protected wrapper around Heap: every entry point
// takes the lock, serializing access so a single Heap can be shared
// across goroutines. The core itself stays single-threaded; all the
// concurrency-safety lives here.
type SafeHeap struct {
	mu sync.Mutex
	h  *Heap
}

// NewSafeHeap constructs an empty, uninitialized thread-safe heap using
// the default OOM handler.
func NewSafeHeap() *SafeHeap {
	return &SafeHeap{h: New()}
}

// NewSafeHeapWithOomHandler constructs an empty, uninitialized
// thread-safe heap using handler in place of the default.
func NewSafeHeapWithOomHandler(handler OomHandler) *SafeHeap {
	return &SafeHeap{h: WithOomHandler(handler)}
}

// Init thread-safely takes ownership of arena.
func (s *SafeHeap) Init(arena []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Init(arena)
}

// Malloc thread-safely satisfies layout.
func (s *SafeHeap) Malloc(layout Layout) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Malloc(layout)
}

// Free thread-safely returns ptr to the heap.
func (s *SafeHeap) Free(ptr uintptr, layout Layout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Free(ptr, layout)
}

// Grow thread-safely resizes the allocation at ptr.
func (s *SafeHeap) Grow(ptr uintptr, oldLayout Layout, newSize uintptr) (uintptr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Grow(ptr, oldLayout, newSize)
}

// Shrink thread-safely carves a smaller tail off the allocation at ptr.
func (s *SafeHeap) Shrink(ptr uintptr, oldLayout Layout, newSize uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Shrink(ptr, oldLayout, newSize)
}

// Extend thread-safely grows the arena.
func (s *SafeHeap) Extend(newArena []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Extend(newArena)
}

// Truncate thread-safely shrinks the arena.
func (s *SafeHeap) Truncate(newArena []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h.Truncate(newArena)
}

// GetArena thread-safely returns the current arena span.
func (s *SafeHeap) GetArena() Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.GetArena()
}

// GetAllocatableSpan thread-safely returns the allocatable sub-span.
func (s *SafeHeap) GetAllocatableSpan() Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.GetAllocatableSpan()
}

// GetAllocatedSpan thread-safely returns the span of all live allocations.
func (s *SafeHeap) GetAllocatedSpan() Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.GetAllocatedSpan()
}

// Metrics thread-safely returns a usage snapshot.
func (s *SafeHeap) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Metrics()
}
