package talc

import "errors"

// ErrOOM is returned by Malloc and Grow when no sufficient chunk can be
// produced even after the OOM handler has run.
var ErrOOM = errors.New("talc: out of memory")

// OomHandler is invoked by Malloc when no bin holds a chunk large enough
// to satisfy layout. It may call Extend on heap with a larger arena and
// return nil to signal "try again"; returning a non-nil error aborts the
// allocation, and Malloc then returns ErrOOM. The handler must not call Malloc, Free,
// Grow, Shrink, or Truncate on heap — only Extend is sanctioned
// re-entrancy.
type OomHandler func(heap *Heap, layout Layout) error

// AllocErrorHandler is the default OomHandler: it always fails.
func AllocErrorHandler(_ *Heap, _ Layout) error {
	return ErrOOM
}
