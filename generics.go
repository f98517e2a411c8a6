package talc

import (
	"runtime"
	"unsafe"
)

// MallocT allocates space for one T, zeroed, and returns a pointer to it.
// The returned pointer is valid until the backing chunk is freed; callers
// holding onto it across a GC-eligible point should call runtime.KeepAlive.
func MallocT[T any](h *Heap) (*T, error) {
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	ptr, err := h.Malloc(NewLayout(size, align))
	if err != nil {
		return nil, err
	}
	t := (*T)(unsafe.Pointer(ptr))
	*t = zero
	return t, nil
}

// MallocSliceT allocates space for n contiguous, uninitialized Ts.
// Returns nil if n <= 0.
func MallocSliceT[T any](h *Heap, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	var zero T
	elemSize := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	ptr, err := h.Malloc(NewLayout(elemSize*uintptr(n), align))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(ptr)), n), nil
}

// FreeT frees a pointer obtained from MallocT[T].
func FreeT[T any](h *Heap, t *T) {
	var zero T
	size := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	h.Free(uintptr(unsafe.Pointer(t)), NewLayout(size, align))
	runtime.KeepAlive(t)
}

// FreeSliceT frees a slice obtained from MallocSliceT[T].
func FreeSliceT[T any](h *Heap, s []T) {
	if len(s) == 0 {
		return
	}
	var zero T
	elemSize := unsafe.Sizeof(zero)
	align := unsafe.Alignof(zero)
	h.Free(uintptr(unsafe.Pointer(&s[0])), NewLayout(elemSize*uintptr(len(s)), align))
	runtime.KeepAlive(s)
}
