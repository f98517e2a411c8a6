package talc

import "unsafe"

// loadWord and storeWord are the sole points where this package reaches
// through a raw address into arena memory. Every other function operates
// on addresses as plain uintptr values, converting to unsafe.Pointer only
// at the moment of access.
func loadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

// copyBytes copies n bytes from src to dst, reinterpreting each raw
// region as a []byte via unsafe.Slice for a bulk copy.
func copyBytes(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(n))
	copy(dstSlice, srcSlice)
}
