package talc

// Tag is the single-word header that sits immediately below every
// allocated chunk's payload. Its value is the chunk's acme with the two
// low bits repurposed as flags, since Align guarantees every real acme is
// at least Align-aligned and so has those bits clear.
//
// The low bit (isAllocated) is the sole distinguishing mark between "this
// word is a tag" and "this word is the first pointer of a free chunk's
// intrusive list node" — list node pointers are themselves Align-aligned,
// so they never set it.
type Tag uintptr

// NewTag builds a tag for a chunk with the given acme.
func NewTag(acme uintptr, isBelowFree bool) Tag {
	v := acme | tagAllocatedBit
	if isBelowFree {
		v |= tagBelowFreeBit
	}
	return Tag(v)
}

// IsAllocated reports whether a raw word read from memory is a tag rather
// than a free-chunk list pointer.
func IsAllocated(word uintptr) bool {
	return word&tagAllocatedBit != 0
}

// IsAllocated reports the allocated flag of this tag (always true for any
// value constructed via NewTag; exposed for symmetry with IsBelowFree).
func (t Tag) IsAllocated() bool {
	return uintptr(t)&tagAllocatedBit != 0
}

// IsBelowFree reports whether the chunk directly below this one is free.
func (t Tag) IsBelowFree() bool {
	return uintptr(t)&tagBelowFreeBit != 0
}

// AcmePtr returns the chunk's acme address with the flag bits masked off.
func (t Tag) AcmePtr() uintptr {
	return uintptr(t) &^ tagFlagMask
}

// SetAcme returns a copy of t with its acme replaced, flags preserved.
func (t Tag) SetAcme(newAcme uintptr) Tag {
	return Tag(newAcme | (uintptr(t) & tagFlagMask))
}

// SetBelowFree returns a copy of t with isBelowFree set.
func (t Tag) SetBelowFree() Tag {
	return Tag(uintptr(t) | tagBelowFreeBit)
}

// ClearBelowFree returns a copy of t with isBelowFree cleared.
func (t Tag) ClearBelowFree() Tag {
	return Tag(uintptr(t) &^ tagBelowFreeBit)
}

// readTag reads the tag word at addr.
func readTag(addr uintptr) Tag {
	return Tag(loadWord(addr))
}

// writeTag writes t at addr.
func writeTag(addr uintptr, t Tag) {
	storeWord(addr, uintptr(t))
}

// setBelowFreeAt sets the isBelowFree bit of the tag stored at tagAddr,
// in place.
func setBelowFreeAt(tagAddr uintptr) {
	storeWord(tagAddr, uintptr(readTag(tagAddr).SetBelowFree()))
}

// clearBelowFreeAt clears the isBelowFree bit of the tag stored at
// tagAddr, in place.
func clearBelowFreeAt(tagAddr uintptr) {
	storeWord(tagAddr, uintptr(readTag(tagAddr).ClearBelowFree()))
}

// recoverTag implements the sole supported way to recover a chunk's tag
// address and value from a user pointer. When the requested
// alignment exceeds Align, the tag may not sit directly below the
// payload; instead, the word immediately below the payload holds the
// address of the real tag.
func recoverTag(ptr uintptr) (tagAddr uintptr, tag Tag) {
	indirection := alignDown(ptr-TagSize, Align)
	q := loadWord(indirection)
	if IsAllocated(q) {
		return indirection, Tag(q)
	}
	return q, readTag(q)
}
