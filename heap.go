package talc

import (
	"unsafe"

	"github.com/lyquor-labs/talc/internal/bitset"
)

// Heap is the boundary-tagged, single-threaded allocator core.
// Every byte of its bookkeeping beyond this struct lives inside the arena
// itself: the bin array is the payload of a permanent allocated chunk at
// the bottom of the allocatable span.
//
// Heap is not safe for concurrent use; wrap it in SafeHeap for that.
type Heap struct {
	oomHandler OomHandler

	arena Span

	allocatableBase uintptr
	allocatableAcme uintptr
	isTopFree       bool

	avail    bitset.Pair
	binArray uintptr

	// keepAlive pins the backing storage so the garbage collector never
	// reclaims memory this heap still holds raw addresses into.
	keepAlive []byte
}

// New constructs an empty, uninitialized heap using the default OOM
// handler, which always fails.
func New() *Heap {
	return &Heap{oomHandler: AllocErrorHandler}
}

// WithOomHandler constructs an empty, uninitialized heap using handler in
// place of the default.
func WithOomHandler(handler OomHandler) *Heap {
	if handler == nil {
		handler = AllocErrorHandler
	}
	return &Heap{oomHandler: handler}
}

func spanOfBytes(b []byte) Span {
	if len(b) == 0 {
		return EmptySpan()
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	return Span{Base: base, Acme: base + uintptr(len(b))}
}

// checkInvariant panics with a talc-prefixed message when cond is false.
// Used for the mandatory, always-on checks calls out: arena
// containment and non-null requirements.
func checkInvariant(cond bool, msg string) {
	if !cond {
		panic("talc: " + msg)
	}
}

// headerSize is the size of the permanent chunk carved at Init to hold
// the bin array: one tag word plus BinCount head pointers.
const headerSize = TagSize + uintptr(BinCount)*Word

// Init takes ownership of arena, partitioning it into the allocatable
// sub-span and carving the bin-array header chunk at its base. If the
// word-aligned interior of arena is too small to hold the header, the
// heap is left empty: every subsequent allocation falls through to the
// OOM handler.
func (h *Heap) Init(arena []byte) {
	checkInvariant(len(arena) > 0, "init: arena must not be empty")

	h.keepAlive = arena
	h.arena = spanOfBytes(arena)
	h.avail = bitset.Pair{}
	h.isTopFree = false
	h.binArray = 0
	h.allocatableBase = 0
	h.allocatableAcme = 0

	allocatable := h.arena.WordAlignInward()
	if allocatable.IsEmpty() || allocatable.Size() < headerSize {
		return
	}

	base, acme, _ := allocatable.GetBaseAcme()
	binArrayAddr := base + TagSize
	binArrayAcme := binArrayAddr + uintptr(BinCount)*Word

	writeTag(base, NewTag(binArrayAcme, false))
	for i := 0; i < BinCount; i++ {
		storeWord(binArrayAddr+uintptr(i)*Word, 0)
	}

	h.binArray = binArrayAddr
	h.allocatableBase = base
	h.allocatableAcme = acme

	tailSize := acme - binArrayAcme
	if tailSize >= MinChunk {
		h.registerFree(binArrayAcme, tailSize)
		h.isTopFree = true
	} else {
		writeTag(base, NewTag(acme, false))
	}
}

// requiredChunkSize computes the chunk size needed to satisfy a payload
// of the given size, reporting false if the computation would overflow
// uintptr in favour of a reported AllocError rather than undefined
// behaviour.
func requiredChunkSize(size uintptr) (uintptr, bool) {
	if size <= MinChunk-TagSize {
		return MinChunk, true
	}
	sum := size + TagSize
	if sum < size {
		return 0, false
	}
	rounded := alignUp(sum, Align)
	if rounded < sum {
		return 0, false
	}
	return rounded, true
}

// Malloc satisfies layout from the free lists, invoking the OOM handler
// when no bin holds a sufficient chunk.
func (h *Heap) Malloc(layout Layout) (uintptr, error) {
	checkInvariant(layout.Size > 0, "malloc: layout.Size must be > 0")
	checkInvariant(layout.Valid(), "malloc: layout.Align must be a power of two")

	reqSize, ok := requiredChunkSize(layout.Size)
	if !ok {
		return 0, ErrOOM
	}

	startBin := binOfSize(reqSize)
	for {
		bin, found := h.nextBin(startBin)
		if !found {
			if err := h.oomHandler(h, layout); err != nil {
				return 0, ErrOOM
			}
			startBin = binOfSize(reqSize)
			continue
		}
		if ptr, ok := h.scanBinForFit(bin, reqSize, layout); ok {
			return ptr, nil
		}
		startBin = bin + 1
	}
}

// scanBinForFit walks bin's free list looking for the first chunk that
// can satisfy reqSize (and, for over-aligned requests, layout.Align).
func (h *Heap) scanBinForFit(bin int, reqSize uintptr, layout Layout) (uintptr, bool) {
	slot := h.binHeadSlot(bin)
	var result uintptr
	var ok bool
	listIter(loadWord(slot), func(chunkBase uintptr) bool {
		size := freeChunkSize(chunkBase)
		chunkAcme := chunkBase + size

		var allocBase uintptr
		if layout.Align <= Align {
			if size < reqSize {
				return true
			}
			allocBase = chunkBase + TagSize
		} else {
			candidate := alignUp(chunkBase+TagSize, layout.Align)
			if candidate+layout.Size > chunkAcme {
				return true
			}
			allocBase = candidate
		}

		h.deregisterFree(chunkBase, size)
		h.carveAllocation(chunkBase, chunkAcme, allocBase, layout)
		result, ok = allocBase, true
		return false
	})
	return result, ok
}

// carveAllocation splits the chunk [chunkBase, chunkAcme) around the
// accepted user pointer allocBase, registering whatever low and high
// remainders are large enough to stand on their own.
func (h *Heap) carveAllocation(chunkBase, chunkAcme, allocBase uintptr, layout Layout) {
	preAlloc := alignDown(allocBase-TagSize, Align)
	tagPtr := chunkAcme - MinChunk
	if preAlloc < tagPtr {
		tagPtr = preAlloc
	}

	lowRegistered := false
	if tagPtr-chunkBase >= MinChunk {
		h.registerFree(chunkBase, tagPtr-chunkBase)
		lowRegistered = true
	} else {
		tagPtr = chunkBase
	}
	if tagPtr != preAlloc {
		storeWord(preAlloc, tagPtr)
	}

	reqAcme := alignUp(allocBase+layout.Size, Align)
	if minAcme := tagPtr + MinChunk; reqAcme < minAcme {
		reqAcme = minAcme
	}
	if chunkAcme-reqAcme >= MinChunk {
		h.registerFree(reqAcme, chunkAcme-reqAcme)
		writeTag(tagPtr, NewTag(reqAcme, lowRegistered))
		return
	}

	writeTag(tagPtr, NewTag(chunkAcme, lowRegistered))
	if chunkAcme != h.allocatableAcme {
		clearBelowFreeAt(chunkAcme)
	} else {
		h.isTopFree = false
	}
}

// Free returns the allocation at ptr to the heap, coalescing with free
// neighbours on both sides. layout must describe the same
// allocation Malloc/Grow returned ptr for.
func (h *Heap) Free(ptr uintptr, layout Layout) {
	tagAddr, tag := recoverTag(ptr)
	chunkBase := tagAddr
	chunkAcme := tag.AcmePtr()
	debugAssert(chunkAcme > chunkBase, "free: corrupt tag: acme <= base")
	debugAssert(ptr+layout.Size <= chunkAcme, "free: layout.Size exceeds the allocation")
	debugAssert(ptr%layout.effectiveAlign() == 0, "free: ptr is not aligned to layout.Align")

	if chunkAcme == h.allocatableAcme {
		checkInvariant(!h.isTopFree, "free: top of arena already marked free")
		h.isTopFree = true
	} else {
		aboveWord := loadWord(chunkAcme)
		if IsAllocated(aboveWord) {
			setBelowFreeAt(chunkAcme)
		} else {
			aboveSize := freeChunkSize(chunkAcme)
			h.deregisterFree(chunkAcme, aboveSize)
			chunkAcme += aboveSize
		}
	}

	if tag.IsBelowFree() {
		belowSize := loadWord(chunkBase - Word)
		belowBase := chunkBase - belowSize
		h.deregisterFree(belowBase, belowSize)
		chunkBase = belowBase
	}

	h.registerFree(chunkBase, chunkAcme-chunkBase)
}

// Grow resizes the allocation at ptr in place when possible, falling
// back to malloc+copy+free otherwise.
func (h *Heap) Grow(ptr uintptr, oldLayout Layout, newSize uintptr) (uintptr, error) {
	checkInvariant(newSize >= oldLayout.Size, "grow: newSize must be >= oldLayout.Size")

	tagAddr, tag := recoverTag(ptr)
	chunkAcme := tag.AcmePtr()

	newReqAcme := alignUp(ptr+newSize, Align)
	if minAcme := tagAddr + MinChunk; newReqAcme < minAcme {
		newReqAcme = minAcme
	}

	if newReqAcme <= chunkAcme {
		return ptr, nil
	}

	if chunkAcme != h.allocatableAcme {
		aboveWord := loadWord(chunkAcme)
		if !IsAllocated(aboveWord) {
			aboveSize := freeChunkSize(chunkAcme)
			aboveAcme := chunkAcme + aboveSize
			if aboveAcme >= newReqAcme {
				h.deregisterFree(chunkAcme, aboveSize)
				if aboveAcme-newReqAcme >= MinChunk {
					h.registerFree(newReqAcme, aboveAcme-newReqAcme)
					writeTag(tagAddr, tag.SetAcme(newReqAcme))
				} else {
					writeTag(tagAddr, tag.SetAcme(aboveAcme))
					if aboveAcme != h.allocatableAcme {
						clearBelowFreeAt(aboveAcme)
					} else {
						h.isTopFree = false
					}
				}
				return ptr, nil
			}
		}
	}

	newPtr, err := h.Malloc(NewLayout(newSize, oldLayout.Align))
	if err != nil {
		return 0, err
	}
	copyBytes(newPtr, ptr, oldLayout.Size)
	h.Free(ptr, oldLayout)
	return newPtr, nil
}

// Shrink carves an aligned tail off the allocation at ptr and returns it
// to the heap. Infallible: if the tail is too small to stand alone, the
// allocation is left as-is.
func (h *Heap) Shrink(ptr uintptr, oldLayout Layout, newSize uintptr) {
	checkInvariant(newSize > 0 && newSize <= oldLayout.Size, "shrink: requires 0 < newSize <= oldLayout.Size")

	tagAddr, tag := recoverTag(ptr)
	chunkAcme := tag.AcmePtr()

	newReqAcme := alignUp(ptr+newSize, Align)
	if minAcme := tagAddr + MinChunk; newReqAcme < minAcme {
		newReqAcme = minAcme
	}
	if chunkAcme-newReqAcme < MinChunk {
		return
	}

	tailAcme := chunkAcme
	atTop := chunkAcme == h.allocatableAcme
	if !atTop {
		aboveWord := loadWord(chunkAcme)
		if IsAllocated(aboveWord) {
			setBelowFreeAt(chunkAcme)
		} else {
			aboveSize := freeChunkSize(chunkAcme)
			h.deregisterFree(chunkAcme, aboveSize)
			tailAcme = chunkAcme + aboveSize
		}
	}

	h.registerFree(newReqAcme, tailAcme-newReqAcme)
	if atTop {
		h.isTopFree = true
	}
	writeTag(tagAddr, tag.SetAcme(newReqAcme))
}

// topFreeChunk returns the base and size of the current top free chunk,
// located via its high boundary tag. Caller must ensure h.isTopFree.
func (h *Heap) topFreeChunk() (base, size uintptr) {
	size = loadWord(h.allocatableAcme - Word)
	base = h.allocatableAcme - size
	return base, size
}

// Extend grows the arena to cover newArena, which must contain the
// current arena and must not contain the null address. newArena's
// backing storage becomes the heap's new keep-alive reference; the
// caller is responsible for ensuring it is real, writable memory
// containing the same addresses as the previous arena — obtaining that
// memory is outside this package's concern.
func (h *Heap) Extend(newArena []byte) {
	newSpan := spanOfBytes(newArena)
	checkInvariant(newSpan.ContainsSpan(h.arena), "extend: newArena must contain the current arena")
	checkInvariant(newSpan.Base != 0, "extend: newArena must not contain the null address")

	if h.allocatableBase == 0 && h.allocatableAcme == 0 {
		h.Init(newArena)
		return
	}

	allocatable := newSpan.WordAlignInward()
	checkInvariant(allocatable.Size() >= MinChunk, "extend: new allocatable span collapsed below MinChunk (unreachable when newArena contains the current arena)")
	newBase, newAcme, _ := allocatable.GetBaseAcme()

	if newAcme > h.allocatableAcme {
		gain := newAcme - h.allocatableAcme
		switch {
		case h.isTopFree:
			topBase, topSize := h.topFreeChunk()
			h.deregisterFree(topBase, topSize)
			h.registerFree(topBase, topSize+gain)
		case gain >= MinChunk:
			h.registerFree(h.allocatableAcme, gain)
			h.isTopFree = true
		default:
			newAcme = h.allocatableAcme
		}
	} else {
		newAcme = h.allocatableAcme
	}

	if newBase < h.allocatableBase {
		gain := h.allocatableBase - newBase
		bottomWord := loadWord(h.allocatableBase)
		switch {
		case !IsAllocated(bottomWord):
			bottomSize := freeChunkSize(h.allocatableBase)
			h.deregisterFree(h.allocatableBase, bottomSize)
			h.registerFree(newBase, bottomSize+gain)
		case gain >= MinChunk:
			h.registerFree(newBase, gain)
			setBelowFreeAt(h.allocatableBase)
		default:
			newBase = h.allocatableBase
		}
	} else {
		newBase = h.allocatableBase
	}

	h.keepAlive = newArena
	h.arena = newSpan
	h.allocatableBase = newBase
	h.allocatableAcme = newAcme
}

// Truncate shrinks the arena to newArena, which the current arena must
// contain, and which must in turn contain every live allocation. If the
// resulting allocatable span collapses below MinChunk, the heap is
// re-initialized from scratch within newArena.
func (h *Heap) Truncate(newArena []byte) {
	newSpan := spanOfBytes(newArena)
	checkInvariant(h.arena.ContainsSpan(newSpan), "truncate: current arena must contain newArena")
	checkInvariant(newSpan.ContainsSpan(h.GetAllocatedSpan()), "truncate: newArena must contain every live allocation")

	allocatable := newSpan.WordAlignInward()
	if allocatable.Size() < MinChunk {
		h.Init(newArena)
		return
	}
	newBase, newAcme, _ := allocatable.GetBaseAcme()

	if newAcme < h.allocatableAcme {
		checkInvariant(h.isTopFree, "truncate: top chunk must be free to truncate past it")
		topBase, topSize := h.topFreeChunk()
		h.deregisterFree(topBase, topSize)
		if newAcme-topBase >= MinChunk {
			h.registerFree(topBase, newAcme-topBase)
		} else {
			newAcme = topBase
			h.isTopFree = false
		}
	} else {
		newAcme = h.allocatableAcme
	}

	if newBase > h.allocatableBase {
		bottomWord := loadWord(h.allocatableBase)
		checkInvariant(!IsAllocated(bottomWord), "truncate: bottom chunk must be free to truncate past it")
		bottomSize := freeChunkSize(h.allocatableBase)
		bottomAcme := h.allocatableBase + bottomSize
		h.deregisterFree(h.allocatableBase, bottomSize)
		if bottomAcme-newBase >= MinChunk {
			h.registerFree(newBase, bottomAcme-newBase)
		} else {
			newBase = bottomAcme
			clearBelowFreeAt(bottomAcme)
		}
	} else {
		newBase = h.allocatableBase
	}

	h.keepAlive = newArena
	h.arena = newSpan
	h.allocatableBase = newBase
	h.allocatableAcme = newAcme
}

// GetArena returns the span passed to the most recent Init, Extend or
// Truncate.
func (h *Heap) GetArena() Span {
	return h.arena
}

// GetAllocatableSpan returns the word-aligned interior of the arena that
// is actually partitioned into chunks.
func (h *Heap) GetAllocatableSpan() Span {
	return Span{Base: h.allocatableBase, Acme: h.allocatableAcme}
}

// GetAllocatedSpan returns the smallest span containing every live
// allocated chunk, which may be empty.
func (h *Heap) GetAllocatedSpan() Span {
	if h.allocatableBase == 0 && h.allocatableAcme == 0 {
		return EmptySpan()
	}

	base, acme := h.allocatableBase, h.allocatableAcme
	if h.isTopFree {
		topBase, _ := h.topFreeChunk()
		acme = topBase
	}
	if bottomWord := loadWord(h.allocatableBase); !IsAllocated(bottomWord) {
		base += freeChunkSize(h.allocatableBase)
	}
	if base >= acme {
		return EmptySpan()
	}
	return Span{Base: base, Acme: acme}
}
