package talc

// Metrics is a snapshot of heap usage statistics, derived entirely from
// existing heap state rather than maintained as separate running
// counters.
type Metrics struct {
	// AllocatableBytes is the total size of the allocatable sub-span.
	AllocatableBytes uintptr
	// FreeBytes is the sum of the sizes of every free chunk.
	FreeBytes uintptr
	// UsedBytes is AllocatableBytes minus FreeBytes (includes all
	// allocated-chunk overhead: tags and internal padding).
	UsedBytes uintptr
	// FreeChunks is the number of distinct free chunks.
	FreeChunks int
	// Utilization is UsedBytes / AllocatableBytes, or 0 if empty.
	Utilization float64
}

// Metrics computes a usage snapshot by walking every bin's free list.
func (h *Heap) Metrics() Metrics {
	allocatable := h.GetAllocatableSpan()
	total := allocatable.Size()
	if h.binArray == 0 {
		return Metrics{}
	}

	var freeBytes uintptr
	var freeChunks int
	for b := 0; b < BinCount; b++ {
		head := loadWord(h.binHeadSlot(b))
		listIter(head, func(node uintptr) bool {
			freeBytes += freeChunkSize(node)
			freeChunks++
			return true
		})
	}

	m := Metrics{
		AllocatableBytes: total,
		FreeBytes:        freeBytes,
		UsedBytes:        total - freeBytes,
		FreeChunks:       freeChunks,
	}
	if total > 0 {
		m.Utilization = float64(m.UsedBytes) / float64(total)
	}
	return m
}

// BinOccupancy reports, for each bin index, whether its free list is
// non-empty — a direct view of the availability bitmap useful for
// diagnosing fragmentation.
func (h *Heap) BinOccupancy() [BinCount]bool {
	var occ [BinCount]bool
	if h.binArray == 0 {
		return occ
	}
	for b := 0; b < BinCount; b++ {
		occ[b] = h.avail.Test(b)
	}
	return occ
}
