// Package bitset implements the two-word availability bitmap used to
// track which of a heap's segregated free-list bins are non-empty.
//
// Each word covers exactly one native uint's worth of bins (32 or 64,
// matching math/bits.UintSize), so the whole map is two machine words,
// indexed with math/bits.TrailingZeros for O(1) next-set-bit lookups.
package bitset

import "math/bits"

// Width is the number of bins tracked by a single half (Low or High).
const Width = bits.UintSize

// Pair is the two-word availability bitmap: Low tracks bins
// [0, Width), High tracks bins [Width, 2*Width).
type Pair struct {
	Low  uint
	High uint
}

// Set marks bin i as non-empty.
func (p *Pair) Set(i int) {
	if i < Width {
		p.Low |= 1 << uint(i)
	} else {
		p.High |= 1 << uint(i-Width)
	}
}

// Clear marks bin i as empty.
func (p *Pair) Clear(i int) {
	if i < Width {
		p.Low &^= 1 << uint(i)
	} else {
		p.High &^= 1 << uint(i-Width)
	}
}

// Test reports whether bin i is marked non-empty.
func (p Pair) Test(i int) bool {
	if i < Width {
		return p.Low&(1<<uint(i)) != 0
	}
	return p.High&(1<<uint(i-Width)) != 0
}

// NextSet returns the smallest index >= from that is marked non-empty,
// or (0, false) if there is none.
func (p Pair) NextSet(from int) (int, bool) {
	if from < Width {
		if shifted := p.Low >> uint(from); shifted != 0 {
			return from + bits.TrailingZeros(shifted), true
		}
		if p.High != 0 {
			return Width + bits.TrailingZeros(p.High), true
		}
		return 0, false
	}
	if from < 2*Width {
		if shifted := p.High >> uint(from-Width); shifted != 0 {
			return from + bits.TrailingZeros(shifted), true
		}
	}
	return 0, false
}
