package talc

// Span is a half-open address interval [Base, Acme). It is a pure value
// type: no method on Span ever touches memory, only the addresses
// themselves.
type Span struct {
	Base uintptr
	Acme uintptr
}

// EmptySpan returns the canonical empty span. Every span contains it.
func EmptySpan() Span {
	return Span{}
}

// NewSpan builds a span from explicit bounds. base may exceed acme, in
// which case the resulting span is treated as empty by every predicate
// below.
func NewSpan(base, acme uintptr) Span {
	return Span{Base: base, Acme: acme}
}

// IsEmpty reports whether the span contains no addresses.
func (s Span) IsEmpty() bool {
	return s.Base >= s.Acme
}

// Size returns the number of bytes in the span, or 0 if empty.
func (s Span) Size() uintptr {
	if s.IsEmpty() {
		return 0
	}
	return s.Acme - s.Base
}

// Contains reports whether addr falls inside [Base, Acme).
func (s Span) Contains(addr uintptr) bool {
	return !s.IsEmpty() && addr >= s.Base && addr < s.Acme
}

// ContainsSpan reports whether other is wholly contained in s. The empty
// span is contained by every span, including itself.
func (s Span) ContainsSpan(other Span) bool {
	if other.IsEmpty() {
		return true
	}
	return !s.IsEmpty() && other.Base >= s.Base && other.Acme <= s.Acme
}

// GetBaseAcme returns (Base, Acme, true) unless the span is empty, in
// which case it returns (0, 0, false).
func (s Span) GetBaseAcme() (uintptr, uintptr, bool) {
	if s.IsEmpty() {
		return 0, 0, false
	}
	return s.Base, s.Acme, true
}

// WordAlignInward rounds Base up and Acme down to the nearest multiple of
// Align, shrinking the span. A span that was too small to contain any
// aligned addresses becomes empty.
func (s Span) WordAlignInward() Span {
	base := alignUp(s.Base, Align)
	acme := alignDown(s.Acme, Align)
	if base >= acme {
		return EmptySpan()
	}
	return Span{Base: base, Acme: acme}
}

// Extend grows the span by below bytes at the low end and above bytes at
// the high end.
func (s Span) Extend(below, above uintptr) Span {
	return Span{Base: s.Base - below, Acme: s.Acme + above}
}

// Truncate shrinks the span by below bytes at the low end and above bytes
// at the high end. The caller is responsible for ensuring the result does
// not invert.
func (s Span) Truncate(below, above uintptr) Span {
	return Span{Base: s.Base + below, Acme: s.Acme - above}
}

// FitWithin reports whether s fits entirely inside other.
func (s Span) FitWithin(other Span) bool {
	return other.ContainsSpan(s)
}

// FitOver reports whether s entirely covers other.
func (s Span) FitOver(other Span) bool {
	return s.ContainsSpan(other)
}

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

func alignDown(addr, align uintptr) uintptr {
	return addr &^ (align - 1)
}
