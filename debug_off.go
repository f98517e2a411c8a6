//go:build !talc_debug

package talc

// debugAssert is a no-op in normal builds. Build with -tags talc_debug to
// enable expensive debug-time-only checks (layout/size mismatches on
// Free), as opposed to the mandatory, always-on checks in checkInvariant.
func debugAssert(cond bool, msg string) {}
