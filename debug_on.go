//go:build talc_debug

package talc

func debugAssert(cond bool, msg string) {
	if !cond {
		panic("talc: debug assertion failed: " + msg)
	}
}
