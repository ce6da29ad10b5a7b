//go:build amd64

package wsframe

import "golang.org/x/sys/cpu"

// autoMaskStrategy is resolved once at program start. On amd64 with AVX2
// available, unaligned 32-byte loads are cheap enough that the chunked
// rotated-pattern strategy wins outright; without AVX2 we fall back to the
// alignment-conscious split, matching the choice the teacher's
// mask_amd64.go makes between its fast and scalar paths, but entirely in
// portable Go since no assembly for this algorithm exists anywhere in the
// corpus this package was grounded on (see DESIGN.md).
var autoMaskStrategy = func() MaskStrategy {
	if cpu.X86.HasAVX2 {
		return MaskStrategyDefault
	}
	return MaskStrategyAlignedSplit
}()
