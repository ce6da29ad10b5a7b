//go:build !amd64

package wsframe

// autoMaskStrategy on non-amd64 architectures always picks the
// alignment-conscious split; we have no cheap feature-detection signal
// analogous to golang.org/x/sys/cpu.X86.HasAVX2 to decide otherwise.
var autoMaskStrategy = MaskStrategyAlignedSplit
