// Package cpuinfo reports the processor capabilities operators depend on.
package cpuinfo

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features lists the capabilities the operator catalog checks at create time.
type Features struct {
	Arch      string
	SSE2      bool
	SSE41     bool
	AVX       bool
	AVX2      bool
	FMA       bool
	NEON      bool
	FP16Arith bool // native half-precision arithmetic (AVX2 on amd64, ASIMDHP on arm64)
	CodeGen   bool // the code cache may hold generated programs
}

// Detect queries the running processor.
func Detect() Features {
	f := Features{Arch: runtime.GOARCH}
	switch runtime.GOARCH {
	case "amd64", "386":
		f.SSE2 = cpu.X86.HasSSE2
		f.SSE41 = cpu.X86.HasSSE41
		f.AVX = cpu.X86.HasAVX
		f.AVX2 = cpu.X86.HasAVX2
		f.FMA = cpu.X86.HasFMA
		f.FP16Arith = f.AVX2
	case "arm64":
		f.NEON = cpu.ARM64.HasASIMD
		f.FMA = cpu.ARM64.HasASIMD
		f.FP16Arith = cpu.ARM64.HasASIMDHP
	}
	f.CodeGen = runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
	return f
}

// Generic returns a capability set with no vector extensions, useful to
// exercise fallback and unsupported-hardware paths.
func Generic() Features {
	return Features{Arch: runtime.GOARCH}
}

// Variant names the best instruction-set tier, or "" for the portable baseline.
func (f Features) Variant() string {
	switch {
	case f.AVX2:
		return "avx2"
	case f.AVX:
		return "avx"
	case f.SSE41:
		return "sse4.1"
	case f.NEON && f.FP16Arith:
		return "neonfp16arith"
	case f.NEON:
		return "neon"
	default:
		return ""
	}
}
