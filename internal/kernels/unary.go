package kernels

import (
	"github.com/x448/float16"

	"github.com/born-ml/graphrt/internal/tensor"
)

// ClampF32 clamps src into dst over [start, start+count).
func ClampF32(dst, src []float32, lo, hi float32, start, count int) {
	for i := start; i < start+count; i++ {
		dst[i] = clampF32(src[i], lo, hi)
	}
}

// ClampF16 clamps half-precision elements.
func ClampF16(dst, src []uint16, lo, hi float32, start, count int) {
	for i := start; i < start+count; i++ {
		v := float16.Frombits(src[i]).Float32()
		dst[i] = float16.Fromfloat32(clampF32(v, lo, hi)).Bits()
	}
}

// ClampQ8 clamps 8-bit storage values; signed selects int8 interpretation.
func ClampQ8(dst, src []byte, qmin, qmax int32, signed bool, start, count int) {
	for i := start; i < start+count; i++ {
		v := min(max(load8(src, i, signed), qmin), qmax)
		dst[i] = byte(v)
	}
}

// ConvertF32ToF16 narrows float32 to half precision.
func ConvertF32ToF16(dst []uint16, src []float32, start, count int) {
	for i := start; i < start+count; i++ {
		dst[i] = float16.Fromfloat32(src[i]).Bits()
	}
}

// ConvertF16ToF32 widens half precision to float32.
func ConvertF16ToF32(dst []float32, src []uint16, start, count int) {
	for i := start; i < start+count; i++ {
		dst[i] = float16.Frombits(src[i]).Float32()
	}
}

// ConvertF32ToQ8 quantizes float32 into dt storage with q.
func ConvertF32ToQ8(dst []byte, src []float32, q tensor.Quantization, dt tensor.DataType, start, count int) {
	for i := start; i < start+count; i++ {
		dst[i] = byte(q.Quantize(src[i], dt))
	}
}

// ConvertQ8ToF32 dequantizes dt storage into float32.
func ConvertQ8ToF32(dst []float32, src []byte, q tensor.Quantization, dt tensor.DataType, start, count int) {
	signed := dt == tensor.QInt8
	for i := start; i < start+count; i++ {
		dst[i] = q.Dequantize(load8(src, i, signed))
	}
}
