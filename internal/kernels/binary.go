package kernels

import (
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/graphrt/internal/tensor"
)

// BinaryOp selects the elementwise function of a binary kernel.
type BinaryOp int

// Binary elementwise functions.
const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpMinimum
	OpMaximum
)

// String returns the operator name.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSubtract:
		return "subtract"
	case OpMultiply:
		return "multiply"
	case OpDivide:
		return "divide"
	case OpMinimum:
		return "minimum"
	case OpMaximum:
		return "maximum"
	default:
		return "unknown"
	}
}

func (op BinaryOp) apply(x, y float32) float32 {
	switch op {
	case OpAdd:
		return x + y
	case OpSubtract:
		return x - y
	case OpMultiply:
		return x * y
	case OpDivide:
		return x / y
	case OpMinimum:
		return min(x, y)
	case OpMaximum:
		return max(x, y)
	default:
		panic("kernels: unknown binary op")
	}
}

func clampF32(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// BinaryF32 computes dst[i] = clamp(a op b) for output elements [start, start+count).
func BinaryF32(op BinaryOp, bc *Broadcast, dst, a, b []float32, lo, hi float32, start, count int) {
	if bc.contiguous {
		for i := start; i < start+count; i++ {
			dst[i] = clampF32(op.apply(a[i], b[i]), lo, hi)
		}
		return
	}
	for i := start; i < start+count; i++ {
		ai, bi := bc.index(i)
		dst[i] = clampF32(op.apply(a[ai], b[bi]), lo, hi)
	}
}

// BinaryF16 is BinaryF32 over half-precision storage, computing in float32.
func BinaryF16(op BinaryOp, bc *Broadcast, dst, a, b []uint16, lo, hi float32, start, count int) {
	for i := start; i < start+count; i++ {
		ai, bi := bc.index(i)
		x := float16.Frombits(a[ai]).Float32()
		y := float16.Frombits(b[bi]).Float32()
		dst[i] = float16.Fromfloat32(clampF32(op.apply(x, y), lo, hi)).Bits()
	}
}

// QuantParams carries the affine parameters of a quantized binary kernel.
type QuantParams struct {
	DType      tensor.DataType // QInt8 or QUint8
	A, B, Out  tensor.Quantization
	QMin, QMax int32 // output clamp in storage units
}

func load8(b []byte, i int, signed bool) int32 {
	if signed {
		return int32(int8(b[i]))
	}
	return int32(b[i])
}

func (p *QuantParams) store(v float32) byte {
	x := float64(v)/float64(p.Out.Scale) + float64(p.Out.ZeroPoint)
	x = math.Min(math.Max(x, float64(p.QMin)), float64(p.QMax))
	return byte(int32(math.RoundToEven(x)))
}

// BinaryQ8 dequantizes both operands, applies op in float32 and requantizes
// into the output's storage type with saturation to [QMin, QMax].
func BinaryQ8(op BinaryOp, bc *Broadcast, dst, a, b []byte, p *QuantParams, start, count int) {
	signed := p.DType == tensor.QInt8
	for i := start; i < start+count; i++ {
		ai, bi := bc.index(i)
		x := p.A.Dequantize(load8(a, ai, signed))
		y := p.B.Dequantize(load8(b, bi, signed))
		dst[i] = p.store(op.apply(x, y))
	}
}
