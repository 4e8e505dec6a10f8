package tensor

import (
	"fmt"
	"math"
)

// Quantization holds the affine mapping real = scale * (q - zeroPoint).
type Quantization struct {
	ZeroPoint int32
	Scale     float32
}

// Validate checks q against the storage range of dt.
func (q Quantization) Validate(dt DataType) error {
	s := float64(q.Scale)
	if math.IsNaN(s) || math.IsInf(s, 0) || q.Scale <= 0 || s < 0x1p-126 {
		return fmt.Errorf("scale %g must be finite, positive and normalized", q.Scale)
	}
	lo, hi := dt.QuantRange()
	if dt == QInt32 && q.ZeroPoint != 0 {
		return fmt.Errorf("zero point %d must be 0 for %s", q.ZeroPoint, dt)
	}
	if q.ZeroPoint < lo || q.ZeroPoint > hi {
		return fmt.Errorf("zero point %d outside [%d, %d] for %s", q.ZeroPoint, lo, hi, dt)
	}
	return nil
}

// Quantize maps a real value to storage units of dt, rounding half to even
// and saturating to the representable range.
func (q Quantization) Quantize(v float32, dt DataType) int32 {
	lo, hi := dt.QuantRange()
	x := float64(v)/float64(q.Scale) + float64(q.ZeroPoint)
	x = math.Min(math.Max(x, float64(lo)), float64(hi))
	return int32(math.RoundToEven(x))
}

// Dequantize maps a storage value back to real units.
func (q Quantization) Dequantize(v int32) float32 {
	return q.Scale * float32(v-q.ZeroPoint)
}

// QuantizeRange converts an output clamp range given in real units into
// storage units. NaN-free inputs with lo <= hi always yield qlo <= qhi.
func (q Quantization) QuantizeRange(lo, hi float32, dt DataType) (qlo, qhi int32) {
	return q.Quantize(lo, dt), q.Quantize(hi, dt)
}
