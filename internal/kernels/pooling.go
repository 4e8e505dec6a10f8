package kernels

import (
	"github.com/x448/float16"

	"github.com/born-ml/graphrt/internal/tensor"
)

// GlobalAvgPoolF32 averages the rows×channels input of one batch element over
// rows for channel c. in is laid out (rows, channels) with channels innermost.
func GlobalAvgPoolF32(out, in []float32, rows, channels, c int, lo, hi float32) {
	var sum float32
	for r := 0; r < rows; r++ {
		sum += in[r*channels+c]
	}
	out[c] = clampF32(sum/float32(max(rows, 1)), lo, hi)
}

// GlobalAvgPoolF16 is GlobalAvgPoolF32 over half-precision storage.
func GlobalAvgPoolF16(out, in []uint16, rows, channels, c int, lo, hi float32) {
	var sum float32
	for r := 0; r < rows; r++ {
		sum += float16.Frombits(in[r*channels+c]).Float32()
	}
	out[c] = float16.Fromfloat32(clampF32(sum/float32(max(rows, 1)), lo, hi)).Bits()
}

// GlobalAvgPoolQ8 averages quantized storage; p.A describes the input, p.Out the output.
func GlobalAvgPoolQ8(out, in []byte, rows, channels, c int, p *QuantParams) {
	if rows == 0 {
		out[c] = p.store(0)
		return
	}
	signed := p.DType == tensor.QInt8
	var acc int64
	for r := 0; r < rows; r++ {
		acc += int64(load8(in, r*channels+c, signed))
	}
	mean := float32(acc) / float32(rows)
	out[c] = p.store(p.A.Scale * (mean - float32(p.A.ZeroPoint)))
}
