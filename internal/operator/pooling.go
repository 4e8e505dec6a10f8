package operator

import (
	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/kernels"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// GlobalAvgPool averages an (N, H, W, C) input over H and W.
type GlobalAvgPool struct {
	base
	dtype  tensor.DataType
	lo, hi float32
	qp     kernels.QuantParams

	batch, rows, channels int
	in, out               []byte
}

// CreateGlobalAvgPool creates a 2D global average pooling operator.
func CreateGlobalAvgPool(dt tensor.DataType, outputMin, outputMax float32, in, out tensor.Quantization, f cpuinfo.Features) (*GlobalAvgPool, error) {
	typ := typeName("global_average_pooling_nwc", dt)
	o := &GlobalAvgPool{base: base{typ: typ}, dtype: dt, lo: outputMin, hi: outputMax}
	switch dt {
	case tensor.FP32:
	case tensor.FP16:
		if err := requireFP16(typ, dt, f); err != nil {
			return nil, err
		}
	case tensor.QInt8, tensor.QUint8:
		for _, q := range []tensor.Quantization{in, out} {
			if err := q.Validate(dt); err != nil {
				return nil, status.New(typ, status.ErrInvalidParameter, "%v", err)
			}
		}
		qmin, qmax := out.QuantizeRange(outputMin, outputMax, dt)
		o.qp = kernels.QuantParams{DType: dt, A: in, Out: out, QMin: qmin, QMax: qmax}
	default:
		return nil, status.New(typ, status.ErrUnsupportedDatatype, "datatype %s", dt)
	}
	return o, nil
}

// GlobalAvgPoolOutputShape maps (N, H, W, C) to (N, 1, 1, C).
func GlobalAvgPoolOutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{in[0], 1, 1, in[3]}
}

// Setup binds a rank-4 channel-last shape and buffers.
func (o *GlobalAvgPool) Setup(shape tensor.Shape, in, out []byte) error {
	if len(shape) != 4 {
		return status.New(o.typ, status.ErrInvalidParameter, "input rank %d, want 4", len(shape))
	}
	batch, rows, channels := shape[0], shape[1]*shape[2], shape[3]
	if err := checkBuffer(o.typ, "input", in, shape.NumElements(), o.dtype); err != nil {
		return err
	}
	if err := checkBuffer(o.typ, "output", out, batch*channels, o.dtype); err != nil {
		return err
	}
	o.batch, o.rows, o.channels = batch, rows, channels
	o.in, o.out = in, out
	o.state = StateSetup
	return nil
}

// Run averages every (batch, channel) pair, distributing pairs across pool.
func (o *GlobalAvgPool) Run(pool parallel.Pool) error {
	if err := o.beginRun(); err != nil {
		return err
	}
	pool = parallel.OrSequential(pool)
	plane := o.rows * o.channels
	es := o.dtype.Size()

	var fn func(n, c int)
	switch o.dtype {
	case tensor.FP32:
		fn = func(n, c int) {
			in := tensor.AsFloat32(o.in[n*plane*es : (n+1)*plane*es])
			out := tensor.AsFloat32(o.out[n*o.channels*es : (n+1)*o.channels*es])
			kernels.GlobalAvgPoolF32(out, in, o.rows, o.channels, c, o.lo, o.hi)
		}
	case tensor.FP16:
		fn = func(n, c int) {
			in := tensor.AsUint16(o.in[n*plane*es : (n+1)*plane*es])
			out := tensor.AsUint16(o.out[n*o.channels*es : (n+1)*o.channels*es])
			kernels.GlobalAvgPoolF16(out, in, o.rows, o.channels, c, o.lo, o.hi)
		}
	default:
		fn = func(n, c int) {
			in := o.in[n*plane : (n+1)*plane]
			out := o.out[n*o.channels : (n+1)*o.channels]
			kernels.GlobalAvgPoolQ8(out, in, o.rows, o.channels, c, &o.qp)
		}
	}
	pool.Parallelize2D(o.batch, o.channels, fn)
	o.state = StateExecuted
	return nil
}
