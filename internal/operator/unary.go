package operator

import (
	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/kernels"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Clamp limits every element to [min, max].
type Clamp struct {
	base
	dtype      tensor.DataType
	lo, hi     float32
	qmin, qmax int32

	n       int
	in, out []byte
}

// CreateClamp creates a clamp operator. Quantized clamps require input and
// output to share quantization, and convert the range to storage units once.
func CreateClamp(dt tensor.DataType, outputMin, outputMax float32, in, out tensor.Quantization, f cpuinfo.Features) (*Clamp, error) {
	typ := typeName("clamp_nc", dt)
	o := &Clamp{base: base{typ: typ}, dtype: dt, lo: outputMin, hi: outputMax}
	switch dt {
	case tensor.FP32:
	case tensor.FP16:
		if err := requireFP16(typ, dt, f); err != nil {
			return nil, err
		}
	case tensor.QInt8, tensor.QUint8:
		if in != out {
			return nil, status.New(typ, status.ErrInvalidParameter,
				"input quantization %+v differs from output %+v", in, out)
		}
		if err := out.Validate(dt); err != nil {
			return nil, status.New(typ, status.ErrInvalidParameter, "%v", err)
		}
		o.qmin, o.qmax = out.QuantizeRange(outputMin, outputMax, dt)
	default:
		return nil, status.New(typ, status.ErrUnsupportedDatatype, "datatype %s", dt)
	}
	return o, nil
}

// QuantizedRange returns the clamp bounds in storage units (quantized types only).
func (o *Clamp) QuantizedRange() (qmin, qmax int32) {
	return o.qmin, o.qmax
}

// Setup binds shape and buffers.
func (o *Clamp) Setup(shape tensor.Shape, in, out []byte) error {
	n := shape.NumElements()
	if err := checkBuffer(o.typ, "input", in, n, o.dtype); err != nil {
		return err
	}
	if err := checkBuffer(o.typ, "output", out, n, o.dtype); err != nil {
		return err
	}
	o.n, o.in, o.out = n, in, out
	o.state = StateSetup
	return nil
}

// Run clamps the bound input.
func (o *Clamp) Run(pool parallel.Pool) error {
	if err := o.beginRun(); err != nil {
		return err
	}
	pool = parallel.OrSequential(pool)

	var fn func(start, count int)
	switch o.dtype {
	case tensor.FP32:
		in, out := tensor.AsFloat32(o.in), tensor.AsFloat32(o.out)
		fn = func(start, count int) { kernels.ClampF32(out, in, o.lo, o.hi, start, count) }
	case tensor.FP16:
		in, out := tensor.AsUint16(o.in), tensor.AsUint16(o.out)
		fn = func(start, count int) { kernels.ClampF16(out, in, o.lo, o.hi, start, count) }
	default:
		signed := o.dtype == tensor.QInt8
		fn = func(start, count int) { kernels.ClampQ8(o.out, o.in, o.qmin, o.qmax, signed, start, count) }
	}
	pool.Parallelize1DTile(o.n, tile(o.n, pool), fn)
	o.state = StateExecuted
	return nil
}

// Convert changes the datatype of every element.
type Convert struct {
	base
	from, to tensor.DataType
	inQ      tensor.Quantization
	outQ     tensor.Quantization

	n       int
	in, out []byte
}

// ConvertSupported reports whether a from→to conversion exists.
func ConvertSupported(from, to tensor.DataType) bool {
	switch from {
	case tensor.FP32:
		return to == tensor.FP16 || to == tensor.QInt8 || to == tensor.QUint8
	case tensor.FP16, tensor.QInt8, tensor.QUint8:
		return to == tensor.FP32
	}
	return false
}

// CreateConvert creates a conversion from one datatype to another.
func CreateConvert(from, to tensor.DataType, inQ, outQ tensor.Quantization, f cpuinfo.Features) (*Convert, error) {
	typ := "convert_nc_" + suffix(from) + "_" + suffix(to)
	if !ConvertSupported(from, to) {
		return nil, status.New(typ, status.ErrUnsupportedDatatype, "no conversion from %s to %s", from, to)
	}
	if from.IsQuantized() {
		if err := inQ.Validate(from); err != nil {
			return nil, status.New(typ, status.ErrInvalidParameter, "%v", err)
		}
	}
	if to.IsQuantized() {
		if err := outQ.Validate(to); err != nil {
			return nil, status.New(typ, status.ErrInvalidParameter, "%v", err)
		}
	}
	return &Convert{base: base{typ: typ}, from: from, to: to, inQ: inQ, outQ: outQ}, nil
}

// Setup binds shape and buffers.
func (o *Convert) Setup(shape tensor.Shape, in, out []byte) error {
	n := shape.NumElements()
	if err := checkBuffer(o.typ, "input", in, n, o.from); err != nil {
		return err
	}
	if err := checkBuffer(o.typ, "output", out, n, o.to); err != nil {
		return err
	}
	o.n, o.in, o.out = n, in, out
	o.state = StateSetup
	return nil
}

// Run converts the bound input.
func (o *Convert) Run(pool parallel.Pool) error {
	if err := o.beginRun(); err != nil {
		return err
	}
	pool = parallel.OrSequential(pool)

	var fn func(start, count int)
	switch {
	case o.from == tensor.FP32 && o.to == tensor.FP16:
		in, out := tensor.AsFloat32(o.in), tensor.AsUint16(o.out)
		fn = func(start, count int) { kernels.ConvertF32ToF16(out, in, start, count) }
	case o.from == tensor.FP16:
		in, out := tensor.AsUint16(o.in), tensor.AsFloat32(o.out)
		fn = func(start, count int) { kernels.ConvertF16ToF32(out, in, start, count) }
	case o.from == tensor.FP32:
		in := tensor.AsFloat32(o.in)
		fn = func(start, count int) { kernels.ConvertF32ToQ8(o.out, in, o.outQ, o.to, start, count) }
	default:
		out := tensor.AsFloat32(o.out)
		fn = func(start, count int) { kernels.ConvertQ8ToF32(out, o.in, o.inQ, o.from, start, count) }
	}
	pool.Parallelize1DTile(o.n, tile(o.n, pool), fn)
	o.state = StateExecuted
	return nil
}
