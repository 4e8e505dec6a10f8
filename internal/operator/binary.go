package operator

import (
	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/kernels"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// BinaryParams configures a binary elementwise operator.
type BinaryParams struct {
	OutputMin, OutputMax float32
	// Quantization of the first input, second input and output; ignored for float types.
	A, B, Out tensor.Quantization
}

// Binary is an N-dimensional elementwise operator with numpy broadcasting.
type Binary struct {
	base
	op     kernels.BinaryOp
	dtype  tensor.DataType
	lo, hi float32
	qp     kernels.QuantParams

	bc        *kernels.Broadcast
	a, b, out []byte
}

// CreateBinary creates a binary operator of the given datatype. For quantized
// types the output clamp range is converted to storage units here, once.
func CreateBinary(op kernels.BinaryOp, dt tensor.DataType, p BinaryParams, f cpuinfo.Features) (*Binary, error) {
	typ := typeName(op.String()+"_nd", dt)
	o := &Binary{base: base{typ: typ}, op: op, dtype: dt, lo: p.OutputMin, hi: p.OutputMax}
	switch dt {
	case tensor.FP32:
	case tensor.FP16:
		if err := requireFP16(typ, dt, f); err != nil {
			return nil, err
		}
	case tensor.QInt8, tensor.QUint8:
		if op != kernels.OpAdd && op != kernels.OpSubtract && op != kernels.OpMultiply {
			return nil, status.New(typ, status.ErrUnsupportedDatatype, "%s has no quantized variant", op)
		}
		for _, q := range []tensor.Quantization{p.A, p.B, p.Out} {
			if err := q.Validate(dt); err != nil {
				return nil, status.New(typ, status.ErrInvalidParameter, "%v", err)
			}
		}
		qmin, qmax := p.Out.QuantizeRange(p.OutputMin, p.OutputMax, dt)
		o.qp = kernels.QuantParams{DType: dt, A: p.A, B: p.B, Out: p.Out, QMin: qmin, QMax: qmax}
	default:
		return nil, status.New(typ, status.ErrUnsupportedDatatype, "datatype %s", dt)
	}
	return o, nil
}

// QuantizedRange returns the output clamp in storage units (quantized types only).
func (o *Binary) QuantizedRange() (qmin, qmax int32) {
	return o.qp.QMin, o.qp.QMax
}

// Setup resolves the broadcast of shapeA and shapeB and binds buffers.
// Incompatible shapes fail with ErrInvalidParameter.
func (o *Binary) Setup(shapeA, shapeB tensor.Shape, a, b, out []byte) error {
	bc, err := kernels.NewBroadcast(shapeA, shapeB)
	if err != nil {
		return status.New(o.typ, status.ErrInvalidParameter, "%v", err)
	}
	if err := checkBuffer(o.typ, "first input", a, shapeA.NumElements(), o.dtype); err != nil {
		return err
	}
	if err := checkBuffer(o.typ, "second input", b, shapeB.NumElements(), o.dtype); err != nil {
		return err
	}
	if err := checkBuffer(o.typ, "output", out, bc.NumElements(), o.dtype); err != nil {
		return err
	}
	o.bc, o.a, o.b, o.out = bc, a, b, out
	o.state = StateSetup
	return nil
}

// OutputShape returns the broadcast shape resolved by the last setup.
func (o *Binary) OutputShape() tensor.Shape {
	if o.bc == nil {
		return nil
	}
	return o.bc.Out
}

// Run computes the output, splitting it into element tiles across pool.
func (o *Binary) Run(pool parallel.Pool) error {
	if err := o.beginRun(); err != nil {
		return err
	}
	pool = parallel.OrSequential(pool)
	n := o.bc.NumElements()

	var fn func(start, count int)
	switch o.dtype {
	case tensor.FP32:
		a, b, out := tensor.AsFloat32(o.a), tensor.AsFloat32(o.b), tensor.AsFloat32(o.out)
		fn = func(start, count int) { kernels.BinaryF32(o.op, o.bc, out, a, b, o.lo, o.hi, start, count) }
	case tensor.FP16:
		a, b, out := tensor.AsUint16(o.a), tensor.AsUint16(o.b), tensor.AsUint16(o.out)
		fn = func(start, count int) { kernels.BinaryF16(o.op, o.bc, out, a, b, o.lo, o.hi, start, count) }
	default:
		fn = func(start, count int) { kernels.BinaryQ8(o.op, o.bc, o.out, o.a, o.b, &o.qp, start, count) }
	}
	pool.Parallelize1DTile(n, tile(n, pool), fn)
	o.state = StateExecuted
	return nil
}
