package subgraph

import (
	"github.com/born-ml/graphrt/internal/codebuf"
	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/kernels"
	"github.com/born-ml/graphrt/internal/operator"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// lowering carries the backend resources shared by every create call of one runtime.
type lowering struct {
	features cpuinfo.Features
	cache    *codebuf.Cache // nil when code generation is off
}

// blob binds a value to memory for one setup.
type blob struct {
	shape tensor.Shape // logical dims
	data  []byte
}

// operatorData is a node lowered to a backend operator.
type operatorData struct {
	node    *Node
	op      operator.Operator
	layout  tensor.Layout
	inputs  []uint32
	outputs []uint32
}

// kind is the contract every operator kind implements.
type kind interface {
	// reshape infers output shapes from logical input shapes.
	reshape(n *Node, layout tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error)
	// create lowers n to a backend operator.
	create(l *lowering, n *Node, values []Value) (operator.Operator, error)
	// setup binds the operator to blobs.
	setup(od *operatorData, blobs []blob) error
}

var catalog = map[NodeKind]kind{
	KindAdd:                    binaryKind{kernels.OpAdd},
	KindSubtract:               binaryKind{kernels.OpSubtract},
	KindMultiply:               binaryKind{kernels.OpMultiply},
	KindDivide:                 binaryKind{kernels.OpDivide},
	KindMinimum:                binaryKind{kernels.OpMinimum},
	KindMaximum:                binaryKind{kernels.OpMaximum},
	KindClamp:                  clampKind{},
	KindConvert:                convertKind{},
	KindGlobalAveragePooling2D: globalAvgPoolKind{},
	KindStaticTranspose:        transposeKind{},
}

type binaryKind struct{ op kernels.BinaryOp }

func (k binaryKind) reshape(n *Node, layout tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error) {
	out, _, err := tensor.BroadcastShapes(layout.Canonical(in[0]), layout.Canonical(in[1]))
	if err != nil {
		return nil, status.ForValue(n.Kind.String(), status.ErrInvalidParameter, n.Outputs[0], "%v", err)
	}
	return []tensor.Shape{layout.Logical(out)}, nil
}

func (k binaryKind) create(l *lowering, n *Node, values []Value) (operator.Operator, error) {
	a, b, out := &values[n.Inputs[0]], &values[n.Inputs[1]], &values[n.Outputs[0]]
	return operator.CreateBinary(k.op, out.DataType, operator.BinaryParams{
		OutputMin: n.OutputMin,
		OutputMax: n.OutputMax,
		A:         a.Quantization,
		B:         b.Quantization,
		Out:       out.Quantization,
	}, l.features)
}

func (k binaryKind) setup(od *operatorData, blobs []blob) error {
	a, b, out := &blobs[od.inputs[0]], &blobs[od.inputs[1]], &blobs[od.outputs[0]]
	return od.op.(*operator.Binary).Setup(od.layout.Canonical(a.shape), od.layout.Canonical(b.shape), a.data, b.data, out.data)
}

// sameShape is the reshape of elementwise unary kinds.
func sameShape(in []tensor.Shape) []tensor.Shape {
	return []tensor.Shape{in[0].Clone()}
}

type clampKind struct{}

func (clampKind) reshape(_ *Node, _ tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error) {
	return sameShape(in), nil
}

func (clampKind) create(l *lowering, n *Node, values []Value) (operator.Operator, error) {
	in, out := &values[n.Inputs[0]], &values[n.Outputs[0]]
	return operator.CreateClamp(out.DataType, n.OutputMin, n.OutputMax, in.Quantization, out.Quantization, l.features)
}

func (clampKind) setup(od *operatorData, blobs []blob) error {
	in, out := &blobs[od.inputs[0]], &blobs[od.outputs[0]]
	return od.op.(*operator.Clamp).Setup(in.shape, in.data, out.data)
}

type convertKind struct{}

func (convertKind) reshape(_ *Node, _ tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error) {
	return sameShape(in), nil
}

func (convertKind) create(l *lowering, n *Node, values []Value) (operator.Operator, error) {
	in, out := &values[n.Inputs[0]], &values[n.Outputs[0]]
	return operator.CreateConvert(in.DataType, out.DataType, in.Quantization, out.Quantization, l.features)
}

func (convertKind) setup(od *operatorData, blobs []blob) error {
	in, out := &blobs[od.inputs[0]], &blobs[od.outputs[0]]
	return od.op.(*operator.Convert).Setup(in.shape, in.data, out.data)
}

type globalAvgPoolKind struct{}

func (globalAvgPoolKind) reshape(n *Node, layout tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in[0]) != 4 {
		return nil, status.ForValue(n.Kind.String(), status.ErrInvalidParameter, n.Inputs[0], "rank %d, expected 4", len(in[0]))
	}
	out := operator.GlobalAvgPoolOutputShape(layout.Canonical(in[0]))
	return []tensor.Shape{layout.Logical(out)}, nil
}

func (globalAvgPoolKind) create(l *lowering, n *Node, values []Value) (operator.Operator, error) {
	in, out := &values[n.Inputs[0]], &values[n.Outputs[0]]
	return operator.CreateGlobalAvgPool(out.DataType, n.OutputMin, n.OutputMax, in.Quantization, out.Quantization, l.features)
}

func (globalAvgPoolKind) setup(od *operatorData, blobs []blob) error {
	in, out := &blobs[od.inputs[0]], &blobs[od.outputs[0]]
	return od.op.(*operator.GlobalAvgPool).Setup(od.layout.Canonical(in.shape), in.data, out.data)
}

type transposeKind struct{}

func (transposeKind) reshape(n *Node, _ tensor.Layout, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in[0]) != len(n.Perm) {
		return nil, status.ForValue(n.Kind.String(), status.ErrInvalidParameter, n.Inputs[0], "rank %d does not match permutation length %d", len(in[0]), len(n.Perm))
	}
	return []tensor.Shape{operator.PermuteShape(in[0], n.Perm)}, nil
}

func (transposeKind) create(l *lowering, n *Node, values []Value) (operator.Operator, error) {
	in, out := &values[n.Inputs[0]], &values[n.Outputs[0]]
	if in.Layout != tensor.LayoutChannelLast || out.Layout != tensor.LayoutChannelLast {
		return nil, status.ForValue(n.Kind.String(), status.ErrInvalidParameter, in.ID, "transpose operands must be channel-last")
	}
	if in.Quantization != out.Quantization {
		return nil, status.ForValue(n.Kind.String(), status.ErrInvalidParameter, out.ID, "input and output quantization differ")
	}
	return operator.CreateTranspose(in.DataType, n.Perm, in.Shape, l.cache)
}

func (transposeKind) setup(od *operatorData, blobs []blob) error {
	in, out := &blobs[od.inputs[0]], &blobs[od.outputs[0]]
	return od.op.(*operator.Transpose).Setup(in.shape, in.data, out.data)
}
