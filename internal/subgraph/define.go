package subgraph

import (
	"math"
	"slices"

	"github.com/born-ml/graphrt/internal/logutil"
	"github.com/born-ml/graphrt/internal/operator"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

var (
	floatTypes      = []tensor.DataType{tensor.FP32, tensor.FP16}
	floatAndQ8Types = []tensor.DataType{tensor.FP32, tensor.FP16, tensor.QInt8, tensor.QUint8}
)

// operand is one input or output of a node being defined.
type operand struct {
	role string
	id   uint32
}

// checkRange validates an output clamp range: neither bound NaN, min below max.
func checkRange(op string, outputMin, outputMax float32) error {
	if math.IsNaN(float64(outputMin)) {
		return status.New(op, status.ErrInvalidParameter, "NaN output lower bound")
	}
	if math.IsNaN(float64(outputMax)) {
		return status.New(op, status.ErrInvalidParameter, "NaN output upper bound")
	}
	if outputMin >= outputMax {
		return status.New(op, status.ErrInvalidParameter, "[%.7g, %.7g] output range: lower bound must be below upper bound", outputMin, outputMax)
	}
	return nil
}

// resolve looks up every operand as a dense tensor, then checks each
// datatype against supported.
func (sg *Subgraph) resolve(op string, supported []tensor.DataType, operands ...operand) ([]*Value, error) {
	values := make([]*Value, len(operands))
	for i, o := range operands {
		v, err := sg.dense(op, o.role, o.id)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	for i, v := range values {
		if !slices.Contains(supported, v.DataType) {
			return nil, status.ForValue(op, status.ErrUnsupportedDatatype, v.ID, "%s has unsupported datatype %s", operands[i].role, v.DataType)
		}
	}
	return values, nil
}

// sameType requires every value to share the first value's datatype.
func sameType(op string, values []*Value) error {
	for _, v := range values[1:] {
		if v.DataType != values[0].DataType {
			names := make([]string, len(values))
			for i, w := range values {
				names[i] = w.DataType.String()
			}
			return status.ForValue(op, status.ErrTypeMismatch, v.ID, "mismatching datatypes %v", names)
		}
	}
	return nil
}

// addNode appends n and returns nil. It is reached only after every check passed.
func (sg *Subgraph) addNode(n Node) error {
	n.ID = uint32(len(sg.nodes))
	sg.nodes = append(sg.nodes, n)
	logutil.Trace(sg.logger, "node defined", "node", n.ID, "kind", n.Kind, "compute", n.ComputeType, "inputs", n.Inputs, "outputs", n.Outputs)
	return nil
}

func (sg *Subgraph) defineBinary(kind NodeKind, supported []tensor.DataType, outputMin, outputMax float32, input1, input2, output, flags uint32) error {
	op := "define " + kind.String()
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	if err := checkRange(op, outputMin, outputMax); err != nil {
		return sg.reject(err)
	}
	values, err := sg.resolve(op, supported,
		operand{"first input", input1}, operand{"second input", input2}, operand{"output", output})
	if err != nil {
		return sg.reject(err)
	}
	if err := sameType(op, values); err != nil {
		return sg.reject(err)
	}
	return sg.addNode(Node{
		Kind:        kind,
		ComputeType: computeTypeOf(values[2].DataType),
		Inputs:      []uint32{input1, input2},
		Outputs:     []uint32{output},
		Flags:       flags,
		OutputMin:   outputMin,
		OutputMax:   outputMax,
	})
}

// DefineAdd appends output = clamp(input1 + input2, outputMin, outputMax).
func (sg *Subgraph) DefineAdd(outputMin, outputMax float32, input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindAdd, floatAndQ8Types, outputMin, outputMax, input1, input2, output, flags)
}

// DefineSubtract appends output = clamp(input1 - input2, outputMin, outputMax).
func (sg *Subgraph) DefineSubtract(outputMin, outputMax float32, input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindSubtract, floatAndQ8Types, outputMin, outputMax, input1, input2, output, flags)
}

// DefineMultiply appends output = clamp(input1 * input2, outputMin, outputMax).
func (sg *Subgraph) DefineMultiply(outputMin, outputMax float32, input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindMultiply, floatAndQ8Types, outputMin, outputMax, input1, input2, output, flags)
}

// DefineDivide appends output = clamp(input1 / input2, outputMin, outputMax).
func (sg *Subgraph) DefineDivide(outputMin, outputMax float32, input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindDivide, floatTypes, outputMin, outputMax, input1, input2, output, flags)
}

// DefineMinimum appends output = min(input1, input2).
func (sg *Subgraph) DefineMinimum(input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindMinimum, floatTypes, float32(math.Inf(-1)), float32(math.Inf(1)), input1, input2, output, flags)
}

// DefineMaximum appends output = max(input1, input2).
func (sg *Subgraph) DefineMaximum(input1, input2, output, flags uint32) error {
	return sg.defineBinary(KindMaximum, floatTypes, float32(math.Inf(-1)), float32(math.Inf(1)), input1, input2, output, flags)
}

// DefineClamp appends output = clamp(input, outputMin, outputMax).
func (sg *Subgraph) DefineClamp(outputMin, outputMax float32, input, output, flags uint32) error {
	op := "define " + KindClamp.String()
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	if err := checkRange(op, outputMin, outputMax); err != nil {
		return sg.reject(err)
	}
	values, err := sg.resolve(op, floatAndQ8Types, operand{"input", input}, operand{"output", output})
	if err != nil {
		return sg.reject(err)
	}
	if err := sameType(op, values); err != nil {
		return sg.reject(err)
	}
	return sg.addNode(Node{
		Kind:        KindClamp,
		ComputeType: computeTypeOf(values[1].DataType),
		Inputs:      []uint32{input},
		Outputs:     []uint32{output},
		Flags:       flags,
		OutputMin:   outputMin,
		OutputMax:   outputMax,
	})
}

// DefineConvert appends a datatype conversion from input to output.
func (sg *Subgraph) DefineConvert(input, output, flags uint32) error {
	op := "define " + KindConvert.String()
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	values, err := sg.resolve(op, floatAndQ8Types, operand{"input", input}, operand{"output", output})
	if err != nil {
		return sg.reject(err)
	}
	in, out := values[0], values[1]
	ct := convertComputeType(in.DataType, out.DataType)
	if ct == ComputeInvalid || !operator.ConvertSupported(in.DataType, out.DataType) {
		return sg.reject(status.ForValue(op, status.ErrTypeMismatch, output, "no conversion from %s to %s", in.DataType, out.DataType))
	}
	return sg.addNode(Node{
		Kind:        KindConvert,
		ComputeType: ct,
		Inputs:      []uint32{input},
		Outputs:     []uint32{output},
		Flags:       flags,
	})
}

// DefineGlobalAveragePooling2D appends a mean over the spatial dims of a
// rank-4 input, clamped to [outputMin, outputMax].
func (sg *Subgraph) DefineGlobalAveragePooling2D(outputMin, outputMax float32, input, output, flags uint32) error {
	op := "define " + KindGlobalAveragePooling2D.String()
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	if err := checkRange(op, outputMin, outputMax); err != nil {
		return sg.reject(err)
	}
	values, err := sg.resolve(op, floatAndQ8Types, operand{"input", input}, operand{"output", output})
	if err != nil {
		return sg.reject(err)
	}
	if err := sameType(op, values); err != nil {
		return sg.reject(err)
	}
	for _, v := range values {
		if len(v.Shape) != 4 {
			return sg.reject(status.ForValue(op, status.ErrInvalidParameter, v.ID, "rank %d, expected 4", len(v.Shape)))
		}
	}
	return sg.addNode(Node{
		Kind:        KindGlobalAveragePooling2D,
		ComputeType: computeTypeOf(values[1].DataType),
		Inputs:      []uint32{input},
		Outputs:     []uint32{output},
		Flags:       flags,
		OutputMin:   outputMin,
		OutputMax:   outputMax,
	})
}

// DefineStaticTranspose appends output = input with dims permuted by perm.
func (sg *Subgraph) DefineStaticTranspose(perm []int, input, output, flags uint32) error {
	op := "define " + KindStaticTranspose.String()
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	if len(perm) > tensor.MaxDims || !operator.ValidPermutation(perm) {
		return sg.reject(status.New(op, status.ErrInvalidParameter, "%v is not a permutation", perm))
	}
	values, err := sg.resolve(op, floatAndQ8Types, operand{"input", input}, operand{"output", output})
	if err != nil {
		return sg.reject(err)
	}
	if err := sameType(op, values); err != nil {
		return sg.reject(err)
	}
	if len(values[0].Shape) != len(perm) {
		return sg.reject(status.ForValue(op, status.ErrInvalidParameter, input, "rank %d does not match permutation length %d", len(values[0].Shape), len(perm)))
	}
	return sg.addNode(Node{
		Kind:        KindStaticTranspose,
		ComputeType: computeTypeOf(values[1].DataType),
		Inputs:      []uint32{input},
		Outputs:     []uint32{output},
		Flags:       flags,
		Perm:        slices.Clone(perm),
	})
}
