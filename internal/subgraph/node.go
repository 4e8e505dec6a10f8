package subgraph

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/tensor"
)

// NodeKind names an operator of the catalog.
type NodeKind int

// Node kinds.
const (
	KindInvalid NodeKind = iota
	KindAdd
	KindSubtract
	KindMultiply
	KindDivide
	KindMinimum
	KindMaximum
	KindClamp
	KindConvert
	KindGlobalAveragePooling2D
	KindStaticTranspose
)

var kindNames = [...]string{
	KindInvalid:                "Invalid",
	KindAdd:                    "Add",
	KindSubtract:               "Subtract",
	KindMultiply:               "Multiply",
	KindDivide:                 "Divide",
	KindMinimum:                "Minimum",
	KindMaximum:                "Maximum",
	KindClamp:                  "Clamp",
	KindConvert:                "Convert",
	KindGlobalAveragePooling2D: "Global Average Pooling 2D",
	KindStaticTranspose:        "Static Transpose",
}

// String returns the operator name.
func (k NodeKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Kinds lists every defined operator kind.
func Kinds() []NodeKind {
	kinds := make([]NodeKind, 0, len(kindNames)-1)
	for k := KindAdd; int(k) < len(kindNames); k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// ComputeType is the arithmetic a node is lowered to, resolved from its
// output datatype (and input datatype for conversions).
type ComputeType int

// Compute types.
const (
	ComputeInvalid ComputeType = iota
	ComputeFP32
	ComputeFP16
	ComputeQS8
	ComputeQU8
	ComputeFP32ToFP16
	ComputeFP32ToQS8
	ComputeFP32ToQU8
	ComputeFP16ToFP32
	ComputeQS8ToFP32
	ComputeQU8ToFP32
)

var computeNames = [...]string{
	ComputeInvalid:    "invalid",
	ComputeFP32:       "fp32",
	ComputeFP16:       "fp16",
	ComputeQS8:        "qs8",
	ComputeQU8:        "qu8",
	ComputeFP32ToFP16: "fp32_to_fp16",
	ComputeFP32ToQS8:  "fp32_to_qs8",
	ComputeFP32ToQU8:  "fp32_to_qu8",
	ComputeFP16ToFP32: "fp16_to_fp32",
	ComputeQS8ToFP32:  "qs8_to_fp32",
	ComputeQU8ToFP32:  "qu8_to_fp32",
}

// String returns the compute type name.
func (c ComputeType) String() string {
	if c >= 0 && int(c) < len(computeNames) {
		return computeNames[c]
	}
	return fmt.Sprintf("ComputeType(%d)", int(c))
}

func computeTypeOf(dt tensor.DataType) ComputeType {
	switch dt {
	case tensor.FP32:
		return ComputeFP32
	case tensor.FP16:
		return ComputeFP16
	case tensor.QInt8:
		return ComputeQS8
	case tensor.QUint8:
		return ComputeQU8
	default:
		return ComputeInvalid
	}
}

func convertComputeType(from, to tensor.DataType) ComputeType {
	switch {
	case from == tensor.FP32 && to == tensor.FP16:
		return ComputeFP32ToFP16
	case from == tensor.FP32 && to == tensor.QInt8:
		return ComputeFP32ToQS8
	case from == tensor.FP32 && to == tensor.QUint8:
		return ComputeFP32ToQU8
	case from == tensor.FP16 && to == tensor.FP32:
		return ComputeFP16ToFP32
	case from == tensor.QInt8 && to == tensor.FP32:
		return ComputeQS8ToFP32
	case from == tensor.QUint8 && to == tensor.FP32:
		return ComputeQU8ToFP32
	default:
		return ComputeInvalid
	}
}

// Node is an operator instance connecting input values to output values.
type Node struct {
	ID          uint32
	Kind        NodeKind
	ComputeType ComputeType
	Inputs      []uint32
	Outputs     []uint32
	Flags       uint32

	// Output clamp range in real units, for kinds that take one.
	OutputMin float32
	OutputMax float32
	// Permutation of a StaticTranspose.
	Perm []int
}

func (n *Node) clone() Node {
	c := *n
	c.Inputs = append([]uint32(nil), n.Inputs...)
	c.Outputs = append([]uint32(nil), n.Outputs...)
	c.Perm = append([]int(nil), n.Perm...)
	return c
}
