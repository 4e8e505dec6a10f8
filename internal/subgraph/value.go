package subgraph

import (
	"github.com/born-ml/graphrt/internal/tensor"
)

// InvalidValueID requests a fresh internal id from a value definer, and marks
// an unused id slot.
const InvalidValueID = ^uint32(0)

// ValueType distinguishes dense tensors from other value kinds.
type ValueType int

// Value kinds.
const (
	ValueTypeInvalid ValueType = iota
	ValueTypeDenseTensor
	ValueTypeOpaque
)

// String returns the value kind name.
func (t ValueType) String() string {
	switch t {
	case ValueTypeDenseTensor:
		return "dense tensor"
	case ValueTypeOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

// ValueFlags mark values bound to caller memory.
type ValueFlags uint32

// Value flags.
const (
	FlagExternalInput ValueFlags = 1 << iota
	FlagExternalOutput
)

// Value is a typed tensor slot in the graph.
type Value struct {
	ID           uint32
	Type         ValueType
	DataType     tensor.DataType
	Quantization tensor.Quantization
	Shape        tensor.Shape // logical dims, as declared
	Layout       tensor.Layout
	Flags        ValueFlags
	Data         []byte // static contents; nil unless the value is a constant
	Size         int    // byte size of an opaque value
}

// IsExternal reports whether the value is bound to caller memory at setup.
func (v *Value) IsExternal() bool {
	return v.Flags&(FlagExternalInput|FlagExternalOutput) != 0
}

// IsStatic reports whether the value carries constant data.
func (v *Value) IsStatic() bool {
	return v.Data != nil
}

// IsIntermediate reports whether the value needs planned storage.
func (v *Value) IsIntermediate() bool {
	return v.Type == ValueTypeDenseTensor && !v.IsExternal() && !v.IsStatic()
}

// NumBytes returns the storage size of the value for shape.
func (v *Value) NumBytes(shape tensor.Shape) int {
	if v.Type == ValueTypeOpaque {
		return v.Size
	}
	return shape.NumElements() * v.DataType.Size()
}

func (v *Value) clone() Value {
	c := *v
	c.Shape = v.Shape.Clone()
	return c
}
