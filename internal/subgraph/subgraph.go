// Package subgraph implements the graph engine: the Value/Node model, the
// definers that validate and append nodes, and the compile and execution
// pipeline that lowers nodes to backend operators, plans intermediate
// memory and runs the result.
//
// A typical use:
//
//	sg, _ := subgraph.New(eng, 3)
//	a, _ := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 0, subgraph.FlagExternalInput)
//	b, _ := sg.DefineTensorValue(tensor.FP32, []int{1, 3}, nil, 1, subgraph.FlagExternalInput)
//	y, _ := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 2, subgraph.FlagExternalOutput)
//	_ = sg.DefineSubtract(minf, maxf, a, b, y, 0)
//	rt, _ := subgraph.CreateRuntime(sg, subgraph.RuntimeOptions{})
//	_ = rt.Setup([]subgraph.ExternalValue{{ID: a, Data: ...}, {ID: b, Data: ...}, {ID: y, Data: ...}})
//	_ = rt.Invoke(eng.Pool())
package subgraph

import (
	"errors"
	"log/slog"

	"github.com/born-ml/graphrt/internal/engine"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Subgraph is a graph under construction. It is not safe for concurrent use.
type Subgraph struct {
	eng              *engine.Engine
	logger           *slog.Logger
	externalValueIDs uint32
	values           []Value
	nodes            []Node
}

// New creates an empty subgraph reserving ids [0, externalValueIDs) for
// values bound to caller memory.
func New(eng *engine.Engine, externalValueIDs uint32) (*Subgraph, error) {
	if err := eng.Check("create subgraph"); err != nil {
		return nil, err
	}
	values := make([]Value, externalValueIDs)
	for i := range values {
		values[i].ID = uint32(i)
	}
	return &Subgraph{
		eng:              eng,
		logger:           eng.Logger(),
		externalValueIDs: externalValueIDs,
		values:           values,
	}, nil
}

// Engine returns the engine the subgraph was created with.
func (sg *Subgraph) Engine() *engine.Engine { return sg.eng }

// NumValues returns the number of value slots, external slots included.
func (sg *Subgraph) NumValues() int { return len(sg.values) }

// NumNodes returns the number of defined nodes.
func (sg *Subgraph) NumNodes() int { return len(sg.nodes) }

// NumExternalValues returns the size of the reserved external id range.
func (sg *Subgraph) NumExternalValues() uint32 { return sg.externalValueIDs }

// Value returns a copy of value id.
func (sg *Subgraph) Value(id uint32) (Value, bool) {
	if int64(id) >= int64(len(sg.values)) || sg.values[id].Type == ValueTypeInvalid {
		return Value{}, false
	}
	return sg.values[id].clone(), true
}

// Node returns a copy of node i.
func (sg *Subgraph) Node(i int) (Node, bool) {
	if i < 0 || i >= len(sg.nodes) {
		return Node{}, false
	}
	return sg.nodes[i].clone(), true
}

// reject logs a refused definition and returns err unchanged.
func (sg *Subgraph) reject(err error) error {
	var se *status.Error
	if errors.As(err, &se) {
		sg.logger.Debug("definition rejected", "op", se.Op, "kind", se.Kind, "value_id", int64(int32(se.ValueID)), "detail", se.Detail)
	}
	return err
}

// DefineTensorValue declares a float tensor value. data, when non-nil, makes
// the value a constant and must hold exactly the tensor's bytes. externalID
// is InvalidValueID for an internal value, or an id below the subgraph's
// external range.
func (sg *Subgraph) DefineTensorValue(dt tensor.DataType, dims []int, data []byte, externalID uint32, flags ValueFlags) (uint32, error) {
	const op = "define tensor value"
	if err := sg.eng.Check(op); err != nil {
		return InvalidValueID, sg.reject(err)
	}
	if dt != tensor.FP32 && dt != tensor.FP16 {
		return InvalidValueID, sg.reject(status.New(op, status.ErrUnsupportedDatatype, "datatype %s (use a quantized definer for %s)", dt, dt))
	}
	return sg.defineDense(op, dt, tensor.Quantization{}, dims, data, externalID, flags)
}

// DefineQuantizedTensorValue declares a quantized tensor value with a fixed
// zero point and scale.
func (sg *Subgraph) DefineQuantizedTensorValue(dt tensor.DataType, zeroPoint int32, scale float32, dims []int, data []byte, externalID uint32, flags ValueFlags) (uint32, error) {
	const op = "define quantized tensor value"
	if err := sg.eng.Check(op); err != nil {
		return InvalidValueID, sg.reject(err)
	}
	if !dt.IsQuantized() {
		return InvalidValueID, sg.reject(status.New(op, status.ErrUnsupportedDatatype, "datatype %s is not quantized", dt))
	}
	q := tensor.Quantization{ZeroPoint: zeroPoint, Scale: scale}
	if err := q.Validate(dt); err != nil {
		return InvalidValueID, sg.reject(status.New(op, status.ErrInvalidParameter, "%v", err))
	}
	return sg.defineDense(op, dt, q, dims, data, externalID, flags)
}

// DefineOpaqueValue declares a raw byte blob of size bytes. Operators do not
// accept opaque values.
func (sg *Subgraph) DefineOpaqueValue(size int, externalID uint32, flags ValueFlags) (uint32, error) {
	const op = "define opaque value"
	if err := sg.eng.Check(op); err != nil {
		return InvalidValueID, sg.reject(err)
	}
	if size < 0 {
		return InvalidValueID, sg.reject(status.New(op, status.ErrInvalidParameter, "negative size %d", size))
	}
	id, err := sg.slot(op, externalID, flags, false)
	if err != nil {
		return InvalidValueID, sg.reject(err)
	}
	sg.store(Value{ID: id, Type: ValueTypeOpaque, Flags: flags, Size: size})
	return id, nil
}

func (sg *Subgraph) defineDense(op string, dt tensor.DataType, q tensor.Quantization, dims []int, data []byte, externalID uint32, flags ValueFlags) (uint32, error) {
	shape := tensor.Shape(dims).Clone()
	if shape == nil {
		shape = tensor.Shape{}
	}
	if err := shape.Validate(); err != nil {
		return InvalidValueID, sg.reject(status.New(op, status.ErrInvalidParameter, "%v", err))
	}
	if data != nil {
		if need := shape.NumElements() * dt.Size(); len(data) != need {
			return InvalidValueID, sg.reject(status.New(op, status.ErrInvalidParameter, "static data holds %d bytes, shape %v needs %d", len(data), shape, need))
		}
	}
	id, err := sg.slot(op, externalID, flags, data != nil)
	if err != nil {
		return InvalidValueID, sg.reject(err)
	}
	sg.store(Value{
		ID:           id,
		Type:         ValueTypeDenseTensor,
		DataType:     dt,
		Quantization: q,
		Shape:        shape,
		Flags:        flags,
		Data:         data,
	})
	return id, nil
}

// slot validates the id and flags of a new value and returns its id.
func (sg *Subgraph) slot(op string, externalID uint32, flags ValueFlags, static bool) (uint32, error) {
	if flags&^(FlagExternalInput|FlagExternalOutput) != 0 {
		return 0, status.New(op, status.ErrInvalidParameter, "unknown flags %#x", uint32(flags))
	}
	external := flags&(FlagExternalInput|FlagExternalOutput) != 0
	if externalID == InvalidValueID {
		if external {
			return 0, status.New(op, status.ErrInvalidParameter, "external flags need an external id")
		}
		return uint32(len(sg.values)), nil
	}
	if externalID >= sg.externalValueIDs {
		return 0, status.ForValue(op, status.ErrInvalidParameter, externalID, "external id outside [0, %d)", sg.externalValueIDs)
	}
	if static && external {
		return 0, status.ForValue(op, status.ErrInvalidParameter, externalID, "external value cannot carry static data")
	}
	if sg.values[externalID].Type != ValueTypeInvalid {
		return 0, status.ForValue(op, status.ErrInvalidParameter, externalID, "already defined")
	}
	return externalID, nil
}

func (sg *Subgraph) store(v Value) {
	if int(v.ID) == len(sg.values) {
		sg.values = append(sg.values, v)
		return
	}
	sg.values[v.ID] = v
}

// SetLayout tags value id with a memory layout. Channel-first values keep
// their declared logical dims; their data is stored in channel-last order.
func (sg *Subgraph) SetLayout(id uint32, layout tensor.Layout) error {
	const op = "set layout"
	if err := sg.eng.Check(op); err != nil {
		return sg.reject(err)
	}
	if layout != tensor.LayoutChannelLast && layout != tensor.LayoutChannelFirst {
		return sg.reject(status.ForValue(op, status.ErrInvalidParameter, id, "unknown layout %d", int(layout)))
	}
	if _, err := sg.dense(op, "value", id); err != nil {
		return sg.reject(err)
	}
	sg.values[id].Layout = layout
	return nil
}

// dense returns value id if it exists and is a dense tensor.
func (sg *Subgraph) dense(op, role string, id uint32) (*Value, error) {
	if int64(id) >= int64(len(sg.values)) {
		return nil, status.ForValue(op, status.ErrInvalidValueID, id, "%s id out of range [0, %d)", role, len(sg.values))
	}
	v := &sg.values[id]
	if v.Type != ValueTypeDenseTensor {
		return nil, status.ForValue(op, status.ErrInvalidValueID, id, "%s has value type %s, expected dense tensor", role, v.Type)
	}
	return v, nil
}
