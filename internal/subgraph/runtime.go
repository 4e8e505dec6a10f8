package subgraph

import (
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/codebuf"
	"github.com/born-ml/graphrt/internal/engine"
	"github.com/born-ml/graphrt/internal/logutil"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// RuntimeOptions tune CreateRuntime.
type RuntimeOptions struct {
	// DisableCodeGen builds operator programs on the heap even when the
	// processor supports the code cache.
	DisableCodeGen bool
}

// ExternalValue binds caller memory to an external value at setup.
type ExternalValue struct {
	ID   uint32
	Data []byte
	// Dims, when non-nil, rebinds the logical shape of an external input.
	Dims []int
}

type runtimeState int

const (
	runtimeCreated runtimeState = iota
	runtimeReady
	runtimeReleased
)

// Runtime is a compiled subgraph. Setup and Invoke mutate operator state, so
// calls on one Runtime must be serialized; separate runtimes are independent.
type Runtime struct {
	id     uuid.UUID
	eng    *engine.Engine
	logger *slog.Logger

	values []Value
	nodes  []Node
	ops    []operatorData
	blobs  []blob

	cache *codebuf.Cache
	plan  *Plan
	arena []byte
	state runtimeState
}

// CreateRuntime lowers every node of sg in definition order, finalizes the
// code cache, plans intermediate memory and allocates the arena. On failure
// nothing is left allocated.
func CreateRuntime(sg *Subgraph, opts RuntimeOptions) (_ *Runtime, err error) {
	const op = "create runtime"
	if sg == nil {
		return nil, status.New(op, status.ErrInvalidParameter, "nil subgraph")
	}
	if err := sg.eng.Check(op); err != nil {
		return nil, err
	}

	rt := &Runtime{
		id:     uuid.New(),
		eng:    sg.eng,
		values: make([]Value, len(sg.values)),
		nodes:  make([]Node, len(sg.nodes)),
		blobs:  make([]blob, len(sg.values)),
	}
	rt.logger = sg.logger.With("runtime", rt.id.String()[:8])
	for i := range sg.values {
		rt.values[i] = sg.values[i].clone()
		rt.blobs[i].shape = rt.values[i].Shape.Clone()
		if rt.values[i].IsStatic() {
			rt.blobs[i].data = rt.values[i].Data
		}
	}
	for i := range sg.nodes {
		rt.nodes[i] = sg.nodes[i].clone()
	}

	if err := rt.validate(); err != nil {
		return nil, err
	}
	if err := rt.propagateShapes(true); err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			_ = rt.release()
		}
	}()

	features := sg.eng.Features()
	if features.CodeGen && !opts.DisableCodeGen {
		cache, err := codebuf.NewCache(sg.eng.CodeBufferSize())
		if err != nil {
			return nil, errors.Wrap(err, op)
		}
		rt.cache = cache
	}

	l := &lowering{features: features, cache: rt.cache}
	rt.ops = make([]operatorData, len(rt.nodes))
	for i := range rt.nodes {
		n := &rt.nodes[i]
		o, err := catalog[n.Kind].create(l, n, rt.values)
		if err != nil {
			return nil, errors.Wrapf(err, "create node #%d (%s)", n.ID, n.Kind)
		}
		rt.ops[i] = operatorData{
			node:    n,
			op:      o,
			layout:  rt.values[n.Outputs[0]].Layout,
			inputs:  n.Inputs,
			outputs: n.Outputs,
		}
		logutil.Trace(rt.logger, "node lowered", "node", n.ID, "kind", n.Kind, "operator", o.Type())
	}

	codeSize := 0
	if rt.cache != nil {
		if err := rt.cache.Finalize(); err != nil {
			return nil, errors.Wrap(err, op)
		}
		codeSize = rt.cache.Buffer().Size()
	}

	rt.replan()
	rt.logger.Info("runtime created", "nodes", len(rt.nodes), "values", len(rt.values),
		"arena", rt.plan.Total, "unshared", rt.plan.Sum, "code", codeSize)
	return rt, nil
}

// validate checks the dataflow of the node list: every value is produced at
// most once, before it is read, and never into a constant or graph input.
// All operands of a node share one layout.
func (rt *Runtime) validate() error {
	const op = "create runtime"
	ready := make([]bool, len(rt.values))
	for i := range rt.values {
		v := &rt.values[i]
		ready[i] = v.IsStatic() || v.Flags&FlagExternalInput != 0
	}
	for i := range rt.nodes {
		n := &rt.nodes[i]
		layout := rt.values[n.Outputs[0]].Layout
		for _, id := range n.Inputs {
			if !ready[id] {
				return status.ForValue(op, status.ErrInvalidParameter, id, "node #%d (%s) reads a value no earlier node produces", n.ID, n.Kind)
			}
			if rt.values[id].Layout != layout {
				return status.ForValue(op, status.ErrInvalidParameter, id, "node #%d (%s) mixes %s and %s layouts", n.ID, n.Kind, rt.values[id].Layout, layout)
			}
		}
		for _, id := range n.Outputs {
			v := &rt.values[id]
			if v.IsStatic() || v.Flags&FlagExternalInput != 0 {
				return status.ForValue(op, status.ErrInvalidParameter, id, "node #%d (%s) writes a constant or graph input", n.ID, n.Kind)
			}
			if ready[id] {
				return status.ForValue(op, status.ErrInvalidParameter, id, "node #%d (%s) writes a value produced earlier", n.ID, n.Kind)
			}
			ready[id] = true
		}
	}
	return nil
}

// propagateShapes reruns output shape inference over every node. When
// strict, inferred shapes must equal the declared ones.
func (rt *Runtime) propagateShapes(strict bool) error {
	in := make([]tensor.Shape, 0, 2)
	for i := range rt.nodes {
		n := &rt.nodes[i]
		in = in[:0]
		for _, id := range n.Inputs {
			in = append(in, rt.blobs[id].shape)
		}
		out, err := catalog[n.Kind].reshape(n, rt.values[n.Outputs[0]].Layout, in)
		if err != nil {
			return errors.Wrapf(err, "reshape node #%d (%s)", n.ID, n.Kind)
		}
		for j, id := range n.Outputs {
			if strict && !out[j].Equal(rt.values[id].Shape) {
				return status.ForValue("create runtime", status.ErrInvalidParameter, id,
					"declared shape %v contradicts inferred shape %v of node #%d (%s)", rt.values[id].Shape, out[j], n.ID, n.Kind)
			}
			rt.blobs[id].shape = out[j]
		}
	}
	return nil
}

// replan places intermediates for the current shapes, growing the arena when
// the new plan needs more room.
func (rt *Runtime) replan() {
	records := usageRecords(rt.nodes, rt.values, func(id uint32) int {
		return rt.values[id].NumBytes(rt.blobs[id].shape)
	})
	rt.plan = PlanMemory(records)
	if rt.plan.Total > len(rt.arena) {
		if rt.arena != nil {
			rt.logger.Debug("arena grown", "from", len(rt.arena), "to", rt.plan.Total)
		}
		rt.arena = make([]byte, rt.plan.Total)
	}
	for _, r := range rt.plan.Records {
		n := rt.values[r.ValueID].NumBytes(rt.blobs[r.ValueID].shape)
		rt.blobs[r.ValueID].data = rt.arena[r.Offset : r.Offset+n : r.Offset+r.Size]
	}
	rt.logger.Debug("memory planned", "intermediates", len(rt.plan.Records), "arena", rt.plan.Total, "unshared", rt.plan.Sum)
}

// Setup binds every external value to caller memory and sets up every
// operator. Externals carrying Dims change the graph's input shapes; output
// shapes are re-inferred and intermediate memory is re-planned.
func (rt *Runtime) Setup(externals []ExternalValue) error {
	const op = "setup runtime"
	if rt.state == runtimeReleased {
		return status.New(op, status.ErrInvalidState, "runtime released")
	}
	rt.state = runtimeCreated

	bound := make(map[uint32][]byte, len(externals))
	reshaped := make(map[uint32]tensor.Shape)
	for _, ext := range externals {
		if int64(ext.ID) >= int64(len(rt.values)) || !rt.values[ext.ID].IsExternal() {
			return status.ForValue(op, status.ErrInvalidValueID, ext.ID, "not an external value")
		}
		if _, dup := bound[ext.ID]; dup {
			return status.ForValue(op, status.ErrInvalidParameter, ext.ID, "bound twice")
		}
		bound[ext.ID] = ext.Data
		if ext.Dims == nil {
			continue
		}
		v := &rt.values[ext.ID]
		if v.Flags&FlagExternalInput == 0 {
			return status.ForValue(op, status.ErrInvalidParameter, ext.ID, "only external inputs can be reshaped")
		}
		shape := tensor.Shape(ext.Dims).Clone()
		if err := shape.Validate(); err != nil {
			return status.ForValue(op, status.ErrInvalidParameter, ext.ID, "%v", err)
		}
		if len(shape) != len(v.Shape) {
			return status.ForValue(op, status.ErrInvalidParameter, ext.ID, "rank %d, declared rank %d", len(shape), len(v.Shape))
		}
		if !shape.Equal(rt.blobs[ext.ID].shape) {
			reshaped[ext.ID] = shape
		}
	}
	for i := range rt.values {
		if rt.values[i].IsExternal() {
			if _, ok := bound[uint32(i)]; !ok {
				return status.ForValue(op, status.ErrInvalidParameter, uint32(i), "external value not bound")
			}
		}
	}

	// A failed setup leaves the shapes and plan of the last good one.
	var saved []tensor.Shape
	fail := func(err error) error {
		if saved != nil {
			for i := range rt.blobs {
				rt.blobs[i].shape = saved[i]
			}
			rt.replan()
		}
		return err
	}
	if len(reshaped) > 0 {
		saved = make([]tensor.Shape, len(rt.blobs))
		for i := range rt.blobs {
			saved[i] = rt.blobs[i].shape
		}
		for id, shape := range reshaped {
			rt.blobs[id].shape = shape
		}
		if err := rt.propagateShapes(false); err != nil {
			return fail(err)
		}
		rt.replan()
	}

	for id, data := range bound {
		v := &rt.values[id]
		if need := v.NumBytes(rt.blobs[id].shape); len(data) != need {
			return fail(status.ForValue(op, status.ErrInvalidParameter, id, "buffer holds %d bytes, shape %v needs %d", len(data), rt.blobs[id].shape, need))
		}
		rt.blobs[id].data = data
	}

	for i := range rt.ops {
		od := &rt.ops[i]
		if err := catalog[od.node.Kind].setup(od, rt.blobs); err != nil {
			return fail(errors.Wrapf(err, "setup node #%d (%s)", od.node.ID, od.node.Kind))
		}
	}
	rt.state = runtimeReady
	return nil
}

// Invoke runs every operator once, in definition order. A nil pool runs
// single-threaded.
func (rt *Runtime) Invoke(pool parallel.Pool) error {
	const op = "invoke runtime"
	switch rt.state {
	case runtimeReleased:
		return status.New(op, status.ErrInvalidState, "runtime released")
	case runtimeCreated:
		return status.New(op, status.ErrInvalidState, "invoke before a successful setup")
	}
	for i := range rt.ops {
		od := &rt.ops[i]
		if err := od.op.Run(pool); err != nil {
			return errors.Wrapf(err, "run node #%d (%s)", od.node.ID, od.node.Kind)
		}
	}
	return nil
}

// Release frees the code cache and arena. Later calls on the runtime fail
// with ErrInvalidState; releasing again is a no-op.
func (rt *Runtime) Release() error {
	if rt.state == runtimeReleased {
		return nil
	}
	err := rt.release()
	rt.logger.Debug("runtime released")
	return err
}

func (rt *Runtime) release() error {
	var err error
	if rt.cache != nil {
		err = rt.cache.Release()
		rt.cache = nil
	}
	rt.arena = nil
	rt.ops = nil
	for i := range rt.blobs {
		rt.blobs[i].data = nil
	}
	rt.state = runtimeReleased
	return err
}

// ID identifies the runtime in logs.
func (rt *Runtime) ID() uuid.UUID { return rt.id }

// Plan returns a copy of the current memory plan.
func (rt *Runtime) Plan() Plan {
	if rt.plan == nil {
		return Plan{}
	}
	return Plan{Records: slices.Clone(rt.plan.Records), Total: rt.plan.Total, Sum: rt.plan.Sum}
}

// Shape returns the current logical shape of value id.
func (rt *Runtime) Shape(id uint32) (tensor.Shape, error) {
	if int64(id) >= int64(len(rt.values)) || rt.values[id].Type != ValueTypeDenseTensor {
		return nil, status.ForValue("runtime shape", status.ErrInvalidValueID, id, "not a dense tensor")
	}
	return rt.blobs[id].shape.Clone(), nil
}

// Operators returns the backend operator type of every node, in order.
func (rt *Runtime) Operators() []string {
	types := make([]string, len(rt.ops))
	for i := range rt.ops {
		types[i] = rt.ops[i].op.Type()
	}
	return types
}
