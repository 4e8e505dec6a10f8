// Package kernels implements the numerical inner loops behind the operator catalog.
//
// Kernels are pure functions over flat slices. They know nothing about graphs;
// callers pass resolved shapes, strides and quantization parameters, and may
// split work into [start, start+count) ranges for parallel execution.
package kernels

import (
	"github.com/born-ml/graphrt/internal/tensor"
)

// Broadcast maps output elements of a binary operation onto its two operands.
type Broadcast struct {
	Out        tensor.Shape
	outStrides []int
	aStrides   []int
	bStrides   []int
	contiguous bool
}

// NewBroadcast resolves the numpy-style broadcast of a and b.
func NewBroadcast(a, b tensor.Shape) (*Broadcast, error) {
	out, needsBroadcast, err := tensor.BroadcastShapes(a, b)
	if err != nil {
		return nil, err
	}
	return &Broadcast{
		Out:        out,
		outStrides: out.ComputeStrides(),
		aStrides:   tensor.BroadcastStrides(a, out),
		bStrides:   tensor.BroadcastStrides(b, out),
		contiguous: !needsBroadcast,
	}, nil
}

// NumElements returns the output element count.
func (bc *Broadcast) NumElements() int {
	return bc.Out.NumElements()
}

// index computes the operand offsets for output element i.
func (bc *Broadcast) index(i int) (ai, bi int) {
	if bc.contiguous {
		return i, i
	}
	for d, s := range bc.outStrides {
		coord := i / s
		i %= s
		ai += coord * bc.aStrides[d]
		bi += coord * bc.bStrides[d]
	}
	return ai, bi
}
