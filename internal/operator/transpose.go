package operator

import (
	"github.com/born-ml/graphrt/internal/codebuf"
	"github.com/born-ml/graphrt/internal/kernels"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Transpose permutes the dimensions of its input.
type Transpose struct {
	base
	perm     []int
	elemSize int

	// Program generated at create time for the declared shape.
	shape tensor.Shape
	cache *codebuf.Cache
	ref   codebuf.Ref

	prog    kernels.TransposeProgram
	in, out []byte
}

// ValidPermutation reports whether perm is a permutation of [0, len(perm)).
func ValidPermutation(perm []int) bool {
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}

// PermuteShape returns the output shape of transposing shape by perm.
func PermuteShape(shape tensor.Shape, perm []int) tensor.Shape {
	out := make(tensor.Shape, len(perm))
	for i, p := range perm {
		out[i] = shape[p]
	}
	return out
}

// CreateTranspose creates a transpose for elements of dt. When cache is
// non-nil the loop program for shape is generated into it.
func CreateTranspose(dt tensor.DataType, perm []int, shape tensor.Shape, cache *codebuf.Cache) (*Transpose, error) {
	typ := typeName("transpose_nd", dt)
	if dt.Size() == 0 {
		return nil, status.New(typ, status.ErrUnsupportedDatatype, "datatype %s", dt)
	}
	if len(perm) != len(shape) || !ValidPermutation(perm) {
		return nil, status.New(typ, status.ErrInvalidParameter, "%v is not a permutation of rank %d", perm, len(shape))
	}
	o := &Transpose{
		base:     base{typ: typ},
		perm:     append([]int(nil), perm...),
		elemSize: dt.Size(),
		shape:    shape.Clone(),
	}
	if cache != nil {
		ref, err := cache.Insert(kernels.PlanTranspose(shape, perm, o.elemSize).Encode())
		if err != nil {
			return nil, err
		}
		o.cache, o.ref = cache, ref
	}
	return o, nil
}

// Generated reports whether the operator's program lives in the code cache.
func (o *Transpose) Generated() bool {
	return o.cache != nil
}

// Setup binds buffers for the given input shape. The cached program is used
// when the shape matches the one seen at create time; otherwise a program is
// planned on the heap.
func (o *Transpose) Setup(shape tensor.Shape, in, out []byte) error {
	if len(shape) != len(o.perm) {
		return status.New(o.typ, status.ErrInvalidParameter, "input rank %d, want %d", len(shape), len(o.perm))
	}
	n := shape.NumElements()
	if need := n * o.elemSize; len(in) < need || len(out) < need {
		return status.New(o.typ, status.ErrInvalidParameter, "buffers hold %d and %d bytes, need %d", len(in), len(out), need)
	}
	if o.cache != nil && shape.Equal(o.shape) {
		prog, err := kernels.DecodeTranspose(o.cache.Code(o.ref))
		if err != nil {
			return status.New(o.typ, status.ErrInvalidState, "%v", err)
		}
		o.prog = prog
	} else {
		o.prog = kernels.PlanTranspose(shape, o.perm, o.elemSize)
	}
	o.in, o.out = in, out
	o.state = StateSetup
	return nil
}

// Run executes the bound program, distributing outer rows across pool.
func (o *Transpose) Run(pool parallel.Pool) error {
	if err := o.beginRun(); err != nil {
		return err
	}
	pool = parallel.OrSequential(pool)
	rows := o.prog.Rows()
	t := rows
	if pool.Threads() > 1 {
		t = max(1, (rows+pool.Threads()-1)/pool.Threads())
	}
	pool.Parallelize1DTile(rows, t, func(start, count int) {
		o.prog.Run(o.out, o.in, start, count)
	})
	o.state = StateExecuted
	return nil
}
