package kernels

import (
	"encoding/binary"
	"fmt"

	"github.com/born-ml/graphrt/internal/tensor"
)

const (
	transposeMagic   = 'T'
	transposeVersion = 1
)

// TransposeProgram is a shape-specialized transpose: nested loops in output
// order, each with the input stride (in elements) it walks.
type TransposeProgram struct {
	ElemSize  int
	Dims      []int
	InStrides []int
}

// PlanTranspose builds the program for permuting shape by perm. Size-1 axes
// are dropped and runs of axes that stay adjacent in the input are merged.
// An empty shape yields a program with no rows.
func PlanTranspose(shape tensor.Shape, perm []int, elemSize int) TransposeProgram {
	p := TransposeProgram{ElemSize: elemSize}
	if shape.NumElements() == 0 {
		p.Dims, p.InStrides = []int{0}, []int{1}
		return p
	}
	strides := shape.ComputeStrides()
	for _, axis := range perm {
		size, stride := shape[axis], strides[axis]
		if size == 1 {
			continue
		}
		if n := len(p.Dims); n > 0 && p.InStrides[n-1] == size*stride {
			p.Dims[n-1] *= size
			p.InStrides[n-1] = stride
			continue
		}
		p.Dims = append(p.Dims, size)
		p.InStrides = append(p.InStrides, stride)
	}
	if len(p.Dims) == 0 {
		p.Dims = []int{1}
		p.InStrides = []int{1}
	}
	return p
}

// Rows returns the extent of the outermost loop, the unit of parallel work.
func (p TransposeProgram) Rows() int {
	return p.Dims[0]
}

// Encode serializes the program for the code cache.
func (p TransposeProgram) Encode() []byte {
	code := make([]byte, 4, 4+8*len(p.Dims))
	code[0], code[1], code[2], code[3] = transposeMagic, transposeVersion, byte(p.ElemSize), byte(len(p.Dims))
	for i := range p.Dims {
		code = binary.LittleEndian.AppendUint32(code, uint32(p.Dims[i]))
		code = binary.LittleEndian.AppendUint32(code, uint32(p.InStrides[i]))
	}
	return code
}

// DecodeTranspose parses a program produced by Encode.
func DecodeTranspose(code []byte) (TransposeProgram, error) {
	if len(code) < 4 || code[0] != transposeMagic || code[1] != transposeVersion {
		return TransposeProgram{}, fmt.Errorf("not a transpose program")
	}
	n := int(code[3])
	if n == 0 || len(code) != 4+8*n {
		return TransposeProgram{}, fmt.Errorf("transpose program: bad length %d for %d loops", len(code), n)
	}
	p := TransposeProgram{ElemSize: int(code[2]), Dims: make([]int, n), InStrides: make([]int, n)}
	for i := 0; i < n; i++ {
		p.Dims[i] = int(binary.LittleEndian.Uint32(code[4+8*i:]))
		p.InStrides[i] = int(binary.LittleEndian.Uint32(code[8+8*i:]))
	}
	return p, nil
}

// Run executes outer rows [start, start+count) of the program.
func (p TransposeProgram) Run(dst, src []byte, start, count int) {
	es := p.ElemSize
	last := len(p.Dims) - 1
	if last == 0 {
		s := p.InStrides[0]
		for r := start; r < start+count; r++ {
			copy(dst[r*es:(r+1)*es], src[r*s*es:(r*s+1)*es])
		}
		return
	}

	outStrides := tensor.Shape(p.Dims).ComputeStrides()
	n, s := p.Dims[last], p.InStrides[last]
	idx := make([]int, len(p.Dims))
	for row := start; row < start+count; row++ {
		clear(idx)
		idx[0] = row
		for {
			in, out := 0, 0
			for d := 0; d < last; d++ {
				in += idx[d] * p.InStrides[d]
				out += idx[d] * outStrides[d]
			}
			if s == 1 {
				copy(dst[out*es:(out+n)*es], src[in*es:(in+n)*es])
			} else {
				for k := 0; k < n; k++ {
					o, i := (out+k)*es, (in+k*s)*es
					copy(dst[o:o+es], src[i:i+es])
				}
			}
			if !advance(idx, p.Dims, last) {
				break
			}
		}
	}
}

// advance steps the odometer over loops 1..last-1; loop 0 stays fixed.
func advance(idx, dims []int, last int) bool {
	for d := last - 1; d >= 1; d-- {
		idx[d]++
		if idx[d] < dims[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}
