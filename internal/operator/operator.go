// Package operator implements the backend operator objects a compiled graph
// runs: each one is created once with fixed parameters, set up against
// concrete shapes and buffers, then run any number of times.
package operator

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/cpuinfo"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/status"
	"github.com/born-ml/graphrt/internal/tensor"
)

// State tracks an operator through Created → Setup → Executed.
type State int

// Operator states.
const (
	StateCreated State = iota
	StateSetup
	StateExecuted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSetup:
		return "setup"
	case StateExecuted:
		return "executed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Operator is the part of a backend operator shared by every kind. Setup
// signatures differ per kind and live on the concrete types.
type Operator interface {
	// Type names the operator and its datatype, e.g. "subtract_nd_f32".
	Type() string
	State() State
	// Run executes the operator on the buffers bound by the last setup.
	Run(pool parallel.Pool) error
}

// elementTile is the smallest range of elements handed to one worker.
const elementTile = 1024

type base struct {
	typ   string
	state State
}

func (b *base) Type() string { return b.typ }

func (b *base) State() State { return b.state }

func (b *base) beginRun() error {
	if b.state == StateCreated {
		return status.New(b.typ, status.ErrInvalidState, "run before setup")
	}
	return nil
}

func typeName(kind string, dt tensor.DataType) string {
	return kind + "_" + suffix(dt)
}

func suffix(dt tensor.DataType) string {
	switch dt {
	case tensor.FP32:
		return "f32"
	case tensor.FP16:
		return "f16"
	case tensor.QInt8:
		return "qs8"
	case tensor.QUint8:
		return "qu8"
	default:
		return dt.String()
	}
}

// requireFP16 fails with ErrUnsupportedHardware when dt is FP16 and the
// processor has no half-precision arithmetic.
func requireFP16(op string, dt tensor.DataType, f cpuinfo.Features) error {
	if dt == tensor.FP16 && !f.FP16Arith {
		return status.New(op, status.ErrUnsupportedHardware, "fp16 arithmetic not supported on %s", f.Arch)
	}
	return nil
}

// checkBuffer verifies buf can hold n elements of dt.
func checkBuffer(op, name string, buf []byte, n int, dt tensor.DataType) error {
	if need := n * dt.Size(); len(buf) < need {
		return status.New(op, status.ErrInvalidParameter, "%s buffer holds %d bytes, need %d", name, len(buf), need)
	}
	return nil
}

func tile(n int, pool parallel.Pool) int {
	threads := pool.Threads()
	if threads <= 1 {
		return n
	}
	return max(elementTile, (n+threads-1)/threads)
}
