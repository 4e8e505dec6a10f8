// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package subgraph builds, compiles and runs graphs of tensor operators.
//
// # Overview
//
// A graph is described once against an Engine, compiled into a Runtime and
// then executed any number of times:
//
//  1. NewEngine detects the processor and configures logging and threads.
//  2. New creates an empty Subgraph with a fixed number of external value ids.
//  3. Define*Value declares tensors; Define<Op> appends operator nodes.
//     Every definer validates its arguments before touching the graph, so a
//     rejected call leaves the graph exactly as it was.
//  4. CreateRuntime lowers every node to a backend operator, plans memory for
//     intermediate values and allocates a single arena.
//  5. Runtime.Setup binds caller buffers to external values.
//  6. Runtime.Invoke runs every operator in definition order.
//
// # Basic Usage
//
//	eng, err := subgraph.NewEngine(subgraph.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	sg, _ := subgraph.New(eng, 3)
//	a, _ := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 0, subgraph.FlagExternalInput)
//	b, _ := sg.DefineTensorValue(tensor.FP32, []int{1, 3}, nil, 1, subgraph.FlagExternalInput)
//	y, _ := sg.DefineTensorValue(tensor.FP32, []int{2, 3}, nil, 2, subgraph.FlagExternalOutput)
//	if err := sg.DefineSubtract(float32(math.Inf(-1)), float32(math.Inf(1)), a, b, y, 0); err != nil {
//	    return err
//	}
//
//	rt, err := subgraph.CreateRuntime(sg, subgraph.RuntimeOptions{})
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = rt.Release() }()
//
//	out := make([]float32, 6)
//	err = rt.Setup([]subgraph.ExternalValue{
//	    {ID: a, Data: tensor.Bytes([]float32{1, 2, 3, 4, 5, 6})},
//	    {ID: b, Data: tensor.Bytes([]float32{1, 1, 1})},
//	    {ID: y, Data: tensor.Bytes(out)},
//	})
//	...
//	err = rt.Invoke(eng.Pool()) // out = [0 1 2 3 4 5]
//
// # Errors
//
// Every failure is one of the Err* kinds, testable with errors.Is. The
// concrete *Error carries the operation, the offending value id and a detail
// message.
//
// # Concurrency
//
// Definition and compilation are single-threaded per graph. Invoke fans work
// out to the Pool it is given; a nil Pool runs on the calling goroutine.
// Separate runtimes may be used from separate goroutines.
package subgraph
