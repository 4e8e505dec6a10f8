// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the element types, shapes and layouts of graph values.
//
// # Overview
//
// Values in a subgraph are dense tensors described by:
//   - DataType: FP32, FP16, QInt8, QUint8, QInt32
//   - Shape: up to MaxDims dimensions, zero-sized dimensions allowed
//   - Layout: channel-last (default) or channel-first
//   - Quantization: scale and zero point of quantized types
//
// # Buffers
//
// Runtimes read and write plain byte slices. Bytes and the As* helpers view
// typed slices as bytes and back without copying:
//
//	in := []float32{1, 2, 3}
//	buf := tensor.Bytes(in)         // 12 bytes sharing in's memory
//	out := tensor.AsFloat32(buf)    // []float32{1, 2, 3}
//
// # Broadcasting
//
// Binary operators follow NumPy broadcasting rules:
//
//	out, _, err := tensor.BroadcastShapes(tensor.Shape{3, 1}, tensor.Shape{4}) // (3, 4)
//
// # Layouts
//
// A channel-first value declares logical dims (N, C, ...) but its buffer holds
// data in channel-last order. Canonical maps logical dims to storage order:
//
//	tensor.LayoutChannelFirst.Canonical(tensor.Shape{1, 3, 8, 8}) // (1, 8, 8, 3)
package tensor
