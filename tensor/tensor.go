// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/graphrt/internal/tensor"
)

// Type aliases for public API

// DataType is the element type of a value.
type DataType = tensor.DataType

// Data type constants.
const (
	Invalid DataType = tensor.Invalid
	FP32    DataType = tensor.FP32
	FP16    DataType = tensor.FP16
	QInt8   DataType = tensor.QInt8
	QUint8  DataType = tensor.QUint8
	QInt32  DataType = tensor.QInt32
)

// MaxDims is the maximum rank of a value.
const MaxDims = tensor.MaxDims

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Layout tags how a value's declared dimensions are ordered.
type Layout = tensor.Layout

// Layout constants.
const (
	LayoutChannelLast  Layout = tensor.LayoutChannelLast
	LayoutChannelFirst Layout = tensor.LayoutChannelFirst
)

// Quantization holds the scale and zero point of a quantized value.
type Quantization = tensor.Quantization

// BroadcastShapes computes the NumPy-style broadcast of a and b.
// The bool result reports whether either input needs broadcasting.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}

// AsFloat32 interprets b as []float32 without copying.
func AsFloat32(b []byte) []float32 { return tensor.AsFloat32(b) }

// AsUint16 interprets b as the raw storage of FP16 elements.
func AsUint16(b []byte) []uint16 { return tensor.AsUint16(b) }

// AsInt8 interprets b as []int8 without copying.
func AsInt8(b []byte) []int8 { return tensor.AsInt8(b) }

// Bytes exposes the memory of s as a byte slice without copying.
func Bytes[T float32 | uint16 | int8 | uint8 | int32](s []T) []byte {
	return tensor.Bytes(s)
}
