package tensor

import "unsafe"

// AsFloat32 interprets b as []float32. len(b) must be a multiple of 4.
func AsFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy blob access, length derived from len(b)
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// AsUint16 interprets b as []uint16 (the storage of FP16 elements).
func AsUint16(b []byte) []uint16 {
	if len(b) < 2 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy blob access, length derived from len(b)
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

// AsInt8 interprets b as []int8.
func AsInt8(b []byte) []int8 {
	if len(b) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy blob access
	return unsafe.Slice((*int8)(unsafe.Pointer(&b[0])), len(b))
}

// Bytes exposes the memory of s as a byte slice without copying.
func Bytes[T float32 | uint16 | int8 | uint8 | int32](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // unsafe.Slice for zero-copy blob access
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
