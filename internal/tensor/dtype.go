// Package tensor provides the element types, shapes and layouts shared by the graph engine.
package tensor

// DataType is the element type of a Value.
type DataType int

// Supported element types.
const (
	Invalid DataType = iota
	FP32
	FP16
	QInt8
	QUint8
	QInt32
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case FP32, QInt32:
		return 4
	case FP16:
		return 2
	case QInt8, QUint8:
		return 1
	default:
		return 0
	}
}

// IsQuantized reports whether elements carry a scale and zero point.
func (dt DataType) IsQuantized() bool {
	return dt == QInt8 || dt == QUint8 || dt == QInt32
}

// Valid reports whether dt names a known element type.
func (dt DataType) Valid() bool {
	return dt > Invalid && dt <= QInt32
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case FP32:
		return "fp32"
	case FP16:
		return "fp16"
	case QInt8:
		return "qint8"
	case QUint8:
		return "quint8"
	case QInt32:
		return "qint32"
	default:
		return "invalid"
	}
}

// QuantRange returns the representable storage range of a quantized type.
func (dt DataType) QuantRange() (lo, hi int32) {
	switch dt {
	case QInt8:
		return -128, 127
	case QUint8:
		return 0, 255
	case QInt32:
		return -2147483648, 2147483647
	default:
		return 0, 0
	}
}
