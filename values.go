package garray

import (
	"encoding/binary"
	"math"

	"github.com/garray/garray/types"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// dtypeSize returns the storage size in bytes of one element of the given
// dtype, for the element types a GlobalArray supports.
func dtypeSize(dtype dtypes.DType) (int, error) {
	switch dtype {
	case dtypes.F64, dtypes.S64, dtypes.U64:
		return 8, nil
	case dtypes.F32, dtypes.S32, dtypes.U32:
		return 4, nil
	case dtypes.F16, dtypes.S16, dtypes.U16:
		return 2, nil
	case dtypes.S8, dtypes.U8, dtypes.Bool:
		return 1, nil
	}
	return 0, errors.Wrapf(types.ErrConfiguration, "unsupported element type %s", dtype)
}

// readValue decodes the element at byte offset off as a float64, the
// exchange currency of the element accessors.
func readValue(buf []byte, off int, dtype dtypes.DType) float64 {
	switch dtype {
	case dtypes.F64:
		return math.Float64frombits(binary.NativeEndian.Uint64(buf[off:]))
	case dtypes.F32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(buf[off:])))
	case dtypes.F16:
		return float64(float16.Frombits(binary.NativeEndian.Uint16(buf[off:])).Float32())
	case dtypes.S64:
		return float64(int64(binary.NativeEndian.Uint64(buf[off:])))
	case dtypes.S32:
		return float64(int32(binary.NativeEndian.Uint32(buf[off:])))
	case dtypes.S16:
		return float64(int16(binary.NativeEndian.Uint16(buf[off:])))
	case dtypes.S8:
		return float64(int8(buf[off]))
	case dtypes.U64:
		return float64(binary.NativeEndian.Uint64(buf[off:]))
	case dtypes.U32:
		return float64(binary.NativeEndian.Uint32(buf[off:]))
	case dtypes.U16:
		return float64(binary.NativeEndian.Uint16(buf[off:]))
	case dtypes.U8:
		return float64(buf[off])
	case dtypes.Bool:
		if buf[off] != 0 {
			return 1
		}
		return 0
	}
	return math.NaN()
}

// writeValue encodes value into the element at byte offset off.
func writeValue(buf []byte, off int, dtype dtypes.DType, value float64) {
	switch dtype {
	case dtypes.F64:
		binary.NativeEndian.PutUint64(buf[off:], math.Float64bits(value))
	case dtypes.F32:
		binary.NativeEndian.PutUint32(buf[off:], math.Float32bits(float32(value)))
	case dtypes.F16:
		binary.NativeEndian.PutUint16(buf[off:], float16.Fromfloat32(float32(value)).Bits())
	case dtypes.S64:
		binary.NativeEndian.PutUint64(buf[off:], uint64(int64(value)))
	case dtypes.S32:
		binary.NativeEndian.PutUint32(buf[off:], uint32(int32(value)))
	case dtypes.S16:
		binary.NativeEndian.PutUint16(buf[off:], uint16(int16(value)))
	case dtypes.S8:
		buf[off] = byte(int8(value))
	case dtypes.U64:
		binary.NativeEndian.PutUint64(buf[off:], uint64(value))
	case dtypes.U32:
		binary.NativeEndian.PutUint32(buf[off:], uint32(value))
	case dtypes.U16:
		binary.NativeEndian.PutUint16(buf[off:], uint16(value))
	case dtypes.U8:
		buf[off] = byte(value)
	case dtypes.Bool:
		if value != 0 {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
	}
}
