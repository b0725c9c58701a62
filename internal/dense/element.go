package dense

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/qrv0/cuv/internal/memspace"
)

var (
	ErrInvalidDimension  = errors.New("invalid dimension")
	ErrDimensionMismatch = errors.New("dimension mismatch")

	ErrInvalidArgument = memspace.ErrInvalidArgument
	ErrOutOfMemory     = memspace.ErrOutOfMemory
	ErrReleased        = memspace.ErrReleased
)

// Element is the set of supported element types.
type Element interface {
	float32 | float64 | int32 | int64 | uint8
}

func sizeOf[T Element]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

// DType returns the safetensors-style name of T.
func DType[T Element]() string {
	var z T
	switch any(z).(type) {
	case float32:
		return "F32"
	case float64:
		return "F64"
	case int32:
		return "I32"
	case int64:
		return "I64"
	case uint8:
		return "U8"
	}
	return ""
}

// byteSize returns n*sizeof(T), rejecting overflow.
func byteSize[T Element](n int) (int, error) {
	es := sizeOf[T]()
	maxInt := int(^uint(0) >> 1)
	if n < 0 || n > maxInt/es {
		return 0, fmt.Errorf("%w: %d elements of %d bytes", ErrInvalidDimension, n, es)
	}
	return n * es, nil
}

// shapeLen validates rows x cols and returns the element count.
func shapeLen(rows, cols int) (int, error) {
	if rows <= 0 || cols <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, rows, cols)
	}
	maxInt := int(^uint(0) >> 1)
	if rows > maxInt/cols {
		return 0, fmt.Errorf("%w: %dx%d overflows", ErrInvalidDimension, rows, cols)
	}
	return rows * cols, nil
}

// asBytes reinterprets s as its raw in-memory bytes.
func asBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*sizeOf[T]())
}
