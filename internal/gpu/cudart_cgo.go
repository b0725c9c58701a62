//go:build cuda

package gpu

/*
#cgo LDFLAGS: -lcudart
#include <cuda_runtime.h>

static const char* cudaErrStr(cudaError_t e) { return cudaGetErrorString(e); }
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type native struct{}

func cudaErr(op string, ce C.cudaError_t) error {
	if ce == C.cudaSuccess {
		return nil
	}
	if ce == C.cudaErrorMemoryAllocation {
		return fmt.Errorf("%w: %s: %s", ErrOutOfMemory, op, C.GoString(C.cudaErrStr(ce)))
	}
	return fmt.Errorf("gpu: %s: %s", op, C.GoString(C.cudaErrStr(ce)))
}

// Native returns the CUDA runtime linked at build time (-tags cuda).
func Native() (Driver, error) {
	var n C.int
	if err := cudaErr("cudaGetDeviceCount", C.cudaGetDeviceCount(&n)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no CUDA devices", ErrUnavailable)
	}
	return native{}, nil
}

func (native) Name() string { return BackendCUDA }

func (native) Malloc(size int) (uintptr, error) {
	var p unsafe.Pointer
	if err := cudaErr("cudaMalloc", C.cudaMalloc(&p, C.size_t(size))); err != nil {
		return 0, err
	}
	return uintptr(p), nil
}

func (native) Free(addr uintptr) error {
	return cudaErr("cudaFree", C.cudaFree(unsafe.Pointer(addr)))
}

func (native) HtoD(dst uintptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	return cudaErr("cudaMemcpy HtoD", C.cudaMemcpy(unsafe.Pointer(dst), unsafe.Pointer(&src[0]), C.size_t(len(src)), C.cudaMemcpyHostToDevice))
}

func (native) DtoH(dst []byte, src uintptr) error {
	if len(dst) == 0 {
		return nil
	}
	return cudaErr("cudaMemcpy DtoH", C.cudaMemcpy(unsafe.Pointer(&dst[0]), unsafe.Pointer(src), C.size_t(len(dst)), C.cudaMemcpyDeviceToHost))
}

func (native) DtoD(dst, src uintptr, size int) error {
	return cudaErr("cudaMemcpy DtoD", C.cudaMemcpy(unsafe.Pointer(dst), unsafe.Pointer(src), C.size_t(size), C.cudaMemcpyDeviceToDevice))
}

func (native) Memset(dst uintptr, v byte, size int) error {
	return cudaErr("cudaMemset", C.cudaMemset(unsafe.Pointer(dst), C.int(v), C.size_t(size)))
}

func (native) Synchronize() error {
	return cudaErr("cudaDeviceSynchronize", C.cudaDeviceSynchronize())
}

func (native) MemInfo() (free, total int64, err error) {
	var f, t C.size_t
	if err := cudaErr("cudaMemGetInfo", C.cudaMemGetInfo(&f, &t)); err != nil {
		return 0, 0, err
	}
	return int64(f), int64(t), nil
}

func (native) Close() error { return nil }
