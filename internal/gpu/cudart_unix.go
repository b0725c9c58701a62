//go:build !windows

package gpu

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// DefaultCUDARTPath is tried when OpenCUDART is given an empty path.
const DefaultCUDARTPath = "libcudart.so"

const (
	cudaSuccess               = 0
	cudaErrorMemoryAllocation = 2

	cudaMemcpyHostToDevice   = 1
	cudaMemcpyDeviceToHost   = 2
	cudaMemcpyDeviceToDevice = 3
)

// CUDART is the CUDA runtime library loaded with purego, so the binary needs
// neither cgo nor the CUDA toolkit at build time.
type CUDART struct {
	lib  uintptr
	path string

	getDeviceCount func(n *int32) int32
	malloc         func(p *uintptr, size uintptr) int32
	free           func(p uintptr) int32
	memcpyHtoD     func(dst uintptr, src unsafe.Pointer, n uintptr, kind int32) int32
	memcpyDtoH     func(dst unsafe.Pointer, src uintptr, n uintptr, kind int32) int32
	memcpyDtoD     func(dst, src uintptr, n uintptr, kind int32) int32
	memset         func(dst uintptr, v int32, n uintptr) int32
	synchronize    func() int32
	memGetInfo     func(free, total *uintptr) int32
	errorString    func(code int32) string
}

// OpenCUDART dlopens the CUDA runtime at path and binds the memory API.
func OpenCUDART(path string) (*CUDART, error) {
	if path == "" {
		path = DefaultCUDARTPath
	}
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil || lib == 0 {
		return nil, fmt.Errorf("%w: dlopen %s: %v", ErrUnavailable, path, err)
	}
	c := &CUDART{lib: lib, path: path}
	binds := []struct {
		fptr any
		name string
	}{
		{&c.getDeviceCount, "cudaGetDeviceCount"},
		{&c.malloc, "cudaMalloc"},
		{&c.free, "cudaFree"},
		{&c.memcpyHtoD, "cudaMemcpy"},
		{&c.memcpyDtoH, "cudaMemcpy"},
		{&c.memcpyDtoD, "cudaMemcpy"},
		{&c.memset, "cudaMemset"},
		{&c.synchronize, "cudaDeviceSynchronize"},
		{&c.memGetInfo, "cudaMemGetInfo"},
		{&c.errorString, "cudaGetErrorString"},
	}
	for _, b := range binds {
		sym, err := purego.Dlsym(lib, b.name)
		if err != nil || sym == 0 {
			_ = purego.Dlclose(lib)
			return nil, fmt.Errorf("%w: %s: missing symbol %s", ErrUnavailable, path, b.name)
		}
		purego.RegisterFunc(b.fptr, sym)
	}
	var n int32
	if err := c.check("cudaGetDeviceCount", c.getDeviceCount(&n)); err != nil {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("%w: no CUDA devices", ErrUnavailable)
	}
	return c, nil
}

func (c *CUDART) check(op string, code int32) error {
	if code == cudaSuccess {
		return nil
	}
	msg := c.errorString(code)
	if code == cudaErrorMemoryAllocation {
		return fmt.Errorf("%w: %s: %s", ErrOutOfMemory, op, msg)
	}
	return fmt.Errorf("gpu: %s: %s (code %d)", op, msg, code)
}

func (c *CUDART) Name() string { return BackendCUDART }

func (c *CUDART) Malloc(size int) (uintptr, error) {
	var p uintptr
	if err := c.check("cudaMalloc", c.malloc(&p, uintptr(size))); err != nil {
		return 0, err
	}
	return p, nil
}

func (c *CUDART) Free(addr uintptr) error {
	return c.check("cudaFree", c.free(addr))
}

func (c *CUDART) HtoD(dst uintptr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	code := c.memcpyHtoD(dst, unsafe.Pointer(unsafe.SliceData(src)), uintptr(len(src)), cudaMemcpyHostToDevice)
	runtime.KeepAlive(src)
	return c.check("cudaMemcpy HtoD", code)
}

func (c *CUDART) DtoH(dst []byte, src uintptr) error {
	if len(dst) == 0 {
		return nil
	}
	code := c.memcpyDtoH(unsafe.Pointer(unsafe.SliceData(dst)), src, uintptr(len(dst)), cudaMemcpyDeviceToHost)
	runtime.KeepAlive(dst)
	return c.check("cudaMemcpy DtoH", code)
}

func (c *CUDART) DtoD(dst, src uintptr, size int) error {
	return c.check("cudaMemcpy DtoD", c.memcpyDtoD(dst, src, uintptr(size), cudaMemcpyDeviceToDevice))
}

func (c *CUDART) Memset(dst uintptr, v byte, size int) error {
	return c.check("cudaMemset", c.memset(dst, int32(v), uintptr(size)))
}

func (c *CUDART) Synchronize() error {
	return c.check("cudaDeviceSynchronize", c.synchronize())
}

func (c *CUDART) MemInfo() (free, total int64, err error) {
	var f, t uintptr
	if err := c.check("cudaMemGetInfo", c.memGetInfo(&f, &t)); err != nil {
		return 0, 0, err
	}
	return int64(f), int64(t), nil
}

func (c *CUDART) Close() error {
	if c.lib == 0 {
		return nil
	}
	err := purego.Dlclose(c.lib)
	c.lib = 0
	return err
}
