package gpu

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"
)

var (
	ErrUnavailable = errors.New("gpu: driver unavailable")
	ErrOutOfMemory = errors.New("gpu: out of memory")
	ErrBadAddress  = errors.New("gpu: invalid device address")
)

// Driver is the device memory surface. Addresses are opaque to the host:
// data only moves through HtoD, DtoH and DtoD.
type Driver interface {
	Name() string
	Malloc(size int) (uintptr, error)
	Free(addr uintptr) error
	HtoD(dst uintptr, src []byte) error
	DtoH(dst []byte, src uintptr) error
	DtoD(dst, src uintptr, size int) error
	Memset(dst uintptr, v byte, size int) error
	// Synchronize blocks until all queued device work has completed.
	Synchronize() error
	MemInfo() (free, total int64, err error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSim    = "sim"
	BackendCUDA   = "cuda"
	BackendCUDART = "cudart"
)

// Open selects a driver by backend name. path is only used by the cudart
// backend, capacity only by the simulator.
func Open(backend, path string, capacity int64) (Driver, error) {
	var (
		d   Driver
		err error
	)
	switch backend {
	case "", BackendSim:
		d = NewSim(capacity)
	case BackendCUDA:
		d, err = Native()
	case BackendCUDART:
		d, err = OpenCUDART(path)
	default:
		return nil, fmt.Errorf("gpu: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	klog.V(2).Infof("gpu: opened %s driver", d.Name())
	return d, nil
}
