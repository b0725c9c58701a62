//go:build windows

package gpu

import "fmt"

// OpenCUDART is not supported on windows; build with -tags cuda instead.
func OpenCUDART(path string) (Driver, error) {
	return nil, fmt.Errorf("%w: cudart loading is not supported on windows", ErrUnavailable)
}
