//go:build !cuda

package gpu

// Native is unavailable without the cuda build tag; use the cudart backend to
// load the runtime at run time instead.
func Native() (Driver, error) {
	return nil, ErrUnavailable
}
