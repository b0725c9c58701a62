//go:build cuda

package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNativeRoundTrip(t *testing.T) {
	d, err := Native()
	if err != nil {
		t.Skip("CUDA not available on this runner")
	}
	defer d.Close()
	exerciseDriver(t, d)
	require.NoError(t, d.Synchronize())
}
