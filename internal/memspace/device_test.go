package memspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrv0/cuv/internal/gpu"
)

func TestDeviceLocation(t *testing.T) {
	d := NewDevice(gpu.NewSim(32))
	require.Equal(t, Device, d.Kind())
	require.Equal(t, "device/sim", d.Name())

	a, err := d.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, d.CopyFromHost(a, []byte{1, 2, 3, 4}))
	b, err := d.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, d.Copy(b, a, 4))
	got := make([]byte, 4)
	require.NoError(t, d.CopyToHost(got, b))
	require.Equal(t, []byte{1, 2, 3, 4}, got)
	require.NoError(t, d.Sync())

	_, err = d.Alloc(1)
	require.ErrorIs(t, err, ErrOutOfMemory)

	require.NoError(t, d.Free(a))
	require.ErrorIs(t, d.Free(a), ErrBadAddress)
}
