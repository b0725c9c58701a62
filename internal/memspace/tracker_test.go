package memspace

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr, err := Track(NewHost(0), reg)
	require.NoError(t, err)

	a, err := tr.Alloc(100)
	require.NoError(t, err)
	b, err := tr.Alloc(28)
	require.NoError(t, err)
	require.Equal(t, float64(128), testutil.ToFloat64(tr.liveBytes))

	require.NoError(t, tr.Free(a))
	require.ErrorIs(t, tr.Free(a), ErrDoubleFree)
	require.NoError(t, tr.Free(b))

	s := tr.Stats()
	require.Equal(t, int64(2), s.Allocs)
	require.Equal(t, int64(2), s.Frees)
	require.Equal(t, int64(1), s.DoubleFrees)
	require.Equal(t, int64(128), s.PeakBytes)
	require.Zero(t, s.LiveBytes)
	require.Zero(t, s.Live)

	require.Equal(t, float64(2), testutil.ToFloat64(tr.allocs))
	require.Equal(t, float64(1), testutil.ToFloat64(tr.doubleFrees))
	require.Zero(t, testutil.ToFloat64(tr.liveBytes))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestTrackerDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := Track(NewHost(0), reg)
	require.NoError(t, err)
	_, err = Track(NewHost(0), reg)
	require.Error(t, err)
}
