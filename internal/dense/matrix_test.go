package dense_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qrv0/cuv/internal/dense"
	"github.com/qrv0/cuv/internal/gpu"
	"github.com/qrv0/cuv/internal/memspace"
)

type fixture struct {
	dev     *memspace.Tracker
	host    *memspace.Tracker
	sim     *gpu.Sim
	hostLoc *memspace.HostLocation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim := gpu.NewSim(0)
	dev, err := memspace.Track(memspace.NewDevice(sim), nil)
	require.NoError(t, err)
	hostLoc := memspace.NewHost(0)
	host, err := memspace.Track(hostLoc, nil)
	require.NoError(t, err)
	f := &fixture{dev: dev, host: host, sim: sim, hostLoc: hostLoc}
	t.Cleanup(func() {
		for _, tr := range []*memspace.Tracker{f.dev, f.host} {
			s := tr.Stats()
			require.Zero(t, s.DoubleFrees, "double frees on %s", tr.Name())
			require.Zero(t, s.Live, "leaked allocations on %s", tr.Name())
		}
	})
	return f
}

func TestCreateDevPlain(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.dev, 16, 16)
	require.NoError(t, err)
	require.Equal(t, 16, m.Rows())
	require.Equal(t, 16, m.Cols())
	require.Equal(t, 256, m.Len())
	require.True(t, m.Owned())
	require.Equal(t, memspace.Device, m.Location().Kind())
	require.Equal(t, int64(1), f.dev.Stats().Allocs)
	require.NoError(t, m.Release())
}

func TestCreateDevView(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.dev, 16, 16)
	require.NoError(t, err)
	vec, err := dense.ViewVector(m.Vector(), 0, m.Len())
	require.NoError(t, err)
	require.Equal(t, m.Ptr(), vec.Ptr())

	m2, err := dense.FromVector(16, 16, vec, true)
	require.NoError(t, err)
	require.Equal(t, 256, m2.Len())
	require.True(t, m2.IsView())
	require.Equal(t, m.Ptr(), m2.Ptr())
	require.Equal(t, int64(1), f.dev.Stats().Allocs, "a view allocates nothing")

	require.NoError(t, m.Fill(3))
	got, err := m2.ToHost()
	require.NoError(t, err)
	require.Equal(t, float32(3), got[255])

	// destroying the owner first must leave the view's memory intact
	require.NoError(t, m.Release())
	require.Zero(t, f.dev.Stats().Frees)
	got, err = m2.ToHost()
	require.NoError(t, err)
	require.Equal(t, float32(3), got[0])

	require.NoError(t, m2.Release())
	require.Equal(t, int64(1), f.dev.Stats().Frees)
	// the adopted vector went with the matrix
	require.True(t, vec.Released())
}

func TestAdoptMatrixVector(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.dev, 16, 16)
	require.NoError(t, err)
	require.NoError(t, m.Fill(5))

	// the backing vector stays with its matrix
	_, err = dense.FromVector(16, 16, m.Vector(), true)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)
	require.ErrorIs(t, m.Vector().Release(), dense.ErrInvalidArgument)
	require.False(t, m.Released())

	alias, err := dense.ViewOf(m)
	require.NoError(t, err)
	_, err = dense.FromVector(16, 16, alias.Vector(), true)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)

	// adopting a view of it is the supported route
	vec, err := m.Vector().View()
	require.NoError(t, err)
	m2, err := dense.FromVector(16, 16, vec, true)
	require.NoError(t, err)
	require.ErrorIs(t, vec.Release(), dense.ErrInvalidArgument)

	require.NoError(t, m.Release())
	require.NoError(t, alias.Release())
	require.Zero(t, f.dev.Stats().Frees)
	require.False(t, m2.Released())
	got, err := m2.ToHost()
	require.NoError(t, err)
	require.Equal(t, float32(5), got[100])

	require.NoError(t, m2.Release())
	require.Equal(t, int64(1), f.dev.Stats().Frees)
}

func TestCreateDevFromMat(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.dev, 16, 8)
	require.NoError(t, err)
	src := make([]float32, m.Len())
	for i := range src {
		src[i] = float32(i)
	}
	require.NoError(t, m.CopyFromHost(src))

	deep, err := dense.Clone(m)
	require.NoError(t, err)
	require.Equal(t, m.Rows(), deep.Rows())
	require.Equal(t, m.Cols(), deep.Cols())
	require.True(t, deep.Owned())
	require.NotEqual(t, m.Ptr(), deep.Ptr())

	alias, err := dense.ViewOf(m)
	require.NoError(t, err)
	require.Equal(t, m.Rows(), alias.Rows())
	require.Equal(t, m.Cols(), alias.Cols())
	require.True(t, alias.IsView())
	require.Equal(t, m.Ptr(), alias.Ptr())

	require.NoError(t, m.Fill(0))
	fromDeep, err := deep.ToHost()
	require.NoError(t, err)
	require.Equal(t, src, fromDeep, "clone is independent of its source")
	fromAlias, err := alias.ToHost()
	require.NoError(t, err)
	require.Equal(t, make([]float32, m.Len()), fromAlias, "view observes its source")

	require.NoError(t, m.Release())
	require.NoError(t, alias.Release())
	require.NoError(t, deep.Release())
	require.Equal(t, int64(2), f.dev.Stats().Frees)
}

func TestCreateHost(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.host, 16, 16)
	require.NoError(t, err)
	vec, err := m.Vector().View()
	require.NoError(t, err)
	m2, err := dense.FromVector(16, 16, vec, true)
	require.NoError(t, err)
	require.Equal(t, memspace.Host, m2.Location().Kind())

	// host memory is directly addressable
	require.NoError(t, m.Fill(2))
	raw, err := f.hostLoc.Bytes(m2.Ptr(), 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0x40}, raw)

	require.NoError(t, m2.Release())
	require.NoError(t, m.Release())
}

func TestHostMirrorsDevice(t *testing.T) {
	f := newFixture(t)
	h, err := dense.New[float32](f.host, 16, 16)
	require.NoError(t, err)
	d, err := dense.New[float32](f.dev, 16, 16)
	require.NoError(t, err)
	require.Equal(t, 256, h.Len())
	require.Equal(t, h.Len(), d.Len())
	require.NoError(t, h.Release())
	require.NoError(t, d.Release())
}

func TestElementCount(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		r, c := 1+rng.Intn(40), 1+rng.Intn(40)
		m, err := dense.New[float64](f.dev, r, c)
		require.NoError(t, err)
		require.Equal(t, r*c, m.Len())
		require.Equal(t, r*c, m.Vector().Len())
		require.NoError(t, m.Release())
	}
}

func TestInvalidDimensions(t *testing.T) {
	f := newFixture(t)
	for _, dims := range [][2]int{{0, 16}, {16, 0}, {-1, 4}, {0, 0}} {
		_, err := dense.New[float32](f.dev, dims[0], dims[1])
		require.ErrorIs(t, err, dense.ErrInvalidDimension, "%v", dims)
	}
	require.Zero(t, f.dev.Stats().Allocs)
}

func TestDimensionMismatch(t *testing.T) {
	f := newFixture(t)
	vec, err := dense.NewVector[float32](f.dev, 100)
	require.NoError(t, err)
	_, err = dense.FromVector(16, 16, vec, true)
	require.ErrorIs(t, err, dense.ErrDimensionMismatch)
	_, err = dense.FromVector(16, 16, vec, false)
	require.ErrorIs(t, err, dense.ErrDimensionMismatch)

	// a failed construction leaves the vector with the caller
	m, err := dense.FromVector(10, 10, vec, true)
	require.NoError(t, err)
	require.NoError(t, m.Release())
}

func TestInvalidArguments(t *testing.T) {
	f := newFixture(t)
	_, err := dense.FromVector[float32](4, 4, nil, true)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)
	_, err = dense.Clone[float32](nil)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)
	_, err = dense.ViewOf[float32](nil)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)
	_, err = dense.New[float32](nil, 4, 4)
	require.ErrorIs(t, err, dense.ErrInvalidArgument)

	vec, err := dense.NewVector[float32](f.dev, 16)
	require.NoError(t, err)
	m, err := dense.FromVector(4, 4, vec, true)
	require.NoError(t, err)
	_, err = dense.FromVector(4, 4, vec, true)
	require.ErrorIs(t, err, dense.ErrInvalidArgument, "a vector has a single adopter")
	require.NoError(t, m.Release())

	_, err = dense.FromVector(4, 4, vec, false)
	require.ErrorIs(t, err, dense.ErrInvalidArgument, "released vectors cannot back a matrix")
}

func TestOutOfMemory(t *testing.T) {
	dev := memspace.NewDevice(gpu.NewSim(1024))
	_, err := dense.New[float32](dev, 16, 17)
	require.ErrorIs(t, err, dense.ErrOutOfMemory)
	m, err := dense.New[float32](dev, 16, 16)
	require.NoError(t, err)
	_, err = dense.Clone(m)
	require.ErrorIs(t, err, dense.ErrOutOfMemory)
	require.NoError(t, m.Release())
}

func TestBorrowedWithoutOwnership(t *testing.T) {
	f := newFixture(t)
	vec, err := dense.NewVector[int32](f.dev, 12)
	require.NoError(t, err)
	m, err := dense.FromVector(3, 4, vec, false)
	require.NoError(t, err)
	require.True(t, m.IsView())

	require.NoError(t, m.Release())
	require.False(t, vec.Released(), "an alias never releases the caller's vector")
	require.Zero(t, f.dev.Stats().Frees)
	require.NoError(t, vec.Release())
}

func TestDetachHandsOffOwnership(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[float32](f.dev, 4, 4)
	require.NoError(t, err)
	vec, err := m.Detach()
	require.NoError(t, err)
	require.True(t, m.Released())
	require.NoError(t, m.Release())
	require.Zero(t, f.dev.Stats().Frees)

	m2, err := dense.FromVector(2, 8, vec, true)
	require.NoError(t, err)
	_, err = m.Detach()
	require.ErrorIs(t, err, dense.ErrReleased)
	require.NoError(t, m2.Release())
	require.Equal(t, int64(1), f.dev.Stats().Frees)
}

func TestReleaseIdempotent(t *testing.T) {
	f := newFixture(t)
	m, err := dense.New[uint8](f.dev, 2, 2)
	require.NoError(t, err)
	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	require.Zero(t, m.Ptr())
	require.Nil(t, m.Location())
	_, err = m.ToHost()
	require.ErrorIs(t, err, dense.ErrReleased)
	_, err = dense.Clone(m)
	require.ErrorIs(t, err, dense.ErrReleased)
}

// TestReleaseOrderStress builds chains of owners, views and adopted views
// and releases them in random order. Before every release all remaining
// matrices must still be readable, and at the end every allocation must have
// been freed exactly once.
func TestReleaseOrderStress(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		var live []*dense.Matrix[float32]
		for i := 0; i < 4; i++ {
			m, err := dense.New[float32](f.dev, 8, 8)
			require.NoError(t, err)
			require.NoError(t, m.Fill(float32(i+1)))
			live = append(live, m)
		}
		for i := 0; i < 12; i++ {
			src := live[rng.Intn(len(live))]
			var (
				m   *dense.Matrix[float32]
				err error
			)
			switch rng.Intn(3) {
			case 0:
				m, err = dense.ViewOf(src)
			case 1:
				var vec *dense.Vector[float32]
				vec, err = src.Vector().View()
				require.NoError(t, err)
				m, err = dense.FromVector(8, 8, vec, true)
			default:
				m, err = dense.Clone(src)
			}
			require.NoError(t, err)
			live = append(live, m)
		}
		rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
		for len(live) > 0 {
			for _, m := range live {
				_, err := m.ToHost()
				require.NoError(t, err, "use after free")
			}
			require.NoError(t, live[0].Release())
			live = live[1:]
		}
		require.Zero(t, f.dev.Stats().Live)
	}
	require.Zero(t, f.sim.Live())
}
