package dense

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/qrv0/cuv/internal/memspace"
)

// ToGonum copies m into a new float64 gonum matrix.
func ToGonum[T Element](m *Matrix[T]) (*mat.Dense, error) {
	if m == nil {
		return nil, fmt.Errorf("dense: %w: nil matrix", ErrInvalidArgument)
	}
	data, err := m.ToHost()
	if err != nil {
		return nil, err
	}
	f := make([]float64, len(data))
	for i, v := range data {
		f[i] = float64(v)
	}
	return mat.NewDense(m.rows, m.cols, f), nil
}

// FromGonum allocates a matrix at loc holding a copy of a.
func FromGonum[T Element](loc memspace.Location, a mat.Matrix) (*Matrix[T], error) {
	if a == nil {
		return nil, fmt.Errorf("dense: %w: nil gonum matrix", ErrInvalidArgument)
	}
	r, c := a.Dims()
	m, err := New[T](loc, r, c)
	if err != nil {
		return nil, err
	}
	host := make([]T, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			host[i*c+j] = T(a.At(i, j))
		}
	}
	if err := m.CopyFromHost(host); err != nil {
		_ = m.Release()
		return nil, err
	}
	return m, nil
}
