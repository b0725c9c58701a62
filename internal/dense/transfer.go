package dense

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// CopyFromHost fills m from a row-major slice of Len elements.
func (m *Matrix[T]) CopyFromHost(src []T) error {
	v, err := m.vector()
	if err != nil {
		return err
	}
	return v.CopyFromHost(src)
}

// CopyToHost copies m into a row-major slice of Len elements.
func (m *Matrix[T]) CopyToHost(dst []T) error {
	v, err := m.vector()
	if err != nil {
		return err
	}
	return v.CopyToHost(dst)
}

func (m *Matrix[T]) ToHost() ([]T, error) {
	v, err := m.vector()
	if err != nil {
		return nil, err
	}
	return v.ToHost()
}

// Fill sets every element to x.
func (m *Matrix[T]) Fill(x T) error {
	v, err := m.vector()
	if err != nil {
		return err
	}
	if x == 0 {
		return v.Zero()
	}
	host := make([]T, v.Len())
	for i := range host {
		host[i] = x
	}
	return v.CopyFromHost(host)
}

// Sync waits for outstanding work on m's location.
func (m *Matrix[T]) Sync() error {
	v, err := m.vector()
	if err != nil {
		return err
	}
	return v.Location().Sync()
}

// Convert copies src into dst. Shapes must match; locations may differ,
// in which case the data is staged through host memory.
func Convert[T Element](dst, src *Matrix[T]) error {
	if dst == nil || src == nil {
		return fmt.Errorf("dense: %w: nil matrix", ErrInvalidArgument)
	}
	if dst.rows != src.rows || dst.cols != src.cols {
		return fmt.Errorf("dense: %w: convert %dx%d into %dx%d", ErrDimensionMismatch, src.rows, src.cols, dst.rows, dst.cols)
	}
	dv, err := dst.vector()
	if err != nil {
		return fmt.Errorf("dense: convert: %w", err)
	}
	sv, err := src.vector()
	if err != nil {
		return fmt.Errorf("dense: convert: %w", err)
	}
	if dv.Location() == sv.Location() {
		return dv.Location().Copy(dv.Ptr(), sv.Ptr(), sv.Bytes())
	}
	stage := make([]byte, sv.Bytes())
	if err := sv.Location().CopyToHost(stage, sv.Ptr()); err != nil {
		return fmt.Errorf("dense: convert: %w", err)
	}
	if err := dv.Location().CopyFromHost(dv.Ptr(), stage); err != nil {
		return fmt.Errorf("dense: convert: %w", err)
	}
	return nil
}

// Fingerprint hashes the element bytes with xxh3. Equal contents give equal
// fingerprints regardless of location.
func (m *Matrix[T]) Fingerprint() (uint64, error) {
	data, err := m.ToHost()
	if err != nil {
		return 0, err
	}
	return xxh3.Hash(asBytes(data)), nil
}
