// Package dense implements row-major dense matrices over host or device
// memory. A Matrix always owns its backing *Vector; the vector in turn
// either owns its memory or holds a lease on memory owned elsewhere, so
// releasing matrices in any order never frees memory that is still
// referenced and never frees anything twice.
package dense

import (
	"fmt"
	"sync"

	"github.com/qrv0/cuv/internal/memspace"
)

type Matrix[T Element] struct {
	mu         sync.Mutex
	rows, cols int
	vec        *Vector[T]
}

// New allocates a rows x cols matrix at loc. Zero or negative dimensions
// are rejected with ErrInvalidDimension.
func New[T Element](loc memspace.Location, rows, cols int) (*Matrix[T], error) {
	n, err := shapeLen(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	vec, err := NewVector[T](loc, n)
	if err != nil {
		return nil, err
	}
	return wrap(rows, cols, vec), nil
}

// wrap builds a matrix over a vector nobody else holds and marks the vector
// as backing it.
func wrap[T Element](rows, cols int, vec *Vector[T]) *Matrix[T] {
	vec.adopted.Store(true)
	return &Matrix[T]{rows: rows, cols: cols, vec: vec}
}

// FromVector builds a rows x cols matrix over vec without copying data.
//
// With takeOwnership the matrix adopts vec and releases it on Release. A
// vector backs at most one matrix, so adopting one that already backs a
// matrix (for example m.Vector()) fails; take a View of it instead. Without
// takeOwnership the matrix only leases vec's memory and vec stays under the
// caller's control.
func FromVector[T Element](rows, cols int, vec *Vector[T], takeOwnership bool) (*Matrix[T], error) {
	if vec == nil {
		return nil, fmt.Errorf("dense: %w: nil vector", ErrInvalidArgument)
	}
	n, err := shapeLen(rows, cols)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	if vec.Released() {
		return nil, fmt.Errorf("dense: %w: vector already released", ErrInvalidArgument)
	}
	if vec.Len() != n {
		return nil, fmt.Errorf("dense: %w: %dx%d matrix over vector of %d elements", ErrDimensionMismatch, rows, cols, vec.Len())
	}
	if !takeOwnership {
		view, err := vec.View()
		if err != nil {
			return nil, err
		}
		return wrap(rows, cols, view), nil
	}
	if !vec.adopted.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("dense: %w: vector already backs a matrix", ErrInvalidArgument)
	}
	return &Matrix[T]{rows: rows, cols: cols, vec: vec}, nil
}

func (m *Matrix[T]) vector() (*Vector[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vec == nil {
		return nil, ErrReleased
	}
	return m.vec, nil
}

// Clone returns an owning deep copy of src at the same location.
func Clone[T Element](src *Matrix[T]) (*Matrix[T], error) {
	if src == nil {
		return nil, fmt.Errorf("dense: %w: nil matrix", ErrInvalidArgument)
	}
	sv, err := src.vector()
	if err != nil {
		return nil, fmt.Errorf("dense: clone: %w", err)
	}
	dst, err := New[T](sv.Location(), src.rows, src.cols)
	if err != nil {
		return nil, err
	}
	if err := sv.Location().Copy(dst.vec.Ptr(), sv.Ptr(), sv.Bytes()); err != nil {
		_ = dst.Release()
		return nil, fmt.Errorf("dense: clone: %w", err)
	}
	return dst, nil
}

// ViewOf returns a non-owning alias of src with the same shape. Writes
// through either matrix are visible in both.
func ViewOf[T Element](src *Matrix[T]) (*Matrix[T], error) {
	if src == nil {
		return nil, fmt.Errorf("dense: %w: nil matrix", ErrInvalidArgument)
	}
	sv, err := src.vector()
	if err != nil {
		return nil, fmt.Errorf("dense: view: %w", err)
	}
	view, err := sv.View()
	if err != nil {
		return nil, err
	}
	return wrap(src.rows, src.cols, view), nil
}

func (m *Matrix[T]) Rows() int { return m.rows }
func (m *Matrix[T]) Cols() int { return m.cols }

// Len is rows*cols.
func (m *Matrix[T]) Len() int { return m.rows * m.cols }

func (m *Matrix[T]) Location() memspace.Location {
	v, err := m.vector()
	if err != nil {
		return nil
	}
	return v.Location()
}

// Vector returns the backing vector, nil after Release or Detach. The
// matrix keeps ownership: the vector cannot be released or adopted
// directly, but it can be viewed. Use Detach to take it.
func (m *Matrix[T]) Vector() *Vector[T] {
	v, _ := m.vector()
	return v
}

// Ptr is the address of element (0,0), 0 once released.
func (m *Matrix[T]) Ptr() memspace.Addr {
	v, err := m.vector()
	if err != nil {
		return 0
	}
	return v.Ptr()
}

// Owned reports whether the matrix's memory is owned rather than leased.
func (m *Matrix[T]) Owned() bool {
	v, err := m.vector()
	return err == nil && v.Owned()
}

func (m *Matrix[T]) IsView() bool {
	v, err := m.vector()
	return err == nil && !v.Owned()
}

func (m *Matrix[T]) Released() bool {
	_, err := m.vector()
	return err != nil
}

// Detach hands the backing vector to the caller and leaves the matrix
// released. The caller becomes responsible for releasing the vector.
func (m *Matrix[T]) Detach() (*Vector[T], error) {
	m.mu.Lock()
	v := m.vec
	m.vec = nil
	m.mu.Unlock()
	if v == nil {
		return nil, ErrReleased
	}
	v.adopted.Store(false)
	return v, nil
}

// Release frees owned memory or returns the lease of a view. It is safe to
// call more than once.
func (m *Matrix[T]) Release() error {
	m.mu.Lock()
	v := m.vec
	m.vec = nil
	m.mu.Unlock()
	if v == nil {
		return nil
	}
	v.adopted.Store(false)
	return v.release()
}

func (m *Matrix[T]) String() string {
	loc := "released"
	if l := m.Location(); l != nil {
		loc = l.Name()
	}
	kind := "owned"
	if m.IsView() {
		kind = "view"
	}
	return fmt.Sprintf("Matrix[%s](%dx%d, %s, %s)", DType[T](), m.rows, m.cols, loc, kind)
}
