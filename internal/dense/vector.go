package dense

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/qrv0/cuv/internal/memspace"
)

// Vector is a contiguous run of n elements of T at one location. It either
// owns its buffer or borrows a range of somebody else's.
type Vector[T Element] struct {
	mu  sync.Mutex
	h   memspace.Handle
	loc memspace.Location
	off int // element offset into the buffer
	n   int

	// adopted is set while the vector backs a Matrix.
	adopted atomic.Bool
}

// NewVector allocates n elements at loc.
func NewVector[T Element](loc memspace.Location, n int) (*Vector[T], error) {
	if loc == nil {
		return nil, fmt.Errorf("dense: %w: nil location", ErrInvalidArgument)
	}
	if n <= 0 {
		return nil, fmt.Errorf("dense: %w: vector of %d elements", ErrInvalidDimension, n)
	}
	size, err := byteSize[T](n)
	if err != nil {
		return nil, fmt.Errorf("dense: %w", err)
	}
	o, err := memspace.Allocate(loc, size)
	if err != nil {
		return nil, fmt.Errorf("dense: allocate %d x %s at %s: %w", n, DType[T](), loc.Name(), err)
	}
	return &Vector[T]{h: o, loc: loc, n: n}, nil
}

// ViewVector aliases n elements of src starting at off. The view holds a
// lease, so src's memory outlives the view even if src is released first.
func ViewVector[T Element](src *Vector[T], off, n int) (*Vector[T], error) {
	if src == nil {
		return nil, fmt.Errorf("dense: %w: nil source vector", ErrInvalidArgument)
	}
	if off < 0 || n <= 0 || off+n > src.n {
		return nil, fmt.Errorf("dense: %w: view [%d,%d) of %d elements", ErrDimensionMismatch, off, off+n, src.n)
	}
	h := src.handle()
	if h == nil {
		return nil, fmt.Errorf("dense: %w: view of released vector", ErrInvalidArgument)
	}
	b, err := h.Borrow()
	if err != nil {
		return nil, fmt.Errorf("dense: view: %w", err)
	}
	return &Vector[T]{h: b, loc: src.loc, off: src.off + off, n: n}, nil
}

// View aliases the whole vector.
func (v *Vector[T]) View() (*Vector[T], error) {
	return ViewVector(v, 0, v.n)
}

func (v *Vector[T]) handle() memspace.Handle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.h
}

func (v *Vector[T]) Len() int                     { return v.n }
func (v *Vector[T]) Location() memspace.Location { return v.loc }

// Owned reports whether the vector owns its memory, false for views and
// released vectors.
func (v *Vector[T]) Owned() bool {
	h := v.handle()
	return h != nil && h.Owned()
}

func (v *Vector[T]) Released() bool { return v.handle() == nil }

// Ptr is the address of the first element, 0 once released.
func (v *Vector[T]) Ptr() memspace.Addr {
	h := v.handle()
	if h == nil {
		return 0
	}
	buf := h.Buffer()
	if buf == nil {
		return 0
	}
	return buf.Addr() + memspace.Addr(v.off*sizeOf[T]())
}

// Bytes is the size of the vector's memory range.
func (v *Vector[T]) Bytes() int { return v.n * sizeOf[T]() }

func (v *Vector[T]) live() (memspace.Addr, error) {
	p := v.Ptr()
	if p == 0 {
		return 0, ErrReleased
	}
	return p, nil
}

// CopyFromHost fills the vector from src, which must have Len elements.
func (v *Vector[T]) CopyFromHost(src []T) error {
	if len(src) != v.n {
		return fmt.Errorf("dense: %w: copy of %d elements into vector of %d", ErrDimensionMismatch, len(src), v.n)
	}
	p, err := v.live()
	if err != nil {
		return err
	}
	return v.loc.CopyFromHost(p, asBytes(src))
}

// CopyToHost copies the vector into dst, which must have Len elements.
func (v *Vector[T]) CopyToHost(dst []T) error {
	if len(dst) != v.n {
		return fmt.Errorf("dense: %w: copy of %d elements into slice of %d", ErrDimensionMismatch, v.n, len(dst))
	}
	p, err := v.live()
	if err != nil {
		return err
	}
	return v.loc.CopyToHost(asBytes(dst), p)
}

func (v *Vector[T]) ToHost() ([]T, error) {
	out := make([]T, v.n)
	if err := v.CopyToHost(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Zero clears every element.
func (v *Vector[T]) Zero() error {
	p, err := v.live()
	if err != nil {
		return err
	}
	return v.loc.Memset(p, 0, v.Bytes())
}

// Release drops the vector's handle: owned memory is freed, a view returns
// its lease. Calling it again is a no-op. A vector backing a matrix is
// released through the matrix.
func (v *Vector[T]) Release() error {
	if v.adopted.Load() {
		return fmt.Errorf("dense: %w: vector backs a matrix", ErrInvalidArgument)
	}
	return v.release()
}

func (v *Vector[T]) release() error {
	v.mu.Lock()
	h := v.h
	v.h = nil
	v.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.Release()
}
