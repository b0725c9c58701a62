package memspace

import (
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// Buffer is one allocation at a Location. It has exactly one owner; any
// number of leases may alias it. The memory is freed once the owner has
// released it and every lease has been returned.
type Buffer struct {
	loc  Location
	addr Addr
	size int

	mu       sync.Mutex
	leases   int
	released bool
	freed    bool
}

func (b *Buffer) Location() Location { return b.loc }
func (b *Buffer) Addr() Addr         { return b.addr }
func (b *Buffer) Size() int          { return b.size }

// Freed reports whether the memory has been returned to its location.
func (b *Buffer) Freed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.freed
}

// Leases reports the number of outstanding borrowed handles.
func (b *Buffer) Leases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leases
}

func (b *Buffer) lease() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.freed {
		return ErrReleased
	}
	b.leases++
	return nil
}

func (b *Buffer) unlease() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leases--
	return b.maybeFree()
}

func (b *Buffer) drop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	return b.maybeFree()
}

// maybeFree frees the memory when nobody references it any more. Caller
// holds mu.
func (b *Buffer) maybeFree() error {
	if b.freed || !b.released {
		return nil
	}
	if b.leases > 0 {
		klog.V(5).Infof("memspace: %s %#x released by owner, %d lease(s) outstanding", b.loc.Name(), uintptr(b.addr), b.leases)
		return nil
	}
	b.freed = true
	klog.V(4).Infof("memspace: free %s %#x (%d bytes)", b.loc.Name(), uintptr(b.addr), b.size)
	if err := b.loc.Free(b.addr); err != nil {
		return fmt.Errorf("memspace: free %s %#x: %w", b.loc.Name(), uintptr(b.addr), err)
	}
	return nil
}

// Handle is an ownership-tagged reference to a Buffer: either *Owned or
// *Borrowed.
type Handle interface {
	// Buffer returns the referenced buffer, or nil once released.
	Buffer() *Buffer
	Owned() bool
	// Borrow takes a new lease on the same buffer.
	Borrow() (*Borrowed, error)
	// Release gives up this handle. It is safe to call more than once.
	Release() error

	handle()
}

// Owned is the single owning handle of a buffer.
type Owned struct {
	mu  sync.Mutex
	buf *Buffer
}

// Allocate reserves size bytes at loc and returns the owning handle.
func Allocate(loc Location, size int) (*Owned, error) {
	if loc == nil {
		return nil, fmt.Errorf("%w: nil location", ErrInvalidArgument)
	}
	addr, err := loc.Alloc(size)
	if err != nil {
		return nil, err
	}
	klog.V(4).Infof("memspace: alloc %s %#x (%d bytes)", loc.Name(), uintptr(addr), size)
	return &Owned{buf: &Buffer{loc: loc, addr: addr, size: size}}, nil
}

func (o *Owned) handle() {}

func (o *Owned) Owned() bool { return true }

func (o *Owned) Buffer() *Buffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf
}

func (o *Owned) Borrow() (*Borrowed, error) {
	return borrow(o.Buffer())
}

// Transfer hands ownership to a new handle. The receiver becomes empty and
// its Release turns into a no-op.
func (o *Owned) Transfer() (*Owned, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf == nil {
		return nil, ErrReleased
	}
	n := &Owned{buf: o.buf}
	o.buf = nil
	return n, nil
}

func (o *Owned) Release() error {
	o.mu.Lock()
	buf := o.buf
	o.buf = nil
	o.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.drop()
}

// Borrowed is a lease on a buffer owned elsewhere. It never changes the
// owner's state.
type Borrowed struct {
	mu  sync.Mutex
	buf *Buffer
}

func borrow(buf *Buffer) (*Borrowed, error) {
	if buf == nil {
		return nil, ErrReleased
	}
	if err := buf.lease(); err != nil {
		return nil, err
	}
	return &Borrowed{buf: buf}, nil
}

func (b *Borrowed) handle() {}

func (b *Borrowed) Owned() bool { return false }

func (b *Borrowed) Buffer() *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf
}

func (b *Borrowed) Borrow() (*Borrowed, error) {
	return borrow(b.Buffer())
}

func (b *Borrowed) Release() error {
	b.mu.Lock()
	buf := b.buf
	b.buf = nil
	b.mu.Unlock()
	if buf == nil {
		return nil
	}
	return buf.unlease()
}
