package memspace

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"
)

type hostBlock struct {
	addr Addr
	mem  []uint64 // uint64 backing keeps every block 8-byte aligned
	size int
}

func (b hostBlock) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(b.mem))), b.size)
}

// HostLocation serves host memory from the Go heap. Blocks stay reachable
// from the registry until freed, so their addresses remain stable.
type HostLocation struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	blocks   []hostBlock // sorted by addr
}

// NewHost returns a host location limited to capacity bytes; capacity <= 0
// means unlimited.
func NewHost(capacity int64) *HostLocation {
	return &HostLocation{capacity: capacity}
}

var defaultHost = NewHost(0)

// DefaultHost is the process-wide unlimited host location.
func DefaultHost() *HostLocation { return defaultHost }

func (h *HostLocation) Kind() Kind   { return Host }
func (h *HostLocation) Name() string { return "host" }

func (h *HostLocation) Alloc(size int) (Addr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: host alloc of %d bytes", ErrInvalidArgument, size)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capacity > 0 && h.used+int64(size) > h.capacity {
		return 0, fmt.Errorf("%w: host: want %d bytes, %d of %d in use", ErrOutOfMemory, size, h.used, h.capacity)
	}
	mem := make([]uint64, (size+7)/8)
	b := hostBlock{addr: Addr(uintptr(unsafe.Pointer(unsafe.SliceData(mem)))), mem: mem, size: size}
	i := sort.Search(len(h.blocks), func(i int) bool { return h.blocks[i].addr > b.addr })
	h.blocks = append(h.blocks, hostBlock{})
	copy(h.blocks[i+1:], h.blocks[i:])
	h.blocks[i] = b
	h.used += int64(size)
	return b.addr, nil
}

func (h *HostLocation) Free(addr Addr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := sort.Search(len(h.blocks), func(i int) bool { return h.blocks[i].addr >= addr })
	if i == len(h.blocks) || h.blocks[i].addr != addr {
		return fmt.Errorf("%w: host free of %#x", ErrBadAddress, uintptr(addr))
	}
	h.used -= int64(h.blocks[i].size)
	h.blocks = append(h.blocks[:i], h.blocks[i+1:]...)
	return nil
}

// Bytes returns the live host memory [addr, addr+size).
func (h *HostLocation) Bytes(addr Addr, size int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.span(addr, size)
}

func (h *HostLocation) span(addr Addr, size int) ([]byte, error) {
	i := sort.Search(len(h.blocks), func(i int) bool { return h.blocks[i].addr > addr }) - 1
	if i < 0 {
		return nil, fmt.Errorf("%w: host %#x", ErrBadAddress, uintptr(addr))
	}
	b := h.blocks[i]
	off := int(addr - b.addr)
	if size < 0 || off+size > b.size {
		return nil, fmt.Errorf("%w: host %#x+%d", ErrBadAddress, uintptr(addr), size)
	}
	return b.bytes()[off : off+size], nil
}

func (h *HostLocation) CopyFromHost(dst Addr, src []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, err := h.span(dst, len(src))
	if err != nil {
		return err
	}
	copy(d, src)
	return nil
}

func (h *HostLocation) CopyToHost(dst []byte, src Addr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.span(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, s)
	return nil
}

func (h *HostLocation) Copy(dst, src Addr, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.span(src, size)
	if err != nil {
		return err
	}
	d, err := h.span(dst, size)
	if err != nil {
		return err
	}
	copy(d, s)
	return nil
}

func (h *HostLocation) Memset(dst Addr, v byte, size int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, err := h.span(dst, size)
	if err != nil {
		return err
	}
	for i := range d {
		d[i] = v
	}
	return nil
}

func (h *HostLocation) Sync() error { return nil }

// Used reports the bytes currently allocated.
func (h *HostLocation) Used() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}
