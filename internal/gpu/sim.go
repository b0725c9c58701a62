package gpu

import (
	"fmt"
	"sort"
	"sync"
)

// simBase keeps simulated addresses away from zero and from anything that
// looks like a host pointer in logs.
const (
	simBase  uintptr = 0x7d0000000000
	simAlign uintptr = 256
)

type simBlock struct {
	addr uintptr
	data []byte
}

// Sim is an in-process device. Memory lives on the Go heap but is only
// reachable through the Driver methods, like real device memory.
type Sim struct {
	mu       sync.Mutex
	capacity int64
	used     int64
	next     uintptr
	blocks   []simBlock // sorted by addr
}

// NewSim returns a simulated device with capacity bytes; capacity <= 0 means
// unlimited.
func NewSim(capacity int64) *Sim {
	return &Sim{capacity: capacity, next: simBase}
}

func (s *Sim) Name() string { return BackendSim }

func (s *Sim) Malloc(size int) (uintptr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("gpu: malloc of %d bytes", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && s.used+int64(size) > s.capacity {
		return 0, fmt.Errorf("%w: want %d bytes, %d of %d in use", ErrOutOfMemory, size, s.used, s.capacity)
	}
	addr := s.next
	s.next += (uintptr(size) + simAlign - 1) &^ (simAlign - 1)
	// addresses grow monotonically, so appending keeps blocks sorted
	s.blocks = append(s.blocks, simBlock{addr: addr, data: make([]byte, size)})
	s.used += int64(size)
	return addr, nil
}

func (s *Sim) Free(addr uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].addr >= addr })
	if i == len(s.blocks) || s.blocks[i].addr != addr {
		return fmt.Errorf("%w: free of %#x", ErrBadAddress, addr)
	}
	s.used -= int64(len(s.blocks[i].data))
	s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
	return nil
}

// span returns the bytes [addr, addr+size) of a live block. Caller holds mu.
func (s *Sim) span(addr uintptr, size int) ([]byte, error) {
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].addr > addr }) - 1
	if i < 0 {
		return nil, fmt.Errorf("%w: %#x", ErrBadAddress, addr)
	}
	b := s.blocks[i]
	off := int(addr - b.addr)
	if size < 0 || off+size > len(b.data) {
		return nil, fmt.Errorf("%w: %#x+%d outside block %#x+%d", ErrBadAddress, addr, size, b.addr, len(b.data))
	}
	return b.data[off : off+size], nil
}

func (s *Sim) HtoD(dst uintptr, src []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.span(dst, len(src))
	if err != nil {
		return err
	}
	copy(d, src)
	return nil
}

func (s *Sim) DtoH(dst []byte, src uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.span(src, len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (s *Sim) DtoD(dst, src uintptr, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, err := s.span(src, size)
	if err != nil {
		return err
	}
	to, err := s.span(dst, size)
	if err != nil {
		return err
	}
	copy(to, from)
	return nil
}

func (s *Sim) Memset(dst uintptr, v byte, size int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.span(dst, size)
	if err != nil {
		return err
	}
	for i := range d {
		d[i] = v
	}
	return nil
}

// Synchronize is a no-op: every simulated transfer completes before returning.
func (s *Sim) Synchronize() error { return nil }

func (s *Sim) MemInfo() (free, total int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity <= 0 {
		return -1, -1, nil
	}
	return s.capacity - s.used, s.capacity, nil
}

// Live reports the number of outstanding allocations.
func (s *Sim) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = nil
	s.used = 0
	return nil
}
