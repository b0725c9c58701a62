// Package memspace isolates where memory lives. Matrix code only sees the
// Location interface and the ownership-tagged handles defined here.
package memspace

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfMemory      = errors.New("out of memory")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDoubleFree       = errors.New("double free")
	ErrReleased         = errors.New("buffer already released")
	ErrBadAddress       = errors.New("address outside any live allocation")
	ErrLocationMismatch = errors.New("location mismatch")
)

// Kind names a memory space.
type Kind uint8

const (
	Host Kind = iota
	Device
)

func (k Kind) String() string {
	switch k {
	case Host:
		return "host"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Addr is an address inside a Location. Device addresses are not
// dereferenceable from Go.
type Addr uintptr

// Location allocates, frees and moves bytes in one memory space.
type Location interface {
	Kind() Kind
	Name() string
	Alloc(size int) (Addr, error)
	Free(addr Addr) error
	CopyFromHost(dst Addr, src []byte) error
	CopyToHost(dst []byte, src Addr) error
	// Copy moves size bytes between two addresses of this location.
	Copy(dst, src Addr, size int) error
	Memset(dst Addr, v byte, size int) error
	// Sync waits for outstanding asynchronous work on this location.
	Sync() error
}
