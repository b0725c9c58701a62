package memspace

import (
	"errors"
	"fmt"

	"github.com/qrv0/cuv/internal/gpu"
)

// DeviceLocation adapts a gpu.Driver to the Location interface.
type DeviceLocation struct {
	drv gpu.Driver
}

func NewDevice(drv gpu.Driver) *DeviceLocation {
	return &DeviceLocation{drv: drv}
}

func (d *DeviceLocation) Kind() Kind         { return Device }
func (d *DeviceLocation) Name() string       { return "device/" + d.drv.Name() }
func (d *DeviceLocation) Driver() gpu.Driver { return d.drv }

// deviceErr maps driver errors onto the memspace error kinds.
func deviceErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gpu.ErrOutOfMemory):
		return fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	case errors.Is(err, gpu.ErrBadAddress):
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	default:
		return err
	}
}

func (d *DeviceLocation) Alloc(size int) (Addr, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: device alloc of %d bytes", ErrInvalidArgument, size)
	}
	p, err := d.drv.Malloc(size)
	if err != nil {
		return 0, deviceErr(err)
	}
	return Addr(p), nil
}

func (d *DeviceLocation) Free(addr Addr) error {
	return deviceErr(d.drv.Free(uintptr(addr)))
}

func (d *DeviceLocation) CopyFromHost(dst Addr, src []byte) error {
	return deviceErr(d.drv.HtoD(uintptr(dst), src))
}

func (d *DeviceLocation) CopyToHost(dst []byte, src Addr) error {
	return deviceErr(d.drv.DtoH(dst, uintptr(src)))
}

func (d *DeviceLocation) Copy(dst, src Addr, size int) error {
	return deviceErr(d.drv.DtoD(uintptr(dst), uintptr(src), size))
}

func (d *DeviceLocation) Memset(dst Addr, v byte, size int) error {
	return deviceErr(d.drv.Memset(uintptr(dst), v, size))
}

func (d *DeviceLocation) Sync() error { return d.drv.Synchronize() }
