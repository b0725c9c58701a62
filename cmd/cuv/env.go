package main

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/qrv0/cuv/internal/config"
	"github.com/qrv0/cuv/internal/gpu"
	"github.com/qrv0/cuv/internal/memspace"
)

// env is the set of locations a command works with.
type env struct {
	cfg  config.Config
	drv  gpu.Driver
	host memspace.Location
	dev  memspace.Location

	// set when allocations are traced
	reg             *prometheus.Registry
	hostTrk, devTrk *memspace.Tracker
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newEnv(cfg)
}

func newEnv(cfg config.Config) (*env, error) {
	drv, err := gpu.Open(cfg.Backend, cfg.CUDARTPath, cfg.DeviceCapacity)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:  cfg,
		drv:  drv,
		host: memspace.NewHost(cfg.HostCapacity),
		dev:  memspace.NewDevice(drv),
	}
	if cfg.TraceAllocs {
		if err := e.track(); err != nil {
			drv.Close()
			return nil, err
		}
	}
	klog.V(1).Infof("cuv: backend=%s trace=%v", drv.Name(), cfg.TraceAllocs)
	return e, nil
}

func (e *env) track() error {
	e.reg = prometheus.NewRegistry()
	var err error
	if e.hostTrk, err = memspace.Track(e.host, e.reg); err != nil {
		return err
	}
	if e.devTrk, err = memspace.Track(e.dev, e.reg); err != nil {
		return err
	}
	e.host, e.dev = e.hostTrk, e.devTrk
	return nil
}

// location resolves a --location flag value.
func (e *env) location(name string) (memspace.Location, error) {
	switch name {
	case "host":
		return e.host, nil
	case "device", "dev":
		return e.dev, nil
	default:
		return nil, errors.New("location must be host or device")
	}
}

func (e *env) Close() error { return e.drv.Close() }
