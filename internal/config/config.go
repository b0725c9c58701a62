// Package config resolves runtime settings from an optional YAML file and
// CUV_* environment variables. Environment values win.
package config

import (
	"fmt"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"

	"github.com/qrv0/cuv/internal/gpu"
)

const (
	EnvBackend        = "CUV_BACKEND"
	EnvCUDART         = "CUV_CUDART"
	EnvDeviceCapacity = "CUV_DEVICE_CAPACITY"
	EnvHostCapacity   = "CUV_HOST_CAPACITY"
	EnvTrace          = "CUV_TRACE"
)

type Config struct {
	// Backend is one of sim, cuda, cudart.
	Backend    string `json:"backend"`
	CUDARTPath string `json:"cudartPath,omitempty"`
	// Capacities in bytes; 0 means unlimited. DeviceCapacity only applies
	// to the simulator.
	DeviceCapacity int64 `json:"deviceCapacity,omitempty"`
	HostCapacity   int64 `json:"hostCapacity,omitempty"`
	// TraceAllocs wraps both locations in allocation trackers.
	TraceAllocs bool `json:"traceAllocs,omitempty"`
}

func Default() Config {
	return Config{Backend: gpu.BackendSim}
}

// Load reads path (if not empty) over the defaults, then applies the
// environment.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.UnmarshalStrict(b, &c); err != nil {
			return c, fmt.Errorf("config: %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok {
		c.Backend = v
	}
	if v, ok := lookup(EnvCUDART); ok {
		c.CUDARTPath = v
	}
	for _, e := range []struct {
		name string
		dst  *int64
	}{
		{EnvDeviceCapacity, &c.DeviceCapacity},
		{EnvHostCapacity, &c.HostCapacity},
	} {
		v, ok := lookup(e.name)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", e.name, v, err)
		}
		*e.dst = n
	}
	if v, ok := lookup(EnvTrace); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvTrace, v, err)
		}
		c.TraceAllocs = b
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case gpu.BackendSim, gpu.BackendCUDA, gpu.BackendCUDART:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.DeviceCapacity < 0 || c.HostCapacity < 0 {
		return fmt.Errorf("config: negative capacity")
	}
	return nil
}
