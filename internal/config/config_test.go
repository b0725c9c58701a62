package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvBackend, "sim")
	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: cudart\ncudartPath: /opt/cuda/lib64/libcudart.so\ndeviceCapacity: 4096\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "cudart", c.Backend)
	require.Equal(t, "/opt/cuda/lib64/libcudart.so", c.CUDARTPath)
	require.Equal(t, int64(4096), c.DeviceCapacity)

	t.Setenv(EnvBackend, "sim")
	t.Setenv(EnvDeviceCapacity, "1024")
	t.Setenv(EnvTrace, "true")
	c, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, "sim", c.Backend)
	require.Equal(t, int64(1024), c.DeviceCapacity)
	require.True(t, c.TraceAllocs)
}

func TestLoadErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sim\nbogus: 1\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err, "unknown keys are rejected")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv(EnvBackend, "opencl")
	_, err = Load("")
	require.Error(t, err)
}

func TestApplyEnvParseErrors(t *testing.T) {
	env := map[string]string{EnvHostCapacity: "lots"}
	c := Default()
	err := c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)

	env = map[string]string{EnvTrace: "maybe"}
	err = c.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)
}
