package oceantrack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRun = `
fieldset:
  loader: %s
  filenames:
    U: u.nc
    V: v.nc
  variables:
    U: u
    V: v
  dimensions:
    lon: lon
    lat: lat
    depth: z
    time: time
  allow_time_extrapolation: true
  mesh: flat
particles:
  class: parallel
  lon: [2.5, 4.5]
  lat: [1.5, 2.5]
  depth: [5, 5]
  start_time: 24h
kernels: [AdvectionRK4, "Sample:U"]
recovery:
  out_of_bounds: DeleteParticle
runtime: 1h
dt: 10m
output_dt: 30m
output: out/traj.nc
`

func writeRun(t *testing.T, dir, loader string) string {
	t.Helper()
	fp := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(fp, []byte(fmt.Sprintf(testRun, loader)), 0644))
	return fp
}

func TestLoadRunConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadRunConfig(writeRun(t, dir, "dataset"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(dir, "u.nc"), cfg.FieldSet.Filenames["U"])
	assert.Equal(t, filepath.Join(dir, "out", "traj.nc"), cfg.Output)
	assert.Equal(t, time.Hour, cfg.GetRuntime())
	assert.Equal(t, 10*time.Minute, cfg.GetDt())
	assert.Equal(t, 30*time.Minute, cfg.GetOutputDt())
	assert.Equal(t, "info", cfg.Logging.Level, "default kept")
	assert.Equal(t, []string{"AdvectionRK4", "Sample:U"}, cfg.Kernels)

	t.Setenv("OCEANTRACK_LOG_LEVEL", "debug")
	cfg, err = LoadRunConfig(writeRun(t, dir, "netcdf"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = LoadRunConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("kernels: {"), 0644))
	_, err = LoadRunConfig(bad)
	assert.Error(t, err)
}

func TestRunConfigValidate(t *testing.T) {
	valid := func() *RunConfig {
		cfg := DefaultRunConfig()
		cfg.FieldSet.Filenames = map[string]string{"U": "u.nc", "V": "v.nc"}
		cfg.FieldSet.Variables = map[string]string{"U": "u", "V": "v"}
		cfg.FieldSet.Dimensions = map[string]string{"lon": "x", "lat": "y"}
		cfg.Particles.Lon, cfg.Particles.Lat = []float64{1}, []float64{2}
		return cfg
	}
	require.NoError(t, valid().Validate())

	for name, mod := range map[string]func(*RunConfig){
		"loader":      func(c *RunConfig) { c.FieldSet.Loader = "xarray" },
		"no V file":   func(c *RunConfig) { delete(c.FieldSet.Filenames, "V") },
		"no lat dim":  func(c *RunConfig) { delete(c.FieldSet.Dimensions, "lat") },
		"mesh":        func(c *RunConfig) { c.FieldSet.Mesh = "curvilinear" },
		"class":       func(c *RunConfig) { c.Particles.Class = "jit" },
		"lat count":   func(c *RunConfig) { c.Particles.Lat = nil },
		"depth count": func(c *RunConfig) { c.Particles.Depth = []float64{1, 2} },
		"kernel":      func(c *RunConfig) { c.Kernels = []string{"AdvectionRK5"} },
		"no kernels":  func(c *RunConfig) { c.Kernels = nil },
		"recovery":    func(c *RunConfig) { c.Recovery.OutOfBounds = "Ignore" },
		"runtime":     func(c *RunConfig) { c.Runtime = "ten days" },
		"zero dt":     func(c *RunConfig) { c.Dt = "0s" },
	} {
		cfg := valid()
		mod(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestRunConfigRoundTrip(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "nested", "run.yaml")
	cfg := DefaultRunConfig()
	cfg.Particles.Lon = []float64{1, 2}
	require.NoError(t, cfg.Save(fp))

	got, err := LoadRunConfig(fp)
	require.NoError(t, err)
	assert.Equal(t, cfg.Particles, got.Particles)
	assert.Equal(t, cfg.Runtime, got.Runtime)
	assert.Equal(t, cfg.Kernels, got.Kernels)
}

func TestRunConfigExecute(t *testing.T) {
	for _, loader := range []string{"netcdf", "dataset"} {
		t.Run(loader, func(t *testing.T) {
			dir := t.TempDir()
			writeUV(t, dir)
			cfg, err := LoadRunConfig(writeRun(t, dir, loader))
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			fs, err := cfg.BuildFieldSet()
			require.NoError(t, err)
			defer fs.Close()
			assert.Equal(t, Flat, fs.Mesh())

			ps, err := cfg.BuildParticleSet(fs)
			require.NoError(t, err)
			require.Equal(t, 2, ps.Len())
			assert.Equal(t, ParallelParticle, ps.Class())
			assert.Equal(t, 86400., ps.At(0).Time)
			assert.Equal(t, 5., ps.At(0).Depth)

			k, err := cfg.BuildKernel()
			require.NoError(t, err)
			require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Output), 0755))
			pf := NewParticleFile(cfg.Output)
			opts, err := cfg.ExecuteOptions(pf)
			require.NoError(t, err)

			// u grows with time: the flow sweeps the particles out of the 10 unit wide grid
			require.NoError(t, ps.Execute(context.Background(), k, opts...))
			assert.Equal(t, 0, ps.Len())
			require.NoError(t, pf.Close())

			trajs := pf.Trajectories()
			require.Len(t, trajs, 2)
			assert.Equal(t, 86400., trajs[0][0].Time)
			_, err = os.Stat(cfg.Output)
			assert.NoError(t, err)
		})
	}
}
