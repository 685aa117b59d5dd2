package oceantrack

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvectionUniformFlat(t *testing.T) {
	for name, k := range map[string]Kernel{
		"AdvectionRK4":    AdvectionRK4,
		"AdvectionEE":     AdvectionEE,
		"AdvectionRK45":   AdvectionRK45,
		"AdvectionRK4_3D": AdvectionRK4_3D,
	} {
		k := k
		t.Run(name, func(t *testing.T) {
			fs := uniformFlat(t, 1., .5)
			ps, err := NewParticleSet(fs, SerialParticle, []float64{10.5}, []float64{10.5}, nil)
			require.NoError(t, err)
			require.NoError(t, ps.Execute(context.Background(), k, Runtime(50*time.Second), Dt(time.Second)))
			p := ps.At(0)
			assert.InDelta(t, 60.5, p.Lon, 1e-9)
			assert.InDelta(t, 35.5, p.Lat, 1e-9)
			assert.InDelta(t, 50., p.Time, 1e-9)
			assert.Equal(t, 0., p.Depth)
		})
	}
}

// rotating flow about (50,50): u = -(y-50)ω, v = (x-50)ω
func rotation(t *testing.T, omega float64) *FieldSet {
	t.Helper()
	g, err := NewGrid(axis(0., 1., 101), axis(0., 1., 101), nil, nil, time.Time{}, Flat)
	require.NoError(t, err)
	u := gridField(t, "U", g, func(_, _, yi, _ int) float64 { return -(g.Lat[yi] - 50.) * omega })
	v := gridField(t, "V", g, func(_, _, _, xi int) float64 { return (g.Lon[xi] - 50.) * omega })
	fs, err := NewFieldSet(u, v)
	require.NoError(t, err)
	return fs
}

func TestAdvectionRotation(t *testing.T) {
	omega := 2. * math.Pi / 1000. // one revolution every 1000 s
	for _, c := range []struct {
		name string
		k    Kernel
		tol  float64
	}{
		{"RK4", AdvectionRK4, 1e-3},
		{"RK45", AdvectionRK45, .5},
		{"EE", AdvectionEE, 5.},
	} {
		c := c
		t.Run(c.name, func(t *testing.T) {
			fs := rotation(t, omega)
			fs.AddConstant("RK45_tol", 1e-3)
			ps, err := NewParticleSet(fs, SerialParticle, []float64{70.}, []float64{50.}, nil)
			require.NoError(t, err)
			require.NoError(t, ps.Execute(context.Background(), c.k, Runtime(1000*time.Second), Dt(5*time.Second)))
			p := ps.At(0)
			assert.InDelta(t, 70., p.Lon, c.tol)
			assert.InDelta(t, 50., p.Lat, c.tol)
			assert.InDelta(t, 20., math.Hypot(p.Lon-50., p.Lat-50.), c.tol)
		})
	}
}

func TestAdvectionRK45StepControl(t *testing.T) {
	fs := rotation(t, 2.*math.Pi/1000.)
	fs.AddConstant("RK45_tol", 1e-12)
	fs.AddConstant("RK45_max_dt", 100.)

	p := &Particle{Lon: 70., Lat: 50., Dt: 20.}
	err := AdvectionRK45(p, fs, 0.)
	assert.ErrorIs(t, err, ErrRepeat)
	assert.Equal(t, 10., p.Dt)
	assert.Equal(t, 70., p.Lon, "rejected step leaves the particle in place")

	fs.AddConstant("RK45_tol", 1.)
	p = &Particle{Lon: 70., Lat: 50., Dt: 1.}
	require.NoError(t, AdvectionRK45(p, fs, 0.))
	assert.Equal(t, 2., p.Dt, "accurate step doubles dt")
	assert.NotEqual(t, 50., p.Lat)

	p = &Particle{Lon: 70., Lat: 50., Dt: 80.}
	require.NoError(t, AdvectionRK45(p, fs, 0.))
	assert.Equal(t, 80., p.Dt, "dt capped by RK45_max_dt")

	fs.AddConstant("RK45_tol", 1e-12)
	fs.AddConstant("RK45_min_dt", 10.)
	p = &Particle{Lon: 70., Lat: 50., Dt: 10.}
	require.NoError(t, AdvectionRK45(p, fs, 0.), "steps at the minimum dt are always accepted")
}

func TestAdvectionRK4_3D(t *testing.T) {
	fs := uniformFlat(t, 1., 0.)
	g, err := NewGrid(fs.U.Grid.Lon, fs.U.Grid.Lat, []float64{0, 100}, nil, time.Time{}, Flat)
	require.NoError(t, err)
	u := gridField(t, "U", g, constant(1.))
	v := gridField(t, "V", g, constant(0.))
	fs, err = NewFieldSet(u, v)
	require.NoError(t, err)
	require.NoError(t, fs.AddField(gridField(t, "W", g, constant(2.))))

	ps, err := NewParticleSet(fs, SerialParticle, []float64{10.5}, []float64{10.5}, []float64{1.})
	require.NoError(t, err)
	require.NoError(t, ps.Execute(context.Background(), AdvectionRK4_3D, Runtime(10*time.Second), Dt(time.Second)))
	assert.InDelta(t, 20.5, ps.At(0).Lon, 1e-9)
	assert.InDelta(t, 21., ps.At(0).Depth, 1e-9)

	require.NoError(t, ps.Execute(context.Background(), AdvectionRK4, Runtime(10*time.Second), Dt(time.Second)))
	assert.InDelta(t, 21., ps.At(0).Depth, 1e-9, "2-D advection leaves depth alone")
}

func TestSampleKernel(t *testing.T) {
	fs := uniformFlat(t, 1., 0.)
	require.NoError(t, fs.AddField(gridField(t, "T", fs.U.Grid, func(_, _, _, xi int) float64 { return fs.U.Grid.Lon[xi] })))

	ps, err := NewParticleSet(fs, SerialParticle, []float64{10.5}, []float64{10.5}, nil)
	require.NoError(t, err)
	require.NoError(t, ps.Execute(context.Background(), Chain(AdvectionRK4, Sample("T")), Runtime(10*time.Second), Dt(time.Second)))
	// sampled after the last move
	assert.InDelta(t, 20.5, ps.At(0).Vars["T"], 1e-9)

	p := &Particle{Lon: 10.5, Lat: 10.5}
	err = Sample("S")(p, fs, 0)
	assert.ErrorIs(t, err, errUnknownField)
}

func TestChain(t *testing.T) {
	var calls []string
	rec := func(name string, err error) Kernel {
		return func(*Particle, *FieldSet, float64) error {
			calls = append(calls, name)
			return err
		}
	}
	boom := errors.New("boom")

	p := &Particle{}
	require.NoError(t, Chain(rec("a", nil), rec("b", nil))(p, nil, 0))
	assert.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	assert.ErrorIs(t, Chain(rec("a", boom), rec("b", nil))(p, nil, 0), boom)
	assert.Equal(t, []string{"a"}, calls)

	calls = nil
	require.NoError(t, Chain(DeleteParticle, rec("b", nil))(p, nil, 0))
	assert.Empty(t, calls)
	assert.Equal(t, StateDeleted, p.State)
}

func TestKernelByName(t *testing.T) {
	for _, n := range []string{"AdvectionRK4", "AdvectionRK4_3D", "AdvectionRK45", "AdvectionEE", "DeleteParticle", "Sample:T"} {
		k, err := KernelByName(n)
		require.NoError(t, err, n)
		assert.NotNil(t, k, n)
	}
	for _, n := range []string{"", "Sample:", "AdvectionRK5"} {
		_, err := KernelByName(n)
		assert.Error(t, err, n)
	}
}
