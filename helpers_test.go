package oceantrack

import (
	"os"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func axis(x0, dx float64, n int) []float64 {
	a := make([]float64, n)
	for i := range a {
		a[i] = x0 + float64(i)*dx
	}
	return a
}

// gridField builds an in-memory field with values from fn(ti, zi, yi, xi).
func gridField(t *testing.T, name string, g *Grid, fn func(ti, zi, yi, xi int) float64) *Field {
	t.Helper()
	nz, ny, nx := g.Shape()
	data := make([]*sparse.DenseArray, len(g.Time))
	for ti := range data {
		d := sparse.ZerosDense(nz, ny, nx)
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					d.Set(fn(ti, k, j, i), k, j, i)
				}
			}
		}
		data[ti] = d
	}
	f, err := NewField(name, g, data...)
	require.NoError(t, err)
	return f
}

func constant(v float64) func(ti, zi, yi, xi int) float64 {
	return func(int, int, int, int) float64 { return v }
}

// uniformFlat returns a flat-mesh fieldset on [0,100]x[0,100] with a uniform current.
func uniformFlat(t *testing.T, u, v float64, opts ...Option) *FieldSet {
	t.Helper()
	g, err := NewGrid(axis(0., 10., 11), axis(0., 10., 11), nil, nil, time.Time{}, Flat)
	require.NoError(t, err)
	fs, err := NewFieldSet(gridField(t, "U", g, constant(u)), gridField(t, "V", g, constant(v)), opts...)
	require.NoError(t, err)
	return fs
}

// ncFixture describes a classic NetCDF test file with dimensions
// (time, [z,] lat, lon). With unlimited set, time is the record dimension.
type ncFixture struct {
	lon, lat, depth, time []float64
	timeUnits             string
	unlimited             bool
	vars                  map[string]func(ti, zi, yi, xi int) float32
	attrs                 map[string]map[string]interface{}
}

func (fx ncFixture) dims() []string {
	if fx.depth != nil {
		return []string{"time", "z", "lat", "lon"}
	}
	return []string{"time", "lat", "lon"}
}

func writeNC(t *testing.T, fp string, fx ncFixture) {
	t.Helper()
	dims := fx.dims()
	lens := []int{len(fx.time), len(fx.depth), len(fx.lat), len(fx.lon)}
	if fx.depth == nil {
		lens = []int{len(fx.time), len(fx.lat), len(fx.lon)}
	}
	if fx.unlimited {
		lens[0] = 0
	}
	h := cdf.NewHeader(dims, lens)
	h.AddVariable("time", []string{"time"}, []float64{0})
	if fx.timeUnits != "" {
		h.AddAttribute("time", "units", fx.timeUnits)
	}
	if fx.depth != nil {
		h.AddVariable("z", []string{"z"}, []float64{0})
	}
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	for v := range fx.vars {
		h.AddVariable(v, dims, []float32{0})
		for a, x := range fx.attrs[v] {
			h.AddAttribute(v, a, x)
		}
	}
	h.Define()

	ff, err := os.Create(fp)
	require.NoError(t, err)
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	require.NoError(t, err)

	require.NoError(t, writeVariable(f, "time", fx.time))
	if fx.depth != nil {
		require.NoError(t, writeVariable(f, "z", fx.depth))
	}
	require.NoError(t, writeVariable(f, "lat", fx.lat))
	require.NoError(t, writeVariable(f, "lon", fx.lon))

	nz := len(fx.depth)
	if nz == 0 {
		nz = 1
	}
	for v, fn := range fx.vars {
		data := make([]float32, 0, len(fx.time)*nz*len(fx.lat)*len(fx.lon))
		for ti := range fx.time {
			for k := 0; k < nz; k++ {
				for j := range fx.lat {
					for i := range fx.lon {
						data = append(data, fn(ti, k, j, i))
					}
				}
			}
		}
		require.NoError(t, writeVariable(f, v, data))
	}
	require.NoError(t, cdf.UpdateNumRecs(ff))
}

func constant32(v float32) func(ti, zi, yi, xi int) float32 {
	return func(int, int, int, int) float32 { return v }
}
