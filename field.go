package oceantrack

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ctessum/sparse"
)

// Field is a gridded scalar variable, one [depth, lat, lon] slice per time
type Field struct {
	Name                   string
	Grid                   *Grid
	AllowTimeExtrapolation bool

	mu     sync.Mutex
	slices map[int]*sparse.DenseArray
	load   func(ti int) (*sparse.DenseArray, error) // nil when fully loaded
}

// NewField creates an in-memory field with one slice per grid time.
func NewField(name string, g *Grid, data ...*sparse.DenseArray) (*Field, error) {
	if len(data) != len(g.Time) {
		return nil, fmt.Errorf("oceantrack: field %s: %d time slices given for %d times", name, len(data), len(g.Time))
	}
	nz, ny, nx := g.Shape()
	f := &Field{Name: name, Grid: g, slices: make(map[int]*sparse.DenseArray, len(data))}
	for i, d := range data {
		if len(d.Shape) != 3 || d.Shape[0] != nz || d.Shape[1] != ny || d.Shape[2] != nx {
			return nil, fmt.Errorf("oceantrack: field %s: slice %d has shape %v, want [%d %d %d]", name, i, d.Shape, nz, ny, nx)
		}
		f.slices[i] = d
	}
	return f, nil
}

// newDeferredField creates a field whose slices are read on demand.
func newDeferredField(name string, g *Grid, load func(ti int) (*sparse.DenseArray, error)) *Field {
	return &Field{Name: name, Grid: g, slices: make(map[int]*sparse.DenseArray, maxCachedSlices), load: load}
}

// Loaded returns the indices of the time slices currently held in memory
func (f *Field) Loaded() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := make([]int, 0, len(f.slices))
	for ti := range f.slices {
		o = append(o, ti)
	}
	sort.Ints(o)
	return o
}

// Data returns time slice ti, shaped [depth, lat, lon].
func (f *Field) Data(ti int) (*sparse.DenseArray, error) {
	if ti < 0 || ti >= len(f.Grid.Time) {
		return nil, fmt.Errorf("oceantrack: field %s: time index %d out of range", f.Name, ti)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.slices[ti]; ok {
		return d, nil
	}
	if f.load == nil {
		return nil, fmt.Errorf("oceantrack: field %s: time slice %d not available", f.Name, ti)
	}
	d, err := f.load(ti)
	if err != nil {
		return nil, err
	}
	if len(f.slices) >= maxCachedSlices {
		far, dfar := -1, -1
		for i := range f.slices {
			if di := abs(i - ti); di > dfar {
				far, dfar = i, di
			}
		}
		delete(f.slices, far)
	}
	f.slices[ti] = d
	return d, nil
}

// Value returns the raw grid value at the given indices.
func (f *Field) Value(ti, zi, yi, xi int) (float64, error) {
	d, err := f.Data(ti)
	if err != nil {
		return 0., err
	}
	nz, ny, nx := f.Grid.Shape()
	if zi < 0 || zi >= nz || yi < 0 || yi >= ny || xi < 0 || xi >= nx {
		return 0., fmt.Errorf("oceantrack: field %s: index (%d,%d,%d) out of range", f.Name, zi, yi, xi)
	}
	return d.Get(zi, yi, xi), nil
}

// Eval interpolates the field at time t (seconds), depth, lat and lon:
// linear in time and depth, bilinear in the horizontal.
func (f *Field) Eval(t, depth, lat, lon float64) (float64, error) {
	serr := func(err error) error {
		return &SamplingError{Field: f.Name, Time: t, Depth: depth, Lat: lat, Lon: lon, Err: err}
	}
	g := f.Grid
	ti, tw, err := g.timeIndex(t, f.AllowTimeExtrapolation)
	if err != nil {
		return 0., serr(err)
	}
	if !g.ContainsXY(lon, lat) {
		return 0., serr(ErrOutOfBounds)
	}
	xi, xw, okx := bracket(g.Lon, lon)
	yi, yw, oky := bracket(g.Lat, lat)
	zi, zw, okz := bracket(g.Depth, depth)
	if !okx || !oky || !okz {
		return 0., serr(ErrOutOfBounds)
	}

	d0, err := f.Data(ti)
	if err != nil {
		return 0., err
	}
	v := interpSlice(d0, zi, yi, xi, zw, yw, xw)
	if tw > 0. {
		d1, err := f.Data(ti + 1)
		if err != nil {
			return 0., err
		}
		v = (1.-tw)*v + tw*interpSlice(d1, zi, yi, xi, zw, yw, xw)
	}
	return v, nil
}

func interpSlice(d *sparse.DenseArray, zi, yi, xi int, zw, yw, xw float64) float64 {
	bilin := func(k int) float64 {
		v00 := d.Get(k, yi, xi)
		v01 := d.Get(k, yi, xi+1)
		v10 := d.Get(k, yi+1, xi)
		v11 := d.Get(k, yi+1, xi+1)
		return (1.-yw)*((1.-xw)*v00+xw*v01) + yw*((1.-xw)*v10+xw*v11)
	}
	v := bilin(zi)
	if zw > 0. {
		v = (1.-zw)*v + zw*bilin(zi+1)
	}
	return v
}

// Stats returns the min and max over the loaded slices (NaN if nothing is loaded).
func (f *Field) Stats() (mn, mx float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mn, mx = math.NaN(), math.NaN()
	for _, d := range f.slices {
		for _, v := range d.Elements {
			if math.IsNaN(mn) || v < mn {
				mn = v
			}
			if math.IsNaN(mx) || v > mx {
				mx = v
			}
		}
	}
	return
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
