package oceantrack

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/maseology/mmaths"
)

// Mesh sets how velocities relate to grid coordinates
type Mesh int

const (
	// Spherical grids are in degrees, velocities in m/s.
	Spherical Mesh = iota
	// Flat grids share units with velocities (e.g. m and m/s).
	Flat
)

func (m Mesh) String() string {
	if m == Flat {
		return "flat"
	}
	return "spherical"
}

// ParseMesh returns the Mesh named s ("" defaults to spherical).
func ParseMesh(s string) (Mesh, error) {
	switch strings.ToLower(s) {
	case "", "spherical":
		return Spherical, nil
	case "flat":
		return Flat, nil
	}
	return Spherical, fmt.Errorf("oceantrack: unknown mesh %q", s)
}

// Grid is a rectilinear lon-lat-depth-time grid
type Grid struct {
	Lon, Lat, Depth []float64
	Time            []float64 // seconds since TimeOrigin
	TimeOrigin      time.Time
	Mesh            Mesh
	bounds          []complex128
}

// NewGrid constructor. Depth and time default to a single level at zero.
func NewGrid(lon, lat, depth, tm []float64, origin time.Time, mesh Mesh) (*Grid, error) {
	if len(depth) == 0 {
		depth = []float64{0.}
	}
	if len(tm) == 0 {
		tm = []float64{0.}
	}
	for _, c := range []struct {
		n string
		a []float64
		m int
	}{{"lon", lon, 2}, {"lat", lat, 2}, {"depth", depth, 1}, {"time", tm, 1}} {
		if len(c.a) < c.m {
			return nil, fmt.Errorf("oceantrack: %s coordinate needs at least %d values", c.n, c.m)
		}
		for i := 1; i < len(c.a); i++ {
			if !(c.a[i] > c.a[i-1]) {
				return nil, fmt.Errorf("oceantrack: %s coordinate must be strictly ascending", c.n)
			}
		}
	}
	g := &Grid{Lon: lon, Lat: lat, Depth: depth, Time: tm, TimeOrigin: origin, Mesh: mesh}
	x0, x1, y0, y1 := lon[0], lon[len(lon)-1], lat[0], lat[len(lat)-1]
	g.bounds = []complex128{complex(x0, y0), complex(x0, y1), complex(x1, y1), complex(x1, y0)} // clockwise
	return g, nil
}

// Shape returns the size of a single time slice
func (g *Grid) Shape() (nz, ny, nx int) { return len(g.Depth), len(g.Lat), len(g.Lon) }

// Extent returns the horizontal extent of the grid
func (g *Grid) Extent() (xn, xx, yn, yx float64) {
	return g.Lon[0], g.Lon[len(g.Lon)-1], g.Lat[0], g.Lat[len(g.Lat)-1]
}

// ContainsXY returns true if the given (lon,lat) coordinates are contained by the grid planform bounds
func (g *Grid) ContainsXY(lon, lat float64) bool {
	return mmaths.PnPolyC(g.bounds, complex(lon, lat), tol)
}

// shiftTime rebases the time axis onto an earlier origin.
func (g *Grid) shiftTime(origin time.Time) {
	ds := g.TimeOrigin.Sub(origin).Seconds()
	if ds == 0. {
		return
	}
	for i := range g.Time {
		g.Time[i] += ds
	}
	g.TimeOrigin = origin
}

// bracket returns i such that a[i] <= x <= a[i+1] and the weight of a[i+1].
func bracket(a []float64, x float64) (int, float64, bool) {
	n := len(a)
	if n == 1 {
		return 0, 0., true
	}
	if math.IsNaN(x) || x < a[0] || x > a[n-1] {
		return 0, 0., false
	}
	i := sort.SearchFloat64s(a, x)
	if i > 0 {
		i--
	}
	if i > n-2 {
		i = n - 2
	}
	return i, (x - a[i]) / (a[i+1] - a[i]), true
}

// timeIndex brackets t on the time axis, clamping when extrapolation is allowed.
func (g *Grid) timeIndex(t float64, extrapolate bool) (int, float64, error) {
	n := len(g.Time)
	if n == 1 {
		return 0, 0., nil
	}
	switch {
	case t < g.Time[0]-timeTol:
		if !extrapolate {
			return 0, 0., ErrTimeExtrapolation
		}
		return 0, 0., nil
	case t > g.Time[n-1]+timeTol:
		if !extrapolate {
			return 0, 0., ErrTimeExtrapolation
		}
		return n - 2, 1., nil
	}
	t = math.Max(g.Time[0], math.Min(t, g.Time[n-1]))
	i, w, _ := bracket(g.Time, t)
	return i, w, nil
}
