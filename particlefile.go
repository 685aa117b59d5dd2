package oceantrack

import (
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ctessum/cdf"
	"github.com/google/uuid"
)

// ParticleFile collects particle observations during Execute and writes them
// to a classic NetCDF file on Close, one row per trajectory.
type ParticleFile struct {
	Path  string
	RunID string

	mu     sync.Mutex
	obs    map[int][]Particle
	order  []int
	vars   map[string]struct{}
	origin time.Time
	closed bool
}

// NewParticleFile returns a ParticleFile writing to path on Close
func NewParticleFile(path string) *ParticleFile {
	return &ParticleFile{
		Path:  path,
		RunID: uuid.New().String(),
		obs:   make(map[int][]Particle),
		vars:  make(map[string]struct{}),
	}
}

// Write records the current state of every alive particle in ps.
func (pf *ParticleFile) Write(ps *ParticleSet) {
	pf.write(ps, func(*Particle) bool { return true })
}

func (pf *ParticleFile) write(ps *ParticleSet, keep func(*Particle) bool) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.origin.IsZero() && ps.fs != nil && ps.fs.U != nil {
		pf.origin = ps.fs.TimeOrigin()
	}
	for _, p := range ps.particles {
		if p.State != StateAlive || !keep(p) {
			continue
		}
		if _, ok := pf.obs[p.ID]; !ok {
			pf.order = append(pf.order, p.ID)
		}
		pf.obs[p.ID] = append(pf.obs[p.ID], p.Clone())
		for k := range p.Vars {
			pf.vars[k] = struct{}{}
		}
	}
}

// Trajectories returns the recorded observations, one slice per particle in
// order of first appearance.
func (pf *ParticleFile) Trajectories() [][]Particle {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	o := make([][]Particle, len(pf.order))
	for i, id := range pf.order {
		o[i] = append([]Particle(nil), pf.obs[id]...)
	}
	return o
}

// Close writes the observations to Path. Trajectories shorter than the
// longest are padded with NaN.
func (pf *ParticleFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pf.closed {
		return nil
	}
	pf.closed = true

	ntraj, nobs := len(pf.order), 0
	for _, id := range pf.order {
		if n := len(pf.obs[id]); n > nobs {
			nobs = n
		}
	}
	// a zero length would be taken as a record dimension
	ntraj, nobs = max(ntraj, 1), max(nobs, 1)

	svars := make([]string, 0, len(pf.vars))
	for k := range pf.vars {
		svars = append(svars, k)
	}
	sort.Strings(svars)

	dims := []string{"traj", "obs"}
	h := cdf.NewHeader(dims, []int{ntraj, nobs})
	h.AddAttribute("", "feature_type", "trajectory")
	h.AddAttribute("", "Conventions", "CF-1.6/CF-1.7")
	h.AddAttribute("", "run_id", pf.RunID)
	h.AddVariable("trajectory", dims, []int32{0})
	h.AddAttribute("trajectory", "long_name", "Unique identifier for each particle")
	h.AddVariable("time", dims, []float64{0})
	h.AddAttribute("time", "long_name", "time")
	h.AddAttribute("time", "units", "seconds since "+pf.origin.Format("2006-01-02 15:04:05"))
	h.AddAttribute("time", "_FillValue", []float64{math.NaN()})
	for _, v := range []struct{ name, long, units string }{
		{"lon", "longitude", "degrees_east"},
		{"lat", "latitude", "degrees_north"},
		{"z", "depth", "m"},
	} {
		h.AddVariable(v.name, dims, []float32{0})
		h.AddAttribute(v.name, "long_name", v.long)
		h.AddAttribute(v.name, "units", v.units)
		h.AddAttribute(v.name, "_FillValue", []float32{float32(math.NaN())})
	}
	for _, k := range svars {
		h.AddVariable(k, dims, []float32{0})
		h.AddAttribute(k, "_FillValue", []float32{float32(math.NaN())})
	}
	h.Define()

	ff, err := os.Create(pf.Path)
	if err != nil {
		return fmt.Errorf("oceantrack: particle file: %w", err)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return fmt.Errorf("oceantrack: particle file %s: %w", pf.Path, err)
	}

	n := ntraj * nobs
	id := make([]int32, n)
	tm := make([]float64, n)
	for i := range tm {
		tm[i] = math.NaN()
		id[i] = -1
	}
	cols := map[string][]float32{"lon": nil, "lat": nil, "z": nil}
	for _, k := range svars {
		cols[k] = nil
	}
	for k := range cols {
		a := make([]float32, n)
		for i := range a {
			a[i] = float32(math.NaN())
		}
		cols[k] = a
	}
	for i, pid := range pf.order {
		for j, p := range pf.obs[pid] {
			ii := i*nobs + j
			id[ii] = int32(pid)
			tm[ii] = p.Time
			cols["lon"][ii] = float32(p.Lon)
			cols["lat"][ii] = float32(p.Lat)
			cols["z"][ii] = float32(p.Depth)
			for _, k := range svars {
				if v, ok := p.Vars[k]; ok {
					cols[k][ii] = float32(v)
				}
			}
		}
	}

	if err := writeVariable(f, "trajectory", id); err != nil {
		return err
	}
	if err := writeVariable(f, "time", tm); err != nil {
		return err
	}
	for k, a := range cols {
		if err := writeVariable(f, k, a); err != nil {
			return err
		}
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("oceantrack: particle file %s: %w", pf.Path, err)
	}
	return nil
}
