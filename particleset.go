package oceantrack

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var lastID atomic.Int64

func nextID() int { return int(lastID.Add(1) - 1) }

// ParticleSet is a collection of particles advected through a FieldSet
type ParticleSet struct {
	fs        *FieldSet
	class     ParticleClass
	particles []*Particle
	logger    *zap.Logger
}

// ParticleSetOption configures NewParticleSet
type ParticleSetOption func(*ParticleSet)

// WithStartTime releases all particles at t seconds after the fieldset time origin.
func WithStartTime(t float64) ParticleSetOption {
	return func(ps *ParticleSet) {
		for _, p := range ps.particles {
			p.Time = t
		}
	}
}

// WithParticleLogger sets the logger used by Execute
func WithParticleLogger(l *zap.Logger) ParticleSetOption {
	return func(ps *ParticleSet) { ps.logger = l }
}

// NewParticleSet creates particles at the given coordinates. depth may be nil,
// placing every particle on the first depth level of U.
func NewParticleSet(fs *FieldSet, class ParticleClass, lon, lat, depth []float64, opts ...ParticleSetOption) (*ParticleSet, error) {
	if fs == nil {
		return nil, fmt.Errorf("oceantrack: particle set needs a fieldset")
	}
	if len(lon) != len(lat) {
		return nil, fmt.Errorf("oceantrack: %d lon values given for %d lat values", len(lon), len(lat))
	}
	if depth != nil && len(depth) != len(lon) {
		return nil, fmt.Errorf("oceantrack: %d depth values given for %d particles", len(depth), len(lon))
	}
	ps := &ParticleSet{fs: fs, class: class, particles: make([]*Particle, len(lon)), logger: fs.logger}
	for i := range lon {
		p := &Particle{ID: nextID(), Lon: lon[i], Lat: lat[i], Depth: fs.U.Grid.Depth[0]}
		if depth != nil {
			p.Depth = depth[i]
		}
		if class.Float32 {
			p.round32()
		}
		ps.particles[i] = p
	}
	for _, opt := range opts {
		opt(ps)
	}
	return ps, nil
}

// Len returns the number of particles
func (ps *ParticleSet) Len() int { return len(ps.particles) }

// At returns particle i
func (ps *ParticleSet) At(i int) *Particle { return ps.particles[i] }

// Particles returns the particles of the set
func (ps *ParticleSet) Particles() []*Particle { return ps.particles }

// FieldSet returns the fieldset the particles are advected through
func (ps *ParticleSet) FieldSet() *FieldSet { return ps.fs }

// Class returns the particle class
func (ps *ParticleSet) Class() ParticleClass { return ps.class }

// Add appends a particle, giving it a new ID
func (ps *ParticleSet) Add(p Particle) *Particle {
	p.ID = nextID()
	if ps.class.Float32 {
		p.round32()
	}
	pp := &p
	ps.particles = append(ps.particles, pp)
	return pp
}

func (ps *ParticleSet) removeDeleted() int {
	n := 0
	for _, p := range ps.particles {
		if p.State != StateDeleted {
			ps.particles[n] = p
			n++
		}
	}
	for i := n; i < len(ps.particles); i++ {
		ps.particles[i] = nil
	}
	nrm := len(ps.particles) - n
	ps.particles = ps.particles[:n]
	return nrm
}
