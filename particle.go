package oceantrack

import (
	"fmt"
	"math"
)

// State of a particle
type State int

const (
	// StateAlive particles are advanced by Execute.
	StateAlive State = iota
	// StateDeleted particles are dropped at the end of the current output interval.
	StateDeleted
)

func (s State) String() string {
	if s == StateDeleted {
		return "deleted"
	}
	return "alive"
}

// Particle struct
type Particle struct {
	ID                        int
	Lon, Lat, Depth, Time, Dt float64
	State                     State
	Vars                      map[string]float64 // sampled fields
}

// ParticleClass sets coordinate precision and how a set is executed
type ParticleClass struct {
	Name     string
	Float32  bool // coordinates kept in single precision
	Parallel bool // particles advanced concurrently
}

var (
	// SerialParticle advances particles one after the other in double precision.
	SerialParticle = ParticleClass{Name: "serial"}
	// ParallelParticle advances particles concurrently in single precision.
	ParallelParticle = ParticleClass{Name: "parallel", Float32: true, Parallel: true}
)

// ParticleClasses maps class names to classes
var ParticleClasses = map[string]ParticleClass{
	SerialParticle.Name:   SerialParticle,
	ParallelParticle.Name: ParallelParticle,
}

// Clone creates an exact copy of Particle
func (p *Particle) Clone() Particle {
	c := *p
	if p.Vars != nil {
		c.Vars = make(map[string]float64, len(p.Vars))
		for k, v := range p.Vars {
			c.Vars[k] = v
		}
	}
	return c
}

// PrintState returns the particles current state in CSV format
func (p *Particle) PrintState() string {
	return fmt.Sprintf("%d,%v,%v,%v,%v", p.ID, p.Lon, p.Lat, p.Depth, p.Time)
}

// Dist returns the Euclidian distance between two points, in grid units
func (p *Particle) Dist(p1 *Particle) float64 {
	return math.Sqrt(math.Pow(p.Lon-p1.Lon, 2.) + math.Pow(p.Lat-p1.Lat, 2.) + math.Pow(p.Depth-p1.Depth, 2.))
}

func (p *Particle) round32() {
	p.Lon = float64(float32(p.Lon))
	p.Lat = float64(float32(p.Lat))
	p.Depth = float64(float32(p.Depth))
}
