package oceantrack

// VelocityFielder interface for velocity sampling, in grid units per second
type VelocityFielder interface {
	PointVelocity(p *Particle) (float64, float64, float64, error)
}

var _ VelocityFielder = (*FieldSet)(nil)
