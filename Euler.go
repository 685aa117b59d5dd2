package oceantrack

// AdvectionEE explicit (forward) Euler horizontal advection
func AdvectionEE(p *Particle, fs *FieldSet, t float64) error {
	vx, vy, _, err := horizontal{fs}.PointVelocity(&Particle{Lon: p.Lon, Lat: p.Lat, Depth: p.Depth, Time: t})
	if err != nil {
		return err
	}
	p.Lon += vx * p.Dt
	p.Lat += vy * p.Dt
	return nil
}
