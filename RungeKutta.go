package oceantrack

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// horizontal samples U and V only.
type horizontal struct{ fs *FieldSet }

func (h horizontal) PointVelocity(p *Particle) (float64, float64, float64, error) {
	u, v, err := h.fs.UV(p.Time, p.Depth, p.Lat, p.Lon)
	return u, v, 0., err
}

// AdvectionRK4 fourth-order Runge-Kutta horizontal advection
func AdvectionRK4(p *Particle, fs *FieldSet, t float64) error {
	return trial(p, horizontal{fs}, t, p.Dt)
}

// AdvectionRK4_3D fourth-order Runge-Kutta advection including vertical velocity W
// (depth positive downward).
func AdvectionRK4_3D(p *Particle, fs *FieldSet, t float64) error {
	return trial(p, fs, t, p.Dt)
}

func trial(p *Particle, w VelocityFielder, t, dt float64) error {
	vx, vy, vz, err := w.PointVelocity(&Particle{Lon: p.Lon, Lat: p.Lat, Depth: p.Depth, Time: t})
	if err != nil {
		return err
	}
	k1 := dt * vx
	l1 := dt * vy
	m1 := dt * vz

	p2 := Particle{Lon: p.Lon + k1/2., Lat: p.Lat + l1/2., Depth: p.Depth + m1/2., Time: t + dt/2.}
	if vx, vy, vz, err = w.PointVelocity(&p2); err != nil {
		return err
	}
	k2 := dt * vx
	l2 := dt * vy
	m2 := dt * vz

	p3 := Particle{Lon: p.Lon + k2/2., Lat: p.Lat + l2/2., Depth: p.Depth + m2/2., Time: t + dt/2.}
	if vx, vy, vz, err = w.PointVelocity(&p3); err != nil {
		return err
	}
	k3 := dt * vx
	l3 := dt * vy
	m3 := dt * vz

	p4 := Particle{Lon: p.Lon + k3, Lat: p.Lat + l3, Depth: p.Depth + m3, Time: t + dt}
	if vx, vy, vz, err = w.PointVelocity(&p4); err != nil {
		return err
	}
	k4 := dt * vx
	l4 := dt * vy
	m4 := dt * vz

	p.Lon += (k1 + 2.*k2 + 2.*k3 + k4) / 6.
	p.Lat += (l1 + 2.*l2 + 2.*l3 + l4) / 6.
	p.Depth += (m1 + 2.*m2 + 2.*m3 + m4) / 6.
	return nil
}

// Runge-Kutta-Fehlberg tableau
var (
	rk45C = []float64{0., 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	rk45A = mat.NewDense(6, 5, []float64{
		0., 0., 0., 0., 0.,
		1. / 4., 0., 0., 0., 0.,
		3. / 32., 9. / 32., 0., 0., 0.,
		1932. / 2197., -7200. / 2197., 7296. / 2197., 0., 0.,
		439. / 216., -8., 3680. / 513., -845. / 4104., 0.,
		-8. / 27., 2., -3544. / 2565., 1859. / 4104., -11. / 40.,
	})
	rk45B4 = mat.NewVecDense(6, []float64{25. / 216., 0., 1408. / 2565., 2197. / 4104., -1. / 5., 0.})
	rk45B5 = mat.NewVecDense(6, []float64{16. / 135., 0., 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.})
)

// AdvectionRK45 adaptive Runge-Kutta-Fehlberg horizontal advection. A step whose
// 4th/5th order positions differ by more than the RK45_tol constant is rejected:
// p.Dt is halved and ErrRepeat returned. Accurate steps double p.Dt, up to RK45_max_dt.
func AdvectionRK45(p *Particle, fs *FieldSet, t float64) error {
	dt := p.Dt
	tol, _ := fs.Constant("RK45_tol")
	mindt, _ := fs.Constant("RK45_min_dt")
	maxdt, _ := fs.Constant("RK45_max_dt")
	w := horizontal{fs}

	ku, kv := mat.NewVecDense(6, nil), mat.NewVecDense(6, nil)
	for s := 0; s < 6; s++ {
		x, y := p.Lon, p.Lat
		for j, a := range rk45A.RawRowView(s)[:s] {
			x += a * dt * ku.AtVec(j)
			y += a * dt * kv.AtVec(j)
		}
		u, v, _, err := w.PointVelocity(&Particle{Lon: x, Lat: y, Depth: p.Depth, Time: t + rk45C[s]*dt})
		if err != nil {
			return err
		}
		ku.SetVec(s, u)
		kv.SetVec(s, v)
	}
	lon4, lat4 := p.Lon+dt*mat.Dot(rk45B4, ku), p.Lat+dt*mat.Dot(rk45B4, kv)
	lon5, lat5 := p.Lon+dt*mat.Dot(rk45B5, ku), p.Lat+dt*mat.Dot(rk45B5, kv)

	kappa := math.Hypot(lon5-lon4, lat5-lat4)
	if kappa <= tol || math.Abs(dt) <= math.Abs(mindt) {
		p.Lon, p.Lat = lon4, lat4
		if kappa <= tol/10. && math.Abs(dt*2.) <= math.Abs(maxdt) {
			p.Dt = dt * 2. // adaptive timestepping
		}
		return nil
	}
	p.Dt = dt / 2.
	return ErrRepeat
}
