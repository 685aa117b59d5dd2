package oceantrack

import (
	"fmt"
	"strings"
)

// Kernel advances or otherwise updates a particle by one step of p.Dt seconds,
// starting at time t. Kernels must not change p.Time; the executor does.
type Kernel func(p *Particle, fs *FieldSet, t float64) error

// Chain runs kernels in order, stopping at the first error.
func Chain(ks ...Kernel) Kernel {
	return func(p *Particle, fs *FieldSet, t float64) error {
		for _, k := range ks {
			if err := k(p, fs, t); err != nil {
				return err
			}
			if p.State == StateDeleted {
				return nil
			}
		}
		return nil
	}
}

// DeleteParticle marks the particle for removal; use as a recovery kernel.
func DeleteParticle(p *Particle, _ *FieldSet, _ float64) error {
	p.State = StateDeleted
	return nil
}

// Sample stores the value of the named field at the particle in p.Vars.
func Sample(field string) Kernel {
	return func(p *Particle, fs *FieldSet, t float64) error {
		f, ok := fs.Field(field)
		if !ok {
			return &SamplingError{Field: field, Time: t, Depth: p.Depth, Lat: p.Lat, Lon: p.Lon, Err: errUnknownField}
		}
		v, err := f.Eval(t, p.Depth, p.Lat, p.Lon)
		if err != nil {
			return err
		}
		if p.Vars == nil {
			p.Vars = make(map[string]float64)
		}
		p.Vars[field] = v
		return nil
	}
}

// KernelByName returns a built-in kernel. "Sample:<field>" returns Sample(field).
func KernelByName(name string) (Kernel, error) {
	if f, ok := strings.CutPrefix(name, "Sample:"); ok && f != "" {
		return Sample(f), nil
	}
	switch name {
	case "AdvectionRK4":
		return AdvectionRK4, nil
	case "AdvectionRK4_3D":
		return AdvectionRK4_3D, nil
	case "AdvectionRK45":
		return AdvectionRK45, nil
	case "AdvectionEE":
		return AdvectionEE, nil
	case "DeleteParticle":
		return DeleteParticle, nil
	}
	return nil, fmt.Errorf("oceantrack: unknown kernel %q", name)
}
