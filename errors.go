package oceantrack

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a field is sampled outside its spatial extent.
	ErrOutOfBounds = errors.New("out of bounds")
	// ErrTimeExtrapolation is returned when a field is sampled outside its time range
	// and time extrapolation has not been allowed.
	ErrTimeExtrapolation = errors.New("time extrapolation")
	// ErrRepeat is returned by a kernel asking for the step to be repeated with the
	// particle's (modified) Dt.
	ErrRepeat = errors.New("repeat step")

	errUnknownField = errors.New("unknown field")
)

// SamplingError describes a failed field evaluation.
type SamplingError struct {
	Field                 string
	Time, Depth, Lat, Lon float64
	Err                   error
}

func (e *SamplingError) Error() string {
	return fmt.Sprintf("field %s sampled at (t=%g, z=%g, lat=%g, lon=%g): %v", e.Field, e.Time, e.Depth, e.Lat, e.Lon, e.Err)
}

func (e *SamplingError) Unwrap() error { return e.Err }

// ParticleError is returned by Execute when a kernel error has no recovery.
type ParticleError struct {
	ID   int
	Time float64
	Err  error
}

func (e *ParticleError) Error() string {
	return fmt.Sprintf("particle %d at t=%gs: %v", e.ID, e.Time, e.Err)
}

func (e *ParticleError) Unwrap() error { return e.Err }
