package oceantrack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxRepeats = 1000

// ExecuteOption configures Execute
type ExecuteOption func(*execConfig)

type execConfig struct {
	runtime    time.Duration
	hasRuntime bool
	endtime    float64
	hasEndtime bool
	dt         time.Duration
	outputDt   time.Duration
	output     *ParticleFile
	recovery   map[error]Kernel
}

// Runtime sets how long to advect for.
func Runtime(d time.Duration) ExecuteOption {
	return func(c *execConfig) { c.runtime, c.hasRuntime = d, true }
}

// Endtime sets the time (seconds after the fieldset origin) to advect to.
func Endtime(t float64) ExecuteOption {
	return func(c *execConfig) { c.endtime, c.hasEndtime = t, true }
}

// Dt sets the integration step; negative steps integrate backward in time.
func Dt(d time.Duration) ExecuteOption {
	return func(c *execConfig) { c.dt = d }
}

// OutputDt sets the interval at which particles are written to the output file.
func OutputDt(d time.Duration) ExecuteOption {
	return func(c *execConfig) { c.outputDt = d }
}

// OutputFile records particle positions in pf.
func OutputFile(pf *ParticleFile) ExecuteOption {
	return func(c *execConfig) { c.output = pf }
}

// Recovery maps kernel errors (matched with errors.Is) to recovery kernels.
func Recovery(m map[error]Kernel) ExecuteOption {
	return func(c *execConfig) { c.recovery = m }
}

// Execute runs kernel k on every particle until the end time.
func (ps *ParticleSet) Execute(ctx context.Context, k Kernel, opts ...ExecuteOption) error {
	var c execConfig
	for _, opt := range opts {
		opt(&c)
	}
	if c.dt == 0 {
		return errors.New("oceantrack: execute: dt must be non-zero")
	}
	if c.hasRuntime == c.hasEndtime {
		return errors.New("oceantrack: execute: set exactly one of runtime and endtime")
	}
	if c.hasRuntime && c.runtime < 0 {
		return errors.New("oceantrack: execute: runtime must be positive")
	}
	if len(ps.particles) == 0 {
		return nil
	}

	dt, sign := c.dt.Seconds(), 1.
	if dt < 0. {
		sign = -1.
	}
	start := ps.particles[0].Time
	for _, p := range ps.particles {
		if sign*p.Time < sign*start {
			start = p.Time
		}
	}
	end := start + sign*c.runtime.Seconds()
	if c.hasEndtime {
		end = c.endtime
		if sign*(end-start) < 0. {
			return fmt.Errorf("oceantrack: execute: endtime %gs lies the wrong way from start %gs for dt %v", end, start, c.dt)
		}
	}
	outdt := math.Abs(end - start)
	if c.output != nil && c.outputDt > 0 {
		outdt = math.Abs(c.outputDt.Seconds())
	}
	for _, p := range ps.particles {
		p.Dt = dt
	}

	ps.logger.Info("execute",
		zap.String("class", ps.class.Name),
		zap.Int("particles", len(ps.particles)),
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.Duration("dt", c.dt),
	)
	for _, p := range ps.particles {
		ps.logger.Debug("particle start point", zap.Int("id", p.ID), zap.Float64("lon", p.Lon), zap.Float64("lat", p.Lat), zap.Float64("depth", p.Depth))
	}
	tt := time.Now()

	if c.output != nil {
		c.output.write(ps, released(start, sign))
	}
	for next := start; sign*(end-next) > timeTol; {
		next += sign * outdt
		if sign*(next-end) > 0. {
			next = end
		}
		if err := ps.run(ctx, k, next, c.recovery); err != nil {
			return err
		}
		if n := ps.removeDeleted(); n > 0 {
			ps.logger.Debug("particles deleted", zap.Int("n", n), zap.Float64("time", next))
		}
		if c.output != nil {
			c.output.write(ps, released(next, sign))
		}
	}

	for _, p := range ps.particles {
		ps.logger.Debug("particle exit point", zap.Int("id", p.ID), zap.Float64("lon", p.Lon), zap.Float64("lat", p.Lat), zap.Float64("depth", p.Depth), zap.Float64("time", p.Time))
	}
	ps.logger.Info("execute done", zap.Int("particles", len(ps.particles)), zap.Duration("elapsed", time.Since(tt)))
	return nil
}

func (ps *ParticleSet) run(ctx context.Context, k Kernel, target float64, recovery map[error]Kernel) error {
	if !ps.class.Parallel {
		for _, p := range ps.particles {
			if err := ps.advance(ctx, p, k, target, recovery); err != nil {
				return err
			}
		}
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, p := range ps.particles {
		p := p
		g.Go(func() error { return ps.advance(gctx, p, k, target, recovery) })
	}
	return g.Wait()
}

// advance steps a single particle to the target time.
func (ps *ParticleSet) advance(ctx context.Context, p *Particle, k Kernel, target float64, recovery map[error]Kernel) error {
	want, nrep := p.Dt, 0
	defer func() { p.Dt = want }()
	for p.State == StateAlive {
		remaining := target - p.Time
		if math.Abs(remaining) <= timeTol {
			p.Time = target
			return nil
		}
		if math.Signbit(remaining) != math.Signbit(want) {
			return nil // not released yet
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		step, truncated := want, false
		if math.Abs(step) > math.Abs(remaining) {
			step, truncated = remaining, true
		}
		p.Dt = step

		err := k(p, ps.fs, p.Time)
		switch {
		case err == nil:
			p.Time += step
			if !truncated {
				want = p.Dt
			}
			nrep = 0
		case errors.Is(err, ErrRepeat):
			nrep++
			if nrep > maxRepeats || p.Dt == 0. {
				return &ParticleError{ID: p.ID, Time: p.Time, Err: fmt.Errorf("step repeated %d times: %w", nrep, err)}
			}
			want = p.Dt
			continue
		default:
			rk := recoveryFor(recovery, err)
			if rk == nil {
				return &ParticleError{ID: p.ID, Time: p.Time, Err: err}
			}
			if rerr := rk(p, ps.fs, p.Time); rerr != nil {
				return &ParticleError{ID: p.ID, Time: p.Time, Err: errors.Join(err, rerr)}
			}
			ps.logger.Debug("particle recovered", zap.Int("id", p.ID), zap.Error(err), zap.Stringer("state", p.State))
			p.Time += step
		}
		if ps.class.Float32 {
			p.round32()
		}
	}
	return nil
}

// released reports whether a particle has reached time t in the run direction.
func released(t, sign float64) func(*Particle) bool {
	return func(p *Particle) bool { return sign*(p.Time-t) <= timeTol }
}

func recoveryFor(m map[error]Kernel, err error) Kernel {
	for target, rk := range m {
		if errors.Is(err, target) {
			return rk
		}
	}
	return nil
}
