package oceantrack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig describes an advection run read from a YAML file.
type RunConfig struct {
	FieldSet  FieldSetConfig `yaml:"fieldset"`
	Particles ParticleConfig `yaml:"particles"`
	Kernels   []string       `yaml:"kernels"`
	Recovery  RecoveryConfig `yaml:"recovery"`
	Runtime   string         `yaml:"runtime"`   // e.g. 240h
	Dt        string         `yaml:"dt"`        // negative for backward tracking
	OutputDt  string         `yaml:"output_dt"` // optional
	Output    string         `yaml:"output"`    // particle file (.nc); empty for none
	Logging   LogConfig      `yaml:"logging"`
}

// FieldSetConfig selects the files, variables and dimensions making up a FieldSet.
type FieldSetConfig struct {
	Loader                 string            `yaml:"loader"` // netcdf or dataset
	Filenames              map[string]string `yaml:"filenames"`
	Variables              map[string]string `yaml:"variables"`
	Dimensions             map[string]string `yaml:"dimensions"`
	FullLoad               bool              `yaml:"full_load"`
	AllowTimeExtrapolation bool              `yaml:"allow_time_extrapolation"`
	Mesh                   string            `yaml:"mesh"`
}

// ParticleConfig sets the particle class and release positions.
type ParticleConfig struct {
	Class     string    `yaml:"class"` // serial or parallel
	Lon       []float64 `yaml:"lon,omitempty"`
	Lat       []float64 `yaml:"lat,omitempty"`
	Depth     []float64 `yaml:"depth,omitempty"`
	StartTime string    `yaml:"start_time,omitempty"` // offset from the fieldset time origin
}

// RecoveryConfig names the kernels applied on sampling errors.
type RecoveryConfig struct {
	OutOfBounds       string `yaml:"out_of_bounds"`
	TimeExtrapolation string `yaml:"time_extrapolation"`
}

// DefaultRunConfig returns the defaults filled in before a run file is read.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		FieldSet: FieldSetConfig{
			Loader: "netcdf",
			Mesh:   Spherical.String(),
		},
		Particles: ParticleConfig{Class: SerialParticle.Name},
		Kernels:   []string{"AdvectionRK4"},
		Runtime:   "24h",
		Dt:        "5m",
		Logging:   LogConfig{Level: "info", Encoding: "console"},
	}
}

// LoadRunConfig reads a run file. Relative file names are taken relative to
// the directory of the run file.
func LoadRunConfig(path string) (*RunConfig, error) {
	cfg := DefaultRunConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oceantrack: read run config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("oceantrack: parse run config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for k, fp := range cfg.FieldSet.Filenames {
		if fp != "" && !filepath.IsAbs(fp) {
			cfg.FieldSet.Filenames[k] = filepath.Join(dir, fp)
		}
	}
	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(dir, cfg.Output)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *RunConfig) applyEnvOverrides() {
	if lvl := os.Getenv("OCEANTRACK_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// Save writes the configuration as YAML.
func (c *RunConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("oceantrack: create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("oceantrack: marshal run config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("oceantrack: write run config: %w", err)
	}
	return nil
}

// Validate checks the configuration without touching any file.
func (c *RunConfig) Validate() error {
	var errs []error
	switch c.FieldSet.Loader {
	case "netcdf", "dataset":
	default:
		errs = append(errs, fmt.Errorf("unknown loader %q (valid: netcdf, dataset)", c.FieldSet.Loader))
	}
	for _, f := range []string{"U", "V"} {
		if c.FieldSet.Filenames[f] == "" {
			errs = append(errs, fmt.Errorf("no file given for field %s", f))
		}
		if c.FieldSet.Variables[f] == "" {
			errs = append(errs, fmt.Errorf("no variable given for field %s", f))
		}
	}
	for _, d := range []string{"lon", "lat"} {
		if c.FieldSet.Dimensions[d] == "" {
			errs = append(errs, fmt.Errorf("no %s dimension given", d))
		}
	}
	if _, err := ParseMesh(c.FieldSet.Mesh); err != nil {
		errs = append(errs, err)
	}
	if _, ok := ParticleClasses[c.Particles.Class]; !ok {
		errs = append(errs, fmt.Errorf("unknown particle class %q", c.Particles.Class))
	}
	if len(c.Particles.Lon) != len(c.Particles.Lat) {
		errs = append(errs, fmt.Errorf("%d lon values given for %d lat values", len(c.Particles.Lon), len(c.Particles.Lat)))
	}
	if len(c.Particles.Depth) > 0 && len(c.Particles.Depth) != len(c.Particles.Lon) {
		errs = append(errs, fmt.Errorf("%d depth values given for %d particles", len(c.Particles.Depth), len(c.Particles.Lon)))
	}
	if len(c.Kernels) == 0 {
		errs = append(errs, errors.New("no kernels given"))
	}
	for _, k := range append(append([]string(nil), c.Kernels...), c.Recovery.OutOfBounds, c.Recovery.TimeExtrapolation) {
		if k == "" {
			continue
		}
		if _, err := KernelByName(k); err != nil {
			errs = append(errs, err)
		}
	}
	for name, s := range map[string]string{"runtime": c.Runtime, "dt": c.Dt, "output_dt": c.OutputDt, "start_time": c.Particles.StartTime} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if d, err := time.ParseDuration(c.Dt); err == nil && d == 0 {
		errs = append(errs, errors.New("dt must be non-zero"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("oceantrack: invalid run config: %w", err)
	}
	return nil
}

// GetRuntime returns the runtime as a duration.
func (c *RunConfig) GetRuntime() time.Duration {
	d, _ := time.ParseDuration(c.Runtime)
	return d
}

// GetDt returns the integration step as a duration.
func (c *RunConfig) GetDt() time.Duration {
	d, _ := time.ParseDuration(c.Dt)
	return d
}

// GetOutputDt returns the output interval, zero when unset.
func (c *RunConfig) GetOutputDt() time.Duration {
	d, _ := time.ParseDuration(c.OutputDt)
	return d
}

// Options returns the FieldSet options set by the configuration.
func (c *RunConfig) Options() []Option {
	var opts []Option
	if c.FieldSet.AllowTimeExtrapolation {
		opts = append(opts, WithTimeExtrapolation())
	}
	if c.FieldSet.FullLoad {
		opts = append(opts, WithFullLoad())
	}
	if m, err := ParseMesh(c.FieldSet.Mesh); err == nil {
		opts = append(opts, WithMesh(m))
	}
	return opts
}

// BuildFieldSet builds the configured FieldSet with the chosen loader.
func (c *RunConfig) BuildFieldSet(opts ...Option) (*FieldSet, error) {
	fc := c.FieldSet
	opts = append(c.Options(), opts...)
	if fc.Loader == "dataset" {
		paths, seen := make([]string, 0, len(fc.Filenames)), make(map[string]bool)
		for _, name := range sortedKeys(fc.Filenames) {
			if fp := fc.Filenames[name]; !seen[fp] {
				seen[fp] = true
				paths = append(paths, fp)
			}
		}
		ds, err := OpenDataset(paths...)
		if err != nil {
			return nil, err
		}
		return FromDataset(ds, fc.Variables, fc.Dimensions, opts...)
	}
	return FromNetCDF(fc.Filenames, fc.Variables, fc.Dimensions, opts...)
}

// BuildParticleSet releases the configured particles into fs.
func (c *RunConfig) BuildParticleSet(fs *FieldSet) (*ParticleSet, error) {
	var opts []ParticleSetOption
	if c.Particles.StartTime != "" {
		d, err := time.ParseDuration(c.Particles.StartTime)
		if err != nil {
			return nil, fmt.Errorf("oceantrack: start_time: %w", err)
		}
		opts = append(opts, WithStartTime(d.Seconds()))
	}
	class, ok := ParticleClasses[c.Particles.Class]
	if !ok {
		return nil, fmt.Errorf("oceantrack: unknown particle class %q", c.Particles.Class)
	}
	var depth []float64
	if len(c.Particles.Depth) > 0 {
		depth = c.Particles.Depth
	}
	return NewParticleSet(fs, class, c.Particles.Lon, c.Particles.Lat, depth, opts...)
}

// BuildKernel chains the configured kernels.
func (c *RunConfig) BuildKernel() (Kernel, error) {
	ks := make([]Kernel, 0, len(c.Kernels))
	for _, n := range c.Kernels {
		k, err := KernelByName(n)
		if err != nil {
			return nil, err
		}
		ks = append(ks, k)
	}
	if len(ks) == 1 {
		return ks[0], nil
	}
	return Chain(ks...), nil
}

// ExecuteOptions returns the Execute options set by the configuration; pf may be nil.
func (c *RunConfig) ExecuteOptions(pf *ParticleFile) ([]ExecuteOption, error) {
	opts := []ExecuteOption{Runtime(c.GetRuntime()), Dt(c.GetDt())}
	if pf != nil {
		opts = append(opts, OutputFile(pf))
		if d := c.GetOutputDt(); d > 0 {
			opts = append(opts, OutputDt(d))
		}
	}
	rec := make(map[error]Kernel)
	for target, n := range map[error]string{ErrOutOfBounds: c.Recovery.OutOfBounds, ErrTimeExtrapolation: c.Recovery.TimeExtrapolation} {
		if n == "" {
			continue
		}
		k, err := KernelByName(n)
		if err != nil {
			return nil, err
		}
		rec[target] = k
	}
	if len(rec) > 0 {
		opts = append(opts, Recovery(rec))
	}
	return opts, nil
}
