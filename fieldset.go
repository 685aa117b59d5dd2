package oceantrack

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ctessum/sparse"
	"go.uber.org/zap"
)

// Option configures FieldSet construction
type Option func(*options)

type options struct {
	allowTimeExtrapolation bool
	fullLoad               bool
	mesh                   Mesh
	logger                 *zap.Logger
}

// WithTimeExtrapolation lets fields be sampled outside their time range, holding
// the first or last slice constant.
func WithTimeExtrapolation() Option {
	return func(o *options) { o.allowTimeExtrapolation = true }
}

// WithFullLoad reads every time slice up front instead of on demand.
func WithFullLoad() Option {
	return func(o *options) { o.fullLoad = true }
}

// WithMesh sets the mesh type (default Spherical).
func WithMesh(m Mesh) Option {
	return func(o *options) { o.mesh = m }
}

// WithLogger sets the logger used by the FieldSet.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{mesh: Spherical}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = L()
	}
	return o
}

// FieldSet is a collection of fields; U and V are required.
type FieldSet struct {
	U, V, W   *Field
	fields    map[string]*Field
	constants map[string]float64
	datasets  []*Dataset
	logger    *zap.Logger
}

// FromNetCDF builds a FieldSet where each field is read from its own file.
// filenames and variables are keyed by field name (e.g. "U" → "u"); dimensions
// maps the roles lon, lat, depth and time to coordinate variable names.
func FromNetCDF(filenames, variables, dimensions map[string]string, opts ...Option) (*FieldSet, error) {
	o := newOptions(opts)
	fs := newFieldSet(o.logger)
	opened := make(map[string]*Dataset)
	lookup := func(name string) (*ncFile, error) {
		fp, ok := filenames[name]
		if !ok {
			return nil, fmt.Errorf("oceantrack: no file given for field %s", name)
		}
		ds, ok := opened[fp]
		if !ok {
			var err error
			if ds, err = OpenDataset(fp); err != nil {
				return nil, err
			}
			opened[fp] = ds
			fs.datasets = append(fs.datasets, ds)
		}
		return ds.file(variables[name])
	}
	if err := fs.build(lookup, variables, dimensions, o); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

// FromDataset builds a FieldSet from an already opened (possibly multi-file)
// dataset. The FieldSet takes ownership of ds: Close closes it.
func FromDataset(ds *Dataset, variables, dimensions map[string]string, opts ...Option) (*FieldSet, error) {
	o := newOptions(opts)
	fs := newFieldSet(o.logger)
	fs.datasets = append(fs.datasets, ds)
	lookup := func(name string) (*ncFile, error) { return ds.file(variables[name]) }
	if err := fs.build(lookup, variables, dimensions, o); err != nil {
		fs.Close()
		return nil, err
	}
	return fs, nil
}

// NewFieldSet builds a FieldSet from in-memory U and V fields.
func NewFieldSet(u, v *Field, opts ...Option) (*FieldSet, error) {
	o := newOptions(opts)
	fs := newFieldSet(o.logger)
	for _, f := range []*Field{u, v} {
		if f == nil {
			return nil, errors.New("oceantrack: fieldset requires U and V")
		}
		f.AllowTimeExtrapolation = f.AllowTimeExtrapolation || o.allowTimeExtrapolation
	}
	u.Name, v.Name = "U", "V"
	fs.fields["U"], fs.fields["V"] = u, v
	if err := fs.finalize(); err != nil {
		return nil, err
	}
	return fs, nil
}

func newFieldSet(l *zap.Logger) *FieldSet {
	return &FieldSet{
		fields:    make(map[string]*Field),
		constants: make(map[string]float64),
		logger:    l,
	}
}

func (fs *FieldSet) build(lookup func(string) (*ncFile, error), variables, dimensions map[string]string, o options) error {
	for _, n := range sortedKeys(variables) {
		f, err := lookup(n)
		if err != nil {
			return err
		}
		fld, err := fieldFromFile(n, f, variables[n], dimensions, o)
		if err != nil {
			return err
		}
		fs.fields[n] = fld
		fs.logger.Debug("field loaded",
			zap.String("field", n),
			zap.String("variable", variables[n]),
			zap.Int("times", len(fld.Grid.Time)),
			zap.Bool("full_load", o.fullLoad),
		)
	}
	return fs.finalize()
}

func sortedKeys(m map[string]string) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// finalize checks required fields, rebases time origins and sets default constants.
func (fs *FieldSet) finalize() error {
	var ok bool
	if fs.U, ok = fs.fields["U"]; !ok {
		return errors.New("oceantrack: fieldset requires a U field")
	}
	if fs.V, ok = fs.fields["V"]; !ok {
		return errors.New("oceantrack: fieldset requires a V field")
	}
	fs.W = fs.fields["W"]

	var origin time.Time
	for _, f := range fs.fields {
		if to := f.Grid.TimeOrigin; !to.IsZero() && (origin.IsZero() || to.Before(origin)) {
			origin = to
		}
	}
	for _, f := range fs.fields {
		if !f.Grid.TimeOrigin.IsZero() {
			f.Grid.shiftTime(origin)
		}
	}

	tolConv := rk45Tol
	if fs.U.Grid.Mesh == Spherical {
		tolConv /= metresPerDegree
	}
	for k, v := range map[string]float64{"RK45_tol": tolConv, "RK45_min_dt": rk45MinDt, "RK45_max_dt": rk45MaxDt} {
		if _, ok := fs.constants[k]; !ok {
			fs.constants[k] = v
		}
	}
	return nil
}

// fieldFromFile reads (or prepares deferred reading of) variable v as field name.
func fieldFromFile(name string, f *ncFile, v string, dims map[string]string, o options) (*Field, error) {
	if dims["lon"] == "" || dims["lat"] == "" {
		return nil, errors.New("oceantrack: dimensions must name lon and lat")
	}
	if !hasVariable(f, v) {
		return nil, fmt.Errorf("oceantrack: field %s: variable %s not in file", name, v)
	}
	vdims := f.Header.Dimensions(v)
	role := make(map[string]string, len(dims))
	for r, d := range dims {
		role[d] = r
	}
	var hasTime, hasDepth bool
	want := []string{"time", "depth", "lat", "lon"}
	k := 0
	for _, d := range vdims {
		r, ok := role[d]
		if !ok {
			return nil, fmt.Errorf("oceantrack: field %s: dimension %s of %s has no role", name, d, v)
		}
		for k < len(want) && want[k] != r {
			k++
		}
		if k == len(want) {
			return nil, fmt.Errorf("oceantrack: field %s: unsupported dimension order %v", name, vdims)
		}
		switch r {
		case "time":
			hasTime = true
		case "depth":
			hasDepth = true
		}
		k++
	}
	if len(vdims) < 2 || role[vdims[len(vdims)-1]] != "lon" || role[vdims[len(vdims)-2]] != "lat" {
		return nil, fmt.Errorf("oceantrack: field %s: %s must end in (lat, lon), got %v", name, v, vdims)
	}

	coord := func(r string) ([]float64, error) {
		c, _, err := readVariable(f, dims[r], false)
		if err != nil {
			return nil, fmt.Errorf("oceantrack: field %s: %s coordinate: %w", name, r, err)
		}
		return c, nil
	}
	lon, err := coord("lon")
	if err != nil {
		return nil, err
	}
	lat, err := coord("lat")
	if err != nil {
		return nil, err
	}
	var depth, tm []float64
	var origin time.Time
	if hasDepth {
		if depth, err = coord("depth"); err != nil {
			return nil, err
		}
	}
	if hasTime {
		if tm, origin, err = readTime(f, dims["time"]); err != nil {
			return nil, fmt.Errorf("oceantrack: field %s: %w", name, err)
		}
	}
	g, err := NewGrid(lon, lat, depth, tm, origin, o.mesh)
	if err != nil {
		return nil, fmt.Errorf("oceantrack: field %s: %w", name, err)
	}
	nz, ny, nx := g.Shape()
	nslice := nz * ny * nx

	toSlice := func(vals []float64) *sparse.DenseArray {
		d := sparse.ZerosDense(nz, ny, nx)
		copy(d.Elements, vals)
		return d
	}

	if o.fullLoad {
		vals, _, err := readVariable(f, v, true)
		if err != nil {
			return nil, err
		}
		nt := len(g.Time)
		if len(vals) < nt*nslice {
			return nil, fmt.Errorf("oceantrack: field %s: read %d values, want %d", name, len(vals), nt*nslice)
		}
		data := make([]*sparse.DenseArray, nt)
		for ti := range data {
			data[ti] = toSlice(vals[ti*nslice : (ti+1)*nslice])
		}
		fld, err := NewField(name, g, data...)
		if err != nil {
			return nil, err
		}
		fld.AllowTimeExtrapolation = o.allowTimeExtrapolation
		return fld, nil
	}

	fld := newDeferredField(name, g, func(ti int) (*sparse.DenseArray, error) {
		var vals []float64
		var err error
		if hasTime {
			vals, err = readRecord(f, v, ti)
		} else {
			vals, _, err = readVariable(f, v, true)
		}
		if err != nil {
			return nil, err
		}
		if len(vals) < nslice {
			return nil, fmt.Errorf("oceantrack: field %s: record %d has %d values, want %d", name, ti, len(vals), nslice)
		}
		return toSlice(vals), nil
	})
	fld.AllowTimeExtrapolation = o.allowTimeExtrapolation
	return fld, nil
}

// AddField adds (or replaces) a field; fields named U, V or W become the velocity components.
func (fs *FieldSet) AddField(f *Field) error {
	if f == nil || f.Name == "" {
		return errors.New("oceantrack: can't add unnamed field")
	}
	fs.fields[f.Name] = f
	return fs.finalize()
}

// Field returns the named field
func (fs *FieldSet) Field(name string) (*Field, bool) {
	f, ok := fs.fields[name]
	return f, ok
}

// FieldNames returns the sorted field names
func (fs *FieldSet) FieldNames() []string {
	o := make([]string, 0, len(fs.fields))
	for n := range fs.fields {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// AddConstant sets a named constant available to kernels
func (fs *FieldSet) AddConstant(name string, v float64) { fs.constants[name] = v }

// Constant returns a named constant
func (fs *FieldSet) Constant(name string) (float64, bool) {
	v, ok := fs.constants[name]
	return v, ok
}

// Mesh returns the mesh of the velocity grid
func (fs *FieldSet) Mesh() Mesh { return fs.U.Grid.Mesh }

// TimeOrigin returns the absolute time of t=0
func (fs *FieldSet) TimeOrigin() time.Time { return fs.U.Grid.TimeOrigin }

// UV returns the horizontal velocity in grid units per second.
func (fs *FieldSet) UV(t, depth, lat, lon float64) (float64, float64, error) {
	u, err := fs.U.Eval(t, depth, lat, lon)
	if err != nil {
		return 0., 0., err
	}
	v, err := fs.V.Eval(t, depth, lat, lon)
	if err != nil {
		return 0., 0., err
	}
	if fs.U.Grid.Mesh == Spherical {
		u /= metresPerDegree * math.Cos(lat*math.Pi/180.)
		v /= metresPerDegree
	}
	return u, v, nil
}

// UVW returns the velocity in grid units per second; w is zero without a W field.
func (fs *FieldSet) UVW(t, depth, lat, lon float64) (float64, float64, float64, error) {
	u, v, err := fs.UV(t, depth, lat, lon)
	if err != nil || fs.W == nil {
		return u, v, 0., err
	}
	w, err := fs.W.Eval(t, depth, lat, lon)
	if err != nil {
		return 0., 0., 0., err
	}
	return u, v, w, nil
}

// PointVelocity returns the velocity vector at the particle's position
func (fs *FieldSet) PointVelocity(p *Particle) (float64, float64, float64, error) {
	return fs.UVW(p.Time, p.Depth, p.Lat, p.Lon)
}

// Print logs properties of the fieldset
func (fs *FieldSet) Print() {
	for _, n := range fs.FieldNames() {
		f := fs.fields[n]
		xn, xx, yn, yx := f.Grid.Extent()
		nz, ny, nx := f.Grid.Shape()
		mn, mx := f.Stats()
		fs.logger.Info("field",
			zap.String("name", n),
			zap.Ints("shape", []int{len(f.Grid.Time), nz, ny, nx}),
			zap.Float64s("lon", []float64{xn, xx}),
			zap.Float64s("lat", []float64{yn, yx}),
			zap.Time("time_origin", f.Grid.TimeOrigin),
			zap.Stringer("mesh", f.Grid.Mesh),
			zap.Ints("loaded", f.Loaded()),
			zap.Float64("min", mn),
			zap.Float64("max", mx),
		)
	}
}

// Close releases the files backing deferred fields.
func (fs *FieldSet) Close() error {
	var errs []error
	for _, ds := range fs.datasets {
		if err := ds.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	fs.datasets = nil
	return errors.Join(errs...)
}
