package oceantrack

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

// ncFile is an open classic NetCDF file.
type ncFile struct {
	*cdf.File
	path string
	fid  *os.File
	nrec int // records on file, 0 without a record dimension
}

// openNCFile opens fp. The record count is taken from the file size, the
// header's numrecs field may be -1 (streaming).
func openNCFile(fp string) (*ncFile, error) {
	fid, err := os.Open(fp)
	if err != nil {
		return nil, err
	}
	f, err := cdf.Open(fid)
	if err != nil {
		fid.Close()
		return nil, fmt.Errorf("%s: %w", fp, err)
	}
	fi, err := fid.Stat()
	if err != nil {
		fid.Close()
		return nil, err
	}
	return &ncFile{File: f, path: fp, fid: fid, nrec: int(f.Header.NumRecs(fi.Size()))}, nil
}

func (f *ncFile) Close() error { return f.fid.Close() }

// lengths returns the shape of v with the record dimension set to the records on file.
func (f *ncFile) lengths(v string) []int {
	shape := append([]int(nil), f.Header.Lengths(v)...)
	if f.Header.IsRecordVariable(v) {
		shape[0] = f.nrec
	}
	return shape
}

func hasVariable(f *ncFile, v string) bool {
	for _, vv := range f.Header.Variables() {
		if vv == v {
			return true
		}
	}
	return false
}

// readSlab reads the hyperslab of v between the inclusive corners start and end.
func readSlab(f *ncFile, v string, start, end []int, n int) ([]float64, error) {
	r := f.Reader(v, start, end)
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return toFloat64(buf)
}

// readVariable reads all of variable v out of netcdf file f. When mask is set,
// fill/missing values and NaNs are replaced by zero.
func readVariable(f *ncFile, v string, mask bool) ([]float64, []int, error) {
	if !hasVariable(f, v) {
		return nil, nil, fmt.Errorf("oceantrack: read netcdf: variable %v not in file", v)
	}
	shape := f.lengths(v)
	n := 1
	start, end := make([]int, len(shape)), make([]int, len(shape))
	for i, d := range shape {
		n *= d
		end[i] = d - 1
	}
	if n == 0 {
		return []float64{}, shape, nil
	}
	vals, err := readSlab(f, v, start, end, n)
	if err != nil {
		return nil, nil, fmt.Errorf("oceantrack: read netcdf variable %s: %w", v, err)
	}
	unpack(f, v, vals, mask)
	return vals, shape, nil
}

// readRecord reads variable v at index ti of its first (time) dimension.
func readRecord(f *ncFile, v string, ti int) ([]float64, error) {
	shape := f.lengths(v)
	if len(shape) == 0 {
		return nil, fmt.Errorf("oceantrack: read netcdf: variable %v has no records", v)
	}
	if ti < 0 || ti >= shape[0] {
		return nil, fmt.Errorf("oceantrack: read netcdf variable %s: record %d of %d", v, ti, shape[0])
	}
	n := 1
	start, end := make([]int, len(shape)), make([]int, len(shape))
	start[0], end[0] = ti, ti
	for i, d := range shape[1:] {
		n *= d
		end[i+1] = d - 1
	}
	vals, err := readSlab(f, v, start, end, n)
	if err != nil {
		return nil, fmt.Errorf("oceantrack: read netcdf variable %s record %d: %w", v, ti, err)
	}
	unpack(f, v, vals, true)
	return vals, nil
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int32:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int16:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []int8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	case []uint8:
		o := make([]float64, len(b))
		for i, v := range b {
			o[i] = float64(v)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
}

// attrFloat returns the first value of a numeric attribute.
func attrFloat(f *ncFile, v, a string) (float64, bool) {
	switch x := f.Header.GetAttribute(v, a).(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int8:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0., false
}

func attrString(f *ncFile, v, a string) string {
	if s, ok := f.Header.GetAttribute(v, a).(string); ok {
		return s
	}
	return ""
}

// unpack applies CF packing attributes in place. Fill values are compared in
// packed units, before scaling.
func unpack(f *ncFile, v string, vals []float64, mask bool) {
	fill, hasFill := attrFloat(f, v, "_FillValue")
	miss, hasMiss := attrFloat(f, v, "missing_value")
	scale, hasScale := attrFloat(f, v, "scale_factor")
	offset, _ := attrFloat(f, v, "add_offset")
	if !hasScale {
		scale = 1.
	}
	for i, x := range vals {
		if mask && (math.IsNaN(x) || (hasFill && x == fill) || (hasMiss && x == miss)) {
			vals[i] = 0. // land
			continue
		}
		vals[i] = x*scale + offset
	}
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// parseTimeUnits decodes CF time units such as "days since 1993-01-01 00:00:00"
// into seconds per unit and the origin.
func parseTimeUnits(units string) (float64, time.Time, error) {
	units = strings.TrimSpace(units)
	if units == "" {
		return 1., time.Time{}, nil
	}
	parts := strings.SplitN(units, " since ", 2)
	if len(parts) != 2 {
		return 0., time.Time{}, fmt.Errorf("oceantrack: unsupported time units %q", units)
	}
	var scale float64
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		scale = 1.
	case "minutes", "minute", "mins", "min":
		scale = 60.
	case "hours", "hour", "hrs", "hr", "h":
		scale = 3600.
	case "days", "day", "d":
		scale = 86400.
	default:
		return 0., time.Time{}, fmt.Errorf("oceantrack: unsupported time units %q", units)
	}
	ds := strings.TrimSpace(parts[1])
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, ds); err == nil {
			return scale, t, nil
		}
	}
	return 0., time.Time{}, fmt.Errorf("oceantrack: can't parse time origin %q", ds)
}

// readTime reads a time coordinate, returning seconds relative to its first value
// and the absolute time of that first value.
func readTime(f *ncFile, v string) ([]float64, time.Time, error) {
	vals, _, err := readVariable(f, v, false)
	if err != nil {
		return nil, time.Time{}, err
	}
	scale, origin, err := parseTimeUnits(attrString(f, v, "units"))
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(vals) == 0 {
		return nil, time.Time{}, fmt.Errorf("oceantrack: time variable %s is empty", v)
	}
	t0 := vals[0] * scale
	o := make([]float64, len(vals))
	for i, x := range vals {
		o[i] = x*scale - t0
	}
	days := math.Floor(t0 / 86400.) // Duration overflows past ~290 years
	rem := t0 - days*86400.
	return o, origin.AddDate(0, 0, int(days)).Add(time.Duration(rem * float64(time.Second))), nil
}

// writeVariable writes the whole of variable v. Record variables are written
// from the first record on, extending the file.
func writeVariable(f *cdf.File, v string, data interface{}) error {
	var start, end []int
	if !f.Header.IsRecordVariable(v) {
		shape := f.Header.Lengths(v)
		start, end = make([]int, len(shape)), make([]int, len(shape))
		for i, d := range shape {
			end[i] = d - 1
		}
	}
	w := f.Writer(v, start, end)
	if _, err := w.Write(data); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("oceantrack: write netcdf variable %s: %w", v, err)
	}
	return nil
}
