package oceantrack

import (
	"errors"
	"fmt"
	"sort"

	"github.com/maseology/mmio"
)

// Dataset merges the variables of one or more NetCDF files into one namespace.
// Where files share a variable (typically a coordinate), the first file wins.
type Dataset struct {
	paths []string
	files []*ncFile
	vars  map[string]*ncFile
}

// OpenDataset opens the given NetCDF (classic format) files.
func OpenDataset(paths ...string) (*Dataset, error) {
	if len(paths) == 0 {
		return nil, errors.New("oceantrack: open dataset: no files given")
	}
	ds := &Dataset{vars: make(map[string]*ncFile)}
	for _, fp := range paths {
		if _, ok := mmio.FileExists(fp); !ok {
			ds.Close()
			return nil, fmt.Errorf("oceantrack: open dataset: file %s not found", fp)
		}
		f, err := openNCFile(fp)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("oceantrack: open dataset: %w", err)
		}
		ds.paths = append(ds.paths, fp)
		ds.files = append(ds.files, f)
		for _, v := range f.Header.Variables() {
			if _, ok := ds.vars[v]; !ok {
				ds.vars[v] = f
			}
		}
	}
	return ds, nil
}

// Paths returns the files making up the dataset
func (ds *Dataset) Paths() []string { return append([]string(nil), ds.paths...) }

// Variables returns the sorted variable names of the dataset
func (ds *Dataset) Variables() []string {
	o := make([]string, 0, len(ds.vars))
	for v := range ds.vars {
		o = append(o, v)
	}
	sort.Strings(o)
	return o
}

// Dimensions returns the dimension names of variable v.
func (ds *Dataset) Dimensions(v string) ([]string, error) {
	f, err := ds.file(v)
	if err != nil {
		return nil, err
	}
	return f.Header.Dimensions(v), nil
}

// Attribute returns attribute a of variable v ("" for global), or nil.
func (ds *Dataset) Attribute(v, a string) interface{} {
	if v == "" {
		for _, f := range ds.files {
			if x := f.Header.GetAttribute("", a); x != nil {
				return x
			}
		}
		return nil
	}
	if f, ok := ds.vars[v]; ok {
		return f.Header.GetAttribute(v, a)
	}
	return nil
}

func (ds *Dataset) file(v string) (*ncFile, error) {
	f, ok := ds.vars[v]
	if !ok {
		return nil, fmt.Errorf("oceantrack: variable %s not found in %v", v, ds.paths)
	}
	return f, nil
}

// Close closes the underlying files
func (ds *Dataset) Close() error {
	var errs []error
	for _, f := range ds.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	ds.files = nil
	return errors.Join(errs...)
}
