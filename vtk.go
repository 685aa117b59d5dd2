package oceantrack

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"time"
)

// vtkBuffer accumulates a legacy binary VTK file; VTK expects big-endian data.
type vtkBuffer struct{ bytes.Buffer }

func (b *vtkBuffer) section(format string, a ...interface{}) {
	fmt.Fprintf(b, format+"\n", a...)
}

func (b *vtkBuffer) data(v interface{}) {
	binary.Write(b, binary.BigEndian, v)
	b.WriteByte('\n')
}

// ExportVTKpathlines saves trajectories as a legacy binary *.vtk file of
// polylines. Each particle ID is written as cell data; time (days) and every
// sampled variable as point data, NaN where a variable was not sampled.
func ExportVTKpathlines(fp string, apl [][]Particle) error {
	var pts []Particle
	vars := make(map[string]bool)
	for _, pln := range apl {
		for _, p := range pln {
			pts = append(pts, p)
			for k := range p.Vars {
				vars[k] = true
			}
		}
	}

	var b vtkBuffer
	b.section("# vtk DataFile Version 3.0")
	b.section("oceantrack pathlines: %d particles, %d vertices, %s", len(apl), len(pts), time.Now().Format("2006-01-02 15:04:05"))
	b.section("BINARY")
	b.section("DATASET UNSTRUCTURED_GRID")

	xyz := make([]float32, 0, 3*len(pts))
	for _, p := range pts {
		xyz = append(xyz, float32(p.Lon), float32(p.Lat), float32(-p.Depth)) // z up
	}
	b.section("POINTS %d float", len(pts))
	b.data(xyz)

	cells, ids, ii := make([]int32, 0, len(pts)+len(apl)), make([]int32, len(apl)), int32(0)
	for i, pln := range apl {
		cells = append(cells, int32(len(pln)))
		for range pln {
			cells = append(cells, ii)
			ii++
		}
		if len(pln) > 0 {
			ids[i] = int32(pln[0].ID)
		}
	}
	b.section("CELLS %d %d", len(apl), len(cells))
	b.data(cells)

	types := make([]int32, len(apl))
	for i := range types {
		types[i] = 4 // VTK_POLY_LINE
	}
	b.section("CELL_TYPES %d", len(apl))
	b.data(types)

	b.section("CELL_DATA %d", len(apl))
	b.section("SCALARS pid int")
	b.section("LOOKUP_TABLE default")
	b.data(ids)

	scalar := func(name string, val func(p *Particle) float64) {
		a := make([]float32, len(pts))
		for i := range pts {
			a[i] = float32(val(&pts[i]))
		}
		b.section("SCALARS %s float", name)
		b.section("LOOKUP_TABLE default")
		b.data(a)
	}
	b.section("POINT_DATA %d", len(pts))
	scalar("time", func(p *Particle) float64 { return p.Time / 86400. })
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		scalar(k, func(p *Particle) float64 {
			if v, ok := p.Vars[k]; ok {
				return v
			}
			return math.NaN()
		})
	}

	if err := os.WriteFile(fp, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("oceantrack: export vtk: %w", err)
	}
	return nil
}
