package oceantrack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maseology/mmio"
	geojson "github.com/paulmach/go.geojson"
)

// ExportCSV saves trajectories as id,lon,lat,depth,time rows.
func ExportCSV(fp string, apl [][]Particle) error {
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return fmt.Errorf("oceantrack: export csv: %w", err)
	}
	csvw := mmio.NewCSVwriter(fp)
	defer csvw.Close()
	csvw.WriteHead("id,lon,lat,depth,time")
	for _, pln := range apl {
		for _, p := range pln {
			if err := csvw.WriteLine(p.ID, p.Lon, p.Lat, p.Depth, p.Time); err != nil {
				return fmt.Errorf("oceantrack: export csv: %w", err)
			}
		}
	}
	return nil
}

// SaveGeojson saves trajectories as a feature collection, either one point per
// observation or one linestring per particle.
func SaveGeojson(fp string, apl [][]Particle, asLines bool) error {
	fc := geojson.NewFeatureCollection()
	if asLines {
		for _, pln := range apl {
			if len(pln) == 0 {
				continue
			}
			coords := make([][]float64, len(pln))
			for j, p := range pln {
				coords[j] = []float64{p.Lon, p.Lat, p.Depth}
			}
			f := geojson.NewLineStringFeature(coords)
			f.SetProperty("pid", pln[0].ID)
			f.SetProperty("t0", pln[0].Time)
			f.SetProperty("t1", pln[len(pln)-1].Time)
			fc.AddFeature(f)
		}
	} else {
		for _, pln := range apl {
			for j, p := range pln {
				f := geojson.NewPointFeature([]float64{p.Lon, p.Lat, p.Depth})
				f.SetProperty("pid", p.ID)
				f.SetProperty("time", p.Time/86400.) // days
				f.SetProperty("vid", j)
				for k, v := range p.Vars {
					f.SetProperty(k, v)
				}
				fc.AddFeature(f)
			}
		}
	}

	rawJSON, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("oceantrack: geojson: %w", err)
	}
	if err := mmio.WriteString(fp, string(rawJSON)+"\n"); err != nil {
		return fmt.Errorf("oceantrack: geojson: %w", err)
	}
	return nil
}
