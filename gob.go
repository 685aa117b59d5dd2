package oceantrack

import (
	"encoding/gob"
	"fmt"
	"os"
)

// ExportPathlinesGob saves trajectories keyed by particle ID.
func ExportPathlinesGob(fp string, apl [][]Particle) error {
	mp := make(map[int][]Particle, len(apl))
	for _, pln := range apl {
		if len(pln) > 0 {
			mp[pln[0].ID] = pln
		}
	}
	f, err := os.Create(fp)
	if err != nil {
		return fmt.Errorf("oceantrack: export gob: %w", err)
	}
	defer f.Close()
	enc := gob.NewEncoder(f)
	if err := enc.Encode(mp); err != nil {
		return fmt.Errorf("oceantrack: export gob %s: %w", fp, err)
	}
	return f.Close()
}

// LoadPathlinesGob reads trajectories saved by ExportPathlinesGob
func LoadPathlinesGob(fp string) (map[int][]Particle, error) {
	var d map[int][]Particle
	f, err := os.Open(fp)
	if err != nil {
		return nil, fmt.Errorf("oceantrack: load gob: %w", err)
	}
	defer f.Close()
	enc := gob.NewDecoder(f)
	if err := enc.Decode(&d); err != nil {
		return nil, fmt.Errorf("oceantrack: load gob %s: %w", fp, err)
	}
	return d, nil
}
