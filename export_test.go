package oceantrack

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrajectories() [][]Particle {
	return [][]Particle{
		{
			{ID: 7, Lon: 180, Lat: 10, Depth: 2.5, Time: 0},
			{ID: 7, Lon: 179, Lat: 10.2, Depth: 2.5, Time: 86400, Vars: map[string]float64{"T": 28.1}},
			{ID: 7, Lon: 178, Lat: 10.4, Depth: 2.5, Time: 172800, Vars: map[string]float64{"T": 28.3}},
		},
		{
			{ID: 9, Lon: 175, Lat: 5, Depth: 2.5, Time: 0},
			{ID: 9, Lon: 174.5, Lat: 5.1, Depth: 2.5, Time: 86400},
		},
	}
}

func TestPathlinesGob(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "pathlines.gob")
	trajs := testTrajectories()
	require.NoError(t, ExportPathlinesGob(fp, trajs))

	got, err := LoadPathlinesGob(fp)
	require.NoError(t, err)
	want := map[int][]Particle{7: trajs[0], 9: trajs[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gob round trip (-want +got):\n%s", diff)
	}

	_, err = LoadPathlinesGob(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
}

func TestSaveGeojson(t *testing.T) {
	dir := t.TempDir()
	trajs := testTrajectories()

	pts := filepath.Join(dir, "points.geojson")
	require.NoError(t, SaveGeojson(pts, trajs, false))
	b, err := os.ReadFile(pts)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	require.Len(t, fc.Features, 5)
	assert.True(t, fc.Features[0].Geometry.IsPoint())
	assert.Equal(t, []float64{180, 10, 2.5}, fc.Features[0].Geometry.Point)
	assert.Equal(t, 1., fc.Features[1].Properties["time"])
	assert.Equal(t, 28.1, fc.Features[1].Properties["T"])

	lns := filepath.Join(dir, "lines.geojson")
	require.NoError(t, SaveGeojson(lns, trajs, true))
	b, err = os.ReadFile(lns)
	require.NoError(t, err)
	fc, err = geojson.UnmarshalFeatureCollection(b)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.True(t, fc.Features[0].Geometry.IsLineString())
	assert.Len(t, fc.Features[0].Geometry.LineString, 3)
	assert.Equal(t, 9., fc.Features[1].Properties["pid"])
}

func TestExportVTKpathlines(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "pathlines.vtk")
	require.NoError(t, ExportVTKpathlines(fp, testTrajectories()))
	b, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("# vtk DataFile Version 3.0\n")))
	assert.Contains(t, string(b), "POINTS 5 float\n")
	assert.Contains(t, string(b), "\nCELLS 2 7\n")
	assert.Contains(t, string(b), "\nPOINT_DATA 5\n")
	assert.Contains(t, string(b), "\nCELL_DATA 2\nSCALARS pid int\n")
	assert.Contains(t, string(b), "\nSCALARS time float\n")
	assert.Contains(t, string(b), "\nSCALARS T float\n", "sampled variables written as point data")

	_, pts, ok := bytes.Cut(b, []byte("POINTS 5 float\n"))
	require.True(t, ok)
	xyz := make([]float32, 15)
	require.NoError(t, binary.Read(bytes.NewReader(pts), binary.BigEndian, xyz))
	assert.Equal(t, []float32{180, 10, -2.5}, xyz[:3])

	_, tv, ok := bytes.Cut(b, []byte("SCALARS T float\nLOOKUP_TABLE default\n"))
	require.True(t, ok)
	temp := make([]float32, 5)
	require.NoError(t, binary.Read(bytes.NewReader(tv), binary.BigEndian, temp))
	assert.True(t, math.IsNaN(float64(temp[0])), "not sampled")
	assert.Equal(t, float32(28.1), temp[1])
}

func TestExportCSV(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "out", "pathlines.csv")
	require.NoError(t, ExportCSV(fp, testTrajectories()))
	b, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("id,lon,lat,depth,time")))
	assert.Contains(t, string(b), "174.5")
}
