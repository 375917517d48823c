package cli

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/centerline"
	"vesselstenosis/pkg/config"
	"vesselstenosis/pkg/stl"
)

// run executes the root command with args and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeTrunk stores a straight 80 mm centerline along z with radius 3,
// narrowed to 1.2 over samples [60, 70)
func writeTrunk(t *testing.T, dir string) string {
	t.Helper()
	line := models.RawLine{}
	for i := 0; i <= 160; i++ {
		line.Positions = append(line.Positions, r3.Vector{Z: 0.5 * float64(i)})
		r := 3.0
		if i >= 60 && i < 70 {
			r = 1.2
		}
		line.Radius = append(line.Radius, r)
	}
	path := filepath.Join(dir, "lines.yaml")
	require.NoError(t, centerline.Save(path, []models.RawLine{line}))
	return path
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "vesselstenosis.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestAnalyzeAndScene(t *testing.T) {
	dir := t.TempDir()
	lines := writeTrunk(t, dir)
	scenePath := filepath.Join(dir, "scene.yaml")
	cfgPath := filepath.Join(dir, "missing.yaml")

	out, err := run(t, "--config", cfgPath, "--log-level", "ERROR",
		"analyze", lines, "--threshold", "4", "--scene", scenePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Branches: 1 (primary 0)")
	assert.Contains(t, out, "Stenoses: 1")
	assert.Contains(t, out, "60.0%")

	out, err = run(t, "--config", cfgPath, "scene", "show", scenePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Diameter threshold:  4.00 mm")
	assert.Contains(t, out, "Reference arc:       37.50 mm")

	out, err = run(t, "--config", cfgPath, "--log-level", "ERROR", "scene", "apply", lines, scenePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored stenosis [60, 70) on branch 0")
}

func TestClipCommand(t *testing.T) {
	dir := t.TempDir()
	lines := writeTrunk(t, dir)

	cfg := config.DefaultConfig()
	cfg.Clip.RadiusScale = 4
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	var tris []stl.Triangle
	const rings, sectors = 160, 16
	point := func(ring, sector int) r3.Vector {
		a := 2 * math.Pi * float64(sector%sectors) / sectors
		return r3.Vector{X: 3 * math.Cos(a), Y: 3 * math.Sin(a), Z: 0.5 * float64(ring)}
	}
	for r := 0; r < rings; r++ {
		for s := 0; s < sectors; s++ {
			a, b := point(r, s), point(r+1, s)
			c, d := point(r+1, s+1), point(r, s+1)
			tris = append(tris, stl.NewTriangle(a, b, c), stl.NewTriangle(a, c, d))
		}
	}
	meshPath := filepath.Join(dir, "vessel.stl")
	require.NoError(t, stl.SaveToSTL(meshPath, tris))

	outPath := filepath.Join(dir, "clip.stl")
	out, err := run(t, "--config", cfgPath, "--log-level", "ERROR",
		"clip", lines, meshPath, outPath, "--threshold", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "branch 0 record 0")

	clipped, err := stl.ReadSTL(outPath)
	require.NoError(t, err)
	assert.NotZero(t, clipped.Len())
	assert.Less(t, clipped.Len(), len(tris))
}

func TestAnalyzeMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "--log-level", "ERROR",
		"analyze", filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}
