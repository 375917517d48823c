// Package centerline reads and writes traced centerline sets.
//
// The document is YAML with one entry per traced line, each holding parallel
// position and radius arrays:
//
//	lines:
//	  - positions: [[0, 0, 0], [0, 0, 0.5], ...]
//	    radius: [3.1, 3.1, ...]
package centerline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// Document is the on-disk form of a centerline set
type Document struct {
	Lines []Line `yaml:"lines"`
}

// Line is one traced centerline
type Line struct {
	Positions [][3]float64 `yaml:"positions,flow"`
	Radius    []float64    `yaml:"radius,flow"`
}

// Decode parses a centerline document and profiles the arc length of every
// line
func Decode(data []byte) ([]models.RawLine, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing centerline document: %w", err)
	}

	lines := make([]models.RawLine, 0, len(doc.Lines))
	for i, l := range doc.Lines {
		if len(l.Radius) != len(l.Positions) {
			return nil, fmt.Errorf("line %d: %d positions but %d radii", i, len(l.Positions), len(l.Radius))
		}
		raw := models.RawLine{
			Positions: make([]r3.Vector, len(l.Positions)),
			Radius:    append([]float64(nil), l.Radius...),
		}
		for k, p := range l.Positions {
			raw.Positions[k] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
		}
		arc, err := geometry.ArcLength(raw.Positions)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		raw.Arc = arc
		lines = append(lines, raw)
	}
	return lines, nil
}

// Encode converts raw lines into a centerline document
func Encode(lines []models.RawLine) ([]byte, error) {
	doc := Document{Lines: make([]Line, len(lines))}
	for i, raw := range lines {
		if len(raw.Radius) != raw.Len() {
			return nil, fmt.Errorf("line %d: %d positions but %d radii", i, raw.Len(), len(raw.Radius))
		}
		var l Line
		for k := 0; k < raw.Len(); k++ {
			p := raw.Point(k)
			l.Positions = append(l.Positions, [3]float64{p.Position.X, p.Position.Y, p.Position.Z})
			l.Radius = append(l.Radius, p.Radius)
		}
		doc.Lines[i] = l
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("error marshaling centerline document: %w", err)
	}
	return data, nil
}

// Load reads a centerline document from path
func Load(path string) ([]models.RawLine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading centerline file: %w", err)
	}
	return Decode(data)
}

// Save writes lines to path as a centerline document
func Save(path string, lines []models.RawLine) error {
	data, err := Encode(lines)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating centerline directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing centerline file: %w", err)
	}
	return nil
}
