// Package scene persists the single most severe stenosis of a report as a
// small YAML key/value document.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"vesselstenosis/internal/models"
)

// ErrNothingToSave is returned when there is no stenosis to describe
var ErrNothingToSave = errors.New("nothing to save")

// Vec3 is a position or direction encoded as a three-element list
type Vec3 [3]float64

// VecFrom converts an r3.Vector
func VecFrom(v r3.Vector) Vec3 { return Vec3{v.X, v.Y, v.Z} }

// Vector converts back to an r3.Vector
func (v Vec3) Vector() r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }

// Record describes the worst stenosis of the primary branch
type Record struct {
	DiameterThreshold    float64 `yaml:"diameter_threshold"`
	StenosisDegree       float64 `yaml:"stenosis_degree"`
	StenosisLength       float64 `yaml:"stenosis_length"`
	StenosisMinPosition  Vec3    `yaml:"stenosis_min_position,flow"`
	StenosisMinNormal    Vec3    `yaml:"stenosis_min_normal,flow"`
	ReferenceArcPosition float64 `yaml:"reference_arc_position"`
	ReferencePosition    Vec3    `yaml:"reference_position,flow"`
	ReferenceNormal      Vec3    `yaml:"reference_normal,flow"`
}

// FromStenosis builds the scene record of a stenosis detected at threshold
func FromStenosis(threshold float64, rec models.StenosisRecord) Record {
	return Record{
		DiameterThreshold:    threshold,
		StenosisDegree:       rec.Degree,
		StenosisLength:       rec.Length,
		StenosisMinPosition:  VecFrom(rec.MinPosition),
		StenosisMinNormal:    VecFrom(rec.MinNormal),
		ReferenceArcPosition: rec.RefArc,
		ReferencePosition:    VecFrom(rec.RefPosition),
		ReferenceNormal:      VecFrom(rec.RefNormal),
	}
}

// Marshal encodes the record as YAML
func Marshal(rec Record) ([]byte, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("error marshaling scene: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a YAML scene document
func Unmarshal(data []byte) (Record, error) {
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("error parsing scene: %w", err)
	}
	return rec, nil
}

// Save writes the record to path, creating its directory if needed
func Save(path string, rec Record) error {
	data, err := Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating scene directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing scene file: %w", err)
	}
	return nil
}

// Load reads a record from path
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("error reading scene file: %w", err)
	}
	return Unmarshal(data)
}
