// Package clip builds the implicit region that isolates a stenosis on the
// vessel surface mesh and applies it to a mesh.
//
// The region is a union of spheres sampled along the stenosis index range,
// intersected with two half-spaces capping the range ends. It is described
// by an implicit function that is negative inside, so any renderer can
// consume it without sharing state with this package.
package clip

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// Defaults for Options.
const (
	DefaultStride      = 10
	DefaultRadiusScale = 2.0
)

// Options controls how the predicate samples a stenosis
type Options struct {
	// Stride is the sample spacing between sphere centers
	Stride int

	// RadiusScale multiplies the largest radius in the range to give the
	// shared sphere radius
	RadiusScale float64

	// HalfWindow is the tangent stencil half-width for the capping planes
	HalfWindow int
}

// DefaultOptions returns the default sampling options
func DefaultOptions() Options {
	return Options{
		Stride:      DefaultStride,
		RadiusScale: DefaultRadiusScale,
		HalfWindow:  geometry.DefaultHalfWindow,
	}
}

// Sphere is a ball primitive of the clip region
type Sphere struct {
	Center r3.Vector
	Radius float64
}

// Evaluate returns |x-c|^2 - r^2
func (s Sphere) Evaluate(x r3.Vector) float64 {
	return x.Sub(s.Center).Norm2() - s.Radius*s.Radius
}

// Plane is a half-space whose normal points away from the kept side
type Plane struct {
	Origin r3.Vector
	Normal r3.Vector
}

// Evaluate returns the signed distance of x along the plane normal
func (p Plane) Evaluate(x r3.Vector) float64 {
	return p.Normal.Dot(x.Sub(p.Origin))
}

// Predicate is the implicit clip region of one stenosis
type Predicate struct {
	Spheres []Sphere

	// Planes cap the proximal and distal range ends
	Planes [2]Plane
}

// Build derives the clip predicate of a stenosis record from its branch
func Build(br *models.Branch, rec models.StenosisRecord, opts Options) (*Predicate, error) {
	return BuildRange(br, rec.Start, rec.End, opts)
}

// BuildRange derives the clip predicate of the index range [start, end)
func BuildRange(br *models.Branch, start, end int, opts Options) (*Predicate, error) {
	if start < 0 || end >= br.Len() || end <= start {
		return nil, fmt.Errorf("range [%d, %d) outside branch of %d samples", start, end, br.Len())
	}
	if opts.Stride < 1 {
		opts.Stride = DefaultStride
	}
	if opts.RadiusScale <= 0 {
		opts.RadiusScale = DefaultRadiusScale
	}

	radius := opts.RadiusScale * floats.Max(br.Radius[start:end])
	if !(radius > 0) {
		return nil, &geometry.InvalidGeometryError{Reason: "clip sphere radius is not positive"}
	}

	pred := &Predicate{}
	for k := start; k < end; k += opts.Stride {
		pred.Spheres = append(pred.Spheres, Sphere{Center: br.Positions[k], Radius: radius})
	}

	proximal, err := geometry.Normal(br.Positions, start, opts.HalfWindow)
	if err != nil {
		return nil, fmt.Errorf("proximal cap: %w", err)
	}
	distal, err := geometry.Normal(br.Positions, end, opts.HalfWindow)
	if err != nil {
		return nil, fmt.Errorf("distal cap: %w", err)
	}
	pred.Planes[0] = Plane{Origin: br.Positions[start], Normal: proximal.Mul(-1)}
	pred.Planes[1] = Plane{Origin: br.Positions[end], Normal: distal}

	return pred, nil
}

// Evaluate returns the implicit value at x: the sphere union intersected with
// both half-spaces. Negative values lie inside the region.
func (p *Predicate) Evaluate(x r3.Vector) float64 {
	union := math.Inf(1)
	for _, s := range p.Spheres {
		union = math.Min(union, s.Evaluate(x))
	}
	return math.Max(union, math.Max(p.Planes[0].Evaluate(x), p.Planes[1].Evaluate(x)))
}

// Contains reports whether x is kept by the clip, which keeps the inside of
// the region
func (p *Predicate) Contains(x r3.Vector) bool {
	return p.Evaluate(x) <= 0
}
