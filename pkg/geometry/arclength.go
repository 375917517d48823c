// Package geometry provides the small set of centerline geometry primitives
// used by the stenosis pipeline: cumulative arc length, finite-difference
// tangent estimates and arc-length lookups.
package geometry

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
)

// ArcLength converts an ordered point sequence into cumulative Euclidean arc
// length. The result has the same length as points and starts at 0.
func ArcLength(points []r3.Vector) ([]float64, error) {
	if len(points) < 2 {
		return nil, &DegenerateInputError{Points: len(points)}
	}

	steps := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		steps[i] = points[i].Distance(points[i-1])
	}

	return floats.CumSum(make([]float64, len(points)), steps), nil
}

// IndexAtArc returns the index of the first sample whose arc value is not
// less than s, clamped to [0, len(arc)-1]. arc must be non-decreasing.
func IndexAtArc(arc []float64, s float64) int {
	if len(arc) == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(arc, s)
	if idx >= len(arc) {
		idx = len(arc) - 1
	}
	return idx
}

// LastIndexAtOrBefore returns the index of the last sample whose arc value is
// not greater than s, or -1 if every sample lies beyond s.
func LastIndexAtOrBefore(arc []float64, s float64) int {
	return sort.Search(len(arc), func(i int) bool { return arc[i] > s }) - 1
}
