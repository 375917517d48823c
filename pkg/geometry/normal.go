package geometry

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"
)

// DefaultHalfWindow is the stencil half-width used for tangent estimates.
const DefaultHalfWindow = 5

// Normal estimates the local vessel-axis direction at index k as the
// normalized mean of positions[k+m] - positions[k-half+m] for m = 0..half.
//
// Indices closer than half samples to either end of positions have no
// complete stencil and yield a *BoundaryNormalError. A stencil spanning
// coincident points yields an *InvalidGeometryError instead of a zero vector.
func Normal(positions []r3.Vector, k, half int) (r3.Vector, error) {
	n := len(positions)
	if half < 1 {
		half = DefaultHalfWindow
	}
	if k < half || k > n-1-half {
		return r3.Vector{}, &BoundaryNormalError{Index: k, Length: n, Half: half}
	}

	dx := make([]float64, half+1)
	dy := make([]float64, half+1)
	dz := make([]float64, half+1)
	for m := 0; m <= half; m++ {
		d := positions[k+m].Sub(positions[k-half+m])
		dx[m], dy[m], dz[m] = d.X, d.Y, d.Z
	}

	mean := r3.Vector{X: stat.Mean(dx, nil), Y: stat.Mean(dy, nil), Z: stat.Mean(dz, nil)}
	if mean.Norm2() == 0 {
		return r3.Vector{}, &InvalidGeometryError{Reason: "zero-length tangent: stencil points coincide"}
	}
	return mean.Normalize(), nil
}
