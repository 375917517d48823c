package geometry

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks. The typed errors below unwrap to them.
var (
	ErrDegenerateInput = errors.New("degenerate input")
	ErrBoundaryNormal  = errors.New("normal requested too close to array boundary")
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// DegenerateInputError is returned when a point sequence is too short to
// describe a line.
type DegenerateInputError struct {
	// Points is the number of points that were supplied
	Points int

	// Reason optionally describes what else was wrong with the input
	Reason string
}

func (e *DegenerateInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("degenerate input (%d points): %s", e.Points, e.Reason)
	}
	return fmt.Sprintf("degenerate input: need at least 2 points, got %d", e.Points)
}

func (e *DegenerateInputError) Unwrap() error { return ErrDegenerateInput }

// BoundaryNormalError is returned when a local axis normal is requested at an
// index whose finite-difference stencil would leave the array.
type BoundaryNormalError struct {
	Index  int
	Length int
	Half   int
}

func (e *BoundaryNormalError) Error() string {
	return fmt.Sprintf("cannot estimate normal at index %d: within %d samples of the boundary of a %d-sample array",
		e.Index, e.Half, e.Length)
}

func (e *BoundaryNormalError) Unwrap() error { return ErrBoundaryNormal }

// InvalidGeometryError reports geometry for which a derived quantity is
// undefined, such as a zero reference diameter.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return "invalid geometry: " + e.Reason
}

func (e *InvalidGeometryError) Unwrap() error { return ErrInvalidGeometry }
