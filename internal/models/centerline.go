package models

import (
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// RootParent marks a branch that has no parent branch.
const RootParent = -1

// CenterlinePoint is a single centerline sample with its local vessel radius
type CenterlinePoint struct {
	// Position is the sample location in patient space (mm)
	Position r3.Vector

	// Radius is the local vessel half-diameter at this sample (mm)
	Radius float64
}

// RawLine is one independently traced centerline, from the shared proximal
// source to a single outlet. Positions, Radius and Arc are parallel arrays.
type RawLine struct {
	Positions []r3.Vector
	Radius    []float64

	// Arc is the cumulative arc length; filled in by the profiler
	Arc []float64
}

// Len returns the number of samples in the line
func (l RawLine) Len() int { return len(l.Positions) }

// Point returns the i-th sample as a CenterlinePoint
func (l RawLine) Point(i int) CenterlinePoint {
	return CenterlinePoint{Position: l.Positions[i], Radius: l.Radius[i]}
}

// Branch is the tree-decomposed form of a RawLine after overlap removal.
//
// Positions, Radius and Arc always have the same length. Arc keeps the values
// of the source line, so its first entry is generally not zero. Start and End
// bound the active window (inclusive) left after trimming both ends.
type Branch struct {
	Positions []r3.Vector
	Radius    []float64
	Arc       []float64

	// Parent is the arena index of the parent branch or RootParent
	Parent int

	// SplitIndex is the index in the parent's arrays where this branch diverges
	SplitIndex int

	// ChildSplits are the sorted local indices where descendant branches diverge
	ChildSplits []int

	// Start and End bound the trimmed active window (inclusive)
	Start int
	End   int

	// Source is the index of the RawLine this branch came from
	Source int

	// Offset is the index in the source line that became local index 0
	Offset int
}

// Len returns the number of samples in the branch
func (b *Branch) Len() int { return len(b.Arc) }

// IsRoot reports whether the branch has no parent
func (b *Branch) IsRoot() bool { return b.Parent == RootParent }

// Length returns the arc length covered by the branch arrays
func (b *Branch) Length() float64 {
	if len(b.Arc) == 0 {
		return 0
	}
	return b.Arc[len(b.Arc)-1] - b.Arc[0]
}

// StenosisCandidate is a half-open index range [Start, End) into a branch
// where the diameter stays below the threshold
type StenosisCandidate struct {
	Branch int
	Start  int
	End    int
}

// StenosisRecord is a quantified stenosis with its two landmarks.
type StenosisRecord struct {
	// ID is a stable identity for rendering collaborators
	ID uuid.UUID

	// Branch, Start and End repeat the originating candidate
	Branch int
	Start  int
	End    int

	// Minimum-diameter landmark
	MinIndex    int
	MinDiameter float64
	MinPosition r3.Vector
	MinNormal   r3.Vector

	// Reference landmark; the only part that moves on relocation
	RefIndex    int
	RefArc      float64
	RefDiameter float64
	RefPosition r3.Vector
	RefNormal   r3.Vector

	// Degree is the NASCET severity in percent
	Degree float64

	// Length is the arc length between Start and End (mm)
	Length float64

	// ColorSlot is the display slot, creation order modulo the palette size
	ColorSlot int
}

// Candidate returns the candidate range this record was derived from
func (r StenosisRecord) Candidate() StenosisCandidate {
	return StenosisCandidate{Branch: r.Branch, Start: r.Start, End: r.End}
}
