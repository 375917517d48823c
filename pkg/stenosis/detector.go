// Package stenosis detects and quantifies vessel narrowings on a single
// branch of the centerline tree.
//
// Detection works on the radius profile only: a diameter threshold splits
// the active window of a branch into healthy and narrowed runs, and every
// narrowed run that is safely away from the window edges becomes a
// candidate. Quantification then locates the minimum-diameter landmark and a
// downstream reference landmark and computes the NASCET degree.
package stenosis

import (
	"vesselstenosis/internal/models"
)

// DefaultEdgeMargin is the number of samples a candidate must keep from both
// window edges.
const DefaultEdgeMargin = 10

// Window is an inclusive index range of a branch searched for candidates
type Window struct {
	Start int
	End   int
}

// Range is a half-open index range [Start, End)
type Range struct {
	Start int
	End   int
}

// Detector finds narrowed index ranges in a radius profile
type Detector struct {
	// EdgeMargin rejects ranges starting or ending within this many samples
	// of the window edges
	EdgeMargin int
}

// NewDetector creates a detector with the default edge margin
func NewDetector() *Detector {
	return &Detector{EdgeMargin: DefaultEdgeMargin}
}

// Windows splits the active window of a branch at every child split index
// strictly inside it. Searching each piece separately keeps candidates away
// from branch points.
func Windows(br *models.Branch) []Window {
	if br.Len() == 0 || br.End <= br.Start {
		return nil
	}

	var windows []Window
	start := br.Start
	for _, s := range br.ChildSplits {
		if s <= start || s >= br.End {
			continue
		}
		windows = append(windows, Window{Start: start, End: s})
		start = s
	}
	return append(windows, Window{Start: start, End: br.End})
}

// Detect returns the accepted narrowed ranges of radius inside w for the given
// diameter threshold, in index order.
//
// A sample is healthy when its radius is at least diameter/2. The last sample
// of the window is always treated as healthy so that a trailing narrowed run
// is closed at the window edge, where the edge rules then reject it.
func (d *Detector) Detect(radius []float64, diameter float64, w Window) []Range {
	if w.Start < 0 || w.End >= len(radius) || w.End-w.Start < 1 {
		return nil
	}

	threshold := diameter / 2
	n := w.End - w.Start + 1
	healthy := make([]int, n)
	for i := 0; i < n; i++ {
		if radius[w.Start+i] >= threshold {
			healthy[i] = 1
		}
	}
	healthy[n-1] = 1

	var starts, ends []int
	for i := 0; i+1 < n; i++ {
		switch healthy[i+1] - healthy[i] {
		case -1:
			starts = append(starts, w.Start+i+1)
		case 1:
			ends = append(ends, w.Start+i+1)
		}
	}

	// a window that opens narrowed has a closing step without an opening one
	if len(ends) > 0 && (len(starts) == 0 || ends[0] <= starts[0]) {
		ends = ends[1:]
	}
	count := min(len(starts), len(ends))

	var ranges []Range
	for i := 0; i < count; i++ {
		r := Range{Start: starts[i], End: ends[i]}
		if d.touchesEdge(r, w) {
			continue
		}
		ranges = append(ranges, r)
	}
	return ranges
}

func (d *Detector) touchesEdge(r Range, w Window) bool {
	if r.Start == w.Start || r.End == w.End {
		return true
	}
	return r.Start-w.Start < d.EdgeMargin || w.End-r.End < d.EdgeMargin
}

// DetectBranch runs Detect over every window of the branch and returns the
// candidates in index order
func (d *Detector) DetectBranch(index int, br *models.Branch, diameter float64) []models.StenosisCandidate {
	var candidates []models.StenosisCandidate
	for _, w := range Windows(br) {
		for _, r := range d.Detect(br.Radius, diameter, w) {
			candidates = append(candidates, models.StenosisCandidate{Branch: index, Start: r.Start, End: r.End})
		}
	}
	return candidates
}
