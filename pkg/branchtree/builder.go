// Package branchtree reconstructs a vessel branch tree from independently
// traced, mutually overlapping centerline polylines.
//
// Every traced line starts at the shared proximal source. Two lines of the
// same tree coincide point for point over their common proximal segment and
// diverge exactly at a branch point. The builder finds those divergence
// points, removes the overlapping prefixes, discards branches that are too
// short to be reliable and trims a small margin from both ends of what is
// left.
package branchtree

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/golang/geo/r3"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// Defaults for the builder parameters, in mm.
const (
	DefaultMinBranchLength = 20.0
	DefaultEndCutoff       = 1.0
)

// Builder holds the parameters of the branch tree reconstruction
type Builder struct {
	// MinBranchLength discards branches whose arc span is shorter than this
	MinBranchLength float64

	// EndCutoff is the arc distance trimmed from both ends of every branch
	EndCutoff float64

	// Tolerance is the maximum distance at which two samples are considered
	// the same point. Zero requires exact floating point coincidence.
	Tolerance float64

	// Logger receives diagnostic output; nil means slog.Default()
	Logger *slog.Logger
}

// NewBuilder creates a builder with the default parameters
func NewBuilder() *Builder {
	return &Builder{
		MinBranchLength: DefaultMinBranchLength,
		EndCutoff:       DefaultEndCutoff,
	}
}

// Build decomposes the raw lines into a branch tree.
//
// Lines without Arc values are profiled first. A line that shares no prefix
// with any earlier line is a root; that is not an error.
func (b *Builder) Build(lines []models.RawLine) (*Tree, error) {
	logger := b.logger()

	prepared := make([]models.RawLine, len(lines))
	for i, line := range lines {
		p, err := prepareLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		prepared[i] = p
	}

	// Step 1-2: best divergence per line, measured on the untruncated lines
	parent := make([]int, len(prepared))
	split := make([]int, len(prepared))
	for j := range parent {
		parent[j] = models.RootParent
	}
	for i := 0; i < len(prepared); i++ {
		for j := i + 1; j < len(prepared); j++ {
			d := b.divergence(prepared[i].Positions, prepared[j].Positions)
			if d > 0 && d > split[j] {
				parent[j] = i
				split[j] = d
			}
		}
	}

	branches := make([]models.Branch, len(prepared))
	for j, line := range prepared {
		off := split[j]
		branches[j] = models.Branch{
			Positions:  line.Positions[off:],
			Radius:     line.Radius[off:],
			Arc:        line.Arc[off:],
			Parent:     parent[j],
			SplitIndex: off,
			Source:     j,
			Offset:     off,
		}
	}

	// Step 3: drop short branches and null out their role as a parent
	keep := make([]bool, len(branches))
	for j := range branches {
		br := &branches[j]
		keep[j] = br.Len() >= 2 && br.Length() >= b.MinBranchLength
		if !keep[j] {
			logger.Debug("discarding short branch", "line", j, "samples", br.Len(), "length", br.Length())
		}
	}
	for j := range branches {
		if p := branches[j].Parent; p != models.RootParent && !keep[p] {
			logger.Debug("parent branch discarded, branch becomes a root", "line", j, "parent", p)
			branches[j].Parent = models.RootParent
			branches[j].SplitIndex = 0
		}
	}

	remap := make([]int, len(branches))
	tree := &Tree{}
	for j := range branches {
		if !keep[j] {
			remap[j] = -1
			continue
		}
		remap[j] = len(tree.Branches)
		tree.Branches = append(tree.Branches, branches[j])
	}

	for k := range tree.Branches {
		br := &tree.Branches[k]
		if br.Parent == models.RootParent {
			continue
		}
		br.SplitIndex -= branches[br.Parent].Offset
		br.Parent = remap[br.Parent]
	}

	// Step 4: trim the unreliable ends by arc length
	for k := range tree.Branches {
		b.trimEnds(&tree.Branches[k])
	}

	// Step 5: split indices of descendants on each parent
	for k := range tree.Branches {
		br := &tree.Branches[k]
		if br.Parent == models.RootParent {
			continue
		}
		p := &tree.Branches[br.Parent]
		p.ChildSplits = append(p.ChildSplits, br.SplitIndex)
	}
	for k := range tree.Branches {
		tree.Branches[k].ChildSplits = uniqueSorted(tree.Branches[k].ChildSplits)
	}

	logger.Info("branch tree built",
		"lines", len(lines),
		"branches", len(tree.Branches),
		"roots", len(tree.Roots()),
	)

	return tree, nil
}

// divergence returns the first index at which the two point sequences differ
// over their common length, or 0 if they never differ there. A line that is
// a prefix of the other, or a duplicate of it, does not branch off it.
func (b *Builder) divergence(a, c []r3.Vector) int {
	n := min(len(a), len(c))
	for k := 0; k < n; k++ {
		if !b.samePoint(a[k], c[k]) {
			return k
		}
	}
	return 0
}

func (b *Builder) samePoint(p, q r3.Vector) bool {
	if b.Tolerance <= 0 {
		return p == q
	}
	return p.Distance(q) <= b.Tolerance
}

// trimEnds sets the active window so that EndCutoff of arc length is removed
// from both ends of the branch
func (b *Builder) trimEnds(br *models.Branch) {
	last := br.Len() - 1
	if last < 0 {
		return
	}
	br.Start = geometry.IndexAtArc(br.Arc, br.Arc[0]+b.EndCutoff)
	br.End = geometry.LastIndexAtOrBefore(br.Arc, br.Arc[last]-b.EndCutoff)
	if br.End < br.Start {
		br.End = br.Start
	}
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// prepareLine validates array lengths and fills in arc length if missing
func prepareLine(line models.RawLine) (models.RawLine, error) {
	if len(line.Positions) < 2 {
		return line, &geometry.DegenerateInputError{Points: len(line.Positions)}
	}
	if len(line.Radius) != len(line.Positions) {
		return line, &geometry.DegenerateInputError{
			Points: len(line.Positions),
			Reason: fmt.Sprintf("radius array has %d entries", len(line.Radius)),
		}
	}
	if line.Arc == nil {
		arc, err := geometry.ArcLength(line.Positions)
		if err != nil {
			return line, err
		}
		line.Arc = arc
	}
	if len(line.Arc) != len(line.Positions) {
		return line, &geometry.DegenerateInputError{
			Points: len(line.Positions),
			Reason: fmt.Sprintf("arc length array has %d entries", len(line.Arc)),
		}
	}
	return line, nil
}

func uniqueSorted(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	sort.Ints(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
