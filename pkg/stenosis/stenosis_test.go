package stenosis

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// straightBranch creates a branch of n samples along x, spacing 0.5 mm, with
// a healthy radius of 5 and the given narrowed runs set to radius 2
func straightBranch(t *testing.T, n int, narrowed ...Range) *models.Branch {
	t.Helper()
	br := &models.Branch{Parent: models.RootParent, Start: 2, End: n - 3}
	for i := 0; i < n; i++ {
		br.Positions = append(br.Positions, r3.Vector{X: float64(i) * 0.5})
		br.Radius = append(br.Radius, 5)
	}
	for _, r := range narrowed {
		for i := r.Start; i < r.End; i++ {
			br.Radius[i] = 2
		}
	}
	arc, err := geometry.ArcLength(br.Positions)
	require.NoError(t, err)
	br.Arc = arc
	return br
}

func TestDetectSyntheticProfile(t *testing.T) {
	radius := []float64{5, 5, 5, 2, 2, 2, 5, 5, 5}
	d := &Detector{EdgeMargin: 0}

	ranges := d.Detect(radius, 6, Window{Start: 0, End: len(radius) - 1})
	require.Len(t, ranges, 1)
	assert.Equal(t, Range{Start: 3, End: 6}, ranges[0])
}

func TestDetectEdgeRules(t *testing.T) {
	d := NewDetector()
	w := Window{Start: 0, End: 99}

	cases := []struct {
		name    string
		profile Range
		want    int
	}{
		{"interior", Range{40, 50}, 1},
		{"opens narrowed", Range{0, 30}, 0},
		{"runs to window end", Range{80, 100}, 0},
		{"within start margin", Range{5, 20}, 0},
		{"within end margin", Range{70, 92}, 0},
		{"exactly at margin", Range{10, 89}, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			br := straightBranch(t, 100, c.profile)
			assert.Len(t, d.Detect(br.Radius, 6, w), c.want)
		})
	}
}

func TestDetectNoCandidates(t *testing.T) {
	br := straightBranch(t, 100)
	assert.Empty(t, NewDetector().DetectBranch(0, br, 6))
}

func TestWindowsSplitAtChildren(t *testing.T) {
	br := straightBranch(t, 100)
	br.ChildSplits = []int{1, 40, 60, 98}

	windows := Windows(br)
	assert.Equal(t, []Window{{2, 40}, {40, 60}, {60, 97}}, windows)
}

func TestDetectBranchIgnoresNarrowingAcrossSplit(t *testing.T) {
	br := straightBranch(t, 100, Range{50, 70})
	br.ChildSplits = []int{60}

	assert.Empty(t, NewDetector().DetectBranch(0, br, 6))

	br.ChildSplits = nil
	assert.Len(t, NewDetector().DetectBranch(0, br, 6), 1)
}

func TestQuantifyNASCET(t *testing.T) {
	br := straightBranch(t, 100, Range{40, 50})
	br.Radius[44] = 1

	rec, err := NewQuantifier().Quantify(br, models.StenosisCandidate{Branch: 3, Start: 40, End: 50})
	require.NoError(t, err)

	assert.Equal(t, 44, rec.MinIndex)
	assert.Equal(t, 2.0, rec.MinDiameter)
	assert.Equal(t, 55, rec.RefIndex)
	assert.Equal(t, 10.0, rec.RefDiameter)
	assert.Equal(t, 80.0, rec.Degree)
	assert.InDelta(t, 5.0, rec.Length, 1e-12)
	assert.Equal(t, br.Positions[44], rec.MinPosition)
	assert.InDelta(t, 1.0, rec.MinNormal.X, 1e-12)
	assert.InDelta(t, 1.0, rec.RefNormal.X, 1e-12)
	assert.Equal(t, br.Arc[55], rec.RefArc)
	assert.Equal(t, 3, rec.Branch)
	assert.Equal(t, RecordID(rec.Candidate()), rec.ID)
}

func TestDegree(t *testing.T) {
	d, err := Degree(2, 10)
	require.NoError(t, err)
	assert.Equal(t, 80.0, d)

	_, err = Degree(2, 0)
	var invalid *geometry.InvalidGeometryError
	assert.ErrorAs(t, err, &invalid)
}

func TestQuantifyZeroReference(t *testing.T) {
	br := straightBranch(t, 100, Range{40, 50})
	br.Radius[55] = 0

	_, err := NewQuantifier().Quantify(br, models.StenosisCandidate{Start: 40, End: 50})
	assert.True(t, errors.Is(err, geometry.ErrInvalidGeometry))
}

func TestDefaultReferenceIndexClamped(t *testing.T) {
	assert.Equal(t, 55, DefaultReferenceIndex(models.StenosisCandidate{Start: 40, End: 50}, 100))
	assert.Equal(t, 98, DefaultReferenceIndex(models.StenosisCandidate{Start: 60, End: 95}, 100))
}

func TestRecomputeIdempotent(t *testing.T) {
	br := straightBranch(t, 100, Range{20, 30}, Range{50, 60})

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	first, err := state.Recompute(6)
	require.NoError(t, err)
	require.Len(t, first, 2)
	candidates := state.Candidates()

	again, err := state.Recompute(6)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, candidates, state.Candidates())

	fresh := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	rebuilt, err := fresh.Recompute(6)
	require.NoError(t, err)
	assert.Equal(t, first, rebuilt)
}

func TestRecomputeReplacesState(t *testing.T) {
	br := straightBranch(t, 100, Range{20, 30}, Range{50, 60})
	br.Radius[55] = 1

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	recs, err := state.Recompute(6)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// only the deeper narrowing survives a lower threshold
	recs, err = state.Recompute(3)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 55, recs[0].Start)
	assert.Equal(t, 0, recs[0].ColorSlot, "color counter restarts on rebuild")
	assert.Equal(t, 3.0, state.Threshold())
}

func TestRecomputeColorSlots(t *testing.T) {
	br := straightBranch(t, 120, Range{15, 25}, Range{45, 55}, Range{75, 85})

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 2)
	recs, err := state.Recompute(6)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, []int{0, 1, 0}, []int{recs[0].ColorSlot, recs[1].ColorSlot, recs[2].ColorSlot})
}

func TestRecomputeIsolatesCandidateFailures(t *testing.T) {
	br := straightBranch(t, 100, Range{20, 30}, Range{70, 88})
	br.End = 98

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	recs, err := state.Recompute(6)

	require.Error(t, err)
	assert.True(t, errors.Is(err, geometry.ErrBoundaryNormal))
	require.Len(t, recs, 1)
	assert.Equal(t, 20, recs[0].Start)
	assert.Len(t, state.Candidates(), 1)
}

func TestMoveReferenceOnlyChangesReference(t *testing.T) {
	br := straightBranch(t, 100, Range{40, 50})
	br.Radius[70] = 4

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	recs, err := state.Recompute(6)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	before := recs[0]

	moved, err := state.MoveReference(0, br.Arc[70])
	require.NoError(t, err)

	assert.Equal(t, 70, moved.RefIndex)
	assert.Equal(t, 8.0, moved.RefDiameter)
	assert.Equal(t, 75.0, moved.Degree)
	assert.Equal(t, br.Positions[70], moved.RefPosition)

	assert.Equal(t, before.MinIndex, moved.MinIndex)
	assert.Equal(t, before.MinDiameter, moved.MinDiameter)
	assert.Equal(t, before.Start, moved.Start)
	assert.Equal(t, before.End, moved.End)
	assert.Equal(t, before.Length, moved.Length)
	assert.Equal(t, before.ID, moved.ID)
	assert.Equal(t, before.ColorSlot, moved.ColorSlot)
}

func TestMoveReferenceNearBoundary(t *testing.T) {
	br := straightBranch(t, 100, Range{40, 50})

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	recs, err := state.Recompute(6)
	require.NoError(t, err)

	_, err = state.MoveReference(0, br.Arc[len(br.Arc)-1]+10)
	var boundary *geometry.BoundaryNormalError
	require.ErrorAs(t, err, &boundary)

	after, err := state.Record(0)
	require.NoError(t, err)
	assert.Equal(t, recs[0], after, "failed relocation leaves the record untouched")

	_, err = state.MoveReferenceIndex(0, 2)
	assert.ErrorAs(t, err, &boundary)
}

func TestWorst(t *testing.T) {
	br := straightBranch(t, 120, Range{15, 25}, Range{45, 55})
	br.Radius[50] = 1

	state := NewBranchState(0, br, NewDetector(), NewQuantifier(), 0)
	assert.Equal(t, -1, state.Worst())

	_, err := state.Recompute(6)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Worst())
}
