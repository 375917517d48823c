package branchtree

import (
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselstenosis/internal/models"
	"vesselstenosis/pkg/geometry"
)

// trunk builds a straight line of n samples along x with spacing step
func trunk(n int, step float64) models.RawLine {
	line := models.RawLine{}
	for i := 0; i < n; i++ {
		line.Positions = append(line.Positions, r3.Vector{X: float64(i) * step})
		line.Radius = append(line.Radius, 3)
	}
	return line
}

// offshoot copies the first k samples of base and continues with n samples
// heading in direction dir
func offshoot(base models.RawLine, k, n int, dir r3.Vector, step float64) models.RawLine {
	line := models.RawLine{
		Positions: append([]r3.Vector(nil), base.Positions[:k]...),
		Radius:    append([]float64(nil), base.Radius[:k]...),
	}
	origin := base.Positions[k-1]
	for i := 1; i <= n; i++ {
		line.Positions = append(line.Positions, origin.Add(dir.Mul(float64(i)*step)))
		line.Radius = append(line.Radius, 2)
	}
	return line
}

func TestBuildSingleRoot(t *testing.T) {
	b := NewBuilder()
	tree, err := b.Build([]models.RawLine{trunk(100, 0.5)})
	require.NoError(t, err)
	require.Equal(t, 1, tree.Len())

	br := tree.Branches[0]
	assert.True(t, br.IsRoot())
	assert.Empty(t, br.ChildSplits)
	assert.Equal(t, 2, br.Start, "1 mm cutoff at 0.5 mm spacing")
	assert.Equal(t, 97, br.End)
}

func TestBuildAssignsParentAtDivergence(t *testing.T) {
	a := trunk(100, 0.5)
	const k = 40
	child := offshoot(a, k, 80, r3.Vector{Y: 1}, 0.5)

	tree, err := NewBuilder().Build([]models.RawLine{a, child})
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())

	br := tree.Branches[1]
	assert.Equal(t, 0, br.Parent)
	assert.Equal(t, k, br.SplitIndex)
	assert.Equal(t, k, br.Offset)
	assert.Equal(t, child.Positions[k], br.Positions[0], "child starts at the divergence index of the original")
	assert.Len(t, br.Radius, len(child.Positions)-k)
	assert.Len(t, br.Arc, len(child.Positions)-k)

	assert.Equal(t, []int{k}, tree.Branches[0].ChildSplits)
	assert.Equal(t, []int{1}, tree.Children(0))
	assert.Equal(t, []int{0}, tree.Roots())
	assert.Equal(t, 0, tree.Primary())
}

func TestBuildPrefersMostSpecificParent(t *testing.T) {
	a := trunk(120, 0.5)
	b := offshoot(a, 30, 100, r3.Vector{Y: 1}, 0.5)
	// c follows b past its own divergence from a, then turns
	c := offshoot(b, 70, 100, r3.Vector{Z: 1}, 0.5)

	tree, err := NewBuilder().Build([]models.RawLine{a, b, c})
	require.NoError(t, err)
	require.Equal(t, 3, tree.Len())

	assert.Equal(t, 0, tree.Branches[1].Parent)
	assert.Equal(t, 30, tree.Branches[1].SplitIndex)

	assert.Equal(t, 1, tree.Branches[2].Parent)
	assert.Equal(t, 70-30, tree.Branches[2].SplitIndex, "split index is local to the parent's arrays")
	assert.Equal(t, []int{40}, tree.Branches[1].ChildSplits)
}

func TestBuildDiscardsShortBranches(t *testing.T) {
	a := trunk(100, 0.5)
	short := offshoot(a, 60, 10, r3.Vector{Y: 1}, 0.5)
	long := offshoot(a, 20, 80, r3.Vector{Z: -1}, 0.5)

	tree, err := NewBuilder().Build([]models.RawLine{a, short, long})
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())

	for _, br := range tree.Branches {
		assert.GreaterOrEqual(t, br.Length(), DefaultMinBranchLength)
	}
	assert.Equal(t, 2, tree.Branches[1].Source)
	assert.Equal(t, 0, tree.Branches[1].Parent)
	assert.Equal(t, []int{20}, tree.Branches[0].ChildSplits)
}

func TestBuildOrphansChildrenOfDiscardedBranch(t *testing.T) {
	a := trunk(100, 0.5)
	// mid is only 10 mm past its divergence from a
	mid := offshoot(a, 50, 20, r3.Vector{Y: 1}, 0.5)
	grandchild := offshoot(mid, 60, 80, r3.Vector{Z: 1}, 0.5)

	tree, err := NewBuilder().Build([]models.RawLine{a, mid, grandchild})
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())

	orphan := tree.Branches[1]
	assert.Equal(t, 2, orphan.Source)
	assert.True(t, orphan.IsRoot(), "no reattachment to the grandparent")
	assert.Equal(t, 60, orphan.Offset, "orphan keeps its truncated arrays")
	assert.Empty(t, tree.Branches[0].ChildSplits)
}

func TestBuildDuplicateLineStaysRoot(t *testing.T) {
	a := trunk(100, 0.5)
	dup := trunk(100, 0.5)

	tree, err := NewBuilder().Build([]models.RawLine{a, dup})
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())
	assert.Equal(t, []int{0, 1}, tree.Roots())
	assert.Equal(t, 0, tree.Branches[1].Offset)
	assert.Len(t, tree.Branches[1].Positions, 100)
	assert.Empty(t, tree.Branches[0].ChildSplits)
}

func TestBuildPrefixLineStaysRoot(t *testing.T) {
	short := trunk(60, 0.5)
	// long runs through all of short and continues sideways
	long := offshoot(short, 60, 100, r3.Vector{Y: 1}, 0.5)

	for _, lines := range [][]models.RawLine{{short, long}, {long, short}} {
		tree, err := NewBuilder().Build(lines)
		require.NoError(t, err)
		require.Equal(t, 2, tree.Len())
		assert.Equal(t, []int{0, 1}, tree.Roots())
		for _, br := range tree.Branches {
			assert.Equal(t, 0, br.Offset, "no overlap is removed without a divergence")
			assert.Empty(t, br.ChildSplits)
		}
	}
}

func TestBuildNoOverlapStaysRoot(t *testing.T) {
	a := trunk(100, 0.5)
	b := trunk(100, 0.5)
	for i := range b.Positions {
		b.Positions[i].Y = 10
	}

	tree, err := NewBuilder().Build([]models.RawLine{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, tree.Roots())
}

func TestBuildTolerance(t *testing.T) {
	a := trunk(100, 0.5)
	child := offshoot(a, 40, 80, r3.Vector{Y: 1}, 0.5)
	for i := 0; i < 40; i++ {
		child.Positions[i].X += 1e-9
	}

	exact, err := NewBuilder().Build([]models.RawLine{a, child})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, exact.Roots(), "exact comparison misses the perturbed overlap")

	b := NewBuilder()
	b.Tolerance = 1e-6
	tolerant, err := b.Build([]models.RawLine{a, child})
	require.NoError(t, err)
	require.Equal(t, 2, tolerant.Len())
	assert.Equal(t, 0, tolerant.Branches[1].Parent)
	assert.Equal(t, 40, tolerant.Branches[1].SplitIndex)
}

func TestBuildArcMonotonic(t *testing.T) {
	a := trunk(100, 0.5)
	tree, err := NewBuilder().Build([]models.RawLine{a, offshoot(a, 30, 90, r3.Vector{Y: 1, Z: 1}.Normalize(), 0.4)})
	require.NoError(t, err)

	for _, br := range tree.Branches {
		require.Equal(t, len(br.Arc), len(br.Positions))
		require.Equal(t, len(br.Arc), len(br.Radius))
		for i := 0; i+1 < len(br.Arc); i++ {
			assert.LessOrEqual(t, br.Arc[i], br.Arc[i+1])
		}
	}
	assert.NotZero(t, tree.Branches[1].Arc[0], "child arc keeps the source line values")
}

func TestBuildRejectsDegenerateLines(t *testing.T) {
	_, err := NewBuilder().Build([]models.RawLine{trunk(1, 1)})
	assert.True(t, errors.Is(err, geometry.ErrDegenerateInput))

	bad := trunk(10, 1)
	bad.Radius = bad.Radius[:5]
	_, err = NewBuilder().Build([]models.RawLine{bad})
	var degenerate *geometry.DegenerateInputError
	assert.ErrorAs(t, err, &degenerate)
}

func TestTreeBranchOutOfRange(t *testing.T) {
	tree := &Tree{}
	_, err := tree.Branch(0)
	assert.Error(t, err)
	assert.Equal(t, -1, tree.Primary())
}
