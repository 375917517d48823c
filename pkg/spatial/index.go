// Package spatial indexes centerline samples for nearest-point queries, so a
// 3D pick on the rendered vessel can be mapped back to a branch sample.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"

	"vesselstenosis/pkg/branchtree"
)

// Sample is a centerline sample that remembers where it came from
type Sample struct {
	X, Y, Z float64

	// Branch is the arena index and Index the sample index within the branch
	Branch int
	Index  int
}

// Compare implements the kdtree.Comparable interface
func (p Sample) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Sample)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Sample) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two samples
func (p Sample) Distance(c kdtree.Comparable) float64 {
	q := c.(Sample)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// Samples is a collection of Sample that satisfies kdtree.Interface
type Samples []Sample

func (p Samples) Index(i int) kdtree.Comparable         { return p[i] }
func (p Samples) Len() int                              { return len(p) }
func (p Samples) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Samples) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(samplePlane{Samples: p, Dim: d}, kdtree.MedianOfRandoms(samplePlane{Samples: p, Dim: d}, 100))
}

// samplePlane implements sort.Interface and kdtree.SortSlicer for Samples
type samplePlane struct {
	Samples
	kdtree.Dim
}

func (p samplePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Samples[i].X < p.Samples[j].X
	case 1:
		return p.Samples[i].Y < p.Samples[j].Y
	case 2:
		return p.Samples[i].Z < p.Samples[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p samplePlane) Slice(start, end int) kdtree.SortSlicer {
	return samplePlane{Samples: p.Samples[start:end], Dim: p.Dim}
}

func (p samplePlane) Swap(i, j int) {
	p.Samples[i], p.Samples[j] = p.Samples[j], p.Samples[i]
}

// Hit is the result of a nearest-sample query
type Hit struct {
	Branch   int
	Index    int
	Distance float64
}

// Index is a KD-tree over every sample of a branch tree
type Index struct {
	tree *kdtree.Tree
	size int
}

// NewIndex builds an index over all branch samples of tree
func NewIndex(tree *branchtree.Tree) *Index {
	var samples Samples
	for b := range tree.Branches {
		for i, p := range tree.Branches[b].Positions {
			samples = append(samples, Sample{X: p.X, Y: p.Y, Z: p.Z, Branch: b, Index: i})
		}
	}
	if len(samples) == 0 {
		return &Index{}
	}
	return &Index{tree: kdtree.New(samples, false), size: len(samples)}
}

// Len returns the number of indexed samples
func (x *Index) Len() int { return x.size }

// Nearest returns the sample closest to p
func (x *Index) Nearest(p r3.Vector) (Hit, error) {
	if x.tree == nil {
		return Hit{}, errors.New("spatial index is empty")
	}
	c, d := x.tree.Nearest(Sample{X: p.X, Y: p.Y, Z: p.Z})
	s := c.(Sample)
	return Hit{Branch: s.Branch, Index: s.Index, Distance: math.Sqrt(d)}, nil
}

// NearestOnBranch returns the closest sample of a single branch. The k
// nearest samples overall are fetched with k doubling until one of them lies
// on the branch; the closest of those is then the closest on the branch.
func (x *Index) NearestOnBranch(p r3.Vector, branch int) (Hit, error) {
	if x.tree == nil {
		return Hit{}, errors.New("spatial index is empty")
	}
	query := Sample{X: p.X, Y: p.Y, Z: p.Z}

	for k := 1; ; k *= 2 {
		if k > x.size {
			k = x.size
		}
		keeper := kdtree.NewNKeeper(k)
		x.tree.NearestSet(keeper, query)
		if hit, ok := bestOnBranch(keeper.Heap, branch); ok {
			return hit, nil
		}
		if k == x.size {
			break
		}
	}
	return Hit{}, fmt.Errorf("branch %d has no indexed samples", branch)
}

func bestOnBranch(heap kdtree.Heap, branch int) (Hit, bool) {
	best := Hit{Distance: math.Inf(1)}
	found := false
	for _, cd := range heap {
		if cd.Comparable == nil {
			continue
		}
		s := cd.Comparable.(Sample)
		if s.Branch != branch {
			continue
		}
		if d := math.Sqrt(cd.Dist); d < best.Distance {
			best = Hit{Branch: s.Branch, Index: s.Index, Distance: d}
			found = true
		}
	}
	return best, found
}
