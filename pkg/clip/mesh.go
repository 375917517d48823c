package clip

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"vesselstenosis/pkg/stl"
)

// Region is anything that classifies points with an implicit value,
// negative inside
type Region interface {
	Evaluate(x r3.Vector) float64
}

// ClipMesh returns the part of mesh inside region. Triangles crossing the
// boundary are cut along their edges by linear interpolation of the implicit
// value. The input mesh is not modified.
func ClipMesh(mesh *stl.Mesh, region Region) *stl.Mesh {
	out := &stl.Mesh{}
	for _, tri := range mesh.Triangles {
		verts := tri.Vertices()
		var values [3]float64
		inside := 0
		for i, v := range verts {
			values[i] = region.Evaluate(v)
			if values[i] <= 0 {
				inside++
			}
		}

		switch inside {
		case 0:
			continue
		case 3:
			out.Triangles = append(out.Triangles, tri)
			continue
		}

		poly := clipPolygon(verts, values)
		for i := 1; i+1 < len(poly); i++ {
			out.Triangles = append(out.Triangles, stl.Triangle{
				Normal:  tri.Normal,
				Vertex1: toFloat32(poly[0]),
				Vertex2: toFloat32(poly[i]),
				Vertex3: toFloat32(poly[i+1]),
			})
		}
	}
	return out
}

// clipPolygon keeps the part of a triangle with non-positive implicit value
func clipPolygon(verts [3]r3.Vector, values [3]float64) []r3.Vector {
	poly := make([]r3.Vector, 0, 4)
	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		a, b := verts[i], verts[j]
		fa, fb := values[i], values[j]
		if fa <= 0 {
			poly = append(poly, a)
		}
		if (fa <= 0) != (fb <= 0) {
			poly = append(poly, crossing(a, b, fa, fb))
		}
	}
	return poly
}

// crossing interpolates the zero crossing on edge ab. The endpoints are put
// in a fixed order first so that both triangles sharing an edge produce the
// same point.
func crossing(a, b r3.Vector, fa, fb float64) r3.Vector {
	if less(b, a) {
		a, b = b, a
		fa, fb = fb, fa
	}
	t := fa / (fa - fb)
	return a.Add(b.Sub(a).Mul(t))
}

func less(p, q r3.Vector) bool {
	if p.X != q.X {
		return p.X < q.X
	}
	if p.Y != q.Y {
		return p.Y < q.Y
	}
	return p.Z < q.Z
}

// LargestComponent keeps the connected piece of mesh with the most triangles.
// Triangles are connected when they share a vertex; vertices are welded by
// exact coordinates. Ties go to the piece containing the earliest triangle.
func LargestComponent(mesh *stl.Mesh) *stl.Mesh {
	if mesh.Len() == 0 {
		return &stl.Mesh{}
	}

	ids := make(map[[3]float32]int64)
	vertexID := func(v [3]float32) int64 {
		id, ok := ids[v]
		if !ok {
			id = int64(len(ids))
			ids[v] = id
		}
		return id
	}

	g := simple.NewUndirectedGraph()
	triVertex := make([]int64, mesh.Len())
	for i, tri := range mesh.Triangles {
		corners := [3]int64{vertexID(tri.Vertex1), vertexID(tri.Vertex2), vertexID(tri.Vertex3)}
		for _, c := range corners {
			if g.Node(c) == nil {
				g.AddNode(simple.Node(c))
			}
		}
		for k := 0; k < 3; k++ {
			a, b := corners[k], corners[(k+1)%3]
			if a != b {
				g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
			}
		}
		triVertex[i] = corners[0]
	}

	component := make(map[int64]int)
	for c, nodes := range topo.ConnectedComponents(g) {
		for _, n := range nodes {
			component[n.ID()] = c
		}
	}

	counts := make(map[int]int)
	first := make(map[int]int)
	for i, v := range triVertex {
		c := component[v]
		if _, seen := first[c]; !seen {
			first[c] = i
		}
		counts[c]++
	}

	best := component[triVertex[0]]
	for c, n := range counts {
		if n > counts[best] || (n == counts[best] && first[c] < first[best]) {
			best = c
		}
	}

	out := &stl.Mesh{}
	for i, tri := range mesh.Triangles {
		if component[triVertex[i]] == best {
			out.Triangles = append(out.Triangles, tri)
		}
	}
	return out
}

func toFloat32(v r3.Vector) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
