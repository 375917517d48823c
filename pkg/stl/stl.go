// Package stl reads and writes triangulated surface meshes in the STL format.
//
// Binary STL layout:
//   - 80 byte header
//   - uint32 triangle count
//   - per triangle: normal and three vertices as 12 float32, then a uint16
//     attribute byte count (50 bytes in total)
//
// ASCII files ("solid ... facet normal ... vertex ...") are accepted on read.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle is a single STL facet
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// Vertices returns the three vertices as float64 vectors
func (t Triangle) Vertices() [3]r3.Vector {
	return [3]r3.Vector{toVector(t.Vertex1), toVector(t.Vertex2), toVector(t.Vertex3)}
}

// NewTriangle builds a facet from three vertices, computing its normal from
// the winding order
func NewTriangle(a, b, c r3.Vector) Triangle {
	n := b.Sub(a).Cross(c.Sub(a)).Normalize()
	return Triangle{
		Normal:  fromVector(n),
		Vertex1: fromVector(a),
		Vertex2: fromVector(b),
		Vertex3: fromVector(c),
	}
}

// Mesh is a triangle soup
type Mesh struct {
	Triangles []Triangle
}

// Len returns the number of triangles
func (m *Mesh) Len() int { return len(m.Triangles) }

// Bounds returns the axis-aligned bounding box of the mesh
func (m *Mesh) Bounds() (lo, hi r3.Vector) {
	if len(m.Triangles) == 0 {
		return lo, hi
	}
	lo = r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, t := range m.Triangles {
		for _, v := range t.Vertices() {
			lo = r3.Vector{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
			hi = r3.Vector{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
		}
	}
	return lo, hi
}

// SaveToSTL writes triangles to filename as binary STL
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Write(w, triangles); err != nil {
		return err
	}
	return w.Flush()
}

// Write encodes triangles as binary STL
func Write(w io.Writer, triangles []Triangle) error {
	header := make([]byte, headerSize)
	copy(header, "vesselstenosis binary STL")
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	buf := make([]byte, triangleSize)
	for _, t := range triangles {
		putVector(buf[0:], t.Normal)
		putVector(buf[12:], t.Vertex1)
		putVector(buf[24:], t.Vertex2)
		putVector(buf[36:], t.Vertex3)
		binary.LittleEndian.PutUint16(buf[48:], 0)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("failed to write triangle: %w", err)
		}
	}
	return nil
}

// ReadSTL loads a binary or ASCII STL file
func ReadSTL(filename string) (*Mesh, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read STL file: %w", err)
	}
	return Parse(data)
}

// Parse decodes STL data, detecting the ASCII variant by its keywords
func Parse(data []byte) (*Mesh, error) {
	if isBinary(data) {
		return parseBinary(data)
	}
	return parseASCII(data)
}

// isBinary checks whether the declared triangle count matches the data size.
// Some binary exporters start their header with "solid", so the keyword
// alone is not enough.
func isBinary(data []byte) bool {
	if len(data) < headerSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[headerSize:])
	if uint64(len(data)) == uint64(headerSize+4)+uint64(count)*triangleSize {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimSpace(data), []byte("solid"))
}

func parseBinary(data []byte) (*Mesh, error) {
	count := int(binary.LittleEndian.Uint32(data[headerSize:]))
	body := data[headerSize+4:]
	if len(body) < count*triangleSize {
		return nil, fmt.Errorf("binary STL truncated: %d triangles declared, %d bytes of data", count, len(body))
	}

	mesh := &Mesh{Triangles: make([]Triangle, count)}
	for i := range mesh.Triangles {
		rec := body[i*triangleSize:]
		mesh.Triangles[i] = Triangle{
			Normal:  getVector(rec[0:]),
			Vertex1: getVector(rec[12:]),
			Vertex2: getVector(rec[24:]),
			Vertex3: getVector(rec[36:]),
		}
	}
	return mesh, nil
}

func parseASCII(data []byte) (*Mesh, error) {
	mesh := &Mesh{}
	scanner := bufio.NewScanner(bytes.NewReader(data))

	var current Triangle
	var vertices int
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			if len(fields) != 5 || fields[1] != "normal" {
				return nil, fmt.Errorf("line %d: malformed facet", line)
			}
			n, err := parseFloats(fields[2:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			current = Triangle{Normal: n}
			vertices = 0
		case "vertex":
			if len(fields) != 4 || vertices > 2 {
				return nil, fmt.Errorf("line %d: malformed vertex", line)
			}
			v, err := parseFloats(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			switch vertices {
			case 0:
				current.Vertex1 = v
			case 1:
				current.Vertex2 = v
			case 2:
				current.Vertex3 = v
			}
			vertices++
		case "endfacet":
			if vertices != 3 {
				return nil, fmt.Errorf("line %d: facet with %d vertices", line, vertices)
			}
			mesh.Triangles = append(mesh.Triangles, current)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan ASCII STL: %w", err)
	}
	return mesh, nil
}

func parseFloats(fields []string) ([3]float32, error) {
	var v [3]float32
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, fmt.Errorf("invalid number %q: %w", fields[i], err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func putVector(b []byte, v [3]float32) {
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v[i]))
	}
}

func getVector(b []byte) [3]float32 {
	var v [3]float32
	for i := 0; i < 3; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func toVector(v [3]float32) r3.Vector {
	return r3.Vector{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func fromVector(v r3.Vector) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
