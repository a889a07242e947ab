// Package brep defines the boundary representation read from the source
// database: parallel, index-aligned arrays of vertices, 3D curves,
// surfaces, edges, trims, loops and faces. Every cross reference is an
// index into one of these arrays.
package brep

import (
	"fmt"

	"github.com/chazu/gstep/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// NoEdge marks a trim that has no 3D edge (a singular or seam-less trim).
const NoEdge = -1

// LoopKind distinguishes a face's outer boundary from its holes.
type LoopKind int

const (
	LoopOuter LoopKind = iota // the face's outer boundary
	LoopInner                 // a hole
)

func (k LoopKind) String() string {
	switch k {
	case LoopOuter:
		return "outer"
	case LoopInner:
		return "inner"
	default:
		return fmt.Sprintf("LoopKind(%d)", int(k))
	}
}

// Vertex is a topological vertex.
type Vertex struct {
	Point v3.Vec
}

// Edge joins two vertices along a 3D curve. The curve runs from Start to
// End.
type Edge struct {
	Curve int // index into Curves3D
	Start int // index into Vertices
	End   int // index into Vertices
}

// Trim is one use of an edge by a loop. Reversed means the loop traverses
// the edge against its curve direction.
type Trim struct {
	Edge     int // index into Edges, or NoEdge
	Loop     int // index into Loops
	Reversed bool
}

// Loop is an ordered cycle of trims bounding a face.
type Loop struct {
	Face     int   // index into Faces
	Trims    []int // indices into Trims, in traversal order
	Kind     LoopKind
	Reversed bool
}

// Face is a bounded region of a surface. Reversed means the face normal
// opposes the surface normal.
type Face struct {
	Surface  int   // index into Surfaces
	Loops    []int // indices into Loops
	Reversed bool
}

// Brep is a closed boundary representation.
type Brep struct {
	Vertices []Vertex
	Curves3D []geom.Curve
	Surfaces []geom.Surface
	Edges    []Edge
	Trims    []Trim
	Loops    []Loop
	Faces    []Face
}

// IsEmpty reports whether the BRep has no faces.
func (b *Brep) IsEmpty() bool {
	return b == nil || len(b.Faces) == 0
}

// OuterLoop returns the index of the face's outer loop, or -1.
func (b *Brep) OuterLoop(face int) int {
	for _, li := range b.Faces[face].Loops {
		if b.Loops[li].Kind == LoopOuter {
			return li
		}
	}
	return -1
}

// Validate checks that every index resolves into its target array and
// that each face has exactly one outer loop.
func (b *Brep) Validate() error {
	inRange := func(i, n int) bool { return i >= 0 && i < n }

	for i, e := range b.Edges {
		if !inRange(e.Curve, len(b.Curves3D)) {
			return fmt.Errorf("edge %d: curve index %d out of range", i, e.Curve)
		}
		if !inRange(e.Start, len(b.Vertices)) || !inRange(e.End, len(b.Vertices)) {
			return fmt.Errorf("edge %d: vertex index out of range (%d, %d)", i, e.Start, e.End)
		}
		if b.Curves3D[e.Curve] == nil {
			return fmt.Errorf("edge %d: curve %d is nil", i, e.Curve)
		}
	}
	for i, t := range b.Trims {
		if t.Edge != NoEdge && !inRange(t.Edge, len(b.Edges)) {
			return fmt.Errorf("trim %d: edge index %d out of range", i, t.Edge)
		}
		if !inRange(t.Loop, len(b.Loops)) {
			return fmt.Errorf("trim %d: loop index %d out of range", i, t.Loop)
		}
	}
	for i, l := range b.Loops {
		if !inRange(l.Face, len(b.Faces)) {
			return fmt.Errorf("loop %d: face index %d out of range", i, l.Face)
		}
		for _, ti := range l.Trims {
			if !inRange(ti, len(b.Trims)) {
				return fmt.Errorf("loop %d: trim index %d out of range", i, ti)
			}
		}
	}
	for i, f := range b.Faces {
		if !inRange(f.Surface, len(b.Surfaces)) {
			return fmt.Errorf("face %d: surface index %d out of range", i, f.Surface)
		}
		outer := 0
		for _, li := range f.Loops {
			if !inRange(li, len(b.Loops)) {
				return fmt.Errorf("face %d: loop index %d out of range", i, li)
			}
			if b.Loops[li].Kind == LoopOuter {
				outer++
			}
		}
		if outer != 1 {
			return fmt.Errorf("face %d: has %d outer loops, want 1", i, outer)
		}
	}
	return nil
}

// Transform returns a copy of b mapped through an affine matrix. Every
// surface is promoted to NURBS form; topology is shared by value. A
// mirroring matrix toggles every face and loop orientation flag so that
// faces still point out of the solid.
func (b *Brep) Transform(m geom.Mat4) (*Brep, error) {
	mirror := m.Determinant() < 0
	out := &Brep{
		Vertices: make([]Vertex, len(b.Vertices)),
		Curves3D: make([]geom.Curve, len(b.Curves3D)),
		Surfaces: make([]geom.Surface, len(b.Surfaces)),
		Edges:    append([]Edge(nil), b.Edges...),
		Trims:    append([]Trim(nil), b.Trims...),
		Loops:    make([]Loop, len(b.Loops)),
		Faces:    make([]Face, len(b.Faces)),
	}
	for i, v := range b.Vertices {
		out.Vertices[i] = Vertex{Point: m.MulPoint(v.Point)}
	}
	for i, c := range b.Curves3D {
		if c == nil {
			continue
		}
		out.Curves3D[i] = c.Transform(m)
	}
	for i, s := range b.Surfaces {
		ts, err := geom.TransformSurface(s, m)
		if err != nil {
			return nil, fmt.Errorf("surface %d: %w", i, err)
		}
		out.Surfaces[i] = ts
	}
	for i, l := range b.Loops {
		l.Trims = append([]int(nil), l.Trims...)
		l.Reversed = l.Reversed != mirror
		out.Loops[i] = l
	}
	for i, f := range b.Faces {
		f.Loops = append([]int(nil), f.Loops...)
		f.Reversed = f.Reversed != mirror
		out.Faces[i] = f
	}
	return out, nil
}
