package brep

import (
	"fmt"
	"math"

	"github.com/chazu/gstep/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// boxFaces lists the corner indices of each box face, counter-clockwise
// seen from outside. Corner i sits at (bit0 ? max.X : min.X, bit1 ? ... ).
var boxFaces = [6][4]int{
	{0, 4, 6, 2}, // -X
	{1, 3, 7, 5}, // +X
	{0, 1, 5, 4}, // -Y
	{2, 6, 7, 3}, // +Y
	{0, 2, 3, 1}, // -Z
	{4, 5, 7, 6}, // +Z
}

// Box returns the BRep of the axis-aligned box spanning min to max.
func Box(min, max v3.Vec) (*Brep, error) {
	if max.X <= min.X || max.Y <= min.Y || max.Z <= min.Z {
		return nil, fmt.Errorf("box: empty extent %v..%v", min, max)
	}

	b := &Brep{}
	for i := 0; i < 8; i++ {
		p := min
		if i&1 != 0 {
			p.X = max.X
		}
		if i&2 != 0 {
			p.Y = max.Y
		}
		if i&4 != 0 {
			p.Z = max.Z
		}
		b.Vertices = append(b.Vertices, Vertex{Point: p})
	}

	// One edge per unordered corner pair, curve running low to high index.
	edgeOf := make(map[[2]int]int)
	edge := func(from, to int) (int, bool) {
		lo, hi := from, to
		if lo > hi {
			lo, hi = hi, lo
		}
		key := [2]int{lo, hi}
		ei, ok := edgeOf[key]
		if !ok {
			b.Curves3D = append(b.Curves3D, geom.Line{From: b.Vertices[lo].Point, To: b.Vertices[hi].Point})
			b.Edges = append(b.Edges, Edge{Curve: len(b.Curves3D) - 1, Start: lo, End: hi})
			ei = len(b.Edges) - 1
			edgeOf[key] = ei
		}
		return ei, from > to
	}

	for _, corners := range boxFaces {
		a := b.Vertices[corners[0]].Point
		bb := b.Vertices[corners[1]].Point
		d := b.Vertices[corners[3]].Point
		b.Surfaces = append(b.Surfaces, geom.Plane{
			Origin: a,
			XAxis:  bb.Sub(a),
			YAxis:  d.Sub(a),
			UMin:   0, UMax: 1,
			VMin: 0, VMax: 1,
		})
		fi := len(b.Faces)
		li := len(b.Loops)
		b.Faces = append(b.Faces, Face{Surface: len(b.Surfaces) - 1, Loops: []int{li}})
		loop := Loop{Face: fi, Kind: LoopOuter}
		for k := 0; k < 4; k++ {
			ei, rev := edge(corners[k], corners[(k+1)%4])
			b.Trims = append(b.Trims, Trim{Edge: ei, Loop: li, Reversed: rev})
			loop.Trims = append(loop.Trims, len(b.Trims)-1)
		}
		b.Loops = append(b.Loops, loop)
	}
	return b, nil
}

// Cylinder returns the BRep of the right circular cylinder with the given
// base center, height vector and radius: two planar caps bounded by full
// circles and a surface of revolution closed along a straight seam.
func Cylinder(base, height v3.Vec, radius float64) (*Brep, error) {
	h := height.Length()
	if h == 0 || radius <= 0 {
		return nil, fmt.Errorf("cylinder: height %g, radius %g", h, radius)
	}
	axis := height.MulScalar(1 / h)
	x := geom.Perpendicular(axis)
	y := axis.Cross(x)
	top := base.Add(height)

	b := &Brep{
		Vertices: []Vertex{
			{Point: base.Add(x.MulScalar(radius))},
			{Point: top.Add(x.MulScalar(radius))},
		},
		Curves3D: []geom.Curve{
			geom.Arc{Center: base, Normal: axis, XAxis: x, Radius: radius, Start: 0, End: 0},
			geom.Arc{Center: top, Normal: axis, XAxis: x, Radius: radius, Start: 0, End: 0},
		},
		Edges: []Edge{
			{Curve: 0, Start: 0, End: 0},
			{Curve: 1, Start: 1, End: 1},
		},
	}
	b.Curves3D = append(b.Curves3D, geom.Line{From: b.Vertices[0].Point, To: b.Vertices[1].Point})
	b.Edges = append(b.Edges, Edge{Curve: 2, Start: 0, End: 1})

	capPlane := func(center v3.Vec) geom.Plane {
		return geom.Plane{
			Origin: center,
			XAxis:  x,
			YAxis:  y,
			UMin:   -radius, UMax: radius,
			VMin: -radius, VMax: radius,
		}
	}
	b.Surfaces = []geom.Surface{
		capPlane(base),
		capPlane(top),
		geom.RevolutionSurface{
			Profile:   b.Curves3D[2],
			AxisPoint: base,
			AxisDir:   axis,
			Start:     0,
			End:       2 * math.Pi,
		},
	}

	// Bottom cap faces -axis, against its plane normal.
	b.addFace(0, true, []Trim{{Edge: 0, Reversed: true}})
	b.addFace(1, false, []Trim{{Edge: 1}})
	b.addFace(2, false, []Trim{
		{Edge: 0},
		{Edge: 2},
		{Edge: 1, Reversed: true},
		{Edge: 2, Reversed: true},
	})
	return b, nil
}

// addFace appends a face with a single outer loop built from trims.
func (b *Brep) addFace(surface int, reversed bool, trims []Trim) {
	fi := len(b.Faces)
	li := len(b.Loops)
	loop := Loop{Face: fi, Kind: LoopOuter}
	for _, t := range trims {
		t.Loop = li
		b.Trims = append(b.Trims, t)
		loop.Trims = append(loop.Trims, len(b.Trims)-1)
	}
	b.Loops = append(b.Loops, loop)
	b.Faces = append(b.Faces, Face{Surface: surface, Loops: []int{li}, Reversed: reversed})
}
