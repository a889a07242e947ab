package export

import (
	"testing"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(db.New("t"), nil, DefaultOptions())
	s.buildContexts()
	return s
}

func testBox(t *testing.T) *brep.Brep {
	t.Helper()
	b, err := brep.Box(v3.Vec{}, v3.Vec{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	return b
}

// part returns the attributes of a simple entity of type typ, or of the
// part typ of a complex entity.
func part(e *step.Entity, typ string) ([]step.Value, bool) {
	if e.Type == typ {
		return e.Attrs, true
	}
	for _, p := range e.Parts {
		if p.Type == typ {
			return p.Attrs, true
		}
	}
	return nil, false
}

// encodeCurve normalizes and writes one curve.
func encodeCurve(s *Session, c geom.Curve) (*step.Entity, error) {
	n, err := normalizeCurve(c)
	if err != nil {
		return nil, err
	}
	return s.writeCurve(n), nil
}

func intSum(l step.List) int {
	n := 0
	for _, v := range l {
		n += int(v.(step.Int))
	}
	return n
}

// ---------------------------------------------------------------------------
// Topology
// ---------------------------------------------------------------------------

func TestTopologyIndexAlignment(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)

	top, err := s.encodeBrep("box", b)
	require.NoError(t, err)

	require.Len(t, top.Vertices, 8)
	require.Len(t, top.Edges, 12)
	require.Len(t, top.Faces, 6)
	for i, v := range b.Vertices {
		assert.Equal(t, v.Point, coords(t, top.Points[i]), "vertex %d", i)
		assert.Same(t, top.Points[i], top.Vertices[i].Attrs[1])
	}
	for i, e := range b.Edges {
		ec := top.Edges[i]
		assert.Same(t, top.Vertices[e.Start], ec.Attrs[1], "edge %d start", i)
		assert.Same(t, top.Vertices[e.End], ec.Attrs[2], "edge %d end", i)
		assert.Same(t, top.Curves[e.Curve], ec.Attrs[3], "edge %d curve", i)
		assert.Equal(t, step.Bool(true), ec.Attrs[4])
	}
	for i, f := range b.Faces {
		af := top.Faces[i]
		assert.Same(t, top.Surfaces[f.Surface], af.Attrs[2])
		assert.Equal(t, step.Bool(!f.Reversed), af.Attrs[3])
		bounds := af.Attrs[1].(step.List)
		require.Len(t, bounds, 1)
		assert.Equal(t, "FACE_OUTER_BOUND", bounds[0].(*step.Entity).Type)
	}
	assert.Len(t, s.Registry().Find("ORIENTED_EDGE"), 24)
	assert.Len(t, s.Registry().Find("LINE"), 12)
	assert.Equal(t, "MANIFOLD_SOLID_BREP", top.Solid.Type)
	assert.Same(t, top.Shell, top.Solid.Attrs[1])
}

func TestOrientedEdgesFollowTrims(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)
	top, err := s.encodeBrep("box", b)
	require.NoError(t, err)

	for li, l := range b.Loops {
		path := top.Loops[li].Attrs[1].(step.List)
		require.Len(t, path, len(l.Trims))
		for k, ti := range l.Trims {
			oe := path[k].(*step.Entity)
			tr := b.Trims[ti]
			assert.Same(t, top.Edges[tr.Edge], oe.Attrs[3])
			assert.Equal(t, step.Bool(!tr.Reversed), oe.Attrs[4])
		}
	}
}

func TestSingularTrimsAreSkipped(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)
	first := b.Loops[0].Trims[0]
	b.Trims[first].Edge = brep.NoEdge

	top, err := s.encodeBrep("box", b)
	require.NoError(t, err)
	assert.Len(t, s.Registry().Find("ORIENTED_EDGE"), 23)
	assert.Len(t, top.Loops[0].Attrs[1], 3)
}

func TestFaceWithOnlySingularTrimsIsRejected(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)
	for _, ti := range b.Loops[0].Trims {
		b.Trims[ti].Edge = brep.NoEdge
	}
	before := s.Registry().Len()

	_, err := s.encodeBrep("box", b)
	require.ErrorIs(t, err, ErrUnsupportedGeometry)
	assert.Contains(t, err.Error(), "face 0")
	assert.Equal(t, before, s.Registry().Len())
}

func TestUnboundedFaceFallsBackToEmptySolid(t *testing.T) {
	b := testBox(t)
	for _, ti := range b.Loops[2].Trims {
		b.Trims[ti].Edge = brep.NoEdge
	}
	d := newDB(t, &db.Object{Name: "scan.s", Kind: db.KindBrep, Brep: b})
	s := exportDB(t, d, DefaultOptions())

	e := entry(t, s.Report(), "scan.s")
	assert.Equal(t, StatusEmpty, e.Status)
	assert.Contains(t, e.Message, "every trim is singular")
	assert.Empty(t, s.Registry().Find("ADVANCED_FACE"))
}

func TestOuterBoundComesFirst(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)
	hole := b.Faces[1].Loops[0]
	b.Loops = append(b.Loops, brep.Loop{Face: 0, Trims: b.Loops[hole].Trims, Kind: brep.LoopInner})
	b.Faces[0].Loops = append([]int{len(b.Loops) - 1}, b.Faces[0].Loops...)

	top, err := s.encodeBrep("box", b)
	require.NoError(t, err)
	bounds := top.Faces[0].Attrs[1].(step.List)
	require.Len(t, bounds, 2)
	assert.Equal(t, "FACE_OUTER_BOUND", bounds[0].(*step.Entity).Type)
	assert.Equal(t, "FACE_BOUND", bounds[1].(*step.Entity).Type)
}

func TestInnerLoopsBecomeFaceBounds(t *testing.T) {
	s := newTestSession(t)
	b := testBox(t)
	// Reuse face 1's loop as a hole in face 0.
	hole := b.Faces[1].Loops[0]
	b.Loops = append(b.Loops, brep.Loop{Face: 0, Trims: b.Loops[hole].Trims, Kind: brep.LoopInner, Reversed: true})
	b.Faces[0].Loops = append(b.Faces[0].Loops, len(b.Loops)-1)

	top, err := s.encodeBrep("box", b)
	require.NoError(t, err)
	bounds := top.Faces[0].Attrs[1].(step.List)
	require.Len(t, bounds, 2)
	inner := bounds[1].(*step.Entity)
	assert.Equal(t, "FACE_BOUND", inner.Type)
	assert.Equal(t, step.Bool(false), inner.Attrs[2])
}

func TestUnsupportedGeometryCreatesNothing(t *testing.T) {
	s := newTestSession(t)
	before := s.Registry().Len()

	b := testBox(t)
	b.Curves3D[5] = &geom.NurbsCurve{Degree: 2, Points: []v3.Vec{{}, {X: 1}, {X: 2}}, Knots: []float64{0}}
	_, err := s.encodeBrep("bad", b)
	require.ErrorIs(t, err, ErrUnsupportedGeometry)
	assert.Contains(t, err.Error(), "curve 5")
	assert.Equal(t, before, s.Registry().Len())

	b = testBox(t)
	b.Surfaces[2] = nil
	_, err = s.encodeBrep("bad", b)
	require.ErrorIs(t, err, ErrUnsupportedGeometry)
	assert.Equal(t, before, s.Registry().Len())
}

func TestEmptyBrep(t *testing.T) {
	s := newTestSession(t)
	top, err := s.encodeBrep("nothing", &brep.Brep{})
	require.NoError(t, err)
	assert.Empty(t, top.Faces)
	assert.Empty(t, top.Shell.Attrs[1])
	assert.Equal(t, step.Str("nothing"), top.Solid.Attrs[0])
}

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func TestLineEncoding(t *testing.T) {
	s := newTestSession(t)
	e, err := encodeCurve(s, geom.Line{From: v3.Vec{X: 1}, To: v3.Vec{X: 1, Y: 4}})
	require.NoError(t, err)

	require.Equal(t, "LINE", e.Type)
	assert.Equal(t, v3.Vec{X: 1}, coords(t, e.Attrs[1].(*step.Entity)))
	vec := e.Attrs[2].(*step.Entity)
	assert.Equal(t, step.Real(4), vec.Attrs[2])
	assert.Equal(t, v3.Vec{Y: 1}, coords(t, vec.Attrs[1].(*step.Entity)))

	_, err = encodeCurve(s, geom.Line{From: v3.Vec{X: 1}, To: v3.Vec{X: 1}})
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)
}

func TestKnotLawAndWeights(t *testing.T) {
	s := newTestSession(t)
	b, err := brep.Cylinder(v3.Vec{}, v3.Vec{Z: 5}, 2)
	require.NoError(t, err)
	_, err = s.encodeBrep("cyl", b)
	require.NoError(t, err)

	var curves, rationalCurves, surfaces, rationalSurfaces int
	for _, e := range s.Registry().Find("B_SPLINE_CURVE_WITH_KNOTS") {
		curves++
		var deg, points step.List
		var mults step.List
		if attrs, ok := part(e, "B_SPLINE_CURVE"); ok {
			deg, points = step.List{attrs[0]}, attrs[1].(step.List)
			k, _ := part(e, "B_SPLINE_CURVE_WITH_KNOTS")
			mults = k[0].(step.List)
		} else {
			deg, points, mults = step.List{e.Attrs[1]}, e.Attrs[2].(step.List), e.Attrs[6].(step.List)
		}
		d := int(deg[0].(step.Int))
		assert.Equal(t, len(points)+d+1, intSum(mults), "knot law")

		w, rational := part(e, "RATIONAL_B_SPLINE_CURVE")
		assert.Equal(t, e.IsComplex(), rational)
		if rational {
			rationalCurves++
			assert.Len(t, w[0], len(points))
		}
	}
	for _, e := range s.Registry().Find("B_SPLINE_SURFACE_WITH_KNOTS") {
		surfaces++
		var ud, vd int
		var rows, um, vm step.List
		if attrs, ok := part(e, "B_SPLINE_SURFACE"); ok {
			ud, vd, rows = int(attrs[0].(step.Int)), int(attrs[1].(step.Int)), attrs[2].(step.List)
			k, _ := part(e, "B_SPLINE_SURFACE_WITH_KNOTS")
			um, vm = k[0].(step.List), k[1].(step.List)
		} else {
			ud, vd, rows = int(e.Attrs[1].(step.Int)), int(e.Attrs[2].(step.Int)), e.Attrs[3].(step.List)
			um, vm = e.Attrs[8].(step.List), e.Attrs[9].(step.List)
		}
		cols := len(rows[0].(step.List))
		assert.Equal(t, len(rows)+ud+1, intSum(um), "u knot law")
		assert.Equal(t, cols+vd+1, intSum(vm), "v knot law")

		w, rational := part(e, "RATIONAL_B_SPLINE_SURFACE")
		assert.Equal(t, e.IsComplex(), rational)
		if rational {
			rationalSurfaces++
			weights := w[0].(step.List)
			require.Len(t, weights, len(rows))
			for _, row := range weights {
				assert.Len(t, row, cols)
			}
		}
	}

	assert.Equal(t, 2, curves, "two full-circle arcs")
	assert.Equal(t, 2, rationalCurves)
	assert.Equal(t, 3, surfaces)
	assert.Equal(t, 1, rationalSurfaces, "only the side surface is rational")
	assert.Len(t, s.Registry().Find("LINE"), 1, "seam")
}

func TestSelfIntersectionAlwaysFalse(t *testing.T) {
	s := newTestSession(t)
	arc := geom.Arc{Normal: v3.Vec{Z: 1}, XAxis: v3.Vec{X: 1}, Radius: 3}
	e, err := encodeCurve(s, arc)
	require.NoError(t, err)
	attrs, ok := part(e, "B_SPLINE_CURVE")
	require.True(t, ok)
	assert.Equal(t, step.Bool(true), attrs[3], "full circle is closed")
	assert.Equal(t, step.Bool(false), attrs[4])
}
