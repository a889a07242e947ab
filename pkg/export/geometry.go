package export

import (
	"fmt"

	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/step"
)

// closedTolerance is the distance under which the end control points of a
// spline are taken to coincide.
const closedTolerance = 1e-9

// normalizeCurve returns the encodable form of c: a non-degenerate Line or
// a validated NURBS curve. It creates no entities.
func normalizeCurve(c geom.Curve) (geom.Curve, error) {
	switch c := c.(type) {
	case geom.Line:
		if _, length := c.Direction(); length == 0 {
			return nil, fmt.Errorf("zero-length line: %w", ErrUnsupportedGeometry)
		}
		return c, nil
	case geom.Arc:
		return c.Nurbs()
	case *geom.NurbsCurve:
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return c, nil
	case nil:
		return nil, fmt.Errorf("missing curve: %w", ErrUnsupportedGeometry)
	default:
		return nil, fmt.Errorf("curve kind %T: %w", c, ErrUnsupportedGeometry)
	}
}

// normalizeSurface promotes s to its NURBS form. It creates no entities.
func normalizeSurface(s geom.Surface) (*geom.NurbsSurface, error) {
	return geom.SurfaceToNurbs(s)
}

// writeCurve writes a curve already returned by normalizeCurve.
func (s *Session) writeCurve(c geom.Curve) *step.Entity {
	if l, ok := c.(geom.Line); ok {
		dir, length := l.Direction()
		return s.line(s.cartesianPoint(l.From), s.vector(s.direction(dir), length))
	}
	return s.bsplineCurve(c.(*geom.NurbsCurve))
}

func (s *Session) bsplineCurve(c *geom.NurbsCurve) *step.Entity {
	kv := geom.StepKnots(c.Knots)
	points := make(step.List, len(c.Points))
	for i, p := range c.Points {
		points[i] = s.cartesianPoint(p)
	}
	closed := step.Bool(c.IsClosed(closedTolerance))
	selfIntersect := step.Bool(false)

	if !c.IsRational() {
		return s.reg.Add("B_SPLINE_CURVE_WITH_KNOTS",
			noName, step.Int(c.Degree), points, unspecified, closed, selfIntersect,
			step.Ints(kv.Multiplicities...), step.Reals(kv.Values...), unspecified)
	}
	return s.reg.AddComplex(
		step.Part{Type: "BOUNDED_CURVE"},
		step.Part{Type: "B_SPLINE_CURVE", Attrs: []step.Value{
			step.Int(c.Degree), points, unspecified, closed, selfIntersect,
		}},
		step.Part{Type: "B_SPLINE_CURVE_WITH_KNOTS", Attrs: []step.Value{
			step.Ints(kv.Multiplicities...), step.Reals(kv.Values...), unspecified,
		}},
		step.Part{Type: "CURVE"},
		step.Part{Type: "GEOMETRIC_REPRESENTATION_ITEM"},
		step.Part{Type: "RATIONAL_B_SPLINE_CURVE", Attrs: []step.Value{step.Reals(c.Weights...)}},
		step.Part{Type: "REPRESENTATION_ITEM", Attrs: []step.Value{noName}},
	)
}

func (s *Session) bsplineSurface(n *geom.NurbsSurface) *step.Entity {
	uk := geom.StepKnots(n.UKnots)
	vk := geom.StepKnots(n.VKnots)

	rows := make(step.List, n.UCount)
	for i := 0; i < n.UCount; i++ {
		row := make(step.List, n.VCount)
		for j := 0; j < n.VCount; j++ {
			row[j] = s.cartesianPoint(n.Point(i, j))
		}
		rows[i] = row
	}
	uClosed := step.Bool(surfaceClosed(n, true))
	vClosed := step.Bool(surfaceClosed(n, false))
	selfIntersect := step.Bool(false)

	if !n.IsRational() {
		return s.reg.Add("B_SPLINE_SURFACE_WITH_KNOTS",
			noName, step.Int(n.UDegree), step.Int(n.VDegree), rows, unspecified,
			uClosed, vClosed, selfIntersect,
			step.Ints(uk.Multiplicities...), step.Ints(vk.Multiplicities...),
			step.Reals(uk.Values...), step.Reals(vk.Values...), unspecified)
	}

	weights := make(step.List, n.UCount)
	for i := 0; i < n.UCount; i++ {
		row := make([]float64, n.VCount)
		for j := range row {
			row[j] = n.Weight(i, j)
		}
		weights[i] = step.Reals(row...)
	}
	return s.reg.AddComplex(
		step.Part{Type: "BOUNDED_SURFACE"},
		step.Part{Type: "B_SPLINE_SURFACE", Attrs: []step.Value{
			step.Int(n.UDegree), step.Int(n.VDegree), rows, unspecified,
			uClosed, vClosed, selfIntersect,
		}},
		step.Part{Type: "B_SPLINE_SURFACE_WITH_KNOTS", Attrs: []step.Value{
			step.Ints(uk.Multiplicities...), step.Ints(vk.Multiplicities...),
			step.Reals(uk.Values...), step.Reals(vk.Values...), unspecified,
		}},
		step.Part{Type: "GEOMETRIC_REPRESENTATION_ITEM"},
		step.Part{Type: "RATIONAL_B_SPLINE_SURFACE", Attrs: []step.Value{weights}},
		step.Part{Type: "REPRESENTATION_ITEM", Attrs: []step.Value{noName}},
		step.Part{Type: "SURFACE"},
	)
}

// surfaceClosed reports whether the first and last rows (u) or columns (v)
// of the control net coincide.
func surfaceClosed(n *geom.NurbsSurface, u bool) bool {
	if u {
		for j := 0; j < n.VCount; j++ {
			if n.Point(0, j).Sub(n.Point(n.UCount-1, j)).Length() > closedTolerance {
				return false
			}
		}
		return n.UCount > 1
	}
	for i := 0; i < n.UCount; i++ {
		if n.Point(i, 0).Sub(n.Point(i, n.VCount-1)).Length() > closedTolerance {
			return false
		}
	}
	return n.VCount > 1
}
