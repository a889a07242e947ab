package geom

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrUnsupportedGeometry is returned when a curve or surface has no NURBS
// form the exporter can encode.
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// Curve is a 3D curve referenced by a BRep edge. The set of kinds is
// closed: Line, Arc and NurbsCurve.
type Curve interface {
	curve() // marker method restricting implementations to this package

	// Transform returns the curve mapped through an affine matrix.
	Transform(m Mat4) Curve
}

// Line is a straight segment.
type Line struct {
	From v3.Vec
	To   v3.Vec
}

func (Line) curve() {}

// Transform maps both end points.
func (l Line) Transform(m Mat4) Curve {
	return Line{From: m.MulPoint(l.From), To: m.MulPoint(l.To)}
}

// Direction returns the unit direction and the length of the segment.
func (l Line) Direction() (v3.Vec, float64) {
	return unitize(l.To.Sub(l.From))
}

// Arc is a circular arc in the plane through Center spanned by XAxis and
// Normal x XAxis. Angles are radians measured from XAxis; End <= Start
// wraps through a full turn, so Start == End is a full circle.
type Arc struct {
	Center v3.Vec
	Normal v3.Vec
	XAxis  v3.Vec
	Radius float64
	Start  float64
	End    float64
}

func (Arc) curve() {}

// Transform promotes the arc to its NURBS form before mapping it, since an
// arbitrary affine map turns a circle into an ellipse.
func (a Arc) Transform(m Mat4) Curve {
	n, err := a.Nurbs()
	if err != nil {
		return a
	}
	return n.Transform(m)
}

// Sweep returns the angular extent of the arc in (0, 2π].
func (a Arc) Sweep() float64 {
	sweep := a.End - a.Start
	for sweep <= 0 {
		sweep += 2 * math.Pi
	}
	if sweep > 2*math.Pi {
		sweep = 2 * math.Pi
	}
	return sweep
}

// Nurbs returns the exact rational quadratic form of the arc.
func (a Arc) Nurbs() (*NurbsCurve, error) {
	if a.Radius <= 0 {
		return nil, fmt.Errorf("arc radius %g: %w", a.Radius, ErrUnsupportedGeometry)
	}
	x, lx := unitize(a.XAxis)
	n, ln := unitize(a.Normal)
	if lx == 0 || ln == 0 {
		return nil, fmt.Errorf("arc has a zero-length axis: %w", ErrUnsupportedGeometry)
	}
	y := n.Cross(x)
	pts, wts, knots := circleNurbs(a.Center, x, y, a.Radius, a.Start, a.Start+a.Sweep())
	return &NurbsCurve{Degree: 2, Points: pts, Weights: wts, Knots: knots}, nil
}

// NurbsCurve is a B-spline curve. Knots follow the internal convention
// with len(Points)+Degree-1 entries (no phantom end knots). The curve is
// rational iff Weights is non-empty, in which case it has one weight per
// control point.
type NurbsCurve struct {
	Degree  int
	Points  []v3.Vec
	Weights []float64
	Knots   []float64
}

func (*NurbsCurve) curve() {}

// IsRational reports whether the curve carries weights.
func (c *NurbsCurve) IsRational() bool {
	return len(c.Weights) > 0
}

// IsClosed reports whether the first and last control points coincide.
func (c *NurbsCurve) IsClosed(tol float64) bool {
	if len(c.Points) < 2 {
		return false
	}
	return c.Points[0].Sub(c.Points[len(c.Points)-1]).Length() <= tol
}

// Transform maps the control points; weights and knots are unchanged,
// which is exact for affine maps.
func (c *NurbsCurve) Transform(m Mat4) Curve {
	out := &NurbsCurve{
		Degree:  c.Degree,
		Points:  make([]v3.Vec, len(c.Points)),
		Weights: append([]float64(nil), c.Weights...),
		Knots:   append([]float64(nil), c.Knots...),
	}
	for i, p := range c.Points {
		out.Points[i] = m.MulPoint(p)
	}
	return out
}

// Validate checks the array arities of the curve.
func (c *NurbsCurve) Validate() error {
	if c.Degree < 1 {
		return fmt.Errorf("nurbs curve degree %d: %w", c.Degree, ErrUnsupportedGeometry)
	}
	if len(c.Points) < c.Degree+1 {
		return fmt.Errorf("nurbs curve has %d control points for degree %d: %w",
			len(c.Points), c.Degree, ErrUnsupportedGeometry)
	}
	if want := len(c.Points) + c.Degree - 1; len(c.Knots) != want {
		return fmt.Errorf("nurbs curve has %d knots, want %d: %w", len(c.Knots), want, ErrUnsupportedGeometry)
	}
	if c.IsRational() && len(c.Weights) != len(c.Points) {
		return fmt.Errorf("nurbs curve has %d weights for %d control points: %w",
			len(c.Weights), len(c.Points), ErrUnsupportedGeometry)
	}
	return nil
}

// CurveToNurbs returns the NURBS form of any curve kind. Lines become
// degree-one splines.
func CurveToNurbs(c Curve) (*NurbsCurve, error) {
	switch c := c.(type) {
	case Line:
		return &NurbsCurve{Degree: 1, Points: []v3.Vec{c.From, c.To}, Knots: []float64{0, 1}}, nil
	case Arc:
		return c.Nurbs()
	case *NurbsCurve:
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

// circleNurbs builds the rational quadratic control net of a circular arc
// from angle a0 to a1 (a1 > a0, at most a full turn). It returns the
// control points, the weights and the internal knot vector over [0, 1].
func circleNurbs(center, x, y v3.Vec, r, a0, a1 float64) ([]v3.Vec, []float64, []float64) {
	sweep := a1 - a0
	narcs := int(math.Ceil(sweep/(math.Pi/2) - 1e-9))
	if narcs < 1 {
		narcs = 1
	}
	if narcs > 4 {
		narcs = 4
	}
	dtheta := sweep / float64(narcs)
	w1 := math.Cos(dtheta / 2)

	at := func(angle, radius float64) v3.Vec {
		return center.Add(x.MulScalar(radius * math.Cos(angle))).Add(y.MulScalar(radius * math.Sin(angle)))
	}

	n := 2*narcs + 1
	pts := make([]v3.Vec, 0, n)
	wts := make([]float64, 0, n)
	pts = append(pts, at(a0, r))
	wts = append(wts, 1)
	angle := a0
	for i := 0; i < narcs; i++ {
		mid := angle + dtheta/2
		angle += dtheta
		pts = append(pts, at(mid, r/w1))
		wts = append(wts, w1)
		pts = append(pts, at(angle, r))
		wts = append(wts, 1)
	}

	// Internal convention: n+1 knots, the end values appear twice.
	knots := make([]float64, 0, n+1)
	knots = append(knots, 0, 0)
	for i := 1; i < narcs; i++ {
		k := float64(i) / float64(narcs)
		knots = append(knots, k, k)
	}
	knots = append(knots, 1, 1)
	return pts, wts, knots
}

// unitize returns v normalized and its original length. A zero vector is
// returned unchanged with length zero.
func unitize(v v3.Vec) (v3.Vec, float64) {
	l := v.Length()
	if l == 0 {
		return v, 0
	}
	return v.MulScalar(1 / l), l
}
