package geom

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Surface is a parametric surface referenced by a BRep face. The set of
// kinds is closed: Plane, NurbsSurface, RuledSurface, RevolutionSurface
// and SumSurface.
type Surface interface {
	surface() // marker method restricting implementations to this package
}

// Plane is a bounded planar patch: Origin + u*XAxis + v*YAxis for u in
// [UMin, UMax] and v in [VMin, VMax].
type Plane struct {
	Origin v3.Vec
	XAxis  v3.Vec
	YAxis  v3.Vec
	UMin   float64
	UMax   float64
	VMin   float64
	VMax   float64
}

func (Plane) surface() {}

// NurbsSurface is a tensor-product B-spline surface. Points are stored
// u-major: the point at (i, j) is Points[i*VCount+j]. Knots follow the
// internal convention (count+degree-1 per direction). The surface is
// rational iff Weights is non-empty.
type NurbsSurface struct {
	UDegree int
	VDegree int
	UCount  int
	VCount  int
	Points  []v3.Vec
	Weights []float64
	UKnots  []float64
	VKnots  []float64
}

func (*NurbsSurface) surface() {}

// IsRational reports whether the surface carries weights.
func (s *NurbsSurface) IsRational() bool {
	return len(s.Weights) > 0
}

// Point returns the control point at (i, j).
func (s *NurbsSurface) Point(i, j int) v3.Vec {
	return s.Points[i*s.VCount+j]
}

// Weight returns the weight at (i, j), or 1 for a polynomial surface.
func (s *NurbsSurface) Weight(i, j int) float64 {
	if !s.IsRational() {
		return 1
	}
	return s.Weights[i*s.VCount+j]
}

// Validate checks the array arities of the surface.
func (s *NurbsSurface) Validate() error {
	if s.UDegree < 1 || s.VDegree < 1 {
		return fmt.Errorf("nurbs surface degree %dx%d: %w", s.UDegree, s.VDegree, ErrUnsupportedGeometry)
	}
	if s.UCount < s.UDegree+1 || s.VCount < s.VDegree+1 {
		return fmt.Errorf("nurbs surface has %dx%d control points for degree %dx%d: %w",
			s.UCount, s.VCount, s.UDegree, s.VDegree, ErrUnsupportedGeometry)
	}
	if len(s.Points) != s.UCount*s.VCount {
		return fmt.Errorf("nurbs surface has %d control points, want %d: %w",
			len(s.Points), s.UCount*s.VCount, ErrUnsupportedGeometry)
	}
	if want := s.UCount + s.UDegree - 1; len(s.UKnots) != want {
		return fmt.Errorf("nurbs surface has %d u knots, want %d: %w", len(s.UKnots), want, ErrUnsupportedGeometry)
	}
	if want := s.VCount + s.VDegree - 1; len(s.VKnots) != want {
		return fmt.Errorf("nurbs surface has %d v knots, want %d: %w", len(s.VKnots), want, ErrUnsupportedGeometry)
	}
	if s.IsRational() && len(s.Weights) != len(s.Points) {
		return fmt.Errorf("nurbs surface has %d weights for %d control points: %w",
			len(s.Weights), len(s.Points), ErrUnsupportedGeometry)
	}
	return nil
}

// RuledSurface interpolates linearly between two rails: u runs along the
// rails, v from A to B.
type RuledSurface struct {
	A Curve
	B Curve
}

func (RuledSurface) surface() {}

// RevolutionSurface sweeps Profile around the axis through AxisPoint along
// AxisDir from angle Start to End (radians; End <= Start is a full turn).
// u is the angle, v the profile parameter.
type RevolutionSurface struct {
	Profile   Curve
	AxisPoint v3.Vec
	AxisDir   v3.Vec
	Start     float64
	End       float64
}

func (RevolutionSurface) surface() {}

// SumSurface is S(u, v) = U(u) + V(v) + Offset.
type SumSurface struct {
	U      Curve
	V      Curve
	Offset v3.Vec
}

func (SumSurface) surface() {}

// TransformSurface maps a surface through an affine matrix. Every kind is
// promoted to NURBS first; the control net is then mapped directly.
func TransformSurface(s Surface, m Mat4) (Surface, error) {
	n, err := SurfaceToNurbs(s)
	if err != nil {
		return nil, err
	}
	out := &NurbsSurface{
		UDegree: n.UDegree,
		VDegree: n.VDegree,
		UCount:  n.UCount,
		VCount:  n.VCount,
		Points:  make([]v3.Vec, len(n.Points)),
		Weights: append([]float64(nil), n.Weights...),
		UKnots:  append([]float64(nil), n.UKnots...),
		VKnots:  append([]float64(nil), n.VKnots...),
	}
	for i, p := range n.Points {
		out.Points[i] = m.MulPoint(p)
	}
	return out, nil
}

// SurfaceToNurbs returns the NURBS form of any surface kind.
func SurfaceToNurbs(s Surface) (*NurbsSurface, error) {
	switch s := s.(type) {
	case Plane:
		return planeNurbs(s)
	case *NurbsSurface:
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	case RuledSurface:
		return ruledNurbs(s)
	case RevolutionSurface:
		return revolutionNurbs(s)
	case SumSurface:
		return sumNurbs(s)
	case nil:
		return nil, fmt.Errorf("missing surface: %w", ErrUnsupportedGeometry)
	default:
		return nil, fmt.Errorf("surface kind %T: %w", s, ErrUnsupportedGeometry)
	}
}

func planeNurbs(p Plane) (*NurbsSurface, error) {
	if p.UMax <= p.UMin || p.VMax <= p.VMin {
		return nil, fmt.Errorf("plane has an empty domain: %w", ErrUnsupportedGeometry)
	}
	at := func(u, v float64) v3.Vec {
		return p.Origin.Add(p.XAxis.MulScalar(u)).Add(p.YAxis.MulScalar(v))
	}
	return &NurbsSurface{
		UDegree: 1,
		VDegree: 1,
		UCount:  2,
		VCount:  2,
		Points: []v3.Vec{
			at(p.UMin, p.VMin), at(p.UMin, p.VMax),
			at(p.UMax, p.VMin), at(p.UMax, p.VMax),
		},
		UKnots: []float64{p.UMin, p.UMax},
		VKnots: []float64{p.VMin, p.VMax},
	}, nil
}

// ruledNurbs requires both rails to share degree, control point count and
// knot vector; rails that would need degree elevation or knot insertion
// are rejected.
func ruledNurbs(r RuledSurface) (*NurbsSurface, error) {
	a, err := CurveToNurbs(r.A)
	if err != nil {
		return nil, fmt.Errorf("ruled surface rail A: %w", err)
	}
	b, err := CurveToNurbs(r.B)
	if err != nil {
		return nil, fmt.Errorf("ruled surface rail B: %w", err)
	}
	if a.Degree != b.Degree || len(a.Points) != len(b.Points) || !sameKnots(a.Knots, b.Knots) {
		return nil, fmt.Errorf("ruled surface rails are not compatible: %w", ErrUnsupportedGeometry)
	}
	n := len(a.Points)
	s := &NurbsSurface{
		UDegree: a.Degree,
		VDegree: 1,
		UCount:  n,
		VCount:  2,
		Points:  make([]v3.Vec, 0, 2*n),
		UKnots:  append([]float64(nil), a.Knots...),
		VKnots:  []float64{0, 1},
	}
	rational := a.IsRational() || b.IsRational()
	if rational {
		s.Weights = make([]float64, 0, 2*n)
	}
	for i := 0; i < n; i++ {
		s.Points = append(s.Points, a.Points[i], b.Points[i])
		if rational {
			s.Weights = append(s.Weights, curveWeight(a, i), curveWeight(b, i))
		}
	}
	return s, nil
}

func revolutionNurbs(r RevolutionSurface) (*NurbsSurface, error) {
	profile, err := CurveToNurbs(r.Profile)
	if err != nil {
		return nil, fmt.Errorf("revolution profile: %w", err)
	}
	axis, l := unitize(r.AxisDir)
	if l == 0 {
		return nil, fmt.Errorf("revolution axis has zero length: %w", ErrUnsupportedGeometry)
	}
	sweep := r.End - r.Start
	for sweep <= 0 {
		sweep += 2 * math.Pi
	}
	if sweep > 2*math.Pi {
		sweep = 2 * math.Pi
	}

	var (
		rows   [][]v3.Vec
		rowW   [][]float64
		uKnots []float64
	)
	for j, p := range profile.Points {
		rel := p.Sub(r.AxisPoint)
		onAxis := r.AxisPoint.Add(axis.MulScalar(rel.Dot(axis)))
		x, radius := unitize(p.Sub(onAxis))
		if radius == 0 {
			x = Perpendicular(axis)
		}
		y := axis.Cross(x)
		// Rotating by Start keeps every profile point on the same meridian.
		pts, wts, knots := circleNurbs(onAxis, x, y, radius, r.Start, r.Start+sweep)
		if radius == 0 {
			for k := range pts {
				pts[k] = onAxis
			}
		}
		if j == 0 {
			uKnots = knots
			rows = make([][]v3.Vec, len(pts))
			rowW = make([][]float64, len(pts))
		}
		for i := range pts {
			rows[i] = append(rows[i], pts[i])
			rowW[i] = append(rowW[i], wts[i]*curveWeight(profile, j))
		}
	}

	s := &NurbsSurface{
		UDegree: 2,
		VDegree: profile.Degree,
		UCount:  len(rows),
		VCount:  len(profile.Points),
		UKnots:  uKnots,
		VKnots:  append([]float64(nil), profile.Knots...),
	}
	for i := range rows {
		s.Points = append(s.Points, rows[i]...)
		s.Weights = append(s.Weights, rowW[i]...)
	}
	return s, nil
}

// sumNurbs only handles polynomial curves; the sum of two rational curves
// has no exact tensor-product form with the same degrees.
func sumNurbs(sum SumSurface) (*NurbsSurface, error) {
	u, err := CurveToNurbs(sum.U)
	if err != nil {
		return nil, fmt.Errorf("sum surface u curve: %w", err)
	}
	v, err := CurveToNurbs(sum.V)
	if err != nil {
		return nil, fmt.Errorf("sum surface v curve: %w", err)
	}
	if u.IsRational() || v.IsRational() {
		return nil, fmt.Errorf("rational sum surface: %w", ErrUnsupportedGeometry)
	}
	s := &NurbsSurface{
		UDegree: u.Degree,
		VDegree: v.Degree,
		UCount:  len(u.Points),
		VCount:  len(v.Points),
		Points:  make([]v3.Vec, 0, len(u.Points)*len(v.Points)),
		UKnots:  append([]float64(nil), u.Knots...),
		VKnots:  append([]float64(nil), v.Knots...),
	}
	for _, pu := range u.Points {
		for _, pv := range v.Points {
			s.Points = append(s.Points, pu.Add(pv).Add(sum.Offset))
		}
	}
	return s, nil
}

func curveWeight(c *NurbsCurve, i int) float64 {
	if !c.IsRational() {
		return 1
	}
	return c.Weights[i]
}

func sameKnots(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > knotTolerance {
			return false
		}
	}
	return true
}

// Perpendicular returns some unit vector perpendicular to the unit vector n.
func Perpendicular(n v3.Vec) v3.Vec {
	ref := v3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = v3.Vec{Y: 1}
	}
	p, _ := unitize(n.Cross(ref))
	return p
}
