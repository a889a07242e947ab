package geom

import (
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultTransformTolerance bounds how far a basis length may stray from
// its nominal value before a transform is no longer rigid or uniform.
const DefaultTransformTolerance = 1e-5

// TransformClass is the result of classifying a placement matrix. The set
// of kinds is closed: IdentityTransform, Rigid, UniformScale and Unsupported.
type TransformClass interface {
	transformClass()
}

// IdentityTransform is the identity placement.
type IdentityTransform struct{}

// Rigid is a rotation plus translation: the transformed origin and the
// transformed (unit) Z and X axes.
type Rigid struct {
	Origin v3.Vec
	ZAxis  v3.Vec
	XAxis  v3.Vec
}

// UniformScale is a rigid placement combined with a uniform scale factor.
// Basis holds the unitized transformed X, Y and Z axes.
type UniformScale struct {
	Origin v3.Vec
	Basis  [3]v3.Vec
	Scale  float64
}

// Unsupported is a transform no STEP placement can express.
type Unsupported struct {
	Reason string
	Scales v3.Vec
}

func (IdentityTransform) transformClass() {}
func (Rigid) transformClass()             {}
func (UniformScale) transformClass()      {}
func (Unsupported) transformClass()       {}

// Classify decomposes m into an origin and an orthonormal basis and decides
// which placement, if any, can express it.
func Classify(m Mat4, tol float64) TransformClass {
	if m.IsIdentity(tol) {
		return IdentityTransform{}
	}
	if !m.IsAffine(tol) {
		return Unsupported{Reason: "perspective component"}
	}

	origin := m.MulPoint(v3.Vec{})
	x, sx := unitize(m.MulVector(v3.Vec{X: 1}))
	y, sy := unitize(m.MulVector(v3.Vec{Y: 1}))
	z, sz := unitize(m.MulVector(v3.Vec{Z: 1}))
	scales := v3.Vec{X: sx, Y: sy, Z: sz}

	if sx <= tol || sy <= tol || sz <= tol {
		return Unsupported{Reason: "degenerate basis", Scales: scales}
	}
	if math.Abs(x.Dot(y)) > tol || math.Abs(y.Dot(z)) > tol || math.Abs(x.Dot(z)) > tol {
		return Unsupported{Reason: "shear", Scales: scales}
	}
	if x.Cross(y).Dot(z) < 0 {
		return Unsupported{Reason: "mirror", Scales: scales}
	}

	unit := func(s float64) bool { return math.Abs(s-1) <= tol }
	if unit(sx) && unit(sy) && unit(sz) {
		return Rigid{Origin: origin, ZAxis: z, XAxis: x}
	}
	if math.Abs(sx-sy) <= tol*sx && math.Abs(sy-sz) <= tol*sy {
		return UniformScale{Origin: origin, Basis: [3]v3.Vec{x, y, z}, Scale: sx}
	}
	return Unsupported{
		Reason: fmt.Sprintf("non-uniform scale (%g, %g, %g)", sx, sy, sz),
		Scales: scales,
	}
}
