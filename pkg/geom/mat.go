package geom

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Mat4 is a row-major homogeneous 4x4 matrix.
//
//	| m0  m1  m2  m3  |
//	| m4  m5  m6  m7  |
//	| m8  m9  m10 m11 |
//	| m12 m13 m14 m15 |
//
// Translation lives in m3, m7, m11. Element m15 is a global scale
// divisor: points and vectors are divided by it after the 3x3 product.
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate returns a translation matrix.
func Translate(v v3.Vec) Mat4 {
	return Mat4{
		1, 0, 0, v.X,
		0, 1, 0, v.Y,
		0, 0, 1, v.Z,
		0, 0, 0, 1,
	}
}

// Scale returns a per-axis scale matrix.
func Scale(v v3.Vec) Mat4 {
	return Mat4{
		v.X, 0, 0, 0,
		0, v.Y, 0, 0,
		0, 0, v.Z, 0,
		0, 0, 0, 1,
	}
}

// FromM44 converts an sdfx affine matrix into a Mat4. sdfx keeps its
// elements private, so the matrix is recovered by mapping the origin and
// the three unit vectors.
func FromM44(m sdf.M44) Mat4 {
	t := m.MulPosition(v3.Vec{})
	cx := m.MulPosition(v3.Vec{X: 1}).Sub(t)
	cy := m.MulPosition(v3.Vec{Y: 1}).Sub(t)
	cz := m.MulPosition(v3.Vec{Z: 1}).Sub(t)
	return Mat4{
		cx.X, cy.X, cz.X, t.X,
		cx.Y, cy.Y, cz.Y, t.Y,
		cx.Z, cy.Z, cz.Z, t.Z,
		0, 0, 0, 1,
	}
}

// Mul returns a*b. Applying the result to a point applies b first.
func (a Mat4) Mul(b Mat4) Mat4 {
	var r Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += a[i*4+k] * b[k*4+j]
			}
			r[i*4+j] = s
		}
	}
	return r
}

// MulPoint maps a point through the matrix, including the homogeneous divide.
func (a Mat4) MulPoint(p v3.Vec) v3.Vec {
	x := a[0]*p.X + a[1]*p.Y + a[2]*p.Z + a[3]
	y := a[4]*p.X + a[5]*p.Y + a[6]*p.Z + a[7]
	z := a[8]*p.X + a[9]*p.Y + a[10]*p.Z + a[11]
	w := a[12]*p.X + a[13]*p.Y + a[14]*p.Z + a[15]
	if w != 0 && w != 1 {
		inv := 1 / w
		return v3.Vec{X: x * inv, Y: y * inv, Z: z * inv}
	}
	return v3.Vec{X: x, Y: y, Z: z}
}

// MulVector maps a direction through the 3x3 part of the matrix, scaled
// by the global divisor m15.
func (a Mat4) MulVector(v v3.Vec) v3.Vec {
	x := a[0]*v.X + a[1]*v.Y + a[2]*v.Z
	y := a[4]*v.X + a[5]*v.Y + a[6]*v.Z
	z := a[8]*v.X + a[9]*v.Y + a[10]*v.Z
	if a[15] != 0 && a[15] != 1 {
		inv := 1 / a[15]
		return v3.Vec{X: x * inv, Y: y * inv, Z: z * inv}
	}
	return v3.Vec{X: x, Y: y, Z: z}
}

// Determinant returns the determinant of the 3x3 linear part. It is
// negative for transforms that mirror.
func (a Mat4) Determinant() float64 {
	return a[0]*(a[5]*a[10]-a[6]*a[9]) -
		a[1]*(a[4]*a[10]-a[6]*a[8]) +
		a[2]*(a[4]*a[9]-a[5]*a[8])
}

// IsAffine reports whether the projective row is (0, 0, 0, w).
func (a Mat4) IsAffine(tol float64) bool {
	return math.Abs(a[12]) <= tol && math.Abs(a[13]) <= tol && math.Abs(a[14]) <= tol
}

// Equal compares two matrices element-wise.
func (a Mat4) Equal(b Mat4, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// IsIdentity reports whether a is the identity within tol.
func (a Mat4) IsIdentity(tol float64) bool {
	return a.Equal(Identity(), tol)
}

// Key returns a stable textual key for memoization. Elements are rounded
// to nine significant digits so that matrices differing only by float
// noise share a key.
func (a Mat4) Key() string {
	var sb strings.Builder
	for i, v := range a {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', 9, 64))
	}
	return sb.String()
}

func (a Mat4) String() string {
	return fmt.Sprintf("[%g %g %g %g | %g %g %g %g | %g %g %g %g | %g %g %g %g]",
		a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7],
		a[8], a[9], a[10], a[11], a[12], a[13], a[14], a[15])
}
