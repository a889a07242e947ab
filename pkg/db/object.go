package db

import (
	"github.com/chazu/gstep/pkg/brep"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Handle is a stable index into the database arena.
type Handle int

// NoHandle is the zero value for "no object".
const NoHandle Handle = -1

// ObjectKind is the internal type tag of an object.
type ObjectKind int

const (
	KindPrimitive ObjectKind = iota // solid primitive, needs a BRep fallback
	KindBrep                        // solid stored as a BRep
	KindComb                        // combination
)

func (k ObjectKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindBrep:
		return "brep"
	case KindComb:
		return "comb"
	default:
		return "unknown"
	}
}

// Object is a named node in the database.
type Object struct {
	Handle    Handle     `json:"handle"`
	Name      string     `json:"name"`
	Kind      ObjectKind `json:"kind"`
	Primitive Primitive  `json:"primitive,omitempty"`
	Brep      *brep.Brep `json:"-"`
	Comb      *Comb      `json:"comb,omitempty"`
}

// IsSolid reports whether the object is a leaf shape.
func (o *Object) IsSolid() bool {
	return o.Kind == KindPrimitive || o.Kind == KindBrep
}

// IsRegion reports whether the object is a combination flagged as a region.
func (o *Object) IsRegion() bool {
	return o.Kind == KindComb && o.Comb != nil && o.Comb.Region
}

// Comb is the payload of a combination.
type Comb struct {
	Region bool  `json:"region"`
	Tree   *Tree `json:"tree,omitempty"`
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// Primitive is the closed set of solid primitive kinds.
type Primitive interface {
	primitive() // marker method restricting implementations to this package
}

// Box is an axis-aligned right parallelepiped (RPP).
type Box struct {
	Min v3.Vec `json:"min"`
	Max v3.Vec `json:"max"`
}

func (Box) primitive() {}

// Cylinder is a right circular cylinder (RCC).
type Cylinder struct {
	Base   v3.Vec  `json:"base"`
	Height v3.Vec  `json:"height"` // axis vector from base to top
	Radius float64 `json:"radius"`
}

func (Cylinder) primitive() {}

// Sphere is a sphere (SPH).
type Sphere struct {
	Center v3.Vec  `json:"center"`
	Radius float64 `json:"radius"`
}

func (Sphere) primitive() {}

// Torus is a torus (TOR).
type Torus struct {
	Center v3.Vec  `json:"center"`
	Normal v3.Vec  `json:"normal"`
	Major  float64 `json:"major"` // center to tube center
	Minor  float64 `json:"minor"` // tube radius
}

func (Torus) primitive() {}

// PrimitiveName returns the short type name of a primitive.
func PrimitiveName(p Primitive) string {
	switch p.(type) {
	case Box:
		return "rpp"
	case Cylinder:
		return "rcc"
	case Sphere:
		return "sph"
	case Torus:
		return "tor"
	default:
		return "unknown"
	}
}
