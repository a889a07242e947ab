// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library. sdfx validates primitive
// parameters and computes bounds; boxes and cylinders are converted to
// exact BReps whose vertices are checked against the SDF surface.
package sdfx

import (
	"fmt"
	"math"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct{}

// New returns a new SdfxKernel.
func New() *SdfxKernel {
	return &SdfxKernel{}
}

// surfaceTolerance is the allowed vertex distance from the SDF surface,
// relative to the primitive's bounding box diagonal.
const surfaceTolerance = 1e-9

// Brep converts boxes and cylinders. Spheres and tori have no exact BRep
// form here and report kernel.ErrNoBrep.
func (k *SdfxKernel) Brep(p db.Primitive) (*brep.Brep, error) {
	s, err := k.solid(p)
	if err != nil {
		return nil, err
	}
	var b *brep.Brep
	switch p := p.(type) {
	case db.Box:
		b, err = brep.Box(p.Min, p.Max)
	case db.Cylinder:
		b, err = brep.Cylinder(p.Base, p.Height, p.Radius)
	default:
		return nil, fmt.Errorf("%s: %w", db.PrimitiveName(p), kernel.ErrNoBrep)
	}
	if err != nil {
		return nil, err
	}
	if err := onSurface(s, b); err != nil {
		return nil, fmt.Errorf("%s: %w", db.PrimitiveName(p), err)
	}
	return b, nil
}

// onSurface checks that every BRep vertex lies on the zero set of s.
func onSurface(s sdf.SDF3, b *brep.Brep) error {
	bb := s.BoundingBox()
	tol := surfaceTolerance * math.Max(1, bb.Size().Length())
	for i, v := range b.Vertices {
		if d := s.Evaluate(v.Point); math.Abs(d) > tol {
			return fmt.Errorf("vertex %d at %v is %g off the surface", i, v.Point, d)
		}
	}
	return nil
}

// Bounds returns the bounding box of the primitive's SDF.
func (k *SdfxKernel) Bounds(p db.Primitive) (kernel.Bounds, error) {
	s, err := k.solid(p)
	if err != nil {
		return kernel.Bounds{}, err
	}
	bb := s.BoundingBox()
	return kernel.Bounds{Min: bb.Min, Max: bb.Max}, nil
}

// solid builds the placed SDF of a primitive, rejecting invalid parameters.
func (k *SdfxKernel) solid(p db.Primitive) (sdf.SDF3, error) {
	switch p := p.(type) {
	case db.Box:
		size := p.Max.Sub(p.Min)
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return nil, fmt.Errorf("rpp: empty extent %v", size)
		}
		s, err := sdf.Box3D(size, 0)
		if err != nil {
			return nil, fmt.Errorf("rpp: %w", err)
		}
		// sdf.Box3D is centered on the origin.
		center := p.Min.Add(size.MulScalar(0.5))
		return sdf.Transform3D(s, sdf.Translate3d(center)), nil

	case db.Cylinder:
		h := p.Height.Length()
		if h <= 0 || p.Radius <= 0 {
			return nil, fmt.Errorf("rcc: height %g, radius %g", h, p.Radius)
		}
		s, err := sdf.Cylinder3D(h, p.Radius, 0)
		if err != nil {
			return nil, fmt.Errorf("rcc: %w", err)
		}
		// sdf.Cylinder3D is centered on the origin along Z.
		center := p.Base.Add(p.Height.MulScalar(0.5))
		m := sdf.Translate3d(center).Mul(alignZ(p.Height))
		return sdf.Transform3D(s, m), nil

	case db.Sphere:
		if p.Radius <= 0 {
			return nil, fmt.Errorf("sph: radius %g", p.Radius)
		}
		s, err := sdf.Sphere3D(p.Radius)
		if err != nil {
			return nil, fmt.Errorf("sph: %w", err)
		}
		return sdf.Transform3D(s, sdf.Translate3d(p.Center)), nil

	case db.Torus:
		if p.Minor <= 0 || p.Major <= p.Minor || p.Normal.Length() == 0 {
			return nil, fmt.Errorf("tor: radii %g/%g, normal %v", p.Major, p.Minor, p.Normal)
		}
		c, err := sdf.Circle2D(p.Minor)
		if err != nil {
			return nil, fmt.Errorf("tor: %w", err)
		}
		profile := sdf.Transform2D(c, sdf.Translate2d(v2.Vec{X: p.Major}))
		s, err := sdf.Revolve3D(profile)
		if err != nil {
			return nil, fmt.Errorf("tor: %w", err)
		}
		m := sdf.Translate3d(p.Center).Mul(alignZ(p.Normal))
		return sdf.Transform3D(s, m), nil

	default:
		return nil, fmt.Errorf("primitive %T: %w", p, kernel.ErrNoBrep)
	}
}

// alignZ returns the rotation taking +Z onto dir.
func alignZ(dir v3.Vec) sdf.M44 {
	l := dir.Length()
	theta := math.Acos(math.Max(-1, math.Min(1, dir.Z/l)))
	phi := math.Atan2(dir.Y, dir.X)
	return sdf.RotateZ(phi).Mul(sdf.RotateY(theta))
}
