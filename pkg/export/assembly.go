package export

import (
	"fmt"

	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// placement builds the AXIS2_PLACEMENT_3D for a classified transform.
// Scaled and distorting transforms have no placement.
func (s *Session) placement(tc geom.TransformClass) (*step.Entity, error) {
	switch tc := tc.(type) {
	case geom.IdentityTransform:
		return s.originPlacement(), nil
	case geom.Rigid:
		origin := tc.Origin
		if s.opts.FlipTransforms {
			origin = v3.Vec{X: -origin.X, Y: -origin.Y, Z: -origin.Z}
		}
		loc := s.ctx.origin
		if origin != (v3.Vec{}) {
			loc = s.cartesianPoint(origin)
		}
		return s.axis2Placement(loc, s.direction(tc.ZAxis), s.direction(tc.XAxis)), nil
	case geom.UniformScale:
		return nil, fmt.Errorf("uniform scale %g: %w", tc.Scale, ErrUnsupportedGeometry)
	case geom.Unsupported:
		return nil, fmt.Errorf("%s: %w", tc.Reason, ErrUnsupportedGeometry)
	default:
		return nil, fmt.Errorf("transform class %T: %w", tc, ErrUnsupportedGeometry)
	}
}

// convertAssembly builds the product of an assembly combination and one
// usage occurrence per child. A child whose placement cannot be expressed
// is dropped; the rest of the assembly is still written.
func (s *Session) convertAssembly(o *db.Object) {
	log := s.log.Named("assembly")
	rec := &Record{Object: o, Role: db.RoleAssembly}
	s.records[o.Handle] = rec
	s.buildShape(rec, o.Name, repShape, nil)

	status := StatusConverted
	var dropped int
	for _, c := range s.db.Children(o) {
		if c.Object == nil {
			s.warn(log, "assembly member not found",
				zap.String("parent", o.Name), zap.String("child", c.Leaf.Name))
			s.edgesDropped++
			s.metrics.RecordEdge(false)
			dropped++
			continue
		}
		child := s.ensure(c.Object)
		if err := s.assemblyEdge(rec, child, c.Object.Name, c.Leaf); err != nil {
			s.warn(log, "assembly edge dropped",
				zap.String("parent", o.Name), zap.String("child", c.Object.Name), zap.Error(err))
			s.edgesDropped++
			s.metrics.RecordEdge(false)
			dropped++
			continue
		}
		s.edgesEmitted++
		s.metrics.RecordEdge(true)
	}

	var msg string
	if dropped > 0 {
		status = StatusPartial
		msg = fmt.Sprintf("%d of %d members dropped", dropped, len(s.db.Children(o)))
	}
	s.outcome(o, db.RoleAssembly, rec, status, msg)
}

// assemblyEdge places child inside parent through the transform of leaf.
// name is the member name, which differs from the record's object for
// wrappers.
func (s *Session) assemblyEdge(parent, child *Record, name string, leaf *db.Tree) error {
	m := geom.Identity()
	if leaf.Matrix != nil {
		m = *leaf.Matrix
	}
	placed, err := s.placement(geom.Classify(m, geom.DefaultTransformTolerance))
	if err != nil {
		return err
	}
	addItem(parent.Shape, placed)

	s.nauo++
	idt := s.itemDefinedTransformation(child.Axis, placed)
	usage := s.nextAssemblyUsageOccurrence(
		fmt.Sprintf("NAUO%d", s.nauo), name, parent.Definition, child.Definition)
	pds := s.productDefinitionShape("Placement of "+name, usage)
	rel := s.representationRelationshipWithTransformation(child.Shape, parent.Shape, idt)
	s.contextDependentShapeRepresentation(rel, pds)
	return nil
}
