package export

import (
	"math"

	"github.com/chazu/gstep/pkg/config"
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// contexts holds the entities shared by every product and representation
// of one file. They are built once per session.
type contexts struct {
	application *step.Entity // APPLICATION_CONTEXT
	protocol    *step.Entity // APPLICATION_PROTOCOL_DEFINITION
	product     *step.Entity // PRODUCT_CONTEXT or MECHANICAL_CONTEXT
	definition  *step.Entity // PRODUCT_DEFINITION_CONTEXT or DESIGN_CONTEXT
	geometric   *step.Entity // GEOMETRIC_REPRESENTATION_CONTEXT complex

	lengthUnit  *step.Entity
	angleUnit   *step.Entity
	uncertainty *step.Entity

	origin *step.Entity // CARTESIAN_POINT (0,0,0)
	zAxis  *step.Entity // DIRECTION (0,0,1)
	xAxis  *step.Entity // DIRECTION (1,0,0)
}

func (s *Session) buildContexts() {
	if s.ctx != nil {
		return
	}
	c := &contexts{}
	s.ctx = c
	r := s.reg

	if s.opts.Dialect == AP203 {
		c.application = r.Add("APPLICATION_CONTEXT",
			step.Str("configuration controlled 3d designs of mechanical parts and assemblies"))
		c.protocol = r.Add("APPLICATION_PROTOCOL_DEFINITION",
			step.Str("international standard"), step.Str("config_control_design"), step.Int(1994), c.application)
		c.product = r.Add("MECHANICAL_CONTEXT", noName, c.application, step.Str("mechanical"))
		c.definition = r.Add("DESIGN_CONTEXT", noName, c.application, step.Str("design"))
	} else {
		c.application = r.Add("APPLICATION_CONTEXT", step.Str("automotive_design"))
		c.protocol = r.Add("APPLICATION_PROTOCOL_DEFINITION",
			step.Str("international standard"), step.Str("automotive_design"), step.Int(2000), c.application)
		c.product = r.Add("PRODUCT_CONTEXT", noName, c.application, step.Str("mechanical"))
		c.definition = r.Add("PRODUCT_DEFINITION_CONTEXT", step.Str("part definition"), c.application, step.Str("design"))
	}

	c.lengthUnit = r.AddComplex(
		step.Part{Type: "LENGTH_UNIT"},
		step.Part{Type: "NAMED_UNIT", Attrs: []step.Value{step.Derived}},
		step.Part{Type: "SI_UNIT", Attrs: []step.Value{step.Enum("MILLI"), step.Enum("METRE")}},
	)
	radian := r.AddComplex(
		step.Part{Type: "NAMED_UNIT", Attrs: []step.Value{step.Derived}},
		step.Part{Type: "PLANE_ANGLE_UNIT"},
		step.Part{Type: "SI_UNIT", Attrs: []step.Value{step.Unset, step.Enum("RADIAN")}},
	)
	c.angleUnit = radian
	if s.opts.AngleUnit == config.AngleDegree {
		dims := r.Add("DIMENSIONAL_EXPONENTS",
			step.Real(0), step.Real(0), step.Real(0), step.Real(0), step.Real(0), step.Real(0), step.Real(0))
		factor := r.Add("PLANE_ANGLE_MEASURE_WITH_UNIT",
			step.Typed{Type: "PLANE_ANGLE_MEASURE", Value: step.Real(math.Pi / 180)}, radian)
		c.angleUnit = r.AddComplex(
			step.Part{Type: "CONVERSION_BASED_UNIT", Attrs: []step.Value{step.Str("DEGREE"), factor}},
			step.Part{Type: "NAMED_UNIT", Attrs: []step.Value{dims}},
			step.Part{Type: "PLANE_ANGLE_UNIT"},
		)
	}
	steradian := r.AddComplex(
		step.Part{Type: "NAMED_UNIT", Attrs: []step.Value{step.Derived}},
		step.Part{Type: "SI_UNIT", Attrs: []step.Value{step.Unset, step.Enum("STERADIAN")}},
		step.Part{Type: "SOLID_ANGLE_UNIT"},
	)
	c.uncertainty = r.Add("UNCERTAINTY_MEASURE_WITH_UNIT",
		step.Typed{Type: "LENGTH_MEASURE", Value: step.Real(s.opts.Tolerance)},
		c.lengthUnit,
		step.Str("distance_accuracy_value"),
		step.Str("confusion accuracy"),
	)
	c.geometric = r.AddComplex(
		step.Part{Type: "GEOMETRIC_REPRESENTATION_CONTEXT", Attrs: []step.Value{step.Int(3)}},
		step.Part{Type: "GLOBAL_UNCERTAINTY_ASSIGNED_CONTEXT", Attrs: []step.Value{step.Refs(c.uncertainty)}},
		step.Part{Type: "GLOBAL_UNIT_ASSIGNED_CONTEXT", Attrs: []step.Value{step.Refs(c.lengthUnit, c.angleUnit, steradian)}},
		step.Part{Type: "REPRESENTATION_CONTEXT", Attrs: []step.Value{
			step.Str("Context #1"), step.Str("3D Context with UNIT and UNCERTAINTY"),
		}},
	)

	c.origin = s.cartesianPoint(v3.Vec{})
	c.zAxis = s.direction(v3.Vec{Z: 1})
	c.xAxis = s.direction(v3.Vec{X: 1})
}

// originPlacement returns a new identity AXIS2_PLACEMENT_3D over the shared
// origin and axes.
func (s *Session) originPlacement() *step.Entity {
	return s.axis2Placement(s.ctx.origin, s.ctx.zAxis, s.ctx.xAxis)
}

// scaffold builds the product paperwork for rec and ties it to rec.Shape.
func (s *Session) scaffold(rec *Record, name string) {
	rec.Product = s.product(name)
	s.productCategory(rec.Product)
	rec.Definition = s.productDefinition(s.productDefinitionFormation(rec.Product))
	pds := s.productDefinitionShape("", rec.Definition)
	s.shapeDefinitionRepresentation(pds, rec.Shape)
}

// Representation types.
const (
	repShape = "SHAPE_REPRESENTATION"
	repBrep  = "ADVANCED_BREP_SHAPE_REPRESENTATION"
	repCSG   = "CSG_SHAPE_REPRESENTATION"
)

// buildShape creates rec's shape representation holding items plus a
// default placement, then its product. In ap203 geometry lives in a
// separate representation linked to a plain SHAPE_REPRESENTATION.
func (s *Session) buildShape(rec *Record, name, typ string, items []*step.Entity) {
	rec.Axis = s.originPlacement()
	if s.opts.Dialect == AP203 && typ != repShape {
		rec.Manifold = s.representation(typ, name, append(items, s.originPlacement()))
		rec.Shape = s.representation(repShape, name, []*step.Entity{rec.Axis})
		s.shapeRepresentationRelationship(rec.Shape, rec.Manifold)
	} else {
		rec.Shape = s.representation(typ, name, append(items, rec.Axis))
	}
	s.scaffold(rec, name)
}
