package export

import (
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// One constructor per STEP entity type. Each appends a fully populated
// instance with the attribute arity its schema declares.

const unspecified = step.Enum("UNSPECIFIED")

var noName = step.Str("")

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

func (s *Session) cartesianPoint(p v3.Vec) *step.Entity {
	return s.reg.Add("CARTESIAN_POINT", noName, step.Reals(p.X, p.Y, p.Z))
}

func (s *Session) direction(d v3.Vec) *step.Entity {
	d = d.Normalize()
	return s.reg.Add("DIRECTION", noName, step.Reals(d.X, d.Y, d.Z))
}

func (s *Session) vector(dir *step.Entity, magnitude float64) *step.Entity {
	return s.reg.Add("VECTOR", noName, dir, step.Real(magnitude))
}

func (s *Session) line(pnt, vec *step.Entity) *step.Entity {
	return s.reg.Add("LINE", noName, pnt, vec)
}

func (s *Session) axis2Placement(location, axis, refDirection *step.Entity) *step.Entity {
	return s.reg.Add("AXIS2_PLACEMENT_3D", noName, location, axis, refDirection)
}

// ---------------------------------------------------------------------------
// Topology
// ---------------------------------------------------------------------------

func (s *Session) vertexPoint(pnt *step.Entity) *step.Entity {
	return s.reg.Add("VERTEX_POINT", noName, pnt)
}

func (s *Session) edgeCurve(start, end, curve *step.Entity, sameSense bool) *step.Entity {
	return s.reg.Add("EDGE_CURVE", noName, start, end, curve, step.Bool(sameSense))
}

func (s *Session) orientedEdge(edge *step.Entity, orientation bool) *step.Entity {
	return s.reg.Add("ORIENTED_EDGE", noName, step.Derived, step.Derived, edge, step.Bool(orientation))
}

func (s *Session) edgeLoop(edges []*step.Entity) *step.Entity {
	return s.reg.Add("EDGE_LOOP", noName, step.Refs(edges...))
}

func (s *Session) faceBound(loop *step.Entity, outer, orientation bool) *step.Entity {
	typ := "FACE_BOUND"
	if outer {
		typ = "FACE_OUTER_BOUND"
	}
	return s.reg.Add(typ, noName, loop, step.Bool(orientation))
}

func (s *Session) advancedFace(bounds []*step.Entity, surface *step.Entity, sameSense bool) *step.Entity {
	return s.reg.Add("ADVANCED_FACE", noName, step.Refs(bounds...), surface, step.Bool(sameSense))
}

func (s *Session) closedShell(faces []*step.Entity) *step.Entity {
	return s.reg.Add("CLOSED_SHELL", noName, step.Refs(faces...))
}

func (s *Session) manifoldSolidBrep(name string, shell *step.Entity) *step.Entity {
	return s.reg.Add("MANIFOLD_SOLID_BREP", step.Str(name), shell)
}

// ---------------------------------------------------------------------------
// Representations
// ---------------------------------------------------------------------------

func (s *Session) representation(typ, name string, items []*step.Entity) *step.Entity {
	return s.reg.Add(typ, step.Str(name), step.Refs(items...), s.ctx.geometric)
}

func (s *Session) shapeRepresentationRelationship(rep1, rep2 *step.Entity) *step.Entity {
	return s.reg.Add("SHAPE_REPRESENTATION_RELATIONSHIP", noName, noName, rep1, rep2)
}

// addItem appends an item to a representation that has not been committed.
func addItem(rep, item *step.Entity) {
	items := rep.Attrs[1].(step.List)
	rep.Attrs[1] = append(items, item)
}

// ---------------------------------------------------------------------------
// Product structure
// ---------------------------------------------------------------------------

func (s *Session) product(name string) *step.Entity {
	return s.reg.Add("PRODUCT", step.Str(name), step.Str(name), noName, step.Refs(s.ctx.product))
}

func (s *Session) productCategory(products ...*step.Entity) *step.Entity {
	return s.reg.Add("PRODUCT_RELATED_PRODUCT_CATEGORY", step.Str("part"), step.Unset, step.Refs(products...))
}

func (s *Session) productDefinitionFormation(product *step.Entity) *step.Entity {
	if s.opts.Dialect == AP203 {
		return s.reg.Add("PRODUCT_DEFINITION_FORMATION_WITH_SPECIFIED_SOURCE",
			noName, noName, product, step.Enum("NOT_KNOWN"))
	}
	return s.reg.Add("PRODUCT_DEFINITION_FORMATION", noName, noName, product)
}

func (s *Session) productDefinition(formation *step.Entity) *step.Entity {
	return s.reg.Add("PRODUCT_DEFINITION", step.Str("design"), noName, formation, s.ctx.definition)
}

// productDefinitionShape takes a PRODUCT_DEFINITION or a
// NEXT_ASSEMBLY_USAGE_OCCURRENCE.
func (s *Session) productDefinitionShape(name string, definition *step.Entity) *step.Entity {
	return s.reg.Add("PRODUCT_DEFINITION_SHAPE", step.Str(name), noName, definition)
}

func (s *Session) shapeDefinitionRepresentation(pds, rep *step.Entity) *step.Entity {
	return s.reg.Add("SHAPE_DEFINITION_REPRESENTATION", pds, rep)
}

// ---------------------------------------------------------------------------
// Assembly structure
// ---------------------------------------------------------------------------

func (s *Session) nextAssemblyUsageOccurrence(id, name string, parent, child *step.Entity) *step.Entity {
	return s.reg.Add("NEXT_ASSEMBLY_USAGE_OCCURRENCE",
		step.Str(id), step.Str(name), noName, parent, child, step.Unset)
}

func (s *Session) itemDefinedTransformation(item1, item2 *step.Entity) *step.Entity {
	return s.reg.Add("ITEM_DEFINED_TRANSFORMATION", noName, noName, item1, item2)
}

// representationRelationshipWithTransformation builds the complex
// REPRESENTATION_RELATIONSHIP, REPRESENTATION_RELATIONSHIP_WITH_TRANSFORMATION
// and SHAPE_REPRESENTATION_RELATIONSHIP instance placing rep1 in rep2.
func (s *Session) representationRelationshipWithTransformation(rep1, rep2, transform *step.Entity) *step.Entity {
	return s.reg.AddComplex(
		step.Part{Type: "REPRESENTATION_RELATIONSHIP", Attrs: []step.Value{noName, noName, rep1, rep2}},
		step.Part{Type: "REPRESENTATION_RELATIONSHIP_WITH_TRANSFORMATION", Attrs: []step.Value{transform}},
		step.Part{Type: "SHAPE_REPRESENTATION_RELATIONSHIP"},
	)
}

func (s *Session) contextDependentShapeRepresentation(relation, pds *step.Entity) *step.Entity {
	return s.reg.Add("CONTEXT_DEPENDENT_SHAPE_REPRESENTATION", relation, pds)
}

// ---------------------------------------------------------------------------
// Constructive solid geometry
// ---------------------------------------------------------------------------

func (s *Session) booleanResult(op step.Enum, first, second *step.Entity) *step.Entity {
	return s.reg.Add("BOOLEAN_RESULT", noName, op, first, second)
}

func (s *Session) csgSolid(name string, root *step.Entity) *step.Entity {
	return s.reg.Add("CSG_SOLID", step.Str(name), root)
}
