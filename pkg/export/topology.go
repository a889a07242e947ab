package export

import (
	"fmt"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/step"
	"go.uber.org/zap"
)

// Topology is the STEP form of one BRep. Every slice is index aligned with
// the source array of the same name; slots of unused or skipped source
// elements are nil.
type Topology struct {
	Points   []*step.Entity // CARTESIAN_POINT per vertex
	Vertices []*step.Entity // VERTEX_POINT
	Curves   []*step.Entity // LINE or B-spline per 3D curve
	Surfaces []*step.Entity // B-spline surface per surface
	Edges    []*step.Entity // EDGE_CURVE
	Loops    []*step.Entity // EDGE_LOOP
	Faces    []*step.Entity // ADVANCED_FACE
	Shell    *step.Entity   // CLOSED_SHELL
	Solid    *step.Entity   // MANIFOLD_SOLID_BREP
}

// prepared holds the normalized geometry of a BRep, computed before any
// entity is created so that a failure leaves the registry untouched.
type prepared struct {
	brep     *brep.Brep
	curves   []geom.Curve
	surfaces []*geom.NurbsSurface
}

// prepare validates b and normalizes its geometry. Every face must keep at
// least one loop with a real edge once singular trims are dropped.
func prepare(b *brep.Brep) (*prepared, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("malformed brep: %w", err)
	}
	for fi, f := range b.Faces {
		if !hasBoundedLoop(b, f) {
			return nil, fmt.Errorf("face %d: every trim is singular: %w", fi, ErrUnsupportedGeometry)
		}
	}
	used := make([]bool, len(b.Curves3D))
	for _, e := range b.Edges {
		used[e.Curve] = true
	}
	p := &prepared{
		brep:     b,
		curves:   make([]geom.Curve, len(b.Curves3D)),
		surfaces: make([]*geom.NurbsSurface, len(b.Surfaces)),
	}
	for i, c := range b.Curves3D {
		if !used[i] {
			continue
		}
		n, err := normalizeCurve(c)
		if err != nil {
			return nil, fmt.Errorf("curve %d: %w", i, err)
		}
		p.curves[i] = n
	}
	for i, sf := range b.Surfaces {
		n, err := normalizeSurface(sf)
		if err != nil {
			return nil, fmt.Errorf("surface %d: %w", i, err)
		}
		p.surfaces[i] = n
	}
	return p, nil
}

func hasBoundedLoop(b *brep.Brep, f brep.Face) bool {
	for _, li := range f.Loops {
		for _, ti := range b.Loops[li].Trims {
			if b.Trims[ti].Edge != brep.NoEdge {
				return true
			}
		}
	}
	return false
}

// faceLoops returns the loops of face fi with the outer loop first.
func faceLoops(b *brep.Brep, fi int) []int {
	outer := b.OuterLoop(fi)
	loops := make([]int, 0, len(b.Faces[fi].Loops))
	if outer >= 0 {
		loops = append(loops, outer)
	}
	for _, li := range b.Faces[fi].Loops {
		if li != outer {
			loops = append(loops, li)
		}
	}
	return loops
}

// encodeBrep writes b as a MANIFOLD_SOLID_BREP named name. On error no
// entity has been created.
func (s *Session) encodeBrep(name string, b *brep.Brep) (*Topology, error) {
	if b.IsEmpty() {
		return s.emptyBrep(name), nil
	}
	p, err := prepare(b)
	if err != nil {
		return nil, err
	}
	return s.writeBrep(name, p), nil
}

// writeBrep creates the entities of a prepared BRep.
func (s *Session) writeBrep(name string, p *prepared) *Topology {
	b := p.brep
	log := s.log.Named("topology")

	t := &Topology{
		Points:   make([]*step.Entity, len(b.Vertices)),
		Vertices: make([]*step.Entity, len(b.Vertices)),
		Curves:   make([]*step.Entity, len(b.Curves3D)),
		Surfaces: make([]*step.Entity, len(b.Surfaces)),
		Edges:    make([]*step.Entity, len(b.Edges)),
		Loops:    make([]*step.Entity, len(b.Loops)),
		Faces:    make([]*step.Entity, len(b.Faces)),
	}
	for i, v := range b.Vertices {
		t.Points[i] = s.cartesianPoint(v.Point)
		t.Vertices[i] = s.vertexPoint(t.Points[i])
	}
	for i, c := range p.curves {
		if c != nil {
			t.Curves[i] = s.writeCurve(c)
		}
	}
	for i, sf := range p.surfaces {
		t.Surfaces[i] = s.bsplineSurface(sf)
	}
	for i, e := range b.Edges {
		t.Edges[i] = s.edgeCurve(t.Vertices[e.Start], t.Vertices[e.End], t.Curves[e.Curve], true)
	}

	faces := make([]*step.Entity, 0, len(b.Faces))
	for fi, f := range b.Faces {
		var bounds []*step.Entity
		for _, li := range faceLoops(b, fi) {
			l := b.Loops[li]
			var path []*step.Entity
			for _, ti := range l.Trims {
				tr := b.Trims[ti]
				if tr.Edge == brep.NoEdge {
					continue
				}
				path = append(path, s.orientedEdge(t.Edges[tr.Edge], !tr.Reversed))
			}
			if len(path) == 0 {
				log.Debug("loop has no edges", zap.String("object", name), zap.Int("loop", li))
				continue
			}
			t.Loops[li] = s.edgeLoop(path)
			bounds = append(bounds, s.faceBound(t.Loops[li], l.Kind == brep.LoopOuter, !l.Reversed))
		}
		t.Faces[fi] = s.advancedFace(bounds, t.Surfaces[f.Surface], !f.Reversed)
		faces = append(faces, t.Faces[fi])
	}
	t.Shell = s.closedShell(faces)
	t.Solid = s.manifoldSolidBrep(name, t.Shell)
	return t
}

// emptyBrep writes a solid with an empty shell.
func (s *Session) emptyBrep(name string) *Topology {
	t := &Topology{Shell: s.closedShell(nil)}
	t.Solid = s.manifoldSolidBrep(name, t.Shell)
	return t
}
