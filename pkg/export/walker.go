package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/kernel"
	"github.com/chazu/gstep/pkg/metrics"
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/zap"
)

// Export converts the named objects and everything below them, or every
// top-level object when no name is given. The whole database is validated
// first; a hierarchy error aborts before any entity is created.
func (s *Session) Export(names ...string) error {
	if s.exported {
		return errors.New("export: session already exported")
	}
	roots, err := s.selectRoots(names)
	if err != nil {
		return err
	}

	log := s.log.Named("walker")
	findings := db.Validate(s.db)
	for _, w := range db.Warnings(findings) {
		s.warn(log, w.Message, zap.String("object", w.Object))
	}
	if err := db.Errors(findings); err != nil {
		for _, f := range findings {
			if f.Severity == db.SeverityError {
				log.Error(f.Message, zap.String("object", f.Object))
			}
		}
		return fmt.Errorf("%w: %w", ErrInvalidHierarchy, err)
	}
	s.exported = true
	s.buildContexts()

	order := s.db.PostOrder(roots)
	inner := make(map[db.Handle]bool)
	for _, o := range s.db.BelowRegions() {
		inner[o.Handle] = true
	}
	log.Debug("walking", zap.Int("objects", len(order)), zap.Int("roots", len(roots)))

	// Leaf solids, then wrappers, then regions, then assemblies. Post order
	// keeps nested assemblies children first.
	for _, o := range order {
		if s.db.Role(o) == db.RoleSolid {
			s.ensure(o)
		}
	}
	for _, o := range order {
		if s.db.Role(o) == db.RoleWrapper {
			s.ensure(o)
		}
	}
	for _, o := range order {
		switch s.db.Role(o) {
		case db.RoleRegion:
			s.ensure(o)
		case db.RoleBoolean:
			if !inner[o.Handle] {
				s.ensure(o)
			}
		}
	}
	for _, o := range order {
		if s.db.Role(o) == db.RoleAssembly {
			s.ensure(o)
		}
	}
	for _, o := range order {
		if inner[o.Handle] && s.records[o.Handle] == nil && o.Kind == db.KindComb {
			s.outcome(o, db.RoleBoolean, nil, StatusSkipped, "expanded inside its region")
		}
	}
	return nil
}

// selectRoots resolves the requested names.
func (s *Session) selectRoots(names []string) ([]*db.Object, error) {
	if len(names) == 0 {
		return s.db.TopLevel(), nil
	}
	roots := make([]*db.Object, 0, len(names))
	for _, n := range names {
		o := s.db.Lookup(n)
		if o == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
		}
		roots = append(roots, o)
	}
	return roots, nil
}

// ensure returns the record of o, converting it first if needed.
func (s *Session) ensure(o *db.Object) *Record {
	if rec := s.records[o.Handle]; rec != nil {
		return rec
	}
	timer := metrics.NewTimer()
	role := s.db.Role(o)
	switch role {
	case db.RoleSolid:
		s.convertSolid(o)
	case db.RoleWrapper:
		s.convertWrapper(o)
	case db.RoleRegion, db.RoleBoolean:
		s.convertRegion(o, role)
	case db.RoleAssembly:
		s.convertAssembly(o)
	}
	rec := s.records[o.Handle]
	status := s.outcomes[len(s.outcomes)-1].status
	s.metrics.RecordObject(role.String(), status.String(), timer.Duration())
	return rec
}

// solidBrep returns the BRep of a solid: stored, or built by the kernel.
func (s *Session) solidBrep(o *db.Object) (*brep.Brep, error) {
	if b, ok := s.breps[o.Handle]; ok {
		return b, nil
	}
	var b *brep.Brep
	switch o.Kind {
	case db.KindBrep:
		if o.Brep == nil {
			return nil, fmt.Errorf("%s: %w", o.Name, kernel.ErrNoBrep)
		}
		b = o.Brep
	case db.KindPrimitive:
		if s.kernel == nil {
			return nil, fmt.Errorf("%s: no kernel: %w", o.Name, kernel.ErrNoBrep)
		}
		var err error
		if b, err = s.kernel.Brep(o.Primitive); err != nil {
			return nil, fmt.Errorf("%s (%s): %w", o.Name, db.PrimitiveName(o.Primitive), err)
		}
	default:
		return nil, fmt.Errorf("%s is not a solid", o.Name)
	}
	s.breps[o.Handle] = b
	return b, nil
}

// convertSolid writes a leaf solid with its own product. A solid without a
// convertible BRep is written with an empty shell.
func (s *Session) convertSolid(o *db.Object) {
	log := s.log.Named("topology")
	rec := &Record{Object: o, Role: db.RoleSolid}
	s.records[o.Handle] = rec

	status, msg := StatusConverted, ""
	b, err := s.solidBrep(o)
	var top *Topology
	if err == nil {
		top, err = s.encodeBrep(o.Name, b)
	}
	switch {
	case err != nil:
		s.warn(log, "no convertible brep, writing empty solid", zap.String("object", o.Name), zap.Error(err))
		top = s.emptyBrep(o.Name)
		status, msg = StatusEmpty, err.Error()
	case b.IsEmpty():
		s.warn(log, "brep has no faces", zap.String("object", o.Name))
		status, msg = StatusEmpty, "no faces"
	}
	rec.Solid = top.Solid
	rec.Faces = len(top.Faces)
	rec.Bounds = s.primitiveBounds(o)
	s.buildShape(rec, o.Name, repBrep, []*step.Entity{rec.Solid})
	s.outcome(o, db.RoleSolid, rec, status, msg)
}

// primitiveBounds asks the kernel for the extent of a primitive solid. It
// is reported even when the primitive has no BRep.
func (s *Session) primitiveBounds(o *db.Object) *kernel.Bounds {
	if o.Kind != db.KindPrimitive || s.kernel == nil {
		return nil
	}
	b, err := s.kernel.Bounds(o.Primitive)
	if err != nil {
		s.log.Named("topology").Debug("no bounds", zap.String("object", o.Name), zap.Error(err))
		return nil
	}
	return &b
}

// convertWrapper aliases a wrapper to its child's record. The child's
// product takes the wrapper's name, so no separate definition is written.
func (s *Session) convertWrapper(o *db.Object) {
	child := s.db.Lookup(o.Comb.Tree.Name)
	rec := s.ensure(child)
	s.records[o.Handle] = rec
	if prev := rec.Product.Attrs[1].(step.Str); string(prev) != child.Name {
		s.log.Named("walker").Debug("solid already renamed by another wrapper",
			zap.String("object", o.Name), zap.String("previous", string(prev)))
	}
	rec.Product.Attrs[0] = step.Str(o.Name)
	rec.Product.Attrs[1] = step.Str(o.Name)
	s.outcome(o, db.RoleWrapper, rec, StatusConverted, "alias of "+child.Name)
}

func (s *Session) outcome(o *db.Object, role db.Role, rec *Record, status Status, msg string) {
	s.outcomes = append(s.outcomes, outcome{object: o, role: role, record: rec, status: status, message: msg})
}

// Entry is the report line of one object.
type Entry struct {
	Object  string
	Role    string
	Status  Status
	Product int // PRODUCT file id, 0 when none
	Shape   int // shape representation file id, 0 when none
	Faces   int
	Size    v3.Vec // primitive extent, zero when unknown
	Message string
}

// Report summarizes an export run.
type Report struct {
	Entries      []Entry
	Entities     int
	EdgesEmitted int
	EdgesDropped int
	Warnings     int
	Duration     time.Duration
}

// Count returns the number of entries with the given status.
func (r Report) Count(status Status) int {
	n := 0
	for _, e := range r.Entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Report returns the per-object outcomes. File ids are filled in once the
// registry has been committed by Write.
func (s *Session) Report() Report {
	r := Report{
		Entities:     s.reg.Len(),
		EdgesEmitted: s.edgesEmitted,
		EdgesDropped: s.edgesDropped,
		Warnings:     s.warnings,
		Duration:     time.Since(s.started),
	}
	for _, oc := range s.outcomes {
		e := Entry{
			Object:  oc.object.Name,
			Role:    oc.role.String(),
			Status:  oc.status,
			Message: oc.message,
		}
		if oc.record != nil {
			e.Product = oc.record.Product.ID()
			e.Shape = oc.record.Shape.ID()
			e.Faces = oc.record.Faces
			if oc.record.Bounds != nil {
				e.Size = oc.record.Bounds.Size()
			}
		}
		r.Entries = append(r.Entries, e)
	}
	return r
}
