package export

import (
	"fmt"

	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/step"
	"go.uber.org/zap"
)

// Operand is what a boolean subtree converts to. The set of kinds is
// closed: SolidOperand, ResultOperand and WrapperOperand. Callers switch
// on it to pick the BOOLEAN_OPERAND variant they reference.
type Operand interface {
	operand() // marker method restricting implementations to this package
}

// SolidOperand is a leaf solid, possibly a transformed copy.
type SolidOperand struct {
	Object db.Handle
	Solid  *step.Entity // MANIFOLD_SOLID_BREP
}

// ResultOperand is a nested boolean expression.
type ResultOperand struct {
	Result *step.Entity // BOOLEAN_RESULT
}

// WrapperOperand is a wrapper combination elided to its child's solid.
type WrapperOperand struct {
	Wrapper db.Handle
	Solid   *step.Entity // the child's MANIFOLD_SOLID_BREP
}

func (SolidOperand) operand()   {}
func (ResultOperand) operand()  {}
func (WrapperOperand) operand() {}

// operandEntity returns the entity a BOOLEAN_RESULT references for op.
func operandEntity(op Operand) *step.Entity {
	switch op := op.(type) {
	case SolidOperand:
		return op.Solid
	case WrapperOperand:
		return op.Solid
	case ResultOperand:
		return op.Result
	default:
		return nil
	}
}

// booleanOperator maps a tree operator to its STEP enumeration.
func booleanOperator(op db.Op) (step.Enum, error) {
	switch op {
	case db.OpUnion:
		return "UNION", nil
	case db.OpIntersect:
		return "INTERSECTION", nil
	case db.OpSubtract:
		return "DIFFERENCE", nil
	case db.OpXor:
		return "", fmt.Errorf("xor: %w", ErrUnsupportedGeometry)
	default:
		return "", fmt.Errorf("operator %s: %w", op, ErrUnsupportedGeometry)
	}
}

// boolPlan is a boolean subtree with every name resolved, every operator
// mapped and every placed leaf prepared. Emitting a plan cannot fail, so a
// subtree that fails to plan leaves no entities behind.
type boolPlan struct {
	// Interior nodes.
	op          step.Enum
	left, right *boolPlan

	// Leaves, memoized under key.
	key      leafKey
	keyed    bool
	done     Operand    // converted earlier in the run
	object   *db.Object // solid or wrapper
	wrapper  bool
	identity bool      // solid used in place
	placed   *prepared // placed copy of a solid's BRep, nil when it has no faces
	noBrep   error     // placed solid without a convertible BRep
	sub      *boolPlan // combination expanded in place
}

// planTree resolves t, placed by m.
func (s *Session) planTree(t *db.Tree, m geom.Mat4) (*boolPlan, error) {
	if t == nil {
		return nil, fmt.Errorf("empty tree: %w", ErrUnsupportedGeometry)
	}
	if t.Op == db.OpLeaf {
		return s.planLeaf(t, m)
	}
	op, err := booleanOperator(t.Op)
	if err != nil {
		return nil, err
	}
	right, err := s.planTree(t.Right, m)
	if err != nil {
		return nil, err
	}
	left, err := s.planTree(t.Left, m)
	if err != nil {
		return nil, err
	}
	return &boolPlan{op: op, left: left, right: right}, nil
}

// planLeaf resolves a leaf. Solids and wrappers become solid operands;
// other combinations are expanded in place with the leaf matrix pushed
// down.
func (s *Session) planLeaf(t *db.Tree, m geom.Mat4) (*boolPlan, error) {
	o := s.db.Lookup(t.Name)
	if o == nil {
		return nil, fmt.Errorf("member %q: %w", t.Name, ErrNotFound)
	}
	if t.Matrix != nil {
		m = m.Mul(*t.Matrix)
	}
	p := &boolPlan{key: leafKey{handle: o.Handle, matrix: m.Key()}, keyed: true}
	if op, ok := s.operands[p.key]; ok {
		p.done = op
		return p, nil
	}

	switch {
	case o.IsSolid():
		if err := s.planSolid(p, o, m); err != nil {
			return nil, err
		}
	case s.db.IsWrapper(o) && s.isIdentity(m):
		p.object, p.wrapper = o, true
	default:
		sub, err := s.planTree(o.Comb.Tree, m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Name, err)
		}
		p.sub = sub
	}
	return p, nil
}

// planSolid prepares the placed copy of solid o. Identity placements reuse
// the solid's own record.
func (s *Session) planSolid(p *boolPlan, o *db.Object, m geom.Mat4) error {
	p.object = o
	if s.isIdentity(m) {
		p.identity = true
		return nil
	}
	if !m.IsAffine(geom.DefaultTransformTolerance) {
		return fmt.Errorf("%s: projective matrix: %w", o.Name, ErrUnsupportedGeometry)
	}
	b, err := s.solidBrep(o)
	if err != nil {
		p.noBrep = err
		return nil
	}
	moved, err := b.Transform(m)
	if err != nil {
		return fmt.Errorf("%s: %w", o.Name, err)
	}
	if moved.IsEmpty() {
		return nil
	}
	if p.placed, err = prepare(moved); err != nil {
		return fmt.Errorf("%s: %w", o.Name, err)
	}
	return nil
}

// planUnion resolves the solids of a union-only tree, for dialects that
// cannot express boolean results.
func (s *Session) planUnion(t *db.Tree, m geom.Mat4) ([]*boolPlan, error) {
	if t == nil {
		return nil, nil
	}
	switch t.Op {
	case db.OpLeaf:
		o := s.db.Lookup(t.Name)
		if o == nil {
			return nil, fmt.Errorf("member %q: %w", t.Name, ErrNotFound)
		}
		if t.Matrix != nil {
			m = m.Mul(*t.Matrix)
		}
		if !o.IsSolid() {
			return s.planUnion(o.Comb.Tree, m)
		}
		p := &boolPlan{key: leafKey{handle: o.Handle, matrix: m.Key()}, keyed: true}
		if op, ok := s.operands[p.key]; ok {
			p.done = op
		} else if err := s.planSolid(p, o, m); err != nil {
			return nil, err
		}
		return []*boolPlan{p}, nil
	case db.OpUnion:
		left, err := s.planUnion(t.Left, m)
		if err != nil {
			return nil, err
		}
		right, err := s.planUnion(t.Right, m)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	default:
		return nil, fmt.Errorf("%s needs boolean results, which %s cannot express: %w",
			t.Op, s.opts.Dialect, ErrUnsupportedGeometry)
	}
}

// emitPlan creates the entities of a plan. The right subtree is emitted
// before the left one.
func (s *Session) emitPlan(p *boolPlan) Operand {
	if p.done != nil {
		return p.done
	}
	if p.keyed {
		if op, ok := s.operands[p.key]; ok {
			return op
		}
	}

	var op Operand
	switch {
	case p.left != nil:
		right := s.emitPlan(p.right)
		left := s.emitPlan(p.left)
		op = ResultOperand{Result: s.booleanResult(p.op, operandEntity(left), operandEntity(right))}
	case p.sub != nil:
		op = s.emitPlan(p.sub)
	case p.wrapper:
		child := s.db.Lookup(p.object.Comb.Tree.Name)
		op = WrapperOperand{Wrapper: p.object.Handle, Solid: s.ensure(child).Solid}
	default:
		op = SolidOperand{Object: p.object.Handle, Solid: s.emitSolid(p)}
	}
	if p.keyed {
		s.operands[p.key] = op
	}
	return op
}

func (s *Session) emitSolid(p *boolPlan) *step.Entity {
	o := p.object
	switch {
	case p.identity:
		return s.ensure(o).Solid
	case p.noBrep != nil:
		s.warn(s.log.Named("boolean"), "no brep for transformed leaf, writing empty solid",
			zap.String("object", o.Name), zap.Error(p.noBrep))
		return s.emptyBrep(o.Name).Solid
	case p.placed == nil:
		return s.emptyBrep(o.Name).Solid
	default:
		return s.writeBrep(o.Name, p.placed).Solid
	}
}

// emitSolids emits union leaves, each distinct solid once.
func (s *Session) emitSolids(plans []*boolPlan) []*step.Entity {
	seen := make(map[*step.Entity]bool)
	var out []*step.Entity
	for _, p := range plans {
		e := operandEntity(s.emitPlan(p))
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// convertRegion converts a region or boolean combination to one shape.
// A failure aborts only this object: it gets an empty shape and the run
// continues.
func (s *Session) convertRegion(o *db.Object, role db.Role) {
	log := s.log.Named("boolean")
	rec := &Record{Object: o, Role: role}
	s.records[o.Handle] = rec

	if o.Comb.Tree == nil {
		s.warn(log, "region has no members, writing empty shape", zap.String("object", o.Name))
		s.buildShape(rec, o.Name, repBrep, nil)
		s.outcome(o, role, rec, StatusEmpty, "no members")
		return
	}

	var err error
	if s.opts.Dialect == AP203 {
		var plans []*boolPlan
		if plans, err = s.planUnion(o.Comb.Tree, geom.Identity()); err == nil {
			s.buildShape(rec, o.Name, repBrep, s.emitSolids(plans))
		}
	} else {
		var p *boolPlan
		if p, err = s.planTree(o.Comb.Tree, geom.Identity()); err == nil {
			switch op := s.emitPlan(p).(type) {
			case SolidOperand, WrapperOperand:
				s.buildShape(rec, o.Name, repBrep, []*step.Entity{operandEntity(op)})
			case ResultOperand:
				s.buildShape(rec, o.Name, repCSG, []*step.Entity{s.csgSolid(o.Name, op.Result)})
			}
		}
	}
	if err != nil {
		s.warn(log, "region conversion aborted, writing empty shape",
			zap.String("object", o.Name), zap.Error(err))
		s.buildShape(rec, o.Name, repBrep, nil)
		s.outcome(o, role, rec, StatusFailed, err.Error())
		return
	}
	s.outcome(o, role, rec, StatusConverted, "")
}
