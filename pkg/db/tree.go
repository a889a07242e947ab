package db

import (
	"fmt"

	"github.com/chazu/gstep/pkg/geom"
)

// Op is a boolean tree opcode.
type Op int

const (
	OpLeaf Op = iota
	OpUnion
	OpIntersect
	OpSubtract
	OpXor
)

func (op Op) String() string {
	switch op {
	case OpLeaf:
		return "leaf"
	case OpUnion:
		return "union"
	case OpIntersect:
		return "intersect"
	case OpSubtract:
		return "subtract"
	case OpXor:
		return "xor"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Tree is a binary boolean tree node. Interior nodes use Left and Right;
// leaves reference an object by name with an optional placement matrix.
type Tree struct {
	Op     Op
	Left   *Tree
	Right  *Tree
	Name   string     // leaf only
	Matrix *geom.Mat4 // leaf only; nil means identity
}

// Leaf returns a leaf node referencing name.
func Leaf(name string, m *geom.Mat4) *Tree {
	return &Tree{Op: OpLeaf, Name: name, Matrix: m}
}

// Node returns an interior node.
func Node(op Op, left, right *Tree) *Tree {
	return &Tree{Op: op, Left: left, Right: right}
}

// Union folds its operands left to right into a union tree.
func Union(trees ...*Tree) *Tree { return fold(OpUnion, trees) }

// Intersect folds its operands left to right into an intersection tree.
func Intersect(trees ...*Tree) *Tree { return fold(OpIntersect, trees) }

// Subtract folds its operands left to right: a - b - c = (a - b) - c.
func Subtract(trees ...*Tree) *Tree { return fold(OpSubtract, trees) }

// Xor folds its operands left to right into an exclusive-or tree.
func Xor(trees ...*Tree) *Tree { return fold(OpXor, trees) }

func fold(op Op, trees []*Tree) *Tree {
	if len(trees) == 0 {
		return nil
	}
	t := trees[0]
	for _, r := range trees[1:] {
		t = Node(op, t, r)
	}
	return t
}

// HasMatrix reports whether a leaf carries a non-identity matrix.
func (t *Tree) HasMatrix() bool {
	return t.Matrix != nil && !t.Matrix.IsIdentity(geom.DefaultTransformTolerance)
}

// Leaves returns the leaf nodes of t, left to right.
func (t *Tree) Leaves() []*Tree {
	var out []*Tree
	var walk func(n *Tree)
	walk = func(n *Tree) {
		if n == nil {
			return
		}
		if n.Op == OpLeaf {
			out = append(out, n)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t)
	return out
}

// UnionOnly reports whether every interior node of t is a union.
func (t *Tree) UnionOnly() bool {
	if t == nil || t.Op == OpLeaf {
		return true
	}
	return t.Op == OpUnion && t.Left.UnionOnly() && t.Right.UnionOnly()
}

// Depth returns the number of interior levels above the deepest leaf.
func (t *Tree) Depth() int {
	if t == nil || t.Op == OpLeaf {
		return 0
	}
	return 1 + max(t.Left.Depth(), t.Right.Depth())
}

// String renders the tree in infix form.
func (t *Tree) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Op {
	case OpLeaf:
		if t.HasMatrix() {
			return t.Name + "*"
		}
		return t.Name
	case OpUnion:
		return fmt.Sprintf("(%s u %s)", t.Left, t.Right)
	case OpIntersect:
		return fmt.Sprintf("(%s + %s)", t.Left, t.Right)
	case OpSubtract:
		return fmt.Sprintf("(%s - %s)", t.Left, t.Right)
	case OpXor:
		return fmt.Sprintf("(%s ^ %s)", t.Left, t.Right)
	default:
		return fmt.Sprintf("(%s %s %s)", t.Left, t.Op, t.Right)
	}
}
