package engine

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites database source for zygomys:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords need
//     no global bindings.
//  2. kebab-case identifiers become snake_case; zygomys reads a hyphen as
//     subtraction.
//  3. ; line comments become // comments.
//
// String literals (double-quoted and backtick) pass through untouched.
func preprocessSource(source string) string {
	var out strings.Builder
	out.Grow(len(source) + len(source)/4)
	b := []byte(source)

	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == '"' || c == '`':
			j := skipString(b, i)
			out.Write(b[i:j])
			i = j

		case c == ';':
			out.WriteString("//")
			for i < len(b) && b[i] == ';' {
				i++
			}
			j := i
			for j < len(b) && b[j] != '\n' {
				j++
			}
			out.Write(b[i:j])
			i = j

		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out.WriteString(":=")
			i += 2

		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out.WriteString(`"` + kwPrefix + string(b[i+1:j]) + `"`)
			i = j

		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out.WriteByte('_')
			i++

		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipString returns the index just past the string literal starting at i.
func skipString(b []byte, i int) int {
	quote := b[i]
	j := i + 1
	for j < len(b) && b[j] != quote {
		if quote == '"' && b[j] == '\\' && j+1 < len(b) {
			j++
		}
		j++
	}
	if j < len(b) {
		j++
	}
	return j
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point or vector.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpMatrix wraps a placement matrix.
type sexpMatrix struct {
	m geom.Mat4
}

func (m *sexpMatrix) SexpString(ps *zygo.PrintState) string {
	return "(matrix " + m.m.String() + ")"
}
func (m *sexpMatrix) Type() *zygo.RegisteredType { return nil }

// sexpTree wraps a boolean tree under construction.
type sexpTree struct {
	tree *db.Tree
}

func (t *sexpTree) SexpString(ps *zygo.PrintState) string {
	return t.tree.String()
}
func (t *sexpTree) Type() *zygo.RegisteredType { return nil }

// sexpObject references a database object by name.
type sexpObject struct {
	name string
}

func (o *sexpObject) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(object %q)", o.name)
}
func (o *sexpObject) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string and returns the
// keyword name without its prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	fn         string
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(fn string, args []zygo.Sexp) kwArgs {
	result := kwArgs{fn: fn, kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// float returns a required numeric keyword.
func (pa kwArgs) float(key string) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		return 0, fmt.Errorf("%s: missing :%s", pa.fn, key)
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s: %w", pa.fn, key, err)
	}
	return f, nil
}

// vec returns a vec3 keyword, or def when absent.
func (pa kwArgs) vec(key string, def *v3.Vec) (v3.Vec, error) {
	v, ok := pa.kw[key]
	if !ok {
		if def == nil {
			return v3.Vec{}, fmt.Errorf("%s: missing :%s", pa.fn, key)
		}
		return *def, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return v3.Vec{}, fmt.Errorf("%s: %s: %w", pa.fn, key, err)
	}
	return vec, nil
}

// name returns the first positional argument as an object name.
func (pa kwArgs) name() (string, error) {
	if len(pa.positional) < 1 {
		return "", fmt.Errorf("%s requires a name argument", pa.fn)
	}
	s, err := toString(pa.positional[0])
	if err != nil {
		return "", fmt.Errorf("%s: name: %w", pa.fn, err)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a vector from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toMatrix extracts a matrix from a sexpMatrix.
func toMatrix(s zygo.Sexp) (geom.Mat4, error) {
	if m, ok := s.(*sexpMatrix); ok {
		return m.m, nil
	}
	return geom.Mat4{}, fmt.Errorf("expected matrix, got %T (%s)", s, s.SexpString(nil))
}

// toTree accepts a tree, an object reference, or a plain name.
func toTree(s zygo.Sexp) (*db.Tree, error) {
	switch v := s.(type) {
	case *sexpTree:
		return v.tree, nil
	case *sexpObject:
		return db.Leaf(v.name, nil), nil
	case *zygo.SexpStr:
		if _, kw := isKW(v); !kw {
			return db.Leaf(v.S, nil), nil
		}
	}
	return nil, fmt.Errorf("expected tree, object or name, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// floats extracts n numbers, accepting either n positional numbers or a
// single list of n numbers.
func floats(fn string, args []zygo.Sexp, n ...int) ([]float64, error) {
	if len(args) == 1 {
		if items, err := sexpListToSlice(args[0]); err == nil {
			args = items
		}
	}
	ok := false
	for _, want := range n {
		ok = ok || len(args) == want
	}
	if !ok {
		return nil, fmt.Errorf("%s: expected %v numbers, got %d", fn, n, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", fn, i+1, err)
		}
		out[i] = f
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the database DSL builtins into a zygomys
// environment. They populate d during evaluation; k converts primitives for
// (brep ...).
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, d *db.Database, k kernel.Kernel) {
	addObject := func(o *db.Object) (zygo.Sexp, error) {
		if _, err := d.Add(o); err != nil {
			return zygo.SexpNull, err
		}
		return &sexpObject{name: o.Name}, nil
	}
	addPrimitive := func(name string, p db.Primitive) (zygo.Sexp, error) {
		return addObject(&db.Object{Name: name, Kind: db.KindPrimitive, Primitive: p})
	}

	// -----------------------------------------------------------------------
	// (title "Engine block")
	// -----------------------------------------------------------------------
	env.AddFunction("title", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("title requires exactly 1 argument")
		}
		s, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("title: %w", err)
		}
		d.Title = s
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		xs, err := floats("vec3", args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &sexpVec3{vec: v3.Vec{X: xs[0], Y: xs[1], Z: xs[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (rpp "name" :min (vec3 ...) :max (vec3 ...))
	// -----------------------------------------------------------------------
	env.AddFunction("rpp", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("rpp", args)
		n, err := pa.name()
		if err != nil {
			return zygo.SexpNull, err
		}
		lo, err := pa.vec("min", nil)
		if err != nil {
			return zygo.SexpNull, err
		}
		hi, err := pa.vec("max", nil)
		if err != nil {
			return zygo.SexpNull, err
		}
		return addPrimitive(n, db.Box{Min: lo, Max: hi})
	})

	// -----------------------------------------------------------------------
	// (rcc "name" :base (vec3 ...) :height (vec3 ...) :radius r)
	// -----------------------------------------------------------------------
	env.AddFunction("rcc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("rcc", args)
		n, err := pa.name()
		if err != nil {
			return zygo.SexpNull, err
		}
		base, err := pa.vec("base", &v3.Vec{})
		if err != nil {
			return zygo.SexpNull, err
		}
		height, err := pa.vec("height", nil)
		if err != nil {
			return zygo.SexpNull, err
		}
		r, err := pa.float("radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		return addPrimitive(n, db.Cylinder{Base: base, Height: height, Radius: r})
	})

	// -----------------------------------------------------------------------
	// (sph "name" :center (vec3 ...) :radius r)
	// -----------------------------------------------------------------------
	env.AddFunction("sph", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("sph", args)
		n, err := pa.name()
		if err != nil {
			return zygo.SexpNull, err
		}
		c, err := pa.vec("center", &v3.Vec{})
		if err != nil {
			return zygo.SexpNull, err
		}
		r, err := pa.float("radius")
		if err != nil {
			return zygo.SexpNull, err
		}
		return addPrimitive(n, db.Sphere{Center: c, Radius: r})
	})

	// -----------------------------------------------------------------------
	// (tor "name" :center (vec3 ...) :normal (vec3 ...) :major r1 :minor r2)
	// -----------------------------------------------------------------------
	env.AddFunction("tor", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("tor", args)
		n, err := pa.name()
		if err != nil {
			return zygo.SexpNull, err
		}
		c, err := pa.vec("center", &v3.Vec{})
		if err != nil {
			return zygo.SexpNull, err
		}
		normal, err := pa.vec("normal", &v3.Vec{Z: 1})
		if err != nil {
			return zygo.SexpNull, err
		}
		major, err := pa.float("major")
		if err != nil {
			return zygo.SexpNull, err
		}
		minor, err := pa.float("minor")
		if err != nil {
			return zygo.SexpNull, err
		}
		return addPrimitive(n, db.Torus{Center: c, Normal: normal, Major: major, Minor: minor})
	})

	// -----------------------------------------------------------------------
	// (brep "name" :from "primitive") stores the primitive's BRep as a new
	// BRep solid.
	// -----------------------------------------------------------------------
	env.AddFunction("brep", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("brep", args)
		n, err := pa.name()
		if err != nil {
			return zygo.SexpNull, err
		}
		from, ok := pa.kw["from"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("brep: missing :from")
		}
		src, err := toTree(from)
		if err != nil || src.Op != db.OpLeaf {
			return zygo.SexpNull, fmt.Errorf("brep: from: expected an object")
		}
		o := d.Lookup(src.Name)
		if o == nil || o.Kind != db.KindPrimitive {
			return zygo.SexpNull, fmt.Errorf("brep: %q is not a primitive", src.Name)
		}
		if k == nil {
			return zygo.SexpNull, fmt.Errorf("brep: no geometry kernel configured")
		}
		b, err := k.Brep(o.Primitive)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("brep: %s: %w", src.Name, err)
		}
		return addObject(&db.Object{Name: n, Kind: db.KindBrep, Brep: b})
	})

	// -----------------------------------------------------------------------
	// Matrices: (matrix m0 ... m15), (translate x y z), (rotate x y z)
	// in degrees, (scale s) or (scale x y z), (compose a b ...) = a*b*...
	// -----------------------------------------------------------------------
	env.AddFunction("matrix", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		xs, err := floats("matrix", args, 16)
		if err != nil {
			return zygo.SexpNull, err
		}
		var m geom.Mat4
		copy(m[:], xs)
		return &sexpMatrix{m: m}, nil
	})

	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) == 1 {
			if v, err := toVec3(args[0]); err == nil {
				return &sexpMatrix{m: geom.FromM44(sdf.Translate3d(v))}, nil
			}
		}
		xs, err := floats("translate", args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		v := v3.Vec{X: xs[0], Y: xs[1], Z: xs[2]}
		return &sexpMatrix{m: geom.FromM44(sdf.Translate3d(v))}, nil
	})

	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		xs, err := floats("rotate", args, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		rad := func(deg float64) float64 { return deg * math.Pi / 180.0 }
		m := sdf.RotateZ(rad(xs[2])).Mul(sdf.RotateY(rad(xs[1]))).Mul(sdf.RotateX(rad(xs[0])))
		return &sexpMatrix{m: geom.FromM44(m)}, nil
	})

	env.AddFunction("scale", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		xs, err := floats("scale", args, 1, 3)
		if err != nil {
			return zygo.SexpNull, err
		}
		v := v3.Vec{X: xs[0], Y: xs[0], Z: xs[0]}
		if len(xs) == 3 {
			v = v3.Vec{X: xs[0], Y: xs[1], Z: xs[2]}
		}
		return &sexpMatrix{m: geom.FromM44(sdf.Scale3d(v))}, nil
	})

	env.AddFunction("compose", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		m := geom.Identity()
		for i, a := range args {
			x, err := toMatrix(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("compose: argument %d: %w", i+1, err)
			}
			m = m.Mul(x)
		}
		return &sexpMatrix{m: m}, nil
	})

	// -----------------------------------------------------------------------
	// (ref "name" :matrix m) is a tree leaf with a placement.
	// -----------------------------------------------------------------------
	env.AddFunction("ref", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs("ref", args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("ref requires exactly one object")
		}
		leaf, err := toTree(pa.positional[0])
		if err != nil || leaf.Op != db.OpLeaf {
			return zygo.SexpNull, fmt.Errorf("ref: expected an object or name")
		}
		out := db.Leaf(leaf.Name, nil)
		if v, ok := pa.kw["matrix"]; ok {
			m, err := toMatrix(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("ref: matrix: %w", err)
			}
			out.Matrix = &m
		}
		return &sexpTree{tree: out}, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...), (intersect a b ...), (subtract a b ...), (xor a b ...)
	// -----------------------------------------------------------------------
	boolean := func(fn string, build func(...*db.Tree) *db.Tree) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) == 0 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least one operand", fn)
			}
			trees := make([]*db.Tree, len(args))
			for i, a := range args {
				t, err := toTree(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", fn, i+1, err)
				}
				trees[i] = t
			}
			return &sexpTree{tree: build(trees...)}, nil
		})
	}
	boolean("union", db.Union)
	boolean("intersect", db.Intersect)
	boolean("subtract", db.Subtract)
	boolean("xor", db.Xor)

	// -----------------------------------------------------------------------
	// (region "name" tree...) and (comb "name" tree...). Several trees are
	// unioned; none gives an empty combination.
	// -----------------------------------------------------------------------
	combination := func(fn string, region bool) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			pa := parseArgs(fn, args)
			n, err := pa.name()
			if err != nil {
				return zygo.SexpNull, err
			}
			var trees []*db.Tree
			for i, a := range pa.positional[1:] {
				t, err := toTree(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s %q: member %d: %w", fn, n, i+1, err)
				}
				trees = append(trees, t)
			}
			return addObject(&db.Object{
				Name: n,
				Kind: db.KindComb,
				Comb: &db.Comb{Region: region, Tree: db.Union(trees...)},
			})
		})
	}
	combination("region", true)
	combination("comb", false)
}
