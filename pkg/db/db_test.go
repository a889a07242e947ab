package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/gstep/pkg/geom"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"go.uber.org/multierr"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func mustAdd(t *testing.T, d *Database, o *Object) *Object {
	t.Helper()
	if _, err := d.Add(o); err != nil {
		t.Fatalf("Add(%q): %v", o.Name, err)
	}
	return o
}

func solid(name string) *Object {
	return &Object{Name: name, Kind: KindPrimitive, Primitive: Box{Max: v3.Vec{X: 1, Y: 1, Z: 1}}}
}

func comb(name string, region bool, tree *Tree) *Object {
	return &Object{Name: name, Kind: KindComb, Comb: &Comb{Region: region, Tree: tree}}
}

// sampleDB builds:
//
//	asm = r1 u r2*M u w
//	r1  = a.s - b.s (region)
//	r2  = c.s       (region)
//	w   = a.s       (wrapper)
func sampleDB(t *testing.T) *Database {
	t.Helper()
	d := New("sample")
	mustAdd(t, d, solid("a.s"))
	mustAdd(t, d, solid("b.s"))
	mustAdd(t, d, &Object{Name: "c.s", Kind: KindPrimitive, Primitive: Sphere{Radius: 2}})
	mustAdd(t, d, comb("r1", true, Subtract(Leaf("a.s", nil), Leaf("b.s", nil))))
	mustAdd(t, d, comb("r2", true, Leaf("c.s", nil)))
	mustAdd(t, d, comb("w", false, Leaf("a.s", nil)))
	m := geom.Translate(v3.Vec{X: 10})
	mustAdd(t, d, comb("asm", false, Union(Leaf("r1", nil), Leaf("r2", &m), Leaf("w", nil))))
	return d
}

func names(objs []*Object) string {
	var parts []string
	for _, o := range objs {
		parts = append(parts, o.Name)
	}
	return strings.Join(parts, ",")
}

// ---------------------------------------------------------------------------
// Database
// ---------------------------------------------------------------------------

func TestAddAndLookup(t *testing.T) {
	d := New("t")
	o := mustAdd(t, d, solid("box"))

	if o.Handle != 0 {
		t.Errorf("handle = %d, want 0", o.Handle)
	}
	if d.Lookup("box") != o {
		t.Error("Lookup returned wrong object")
	}
	if d.Lookup("nope") != nil {
		t.Error("Lookup should return nil for missing name")
	}
	if d.Get(o.Handle) != o || d.Get(5) != nil || d.Get(NoHandle) != nil {
		t.Error("Get by handle failed")
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestAddRejectsDuplicateAndEmptyNames(t *testing.T) {
	d := New("t")
	mustAdd(t, d, solid("box"))
	if _, err := d.Add(solid("box")); err == nil {
		t.Error("expected duplicate name error")
	}
	if _, err := d.Add(solid("")); err == nil {
		t.Error("expected empty name error")
	}
}

func TestAddInitializesComb(t *testing.T) {
	d := New("t")
	o := mustAdd(t, d, &Object{Name: "empty", Kind: KindComb})
	if o.Comb == nil {
		t.Fatal("comb payload should be initialized")
	}
	if d.Role(o) != RoleAssembly {
		t.Errorf("empty comb role = %s, want assembly", d.Role(o))
	}
}

// ---------------------------------------------------------------------------
// Trees
// ---------------------------------------------------------------------------

func TestTreeFolding(t *testing.T) {
	flat := Subtract(Leaf("A", nil), Leaf("B", nil), Leaf("C", nil))
	if got := flat.String(); got != "((A - B) - C)" {
		t.Errorf("flat = %s", got)
	}
	nested := Subtract(Leaf("A", nil), Union(Leaf("B", nil), Leaf("C", nil)))
	if got := nested.String(); got != "(A - (B u C))" {
		t.Errorf("nested = %s", got)
	}
	if flat.Left.Depth() != 1 || flat.Right.Depth() != 0 {
		t.Errorf("flat tree should nest on the left")
	}
	if nested.Right.Depth() != 1 {
		t.Errorf("nested tree should nest on the right")
	}
	if Union() != nil {
		t.Error("empty fold should be nil")
	}
}

func TestTreeLeavesAndUnionOnly(t *testing.T) {
	tree := Union(Leaf("a", nil), Intersect(Leaf("b", nil), Leaf("c", nil)))
	leaves := tree.Leaves()
	if len(leaves) != 3 || leaves[0].Name != "a" || leaves[2].Name != "c" {
		t.Errorf("leaves = %v", leaves)
	}
	if tree.UnionOnly() {
		t.Error("tree with intersect is not union-only")
	}
	if !Union(Leaf("a", nil), Leaf("b", nil)).UnionOnly() {
		t.Error("union tree should be union-only")
	}
}

func TestLeafHasMatrix(t *testing.T) {
	id := geom.Identity()
	move := geom.Translate(v3.Vec{Z: 1})
	if Leaf("a", nil).HasMatrix() || Leaf("a", &id).HasMatrix() {
		t.Error("nil and identity matrices are not placements")
	}
	if !Leaf("a", &move).HasMatrix() {
		t.Error("translation should count as a matrix")
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestTopLevelAndPostOrder(t *testing.T) {
	d := sampleDB(t)

	if got := names(d.TopLevel()); got != "asm" {
		t.Errorf("TopLevel = %s, want asm", got)
	}
	got := names(d.PostOrder(d.TopLevel()))
	if want := "a.s,b.s,r1,c.s,r2,w,asm"; got != want {
		t.Errorf("PostOrder = %s, want %s", got, want)
	}
}

func TestParents(t *testing.T) {
	d := sampleDB(t)
	parents := d.Parents(d.Lookup("a.s").Handle)
	if len(parents) != 2 || d.Get(parents[0]).Name != "r1" || d.Get(parents[1]).Name != "w" {
		t.Errorf("parents of a.s = %v", parents)
	}
}

func TestRegionQueries(t *testing.T) {
	d := sampleDB(t)
	if got := names(d.BelowRegions()); got != "a.s,b.s,c.s" {
		t.Errorf("BelowRegions = %s", got)
	}
	if got := names(d.Assemblies()); got != "asm" {
		t.Errorf("Assemblies = %s", got)
	}
}

func TestAssembliesIncludeWrapperGroupsAndEmptyCombs(t *testing.T) {
	d := sampleDB(t)
	mustAdd(t, d, comb("shelf", false, Union(Leaf("w", nil), Leaf("w", nil))))
	mustAdd(t, d, comb("empty", false, nil))
	mustAdd(t, d, comb("loose", false, Union(Leaf("a.s", nil), Leaf("b.s", nil))))

	if got := names(d.Assemblies()); got != "asm,shelf,empty" {
		t.Errorf("Assemblies = %s, want asm,shelf,empty", got)
	}
	for _, a := range d.Assemblies() {
		if d.Role(a) != RoleAssembly {
			t.Errorf("Role(%s) = %s, want assembly", a.Name, d.Role(a))
		}
	}
}

func TestTopLevelIgnoresSelfReference(t *testing.T) {
	d := New("t")
	mustAdd(t, d, solid("a.s"))
	mustAdd(t, d, comb("loop", false, Union(Leaf("a.s", nil), Leaf("loop", nil))))
	mustAdd(t, d, comb("top", false, Leaf("loop", nil)))

	if got := names(d.TopLevel()); got != "top" {
		t.Errorf("TopLevel = %s, want top", got)
	}
	d2 := New("t2")
	mustAdd(t, d2, comb("self", false, Leaf("self", nil)))
	if got := names(d2.TopLevel()); got != "self" {
		t.Errorf("TopLevel = %s, want self", got)
	}
}

func TestRoles(t *testing.T) {
	d := sampleDB(t)
	mustAdd(t, d, comb("loose", false, Union(Leaf("a.s", nil), Leaf("b.s", nil))))

	tests := []struct {
		name string
		want Role
	}{
		{"a.s", RoleSolid},
		{"r1", RoleRegion},
		{"w", RoleWrapper},
		{"asm", RoleAssembly},
		{"loose", RoleBoolean},
	}
	for _, tt := range tests {
		if got := d.Role(d.Lookup(tt.name)); got != tt.want {
			t.Errorf("Role(%s) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestWrapperRequiresSolidChildWithoutMatrix(t *testing.T) {
	d := sampleDB(t)
	m := geom.Translate(v3.Vec{Y: 3})
	mustAdd(t, d, comb("placed", false, Leaf("a.s", &m)))
	mustAdd(t, d, comb("alias", false, Leaf("r1", nil)))

	if d.IsWrapper(d.Lookup("placed")) {
		t.Error("a leaf with a matrix is not a wrapper")
	}
	if d.IsWrapper(d.Lookup("alias")) {
		t.Error("a comb over a comb is not a wrapper")
	}
	if d.Role(d.Lookup("alias")) != RoleAssembly {
		t.Error("single-region comb should be an assembly")
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestValidateCleanDatabase(t *testing.T) {
	d := sampleDB(t)
	if findings := Validate(d); len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestValidateNestedRegion(t *testing.T) {
	d := sampleDB(t)
	mustAdd(t, d, comb("outer", true, Union(Leaf("r1", nil), Leaf("b.s", nil))))

	err := Errors(Validate(d))
	if err == nil {
		t.Fatal("expected nested region error")
	}
	if !strings.Contains(err.Error(), `region is nested inside region "outer"`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAssemblyRules(t *testing.T) {
	tests := []struct {
		name string
		tree *Tree
		want string
	}{
		{"subtract", Subtract(Leaf("r1", nil), Leaf("r2", nil)), "non-union"},
		{"bare solid", Union(Leaf("r1", nil), Leaf("b.s", nil)), `solid "b.s" directly`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDB(t)
			mustAdd(t, d, comb("bad", false, tt.tree))
			err := Errors(Validate(d))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateMissingMemberIsWarning(t *testing.T) {
	d := sampleDB(t)
	mustAdd(t, d, comb("r3", true, Union(Leaf("a.s", nil), Leaf("ghost", nil))))

	findings := Validate(d)
	if err := Errors(findings); err != nil {
		t.Errorf("missing member should not be fatal: %v", err)
	}
	warnings := Warnings(findings)
	if len(warnings) != 1 || warnings[0].Object != "r3" {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestValidateCycle(t *testing.T) {
	d := New("t")
	mustAdd(t, d, comb("x", false, Leaf("y", nil)))
	mustAdd(t, d, comb("y", false, Leaf("x", nil)))

	findings := Validate(d)
	err := Errors(findings)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	var ve ValidationError
	if !errors.As(multierr.Errors(err)[0], &ve) || ve.Severity != SeverityError {
		t.Errorf("expected a ValidationError, got %v", err)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Object: "r1", Message: "bad", Severity: SeverityWarning}
	if got := e.Error(); got != "[warning] r1: bad" {
		t.Errorf("Error() = %q", got)
	}
	e.Object = ""
	if got := e.Error(); got != "[warning] bad" {
		t.Errorf("Error() = %q", got)
	}
}
