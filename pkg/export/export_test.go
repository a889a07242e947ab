package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/gstep/pkg/config"
	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/engine"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/kernel/sdfx"
	"github.com/chazu/gstep/pkg/metrics"
	"github.com/chazu/gstep/pkg/step"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func box(name string) *db.Object {
	return &db.Object{Name: name, Kind: db.KindPrimitive, Primitive: db.Box{Max: v3.Vec{X: 10, Y: 10, Z: 10}}}
}

func comb(name string, region bool, tree *db.Tree) *db.Object {
	return &db.Object{Name: name, Kind: db.KindComb, Comb: &db.Comb{Region: region, Tree: tree}}
}

func leaf(name string) *db.Tree { return db.Leaf(name, nil) }

func placed(name string, m geom.Mat4) *db.Tree { return db.Leaf(name, &m) }

func newDB(t *testing.T, objs ...*db.Object) *db.Database {
	t.Helper()
	d := db.New("test")
	for _, o := range objs {
		_, err := d.Add(o)
		require.NoError(t, err)
	}
	return d
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func exportDB(t *testing.T, d *db.Database, opts Options, names ...string) *Session {
	t.Helper()
	s := NewSession(d, sdfx.New(), opts)
	require.NoError(t, s.Export(names...))
	return s
}

// products returns the PRODUCT entities carrying name.
func products(s *Session, name string) []*step.Entity {
	var out []*step.Entity
	for _, p := range s.Registry().Find("PRODUCT") {
		if p.Attrs[1] == step.Str(name) {
			out = append(out, p)
		}
	}
	return out
}

func coords(t *testing.T, e *step.Entity) v3.Vec {
	t.Helper()
	l, ok := e.Attrs[1].(step.List)
	require.True(t, ok, "%s has no coordinate list", e.TypeName())
	require.Len(t, l, 3)
	return v3.Vec{X: float64(l[0].(step.Real)), Y: float64(l[1].(step.Real)), Z: float64(l[2].(step.Real))}
}

func entry(t *testing.T, r Report, name string) Entry {
	t.Helper()
	for _, e := range r.Entries {
		if e.Object == name {
			return e
		}
	}
	t.Fatalf("no report entry for %s", name)
	return Entry{}
}

// ---------------------------------------------------------------------------
// Walker
// ---------------------------------------------------------------------------

func TestMemoization(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		comb("r", true, leaf("a.s")),
		comb("asm1", false, leaf("r")),
		comb("asm2", false, leaf("r")),
		comb("top", false, db.Union(leaf("asm1"), leaf("asm2"))),
	)
	s := exportDB(t, d, DefaultOptions())

	require.Len(t, products(s, "r"), 1)
	require.Len(t, products(s, "a.s"), 1)

	r := s.Record("r")
	var usages int
	for _, nauo := range s.Registry().Find("NEXT_ASSEMBLY_USAGE_OCCURRENCE") {
		if nauo.Attrs[4] == r.Definition {
			usages++
		}
	}
	assert.Equal(t, 2, usages)
	assert.Len(t, s.Registry().Find("NEXT_ASSEMBLY_USAGE_OCCURRENCE"), 4)
	assert.Len(t, s.Registry().Find("MANIFOLD_SOLID_BREP"), 1)
}

func TestWrapperElision(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		box("b.s"),
		comb("w", false, leaf("a.s")),
		comb("r", true, leaf("b.s")),
		comb("asm", false, db.Union(leaf("r"), leaf("w"))),
	)
	s := exportDB(t, d, DefaultOptions())

	assert.Empty(t, products(s, "a.s"))
	require.Len(t, products(s, "w"), 1)
	assert.Same(t, s.Record("a.s"), s.Record("w"))

	// a.s (as w), b.s, r, asm: one definition each, none for the wrapper
	assert.Len(t, s.Registry().Find("PRODUCT"), 4)
	assert.Len(t, s.Registry().Find("PRODUCT_DEFINITION"), 4)

	var found bool
	for _, nauo := range s.Registry().Find("NEXT_ASSEMBLY_USAGE_OCCURRENCE") {
		if nauo.Attrs[4] == s.Record("a.s").Definition {
			found = true
			assert.Equal(t, step.Str("w"), nauo.Attrs[1])
		}
	}
	assert.True(t, found, "wrapper should be placed through its child's definition")

	e := entry(t, s.Report(), "w")
	assert.Equal(t, "wrapper", e.Role)
	assert.Equal(t, StatusConverted, e.Status)
}

func TestFatalValidationWritesNothing(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		comb("inner", true, leaf("a.s")),
		comb("outer", true, leaf("inner")),
	)
	log, logs := observedLogger()
	opts := DefaultOptions()
	opts.Logger = log
	s := NewSession(d, sdfx.New(), opts)

	err := s.Export()
	require.ErrorIs(t, err, ErrInvalidHierarchy)
	assert.Contains(t, err.Error(), "nested inside region")
	assert.Zero(t, s.Registry().Len())

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).FilterField(zap.String("object", "inner"))
	assert.Equal(t, 1, errs.Len())
}

func TestObjectSelection(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		box("b.s"),
		comb("r1", true, leaf("a.s")),
		comb("r2", true, leaf("b.s")),
	)
	s := exportDB(t, d, DefaultOptions(), "r1")
	assert.NotNil(t, s.Record("r1"))
	assert.NotNil(t, s.Record("a.s"))
	assert.Nil(t, s.Record("r2"))
	assert.Nil(t, s.Record("b.s"))

	s = NewSession(d, sdfx.New(), DefaultOptions())
	assert.ErrorIs(t, s.Export("r1", "nope"), ErrNotFound)
	assert.Zero(t, s.Registry().Len())
}

func TestSessionExportsOnce(t *testing.T) {
	s := exportDB(t, newDB(t, box("a.s")), DefaultOptions())
	assert.Error(t, s.Export())
}

func TestEmptySolid(t *testing.T) {
	d := newDB(t, &db.Object{Name: "ball", Kind: db.KindPrimitive, Primitive: db.Sphere{Radius: 5}})
	log, logs := observedLogger()
	opts := DefaultOptions()
	opts.Logger = log
	s := exportDB(t, d, opts)

	shells := s.Registry().Find("CLOSED_SHELL")
	require.Len(t, shells, 1)
	assert.Empty(t, shells[0].Attrs[1])

	e := entry(t, s.Report(), "ball")
	assert.Equal(t, StatusEmpty, e.Status)
	assert.Contains(t, e.Message, "sph")
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).FilterField(zap.String("object", "ball")).Len())
}

func TestNilKernelExportsEmptySolids(t *testing.T) {
	s := NewSession(newDB(t, box("a.s")), nil, DefaultOptions())
	require.NoError(t, s.Export())
	e := entry(t, s.Report(), "a.s")
	assert.Equal(t, StatusEmpty, e.Status)
	assert.Zero(t, e.Size)
}

func TestPrimitiveExtentReported(t *testing.T) {
	d := newDB(t,
		&db.Object{Name: "ball", Kind: db.KindPrimitive, Primitive: db.Sphere{Center: v3.Vec{X: 40}, Radius: 5}},
		&db.Object{Name: "slab", Kind: db.KindPrimitive, Primitive: db.Box{Min: v3.Vec{X: -2}, Max: v3.Vec{X: 8, Y: 4, Z: 1}}},
		&db.Object{Name: "body", Kind: db.KindBrep, Brep: testBox(t)},
		comb("w", false, leaf("slab")),
	)
	r := exportDB(t, d, DefaultOptions()).Report()

	ball := entry(t, r, "ball")
	assert.Equal(t, StatusEmpty, ball.Status)
	assert.InDelta(t, 10, ball.Size.X, 1e-6)
	assert.InDelta(t, 10, ball.Size.Y, 1e-6)
	assert.InDelta(t, 10, ball.Size.Z, 1e-6)

	slab := entry(t, r, "w")
	assert.Equal(t, StatusConverted, slab.Status)
	assert.InDelta(t, 10, slab.Size.X, 1e-6)
	assert.InDelta(t, 4, slab.Size.Y, 1e-6)
	assert.InDelta(t, 1, slab.Size.Z, 1e-6)

	assert.Zero(t, entry(t, r, "body").Size)
}

func TestInnerBooleansAreSkipped(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		box("b.s"),
		comb("cut", false, db.Subtract(leaf("a.s"), leaf("b.s"))),
		comb("r", true, leaf("cut")),
	)
	s := exportDB(t, d, DefaultOptions())

	assert.Nil(t, s.Record("cut"))
	assert.Equal(t, StatusSkipped, entry(t, s.Report(), "cut").Status)
	assert.Len(t, s.Registry().Find("BOOLEAN_RESULT"), 1)
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func TestWriteAndReport(t *testing.T) {
	d := newDB(t,
		box("a.s"),
		box("b.s"),
		comb("r", true, db.Subtract(leaf("a.s"), leaf("b.s"))),
		comb("asm", false, leaf("r")),
	)
	opts := DefaultOptions()
	opts.Author = "O'Neil"
	s := exportDB(t, d, opts)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, s.Header("asm.stp")))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "ISO-10303-21;\n"))
	assert.Contains(t, out, "FILE_SCHEMA(('AUTOMOTIVE_DESIGN { 1 0 10303 214 1 1 1 1 }'));")
	assert.Contains(t, out, "('O''Neil')")
	assert.Contains(t, out, "MANIFOLD_SOLID_BREP('a.s'")
	assert.Contains(t, out, "BOOLEAN_RESULT('',.DIFFERENCE.,")
	assert.Contains(t, out, "CONVERSION_BASED_UNIT('DEGREE'")
	assert.Contains(t, out, "UNCERTAINTY_MEASURE_WITH_UNIT(LENGTH_MEASURE(0.05)")
	assert.True(t, strings.HasSuffix(out, "END-ISO-10303-21;\n"))

	r := s.Report()
	assert.Equal(t, s.Registry().Len(), r.Entities)
	assert.Equal(t, 1, r.EdgesEmitted)
	assert.Zero(t, r.EdgesDropped)
	assert.Equal(t, 4, r.Count(StatusConverted))
	for _, e := range r.Entries {
		assert.Positive(t, e.Product, e.Object)
		assert.Positive(t, e.Shape, e.Object)
	}
	assert.Equal(t, 6, entry(t, r, "a.s").Faces)
}

func TestRadianAngleUnit(t *testing.T) {
	opts := DefaultOptions()
	opts.AngleUnit = config.AngleRadian
	s := exportDB(t, newDB(t, box("a.s")), opts)

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, s.Header("a.stp")))
	assert.NotContains(t, buf.String(), "CONVERSION_BASED_UNIT")
	assert.Contains(t, buf.String(), "SI_UNIT($,.RADIAN.)")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Export
	cfg.Dialect = config.DialectAP203
	cfg.FlipTransforms = true
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, AP203, opts.Dialect)
	assert.True(t, opts.FlipTransforms)
	assert.Equal(t, step.SchemaAP203, opts.Dialect.Schema())
}

func TestMetricsRecorded(t *testing.T) {
	rec := metrics.NewRecorder()
	opts := DefaultOptions()
	opts.Metrics = rec
	d := newDB(t,
		box("a.s"),
		comb("r", true, leaf("a.s")),
		comb("asm", false, db.Union(leaf("r"), placed("r", geom.Scale(v3.Vec{X: 1, Y: 2, Z: 1})))),
	)
	s := exportDB(t, d, opts)
	require.NoError(t, s.Write(&bytes.Buffer{}, s.Header("m.stp")))

	n, err := testutil.GatherAndCount(rec.Registry(), "gstep_assembly_edges_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "emitted and dropped series")

	n, err = testutil.GatherAndCount(rec.Registry(), "gstep_entities_total")
	require.NoError(t, err)
	assert.Greater(t, n, 10)
}

// ---------------------------------------------------------------------------
// End to end through the database DSL
// ---------------------------------------------------------------------------

func TestExportEvaluatedDatabase(t *testing.T) {
	k := sdfx.New()
	d, evalErrs, err := engine.NewEngine(k).Evaluate(`
(def wheel (region "wheel" (rcc "wheel.s" :height (vec3 0 0 10) :radius 30)))
(region "body" (subtract
  (rpp "body.s" :min (vec3 0 0 0) :max (vec3 400 200 100))
  (rpp "cabin.s" :min (vec3 100 0 80) :max (vec3 300 200 100))))
(comb "car"
  "body"
  (ref wheel :matrix (translate 50 0 0))
  (ref wheel :matrix (translate 350 0 0)))
`)
	require.NoError(t, err)
	require.Empty(t, evalErrs)

	s := NewSession(d, k, DefaultOptions())
	require.NoError(t, s.Export())
	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf, s.Header("car.stp")))

	assert.Len(t, products(s, "wheel"), 1)
	assert.Len(t, s.Registry().Find("NEXT_ASSEMBLY_USAGE_OCCURRENCE"), 3)
	assert.Len(t, s.Registry().Find("CSG_SOLID"), 1)
	r := s.Report()
	assert.Zero(t, r.Count(StatusFailed))
	assert.Equal(t, StatusConverted, entry(t, r, "car").Status)
	assert.Equal(t, 3, entry(t, r, "wheel.s").Faces)
}
