// Package export converts a source database into a STEP entity graph.
//
// A Session owns one export run: the entity registry, the shared
// representation context and one conversion record per database object.
// Objects are converted children first, so every record a parent needs
// exists by the time the parent is built, and no object is converted twice.
package export

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/config"
	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/geom"
	"github.com/chazu/gstep/pkg/kernel"
	"github.com/chazu/gstep/pkg/metrics"
	"github.com/chazu/gstep/pkg/step"
	"go.uber.org/zap"
)

var (
	// ErrInvalidHierarchy is returned when the database fails hierarchy
	// validation. Nothing is written in that case.
	ErrInvalidHierarchy = errors.New("export: invalid hierarchy")

	// ErrUnsupportedGeometry marks geometry or placements STEP cannot
	// express. It is the same sentinel as geom.ErrUnsupportedGeometry.
	ErrUnsupportedGeometry = geom.ErrUnsupportedGeometry

	// ErrNotFound is returned for object names that do not resolve.
	ErrNotFound = errors.New("export: object not found")
)

// Dialect selects the STEP application protocol.
type Dialect string

const (
	AP203 Dialect = "ap203" // CONFIG_CONTROL_DESIGN
	AP214 Dialect = "ap214" // AUTOMOTIVE_DESIGN
)

// Schema returns the FILE_SCHEMA identifier of the dialect.
func (d Dialect) Schema() string {
	if d == AP203 {
		return step.SchemaAP203
	}
	return step.SchemaAP214
}

// Options configures a Session.
type Options struct {
	Dialect   Dialect
	Tolerance float64 // length uncertainty in millimetres
	AngleUnit string  // config.AngleDegree or config.AngleRadian

	// FlipTransforms negates the placement origin of assembly edges.
	FlipTransforms bool

	Author       string
	Organization string

	Logger  *zap.Logger       // nil discards diagnostics
	Metrics *metrics.Recorder // nil records nothing
}

// DefaultOptions returns the options of config.Default().
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default().Export)
}

// OptionsFromConfig maps the export section of a configuration file.
func OptionsFromConfig(c config.ExportConfig) Options {
	return Options{
		Dialect:        Dialect(c.Dialect),
		Tolerance:      c.Tolerance,
		AngleUnit:      c.AngleUnit,
		FlipTransforms: c.FlipTransforms,
		Author:         c.Author,
		Organization:   c.Organization,
	}
}

// Status is the outcome of converting one object.
type Status int

const (
	StatusConverted Status = iota // full geometry written
	StatusEmpty                   // written with an empty shape
	StatusPartial                 // assembly with dropped edges
	StatusSkipped                 // not converted on its own
	StatusFailed                  // subtree aborted, empty shape written
)

func (s Status) String() string {
	switch s {
	case StatusConverted:
		return "converted"
	case StatusEmpty:
		return "empty"
	case StatusPartial:
		return "partial"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Record is the conversion record of one database object. Wrappers share
// the record of their child.
type Record struct {
	Object     *db.Object
	Role       db.Role
	Product    *step.Entity // PRODUCT
	Definition *step.Entity // PRODUCT_DEFINITION
	Shape      *step.Entity // shape representation owned by the product
	Manifold   *step.Entity // ap203: BRep representation behind Shape
	Solid      *step.Entity // MANIFOLD_SOLID_BREP of a solid
	Axis       *step.Entity // default placement inside Shape
	Faces      int
	Bounds     *kernel.Bounds // kernel bounds of a primitive solid
}

// outcome is one row of the run report.
type outcome struct {
	object  *db.Object
	role    db.Role
	record  *Record
	status  Status
	message string
}

// leafKey identifies a solid or subtree placed by a matrix.
type leafKey struct {
	handle db.Handle
	matrix string
}

// Session is one export run over one database.
type Session struct {
	db      *db.Database
	kernel  kernel.Kernel
	opts    Options
	log     *zap.Logger
	metrics *metrics.Recorder

	reg *step.Registry
	ctx *contexts

	records  []*Record // indexed by db.Handle
	breps    map[db.Handle]*brep.Brep
	operands map[leafKey]Operand
	outcomes []outcome

	edgesEmitted int
	edgesDropped int
	warnings     int
	nauo         int
	started      time.Time
	exported     bool
}

// NewSession prepares an export of d. The kernel supplies BReps for
// primitives; with a nil kernel every primitive exports as an empty solid.
func NewSession(d *db.Database, k kernel.Kernel, opts Options) *Session {
	if opts.Dialect == "" {
		opts.Dialect = AP214
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = config.Default().Export.Tolerance
	}
	if opts.AngleUnit == "" {
		opts.AngleUnit = config.AngleDegree
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		db:       d,
		kernel:   k,
		opts:     opts,
		log:      log,
		metrics:  opts.Metrics,
		reg:      step.NewRegistry(),
		records:  make([]*Record, d.Len()),
		breps:    make(map[db.Handle]*brep.Brep),
		operands: make(map[leafKey]Operand),
		started:  time.Now(),
	}
}

// Registry exposes the entity pool.
func (s *Session) Registry() *step.Registry { return s.reg }

// Record returns the conversion record of the named object, or nil.
func (s *Session) Record(name string) *Record {
	o := s.db.Lookup(name)
	if o == nil {
		return nil
	}
	return s.records[o.Handle]
}

// Header returns the exchange file header for this session.
func (s *Session) Header(name string) step.Header {
	h := step.Header{
		Description:  []string{s.db.Title},
		Name:         name,
		TimeStamp:    s.started,
		Preprocessor: "gstep",
		Originating:  "gstep",
		Schema:       s.opts.Dialect.Schema(),
	}
	if s.opts.Author != "" {
		h.Author = []string{s.opts.Author}
	}
	if s.opts.Organization != "" {
		h.Organization = []string{s.opts.Organization}
	}
	return h
}

// Write commits the registry and serializes it to w.
func (s *Session) Write(w io.Writer, h step.Header) error {
	if h.Schema == "" {
		h.Schema = s.opts.Dialect.Schema()
	}
	if err := step.Write(w, h, s.reg); err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	s.metrics.RecordEntities(s.reg.CountByType())
	s.metrics.RecordExport(time.Since(s.started))
	return nil
}

// warn logs a recovered problem and counts it.
func (s *Session) warn(log *zap.Logger, msg string, fields ...zap.Field) {
	s.warnings++
	s.metrics.RecordWarning()
	log.Warn(msg, fields...)
}

func (s *Session) isIdentity(m geom.Mat4) bool {
	return m.IsIdentity(geom.DefaultTransformTolerance)
}
