package db

import (
	"fmt"

	"go.uber.org/multierr"
)

// ValidationSeverity indicates whether a finding aborts the export or is
// merely reported.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // aborts the export
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Object   string             // offending object (empty if database-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Object, e.Message)
}

// Validate runs the hierarchy checks and returns every finding. An empty
// slice means the hierarchy is exportable. It never mutates d.
func Validate(d *Database) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateCycles(d)...)
	errs = append(errs, validateReferences(d)...)
	errs = append(errs, validateRegions(d)...)
	errs = append(errs, validateAssemblies(d)...)
	return errs
}

// Errors folds the error-severity findings into a single error, or nil.
func Errors(findings []ValidationError) error {
	var err error
	for _, f := range findings {
		if f.Severity == SeverityError {
			err = multierr.Append(err, f)
		}
	}
	return err
}

// Warnings returns the warning-severity findings.
func Warnings(findings []ValidationError) []ValidationError {
	var out []ValidationError
	for _, f := range findings {
		if f.Severity == SeverityWarning {
			out = append(out, f)
		}
	}
	return out
}

// validateCycles checks for cycles using DFS with 3-color marking.
// White = unvisited, gray = on the current path, black = fully explored.
func validateCycles(d *Database) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, d.Len())
	var errs []ValidationError

	var visit func(o *Object) bool // returns true if cycle found
	visit = func(o *Object) bool {
		switch color[o.Handle] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				Object:   o.Name,
				Message:  "cycle detected: object references itself through its tree",
				Severity: SeverityError,
			})
			return true
		}

		color[o.Handle] = gray
		for _, c := range d.Children(o) {
			if c.Object != nil && visit(c.Object) {
				return true
			}
		}
		color[o.Handle] = black
		return false
	}

	for _, o := range d.objects {
		if color[o.Handle] == white && visit(o) {
			// One cycle error is sufficient.
			break
		}
	}
	return errs
}

// validateReferences warns about leaves naming objects that do not exist.
// The exporter skips those subtrees.
func validateReferences(d *Database) []ValidationError {
	var errs []ValidationError
	for _, o := range d.objects {
		for _, c := range d.Children(o) {
			if c.Object == nil {
				errs = append(errs, ValidationError{
					Object:   o.Name,
					Message:  fmt.Sprintf("member %q does not exist", c.Leaf.Name),
					Severity: SeverityWarning,
				})
			}
		}
	}
	return errs
}

// validateRegions rejects regions nested inside other regions.
func validateRegions(d *Database) []ValidationError {
	var errs []ValidationError
	for _, o := range d.objects {
		if !o.IsRegion() {
			continue
		}
		for _, x := range d.Below(o) {
			if x.IsRegion() {
				errs = append(errs, ValidationError{
					Object:   x.Name,
					Message:  fmt.Sprintf("region is nested inside region %q", o.Name),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateAssemblies rejects assemblies that combine members with anything
// but union, or that hold bare solids instead of regions.
func validateAssemblies(d *Database) []ValidationError {
	var errs []ValidationError
	for _, o := range d.Assemblies() {
		if !o.Comb.Tree.UnionOnly() {
			errs = append(errs, ValidationError{
				Object:   o.Name,
				Message:  fmt.Sprintf("assembly uses non-union booleans: %s", o.Comb.Tree),
				Severity: SeverityError,
			})
		}
		for _, c := range d.Children(o) {
			if c.Object != nil && c.Object.IsSolid() {
				errs = append(errs, ValidationError{
					Object:   o.Name,
					Message:  fmt.Sprintf("assembly contains solid %q directly, not through a region", c.Object.Name),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}
