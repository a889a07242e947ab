// Package kernel defines the primitive geometry kernel interface.
// Implementations turn database primitives into exact BReps where a
// conversion exists, and report bounds for every primitive kind.
package kernel

import (
	"errors"

	"github.com/chazu/gstep/pkg/brep"
	"github.com/chazu/gstep/pkg/db"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrNoBrep is returned for primitives that have no BRep conversion.
var ErrNoBrep = errors.New("kernel: primitive has no BRep conversion")

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	Min v3.Vec `json:"min"`
	Max v3.Vec `json:"max"`
}

// Size returns the extent along each axis.
func (b Bounds) Size() v3.Vec {
	return b.Max.Sub(b.Min)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Brep converts a primitive to a closed BRep, or fails with ErrNoBrep.
	Brep(p db.Primitive) (*brep.Brep, error)

	// Bounds returns the primitive's bounding box in its own coordinates.
	Bounds(p db.Primitive) (Bounds, error)
}
