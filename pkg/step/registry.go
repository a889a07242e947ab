package step

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnresolved is returned by Commit when an appended entity references an
// entity that was never appended.
var ErrUnresolved = errors.New("step: reference to unappended entity")

// Part is one simple entity inside a complex entity instance.
type Part struct {
	Type  string
	Attrs []Value
}

// Entity is one instance. A simple entity has a Type; a complex entity has
// Parts, kept sorted by type name.
type Entity struct {
	Type  string
	Attrs []Value
	Parts []Part

	id       int
	appended bool
}

// ID returns the file identifier, or 0 before Commit.
func (e *Entity) ID() int { return e.id }

// IsComplex reports whether e is a complex entity instance.
func (e *Entity) IsComplex() bool { return len(e.Parts) > 0 }

// TypeName returns the entity type, or the part types joined with '+' for
// complex instances.
func (e *Entity) TypeName() string {
	if !e.IsComplex() {
		return e.Type
	}
	names := make([]string, len(e.Parts))
	for i, p := range e.Parts {
		names[i] = p.Type
	}
	return strings.Join(names, "+")
}

// HasPart reports whether a complex entity includes the named part.
func (e *Entity) HasPart(typ string) bool {
	for _, p := range e.Parts {
		if p.Type == typ {
			return true
		}
	}
	return false
}

// Registry owns the entity pool of one exchange file.
type Registry struct {
	entities []*Entity // appended, in append order
	ordered  []*Entity // committed, in id order
	nextID   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{nextID: 1}
}

// Create returns a pending simple entity. It is not written until appended.
func (r *Registry) Create(typ string, attrs ...Value) *Entity {
	return &Entity{Type: typ, Attrs: attrs}
}

// CreateComplex returns a pending complex entity built from parts.
func (r *Registry) CreateComplex(parts ...Part) *Entity {
	ps := append([]Part(nil), parts...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Type < ps[j].Type })
	return &Entity{Parts: ps}
}

// Append adds e to the pool. Appending twice is a no-op.
func (r *Registry) Append(e *Entity) *Entity {
	if !e.appended {
		e.appended = true
		r.entities = append(r.entities, e)
	}
	return e
}

// Add creates and appends a simple entity.
func (r *Registry) Add(typ string, attrs ...Value) *Entity {
	return r.Append(r.Create(typ, attrs...))
}

// AddComplex creates and appends a complex entity.
func (r *Registry) AddComplex(parts ...Part) *Entity {
	return r.Append(r.CreateComplex(parts...))
}

// Len returns the number of appended entities.
func (r *Registry) Len() int { return len(r.entities) }

// Commit assigns file identifiers to every appended entity that has none,
// visiting references depth first so that each entity is numbered after
// everything it references. It fails on references to unappended entities
// and on reference cycles.
func (r *Registry) Commit() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[*Entity]int)
	for _, e := range r.ordered {
		color[e] = black
	}

	var visit func(e *Entity, from *Entity) error
	visit = func(e *Entity, from *Entity) error {
		if e == nil {
			return fmt.Errorf("%w: nil reference in %s", ErrUnresolved, from.TypeName())
		}
		if !e.appended {
			return fmt.Errorf("%w: %s referenced by %s", ErrUnresolved, e.TypeName(), from.TypeName())
		}
		switch color[e] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("step: reference cycle through %s", e.TypeName())
		}
		color[e] = gray
		var err error
		e.eachRef(func(ref *Entity) bool {
			err = visit(ref, e)
			return err == nil
		})
		if err != nil {
			return err
		}
		color[e] = black
		e.id = r.nextID
		r.nextID++
		r.ordered = append(r.ordered, e)
		return nil
	}

	for _, e := range r.entities {
		if err := visit(e, e); err != nil {
			return err
		}
	}
	return nil
}

// Entities returns the committed entities in identifier order.
func (r *Registry) Entities() []*Entity {
	return append([]*Entity(nil), r.ordered...)
}

// CountByType returns the number of appended entities per type name.
func (r *Registry) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.entities {
		counts[e.TypeName()]++
	}
	return counts
}

// Find returns the appended entities of the given simple type, or complex
// entities carrying that part, in append order.
func (r *Registry) Find(typ string) []*Entity {
	var out []*Entity
	for _, e := range r.entities {
		if e.Type == typ || e.HasPart(typ) {
			out = append(out, e)
		}
	}
	return out
}

// eachRef calls fn for every entity referenced by e's attributes until fn
// returns false.
func (e *Entity) eachRef(fn func(*Entity) bool) {
	var walk func(v Value) bool
	walk = func(v Value) bool {
		switch v := v.(type) {
		case *Entity:
			return fn(v)
		case List:
			for _, x := range v {
				if !walk(x) {
					return false
				}
			}
		case Typed:
			return walk(v.Value)
		}
		return true
	}
	for _, v := range e.Attrs {
		if !walk(v) {
			return
		}
	}
	for _, p := range e.Parts {
		for _, v := range p.Attrs {
			if !walk(v) {
				return
			}
		}
	}
}

// Refs returns the entities referenced by e, in attribute order.
func (e *Entity) Refs() []*Entity {
	var out []*Entity
	e.eachRef(func(ref *Entity) bool {
		out = append(out, ref)
		return true
	})
	return out
}
