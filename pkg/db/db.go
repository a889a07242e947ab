package db

import (
	"fmt"
	"sort"
)

// Database is an arena of objects. It is built once by a loader and then
// only read; the exporter never mutates it.
type Database struct {
	Title     string
	objects   []*Object
	nameIndex map[string]Handle
}

// New creates an empty database.
func New(title string) *Database {
	return &Database{
		Title:     title,
		nameIndex: make(map[string]Handle),
	}
}

// Add stores o under a fresh handle. Names must be unique and non-empty.
func (d *Database) Add(o *Object) (Handle, error) {
	if o.Name == "" {
		return NoHandle, fmt.Errorf("db: object has no name")
	}
	if _, dup := d.nameIndex[o.Name]; dup {
		return NoHandle, fmt.Errorf("db: duplicate object name %q", o.Name)
	}
	if o.Kind == KindComb && o.Comb == nil {
		o.Comb = &Comb{}
	}
	h := Handle(len(d.objects))
	o.Handle = h
	d.objects = append(d.objects, o)
	d.nameIndex[o.Name] = h
	return h, nil
}

// Lookup returns the object with the given name, or nil.
func (d *Database) Lookup(name string) *Object {
	h, ok := d.nameIndex[name]
	if !ok {
		return nil
	}
	return d.objects[h]
}

// Get returns the object for h, or nil when h is out of range.
func (d *Database) Get(h Handle) *Object {
	if h < 0 || int(h) >= len(d.objects) {
		return nil
	}
	return d.objects[h]
}

// Len returns the number of objects; handles range over [0, Len).
func (d *Database) Len() int {
	return len(d.objects)
}

// Objects returns all objects in handle order.
func (d *Database) Objects() []*Object {
	return append([]*Object(nil), d.objects...)
}

// Names returns all object names, sorted.
func (d *Database) Names() []string {
	names := make([]string, 0, len(d.nameIndex))
	for name := range d.nameIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
