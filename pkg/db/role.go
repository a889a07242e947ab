package db

// Role is how the exporter treats an object.
type Role int

const (
	RoleSolid    Role = iota // leaf shape: primitive or BRep
	RoleRegion               // combination evaluated to one shape
	RoleWrapper              // single-child alias of a solid
	RoleBoolean              // unflagged boolean grouping of solids
	RoleAssembly             // grouping of shapes placed by matrices
)

func (r Role) String() string {
	switch r {
	case RoleSolid:
		return "solid"
	case RoleRegion:
		return "region"
	case RoleWrapper:
		return "wrapper"
	case RoleBoolean:
		return "boolean"
	case RoleAssembly:
		return "assembly"
	default:
		return "unknown"
	}
}

// IsWrapper reports whether o is a combination with exactly one child, no
// matrix, and a non-combination child.
func (d *Database) IsWrapper(o *Object) bool {
	if o == nil || o.Kind != KindComb || o.IsRegion() {
		return false
	}
	t := o.Comb.Tree
	if t == nil || t.Op != OpLeaf || t.HasMatrix() {
		return false
	}
	child := d.Lookup(t.Name)
	return child != nil && child.IsSolid()
}

// Role classifies o. Combinations inside a region are boolean groupings;
// outside regions, a combination with a region or wrapper below it is an
// assembly.
func (d *Database) Role(o *Object) Role {
	switch {
	case o.IsSolid():
		return RoleSolid
	case o.IsRegion():
		return RoleRegion
	case d.IsWrapper(o):
		return RoleWrapper
	}
	for _, a := range d.Assemblies() {
		if a == o {
			return RoleAssembly
		}
	}
	return RoleBoolean
}
