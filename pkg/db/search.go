package db

// Child is one resolved leaf of a combination's tree.
type Child struct {
	Leaf   *Tree
	Object *Object // nil when the leaf name does not resolve
}

// Children returns the leaves of o's tree, left to right, with their
// resolved objects. Non-combinations have no children.
func (d *Database) Children(o *Object) []Child {
	if o == nil || o.Kind != KindComb || o.Comb.Tree == nil {
		return nil
	}
	leaves := o.Comb.Tree.Leaves()
	out := make([]Child, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, Child{Leaf: l, Object: d.Lookup(l.Name)})
	}
	return out
}

// Parents returns the handles of combinations whose trees reference h.
func (d *Database) Parents(h Handle) []Handle {
	target := d.Get(h)
	if target == nil {
		return nil
	}
	var out []Handle
	for _, o := range d.objects {
		for _, c := range d.Children(o) {
			if c.Object == target {
				out = append(out, o.Handle)
				break
			}
		}
	}
	return out
}

// TopLevel returns objects no other combination references, in handle
// order. A combination that references only itself is still top-level.
func (d *Database) TopLevel() []*Object {
	var out []*Object
	for _, o := range d.objects {
		top := true
		for _, p := range d.Parents(o.Handle) {
			if p != o.Handle {
				top = false
				break
			}
		}
		if top {
			out = append(out, o)
		}
	}
	return out
}

// PostOrder returns every object reachable from roots, children before
// parents, each exactly once. Unresolved leaves are ignored and cycles are
// cut at the back edge.
func (d *Database) PostOrder(roots []*Object) []*Object {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(d.objects))
	var out []*Object

	var visit func(o *Object)
	visit = func(o *Object) {
		if color[o.Handle] != white {
			return
		}
		color[o.Handle] = gray
		for _, c := range d.Children(o) {
			if c.Object != nil {
				visit(c.Object)
			}
		}
		color[o.Handle] = black
		out = append(out, o)
	}
	for _, r := range roots {
		if r != nil {
			visit(r)
		}
	}
	return out
}

// Below returns the objects strictly below o.
func (d *Database) Below(o *Object) []*Object {
	all := d.PostOrder([]*Object{o})
	out := all[:0:0]
	for _, x := range all {
		if x != o {
			out = append(out, x)
		}
	}
	return out
}

// BelowRegions returns objects that sit inside some region's tree.
func (d *Database) BelowRegions() []*Object {
	var regions []*Object
	for _, o := range d.objects {
		if o.IsRegion() {
			regions = append(regions, o)
		}
	}
	in := make([]bool, len(d.objects))
	for _, r := range regions {
		for _, x := range d.Below(r) {
			in[x.Handle] = true
		}
	}
	var out []*Object
	for _, o := range d.objects {
		if in[o.Handle] {
			out = append(out, o)
		}
	}
	return out
}

// Assemblies returns the combinations outside every region that group
// placed shapes: those with an empty tree or with a region or wrapper
// somewhere below them. Wrappers themselves are not assemblies.
func (d *Database) Assemblies() []*Object {
	inside := make(map[Handle]bool)
	for _, o := range d.BelowRegions() {
		inside[o.Handle] = true
	}
	var out []*Object
	for _, o := range d.objects {
		if o.Kind != KindComb || o.IsRegion() || inside[o.Handle] || d.IsWrapper(o) {
			continue
		}
		if d.groupsShapes(o) {
			out = append(out, o)
		}
	}
	return out
}

func (d *Database) groupsShapes(o *Object) bool {
	if o.Comb.Tree == nil {
		return true
	}
	for _, x := range d.Below(o) {
		if x.IsRegion() || d.IsWrapper(x) {
			return true
		}
	}
	return false
}
