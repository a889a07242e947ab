package step

// Value is an entity attribute value.
type Value interface {
	value() // marker method restricting implementations to this package
}

// Str is a STEP string attribute.
type Str string

// Real is a STEP real attribute. It is always written with a decimal point.
type Real float64

// Int is a STEP integer attribute.
type Int int

// Bool is a STEP boolean or logical attribute, written .T. or .F.
type Bool bool

// Enum is an enumeration literal, written .NAME.
type Enum string

// List is an aggregate.
type List []Value

// Typed is a value wrapped in a defined type, such as LENGTH_MEASURE(0.05).
type Typed struct {
	Type  string
	Value Value
}

type unset struct{}
type derived struct{}

// Unset is the omitted optional value, written $.
var Unset Value = unset{}

// Derived marks an attribute redeclared as derived in a subtype, written *.
var Derived Value = derived{}

func (Str) value()     {}
func (Real) value()    {}
func (Int) value()     {}
func (Bool) value()    {}
func (Enum) value()    {}
func (List) value()    {}
func (Typed) value()   {}
func (unset) value()   {}
func (derived) value() {}
func (*Entity) value() {}

// Reals builds a list of reals.
func Reals(vs ...float64) List {
	l := make(List, len(vs))
	for i, v := range vs {
		l[i] = Real(v)
	}
	return l
}

// Ints builds a list of integers.
func Ints(vs ...int) List {
	l := make(List, len(vs))
	for i, v := range vs {
		l[i] = Int(v)
	}
	return l
}

// Refs builds a list of entity references.
func Refs(es ...*Entity) List {
	l := make(List, len(es))
	for i, e := range es {
		l[i] = e
	}
	return l
}
