package geom

import "math"

// knotTolerance is the distance under which two knot values are treated
// as the same knot.
const knotTolerance = 1e-12

// KnotVector is a knot vector in STEP form: distinct values with their
// multiplicities.
type KnotVector struct {
	Values         []float64
	Multiplicities []int
}

// Sum returns the total multiplicity.
func (k KnotVector) Sum() int {
	n := 0
	for _, m := range k.Multiplicities {
		n += m
	}
	return n
}

// StepKnots converts an internal knot array (count+degree-1 entries) into
// STEP form. Interior multiplicities pass through; the first and last
// distinct values gain one, since STEP carries the phantom end knots the
// internal convention omits. The result satisfies
// Sum() == count + degree + 1.
func StepKnots(knots []float64) KnotVector {
	var kv KnotVector
	for i, k := range knots {
		if i > 0 && math.Abs(k-kv.Values[len(kv.Values)-1]) <= knotTolerance*math.Max(1, math.Abs(k)) {
			kv.Multiplicities[len(kv.Multiplicities)-1]++
			continue
		}
		kv.Values = append(kv.Values, k)
		kv.Multiplicities = append(kv.Multiplicities, 1)
	}
	if len(kv.Multiplicities) == 0 {
		return kv
	}
	kv.Multiplicities[0]++
	kv.Multiplicities[len(kv.Multiplicities)-1]++
	return kv
}
