// Package geom holds the geometric vocabulary shared by the exporter:
// 4x4 placement matrices, the closed curve and surface kinds a BRep can
// reference, their promotion to NURBS form, the STEP knot convention and
// the classification of placement transforms.
//
// Vectors are sdfx v3.Vec values throughout.
package geom
