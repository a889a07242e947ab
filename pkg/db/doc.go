// Package db defines the source CAD database read by the exporter.
// Objects live in an arena addressed by stable Handles; combinations carry
// binary boolean trees whose leaves name other objects.
package db
