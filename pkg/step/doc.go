// Package step is the ISO-10303 entity registry and exchange-file writer.
//
// Entities are created, linked to each other by pointer, and appended to a
// Registry. File identifiers are assigned in one commit pass, dependencies
// first, after which the registry serializes to ISO-10303-21 text.
package step
