// Package value defines the canonical representation of stored values and the
// coercion rules used by the store and the query helpers.
//
// Stored values are untyped. Inside this module they are always represented as
// one of the following Go types:
//
//	nil             null / absent
//	bool            boolean
//	float64         number
//	string          string
//	[]any           array
//	map[string]any  object
//
// Normalize converts arbitrary Go values (ints, structs, typed slices, ...) into
// this form. Every driver decodes rows into it, so values read from any backend
// can be compared with StrictEqual, LooseEqual and Compare.
package value
