// Package formdef compiles CUE wizard definitions into ordered steps of
// validate.Field values.
//
// A definition is a top-level `wizard` struct checked against an embedded
// schema; see Compile for the shape. Default returns the built-in tax-credit
// claim.
package formdef
