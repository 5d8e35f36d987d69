// SPDX-License-Identifier: MPL-2.0

// Package formula loads keg formula files.
//
// A formula is a CUE document unified with the embedded #Formula schema
// (formula_schema.cue) and decoded into a Formula. Install and test
// directives are argv lists, never script text; their ${var} references are
// expanded by Expand at execution time.
//
// Repository resolves formula names against an ordered list of directories
// and caches parsed results.
package formula
