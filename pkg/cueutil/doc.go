// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides the shared CUE decoding flow used for formulas and
// the keg configuration file.
//
// Both callers follow the same three steps:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with the schema definition
//  3. Validate and decode into a Go struct
//
// # Usage
//
//	//go:embed formula_schema.cue
//	var schema string
//
//	result, err := cueutil.ParseAndDecodeString[Formula](
//	    schema,
//	    data,
//	    "#Formula",
//	    cueutil.WithFilename("clojure.cue"),
//	)
//	if err != nil {
//	    return nil, err // *cueutil.Error, with the CUE path of every issue
//	}
package cueutil
