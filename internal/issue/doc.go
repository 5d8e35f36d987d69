// SPDX-License-Identifier: MPL-2.0

// Package issue holds keg's catalog of known failure modes and the
// ActionableError type that links a failure to its catalog entry.
//
// Catalog entries are Markdown documents rendered with glamour when the CLI
// runs in verbose mode.
package issue
