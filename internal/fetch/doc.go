// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads formula source artifacts, verifies them against the
// declared sha256 and unpacks them into an install working directory.
//
// Supported URL schemes are http, https and file. Verified artifacts are
// kept in a content-addressed download cache (<cache>/downloads) and
// re-verified whenever they are reused.
package fetch
