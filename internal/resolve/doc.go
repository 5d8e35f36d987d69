// SPDX-License-Identifier: MPL-2.0

// Package resolve computes installation plans. A plan lists the formulas to
// install in dependency order and records the dependencies that the registry
// or the host tool path already satisfy.
package resolve
