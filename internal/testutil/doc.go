// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by keg's tests: building source
// artifacts (WriteTarGz, Package), writing formula files (WriteFormula) and
// failing fast on filesystem errors (MustMkdirAll, MustWriteFile).
package testutil
